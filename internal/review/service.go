// Package review は商品レビューの投稿と表示を提供する。
package review

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/security"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// StoreAPI はレビューサービスが必要とする店舗APIの操作。
type StoreAPI interface {
	GetProduct(ctx context.Context, id int) (*model.Product, error)
	GetAccount(ctx context.Context, id int) (*model.Account, error)
	CreateReview(ctx context.Context, r model.Review) (*model.Review, error)
	ListReviewsByProduct(ctx context.Context, productID int) ([]model.Review, error)
	ListReviewsByUser(ctx context.Context, userID int) ([]model.Review, error)
	DeleteReview(ctx context.Context, r model.Review) error
}

// Reviewer はレビュー投稿者として公開するアカウント情報。
type Reviewer struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ProfilePicture string `json:"profilePicture"`
}

func newReviewer(a model.Account) Reviewer {
	return Reviewer{
		ID:             a.ID,
		Username:       a.Username,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		ProfilePicture: a.ProfilePicture,
	}
}

// anonymousReviewer は投稿者を解決できない場合のプレースホルダー。
func anonymousReviewer() Reviewer {
	return Reviewer{
		Username:       "anonymous",
		FirstName:      "Anonymous",
		ProfilePicture: model.DefaultProfilePicture,
	}
}

// Entry はレビューと投稿者の組。
type Entry struct {
	Review   model.Review `json:"review"`
	Reviewer Reviewer     `json:"reviewer"`
}

// ProductReviews は商品のレビュー一覧と平均評価。
type ProductReviews struct {
	Entries   []Entry `json:"entries"`
	Average   float64 `json:"average"`
	HasRating bool    `json:"hasRating"`
}

// Service はレビューのビジネスロジックを提供する。
type Service struct {
	store         StoreAPI
	sanitizer     security.TextSanitizer
	adminUsername string
	logger        *slog.Logger
}

// NewService はServiceを生成する。
func NewService(store StoreAPI, sanitizer security.TextSanitizer, adminUsername string, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		sanitizer:     sanitizer,
		adminUsername: adminUsername,
		logger:        logger,
	}
}

// Submit はレビューを投稿する。本文はタグを除去して保存する。
func (s *Service) Submit(ctx context.Context, acct model.Account, productID, rating int, body string) (*model.Review, error) {
	if acct.ID == 0 {
		return nil, model.NewUnauthorizedError()
	}
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, model.NewInvalidRatingError(rating)
	}
	body = s.sanitizer.Sanitize(body)
	if body == "" {
		return nil, model.NewValidationError("review", "is required")
	}

	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(productID)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	created, err := s.store.CreateReview(ctx, model.Review{
		ProductID: productID,
		UserID:    acct.ID,
		Rating:    rating,
		Body:      body,
	})
	if err != nil {
		if storeapi.IsConflict(err) {
			return nil, model.NewDuplicateReviewError()
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.logger.Info("review submitted",
		slog.Int("account_id", acct.ID),
		slog.Int("product_id", productID),
		slog.Int("rating", rating),
	)
	return created, nil
}

// ListForProduct は商品のレビューを投稿者付きで返す。
// 投稿者の取得に失敗したレビューは匿名の投稿者として表示し、平均評価には含める。
func (s *Service) ListForProduct(ctx context.Context, productID int) *ProductReviews {
	reviews, err := s.store.ListReviewsByProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("failed to list reviews",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		reviews = nil
	}

	reviewers := make(map[int]Reviewer)
	entries := make([]Entry, 0, len(reviews))
	for _, r := range reviews {
		reviewer, ok := reviewers[r.UserID]
		if !ok {
			reviewer = s.lookupReviewer(ctx, r.UserID)
			reviewers[r.UserID] = reviewer
		}
		r.Body = s.sanitizer.Sanitize(r.Body)
		entries = append(entries, Entry{Review: r, Reviewer: reviewer})
	}

	avg, ok := AverageRating(reviews)
	return &ProductReviews{Entries: entries, Average: avg, HasRating: ok}
}

func (s *Service) lookupReviewer(ctx context.Context, userID int) Reviewer {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil || acct == nil || acct.ID == 0 {
		attrs := []any{slog.Int("user_id", userID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.Warn("reviewer lookup failed, using anonymous", attrs...)
		return anonymousReviewer()
	}
	return newReviewer(*acct)
}

// AverageRating は評価の平均を小数第1位に丸めて返す。レビューが無い場合は (0, false)。
func AverageRating(reviews []model.Review) (float64, bool) {
	if len(reviews) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	mean := float64(sum) / float64(len(reviews))
	return math.Round(mean*10) / 10, true
}

// ListByUser はユーザーが投稿したレビューを返す。取得に失敗した場合は空の一覧を返す。
func (s *Service) ListByUser(ctx context.Context, userID int) []model.Review {
	reviews, err := s.store.ListReviewsByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to list user reviews",
			slog.Int("user_id", userID),
			slog.String("error", err.Error()),
		)
		return []model.Review{}
	}
	if reviews == nil {
		return []model.Review{}
	}
	return reviews
}

// Delete はレビューを削除する。削除できるのは投稿者本人と管理者だけ。
func (s *Service) Delete(ctx context.Context, acct model.Account, productID, userID int) error {
	if acct.ID != userID && !acct.IsAdmin(s.adminUsername) {
		return model.NewForbiddenError()
	}

	if err := s.store.DeleteReview(ctx, model.Review{ProductID: productID, UserID: userID}); err != nil {
		if storeapi.IsNotFound(err) {
			return model.NewReviewNotFoundError()
		}
		return fmt.Errorf("failed to delete review: %w", err)
	}

	s.logger.Info("review deleted",
		slog.Int("account_id", acct.ID),
		slog.Int("product_id", productID),
		slog.Int("user_id", userID),
	)
	return nil
}
