// Package cart はショッピングカートの操作を提供する。
// カートの変更は全て店舗APIへ往復し、変更後に必ずカートを取得し直す。
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/techasaurus/internal/metrics"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/storeapi"
)

// カート変更の種類。メトリクスのラベルに使用する。
const (
	MutationAdd       = "add"
	MutationIncrement = "increment"
	MutationDecrement = "decrement"
	MutationRemove    = "remove"
)

// StoreAPI はカートサービスが必要とする店舗APIの操作。
type StoreAPI interface {
	GetCart(ctx context.Context, accountID int) (*model.ShoppingCart, error)
	GetProduct(ctx context.Context, id int) (*model.Product, error)
	AddProductToCart(ctx context.Context, accountID int, p model.Product) (*model.ShoppingCart, error)
	AddColorToCart(ctx context.Context, accountID int, color model.Color) (*model.ShoppingCart, error)
	RemoveCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error)
	IncrementCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error)
	DecrementCartLine(ctx context.Context, accountID, index int) (*model.ShoppingCart, error)
	UpdateCart(ctx context.Context, accountID int, cart model.ShoppingCart) (*model.ShoppingCart, error)
}

// View はカートの表示用データ。
type View struct {
	Lines     []model.CartLine `json:"lines"`
	Total     float64          `json:"total"`
	ItemCount int              `json:"itemCount"`
}

// NewView はカートから表示用データを組み立てる。
func NewView(c model.ShoppingCart) *View {
	return &View{
		Lines:     c.Lines(),
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
}

// Service はカート操作のビジネスロジックを提供する。
type Service struct {
	store         StoreAPI
	adminUsername string
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	locks         *accountLocks
}

// NewService はServiceを生成する。
func NewService(store StoreAPI, adminUsername string, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:         store,
		adminUsername: adminUsername,
		metrics:       m,
		logger:        logger,
		locks:         newAccountLocks(),
	}
}

// View はカートを取得する。取得に失敗した場合はログに残して空のカートを返す。
func (s *Service) View(ctx context.Context, acct model.Account) *View {
	c, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		s.logger.Warn("failed to get cart",
			slog.Int("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
		return NewView(model.ShoppingCart{})
	}
	return NewView(*c)
}

// Add は商品をカラー付きでカートに追加する。
// 商品追加とカラー追加の2段階で行い、カラー追加に失敗した場合は追加前のカートに戻す。
func (s *Service) Add(ctx context.Context, acct model.Account, productID int, color string) (*View, error) {
	color = strings.TrimSpace(color)
	if color == "" {
		return nil, model.NewColorRequiredError()
	}
	if acct.IsAdmin(s.adminUsername) {
		return nil, model.NewAdminCannotShopError()
	}

	unlock, err := s.locks.acquire(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	view, err := s.add(ctx, acct, productID, color)
	s.record(MutationAdd, err)
	return view, err
}

func (s *Service) add(ctx context.Context, acct model.Account, productID int, color string) (*View, error) {
	// 1. 商品の存在・在庫・カラーを確認
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(productID)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !product.InStock() {
		return nil, model.NewOutOfStockError(product.Name)
	}
	if len(product.Colors) > 0 && !product.HasColor(color) {
		return nil, model.NewColorNotAvailableError(product.Name, color)
	}

	// 2. 補償用に追加前のカートを保持
	before, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	// 3. 商品を追加
	if _, err := s.store.AddProductToCart(ctx, acct.ID, *product); err != nil {
		return nil, fmt.Errorf("failed to add product to cart: %w", err)
	}

	// 4. カラーを追加。失敗時は追加前のカートに戻す
	if _, err := s.store.AddColorToCart(ctx, acct.ID, model.Color{Name: color}); err != nil {
		addErr := fmt.Errorf("failed to add color to cart: %w", err)
		if _, rbErr := s.store.UpdateCart(ctx, acct.ID, *before); rbErr != nil {
			s.logger.Error("failed to restore cart after partial add",
				slog.Int("account_id", acct.ID),
				slog.Int("product_id", productID),
				slog.String("error", rbErr.Error()),
			)
			return nil, errors.Join(addErr, fmt.Errorf("failed to restore cart: %w", rbErr))
		}
		s.logger.Warn("cart add rolled back",
			slog.Int("account_id", acct.ID),
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil, addErr
	}

	s.logger.Info("cart line added",
		slog.Int("account_id", acct.ID),
		slog.String("line_id", model.LineID(productID, color)),
	)

	refreshed, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return NewView(*refreshed), nil
}

// Increment は行の数量を1増やす。
func (s *Service) Increment(ctx context.Context, acct model.Account, lineID string) (*View, error) {
	return s.mutateLine(ctx, acct, lineID, MutationIncrement, s.store.IncrementCartLine)
}

// Decrement は行の数量を1減らす。数量1の行は削除される。
func (s *Service) Decrement(ctx context.Context, acct model.Account, lineID string) (*View, error) {
	return s.mutateLine(ctx, acct, lineID, MutationDecrement, s.store.DecrementCartLine)
}

// Remove は行を削除する。
func (s *Service) Remove(ctx context.Context, acct model.Account, lineID string) (*View, error) {
	return s.mutateLine(ctx, acct, lineID, MutationRemove, s.store.RemoveCartLine)
}

type lineMutation func(ctx context.Context, accountID, index int) (*model.ShoppingCart, error)

// mutateLine は行IDを最新のカートでインデックスに解決してから変更し、カートを取得し直す。
func (s *Service) mutateLine(ctx context.Context, acct model.Account, lineID, kind string, mutate lineMutation) (*View, error) {
	unlock, err := s.locks.acquire(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	view, err := s.doMutateLine(ctx, acct, lineID, mutate)
	s.record(kind, err)
	return view, err
}

func (s *Service) doMutateLine(ctx context.Context, acct model.Account, lineID string, mutate lineMutation) (*View, error) {
	current, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	idx := current.IndexOf(lineID)
	if idx < 0 {
		return nil, model.NewCartLineNotFoundError(lineID)
	}

	if _, err := mutate(ctx, acct.ID, idx); err != nil {
		return nil, fmt.Errorf("failed to mutate cart line: %w", err)
	}

	refreshed, err := s.store.GetCart(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return NewView(*refreshed), nil
}

func (s *Service) record(kind string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordCartMutation(kind, outcome)
}

// Lock はアカウントのカート操作を排他するロックを取得する。
// チェックアウトがカート変更と並行しないように使用する。
func (s *Service) Lock(ctx context.Context, accountID int) (func(), error) {
	return s.locks.acquire(ctx, accountID)
}
