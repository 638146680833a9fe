// Package catalog は商品カタログの閲覧と管理者向けの商品管理を提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/techasaurus/internal/cache"
	"github.com/hitoshi/techasaurus/internal/metrics"
	"github.com/hitoshi/techasaurus/internal/model"
	"github.com/hitoshi/techasaurus/internal/security"
	"github.com/hitoshi/techasaurus/internal/storeapi"
	"github.com/hitoshi/techasaurus/internal/validation"
)

// キャッシュ参照結果のメトリクスラベル
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// StoreAPI はカタログサービスが必要とする店舗APIの操作。
type StoreAPI interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, term string) ([]model.Product, error)
	GetProduct(ctx context.Context, id int) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int) error
	ListAllColors(ctx context.Context) ([]model.Color, error)
	AddCatalogColor(ctx context.Context, color model.Color) ([]model.Color, error)
	GetProductColors(ctx context.Context, productID int) ([]model.Color, error)
	SetProductColors(ctx context.Context, productID int, colors []model.Color) ([]model.Color, error)
}

// ImageChecker は商品画像URLの検証。
type ImageChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// ProductForm は管理者が入力する商品情報。
type ProductForm struct {
	Name        string   `json:"name" validate:"required"`
	Price       float64  `json:"price" validate:"gt=0"`
	Quantity    int      `json:"quantity" validate:"gte=0"`
	ProductType string   `json:"productType" validate:"required"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageURL"`
	Colors      []string `json:"colors"`
}

// Service はカタログのビジネスロジックを提供する。
type Service struct {
	store     StoreAPI
	cache     cache.CatalogCache
	sanitizer security.TextSanitizer
	images    ImageChecker
	validate  *validation.Validator
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	store StoreAPI,
	c cache.CatalogCache,
	sanitizer security.TextSanitizer,
	images ImageChecker,
	validate *validation.Validator,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if c == nil {
		c = cache.NopCatalogCache{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:     store,
		cache:     c,
		sanitizer: sanitizer,
		images:    images,
		validate:  validate,
		metrics:   m,
		logger:    logger,
	}
}

// --- 閲覧 ---

// List は全商品を返す。取得に失敗した場合は空の一覧を返す。
func (s *Service) List(ctx context.Context) []model.Product {
	products, hit, err := s.cache.GetProducts(ctx)
	s.recordCache(hit, err)
	if hit {
		return s.present(products)
	}

	products, err = s.store.ListProducts(ctx)
	if err != nil {
		s.logger.Warn("failed to list products", slog.String("error", err.Error()))
		return []model.Product{}
	}
	if err := s.cache.SetProducts(ctx, products); err != nil {
		s.logger.Warn("failed to cache products", slog.String("error", err.Error()))
	}
	return s.present(products)
}

// Search は名前で商品を検索する。空白のみの検索語は店舗APIを呼ばずに空の一覧を返す。
func (s *Service) Search(ctx context.Context, term string) []model.Product {
	term = strings.TrimSpace(term)
	if term == "" {
		return []model.Product{}
	}

	products, err := s.store.SearchProducts(ctx, term)
	if err != nil {
		s.logger.Warn("failed to search products",
			slog.String("term", term),
			slog.String("error", err.Error()),
		)
		return []model.Product{}
	}
	return s.present(products)
}

// Get は商品を1件返す。在庫数を含むためキャッシュしない。
func (s *Service) Get(ctx context.Context, id int) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	out := s.presentOne(*p)
	return &out, nil
}

// Colors は商品に割り当てられたカラーを返す。取得に失敗した場合は空の一覧を返す。
func (s *Service) Colors(ctx context.Context, productID int) []model.Color {
	colors, hit, err := s.cache.GetProductColors(ctx, productID)
	s.recordCache(hit, err)
	if hit {
		return colors
	}

	colors, err = s.store.GetProductColors(ctx, productID)
	if err != nil {
		s.logger.Warn("failed to get product colors",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
		return []model.Color{}
	}
	if err := s.cache.SetProductColors(ctx, productID, colors); err != nil {
		s.logger.Warn("failed to cache product colors", slog.String("error", err.Error()))
	}
	return nonNilColors(colors)
}

// AllColors はカラーカタログを返す。取得に失敗した場合は空の一覧を返す。
func (s *Service) AllColors(ctx context.Context) []model.Color {
	colors, hit, err := s.cache.GetColors(ctx)
	s.recordCache(hit, err)
	if hit {
		return colors
	}

	colors, err = s.store.ListAllColors(ctx)
	if err != nil {
		s.logger.Warn("failed to list colors", slog.String("error", err.Error()))
		return []model.Color{}
	}
	if err := s.cache.SetColors(ctx, colors); err != nil {
		s.logger.Warn("failed to cache colors", slog.String("error", err.Error()))
	}
	return nonNilColors(colors)
}

// Warm はキャッシュを無効化し、一覧とカラーカタログを読み込み直す。
func (s *Service) Warm(ctx context.Context) error {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}
	colors, err := s.store.ListAllColors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list colors: %w", err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	if err := s.cache.SetProducts(ctx, products); err != nil {
		return fmt.Errorf("failed to cache products: %w", err)
	}
	if err := s.cache.SetColors(ctx, colors); err != nil {
		return fmt.Errorf("failed to cache colors: %w", err)
	}
	return nil
}

// --- 管理者向け ---

// Create は商品を登録する。
func (s *Service) Create(ctx context.Context, form ProductForm) (*model.Product, error) {
	p, err := s.buildProduct(ctx, model.Product{}, form)
	if err != nil {
		return nil, err
	}
	colors, err := s.resolveColors(ctx, form.Colors)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		if storeapi.IsConflict(err) {
			return nil, model.NewInvalidProductError("同名の商品が既に存在します")
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if len(colors) > 0 {
		saved, err := s.store.SetProductColors(ctx, created.ID, colors)
		if err != nil {
			return nil, fmt.Errorf("failed to set product colors: %w", err)
		}
		created.Colors = saved
	}

	s.invalidate(ctx)
	s.logger.Info("product created", slog.Int("product_id", created.ID))
	out := s.presentOne(*created)
	return &out, nil
}

// Update は商品情報を更新する。カラーの指定がある場合は割り当ても置き換える。
func (s *Service) Update(ctx context.Context, id int, form ProductForm) (*model.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.buildProduct(ctx, *current, form)
	if err != nil {
		return nil, err
	}
	var colors []model.Color
	if form.Colors != nil {
		if colors, err = s.resolveColors(ctx, form.Colors); err != nil {
			return nil, err
		}
		p.Colors = colors
	}

	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	if form.Colors != nil {
		saved, err := s.store.SetProductColors(ctx, id, colors)
		if err != nil {
			return nil, fmt.Errorf("failed to set product colors: %w", err)
		}
		updated.Colors = saved
	}

	s.invalidate(ctx)
	s.logger.Info("product updated", slog.Int("product_id", id))
	out := s.presentOne(*updated)
	return &out, nil
}

// Delete は商品を削除する。
func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		if storeapi.IsNotFound(err) {
			return model.NewProductNotFoundError(id)
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.invalidate(ctx)
	s.logger.Info("product deleted", slog.Int("product_id", id))
	return nil
}

// AdjustStock は在庫数を増減する。0未満にはならない。
func (s *Service) AdjustStock(ctx context.Context, id, delta int) (*model.Product, error) {
	current, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	next := *current
	next.Quantity = max(0, next.Quantity+delta)
	updated, err := s.store.UpdateProduct(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	s.invalidate(ctx)
	s.logger.Info("stock adjusted",
		slog.Int("product_id", id),
		slog.Int("delta", delta),
		slog.Int("quantity", updated.Quantity),
	)
	out := s.presentOne(*updated)
	return &out, nil
}

// SetColors は商品のカラー割り当てを置き換える。
// 重複は DUPLICATE_COLOR、カラーカタログにない名前は UNKNOWN_COLOR とする。
func (s *Service) SetColors(ctx context.Context, id int, names []string) ([]model.Color, error) {
	colors, err := s.resolveColors(ctx, names)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.SetProductColors(ctx, id, colors)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to set product colors: %w", err)
	}
	s.invalidate(ctx)
	return nonNilColors(saved), nil
}

// ToggleColor は商品のカラー割り当てを1色だけ切り替える。
func (s *Service) ToggleColor(ctx context.Context, id int, name string) ([]model.Color, error) {
	catalog, err := s.store.ListAllColors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list colors: %w", err)
	}
	current, err := s.store.GetProductColors(ctx, id)
	if err != nil {
		if storeapi.IsNotFound(err) {
			return nil, model.NewProductNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get product colors: %w", err)
	}

	sel := NewColorSelection(catalog, current)
	if err := sel.Toggle(name); err != nil {
		return nil, err
	}

	saved, err := s.store.SetProductColors(ctx, id, sel.Selected())
	if err != nil {
		return nil, fmt.Errorf("failed to set product colors: %w", err)
	}
	s.invalidate(ctx)
	return nonNilColors(saved), nil
}

// AddCatalogColor はカラーカタログに新しいカラーを追加する。
func (s *Service) AddCatalogColor(ctx context.Context, name string) ([]model.Color, error) {
	name = strings.TrimSpace(s.sanitizer.Sanitize(name))
	if name == "" {
		return nil, model.NewValidationError("name", "is required")
	}

	catalog, err := s.store.ListAllColors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list colors: %w", err)
	}
	for _, c := range catalog {
		if strings.EqualFold(c.Name, name) {
			return nil, model.NewDuplicateColorError(name)
		}
	}

	saved, err := s.store.AddCatalogColor(ctx, model.Color{Name: name})
	if err != nil {
		if storeapi.IsConflict(err) {
			return nil, model.NewDuplicateColorError(name)
		}
		return nil, fmt.Errorf("failed to add color: %w", err)
	}
	s.invalidate(ctx)
	return nonNilColors(saved), nil
}

// buildProduct はフォームを検証して商品に反映する。
func (s *Service) buildProduct(ctx context.Context, base model.Product, form ProductForm) (model.Product, error) {
	if err := s.validate.Struct(form); err != nil {
		return model.Product{}, err
	}
	pt, ok := model.ParseProductType(form.ProductType)
	if !ok {
		return model.Product{}, model.NewInvalidProductError(fmt.Sprintf("不明な商品種別です: %s", form.ProductType))
	}

	imageURL := strings.TrimSpace(form.ImageURL)
	if imageURL != "" && imageURL != base.ImageURL {
		if err := s.images.Check(ctx, imageURL); err != nil {
			if errors.Is(err, security.ErrBlockedDestination) {
				return model.Product{}, model.NewSSRFBlockedError()
			}
			return model.Product{}, model.NewInvalidURLError(err.Error())
		}
	}

	p := base
	p.Name = strings.TrimSpace(s.sanitizer.Sanitize(form.Name))
	p.Price = form.Price
	p.Quantity = form.Quantity
	p.ProductType = pt
	p.Description = s.sanitizer.Sanitize(form.Description)
	p.ImageURL = imageURL
	if p.Name == "" {
		return model.Product{}, model.NewValidationError("name", "is required")
	}
	return p, nil
}

// resolveColors はカラー名をカラーカタログと照合する。
func (s *Service) resolveColors(ctx context.Context, names []string) ([]model.Color, error) {
	if len(names) == 0 {
		return []model.Color{}, nil
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if seen[n] {
			return nil, model.NewDuplicateColorError(n)
		}
		seen[n] = true
	}

	catalog, err := s.store.ListAllColors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list colors: %w", err)
	}
	sel := NewColorSelection(catalog, nil)
	for _, n := range names {
		if err := sel.Select(n); err != nil {
			return nil, err
		}
	}
	return sel.Selected(), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", slog.String("error", err.Error()))
	}
}

func (s *Service) recordCache(hit bool, err error) {
	switch {
	case err != nil:
		s.metrics.RecordCatalogCache(cacheError)
		s.logger.Warn("catalog cache read failed", slog.String("error", err.Error()))
	case hit:
		s.metrics.RecordCatalogCache(cacheHit)
	default:
		s.metrics.RecordCatalogCache(cacheMiss)
	}
}

// present は応答用に説明文をサニタイズする。
func (s *Service) present(products []model.Product) []model.Product {
	out := make([]model.Product, len(products))
	for i, p := range products {
		out[i] = s.presentOne(p)
	}
	return out
}

func (s *Service) presentOne(p model.Product) model.Product {
	p.Description = s.sanitizer.Sanitize(p.Description)
	return p
}

func nonNilColors(cs []model.Color) []model.Color {
	if cs == nil {
		return []model.Color{}
	}
	return cs
}
