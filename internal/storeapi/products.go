package storeapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/techasaurus/internal/model"
)

const productRoot = "/product"

// ListProducts は全商品を取得する。
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.do(ctx, "list_products", http.MethodGet, productRoot, nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SearchProducts は商品名に term を含む商品を検索する。
func (c *Client) SearchProducts(ctx context.Context, term string) ([]model.Product, error) {
	q := url.Values{}
	q.Set("name", term)

	var products []model.Product
	if err := c.do(ctx, "search_products", http.MethodGet, productRoot+"/", q, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct はIDで商品を取得する。
// 店舗APIは未登録IDに対して空ボディの200を返すため、404相当のStatusErrorに変換する。
func (c *Client) GetProduct(ctx context.Context, id int) (*model.Product, error) {
	var p model.Product
	if err := c.do(ctx, "get_product", http.MethodGet, productRoot+"/"+itoa(id), nil, nil, &p); err != nil {
		return nil, err
	}
	if p.ID == 0 && p.Name == "" {
		return nil, &StatusError{Operation: "get_product", StatusCode: http.StatusNotFound}
	}
	return &p, nil
}

// CreateProduct は商品を登録する。
func (c *Client) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var created model.Product
	if err := c.do(ctx, "create_product", http.MethodPost, productRoot, nil, p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct は商品を更新する（在庫数の変更を含む）。
func (c *Client) UpdateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	var updated model.Product
	if err := c.do(ctx, "update_product", http.MethodPut, productRoot, nil, p, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct は商品を削除する。
func (c *Client) DeleteProduct(ctx context.Context, id int) error {
	return c.do(ctx, "delete_product", http.MethodDelete, productRoot+"/"+itoa(id), nil, nil, nil)
}

// ListAllColors はカタログ全体のカラー一覧を取得する。
func (c *Client) ListAllColors(ctx context.Context) ([]model.Color, error) {
	var colors []model.Color
	if err := c.do(ctx, "list_all_colors", http.MethodGet, productRoot+"/colors", nil, nil, &colors); err != nil {
		return nil, err
	}
	return colors, nil
}

// AddCatalogColor はカタログにカラーを追加する。
func (c *Client) AddCatalogColor(ctx context.Context, color model.Color) ([]model.Color, error) {
	var colors []model.Color
	if err := c.do(ctx, "add_catalog_color", http.MethodPost, productRoot+"/colors", nil, color, &colors); err != nil {
		return nil, err
	}
	return colors, nil
}

// GetProductColors は商品に設定されたカラー一覧を取得する。
func (c *Client) GetProductColors(ctx context.Context, productID int) ([]model.Color, error) {
	var colors []model.Color
	if err := c.do(ctx, "get_product_colors", http.MethodGet, productRoot+"/"+itoa(productID)+"/colors", nil, nil, &colors); err != nil {
		return nil, err
	}
	return colors, nil
}

// SetProductColors は商品のカラー一覧を置き換える。
func (c *Client) SetProductColors(ctx context.Context, productID int, colors []model.Color) ([]model.Color, error) {
	if colors == nil {
		colors = []model.Color{}
	}
	var out []model.Color
	if err := c.do(ctx, "set_product_colors", http.MethodPut, productRoot+"/"+itoa(productID)+"/colors", nil, colors, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReview はレビューを登録する。同一 (商品, ユーザー) のレビューが既にあれば409が返る。
func (c *Client) CreateReview(ctx context.Context, r model.Review) (*model.Review, error) {
	var created model.Review
	if err := c.do(ctx, "create_review", http.MethodPost, productRoot+"/review/create", nil, r, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListReviewsByProduct は商品のレビュー一覧を取得する。
func (c *Client) ListReviewsByProduct(ctx context.Context, productID int) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.do(ctx, "list_reviews_by_product", http.MethodGet, productRoot+"/review/product/"+itoa(productID), nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// ListReviewsByUser はユーザーが投稿したレビュー一覧を取得する。
func (c *Client) ListReviewsByUser(ctx context.Context, userID int) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.do(ctx, "list_reviews_by_user", http.MethodGet, productRoot+"/review/user/"+itoa(userID), nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// DeleteReview は (商品, ユーザー) で識別されるレビューを削除する。
func (c *Client) DeleteReview(ctx context.Context, r model.Review) error {
	return c.do(ctx, "delete_review", http.MethodDelete, productRoot+"/review/delete", nil, r, nil)
}
