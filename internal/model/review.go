package model

// Review は商品レビュー。(ProductID, UserID) で一意に識別される。
type Review struct {
	ProductID int    `json:"productid"`
	UserID    int    `json:"userid"`
	Rating    int    `json:"rating"`
	Body      string `json:"review"`
}

// 評価の範囲
const (
	MinRating = 1
	MaxRating = 5
)
