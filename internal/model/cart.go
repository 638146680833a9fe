package model

import (
	"strconv"
	"strings"
)

// ShoppingCart は店舗APIが返すカート。
// 商品・カラー・数量の3つの並列配列がインデックスで対応する。
// 長さが揃っている保証はないため、個別要素へのアクセスは必ず *At メソッドを使う。
type ShoppingCart struct {
	Products           []Product `json:"productsInCart"`
	Colors             []Color   `json:"listofColors"`
	Quantities         []int     `json:"productQuan"`
	ProductHistory     []Product `json:"productHistory,omitempty"`
	ProductHistoryQuan []int     `json:"productHistoryQuan,omitempty"`
}

// CartLine はカートの1行。ID は (商品ID, カラー名) から導出した安定識別子。
type CartLine struct {
	ID       string  `json:"id"`
	Index    int     `json:"-"`
	Product  Product `json:"product"`
	Color    string  `json:"color"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}

// LineID はカート行の識別子を生成する。
// 店舗APIは同一 (商品, カラー) の追加を数量加算にまとめるため、この組はカート内で一意になる。
func LineID(productID int, color string) string {
	return strconv.Itoa(productID) + ":" + color
}

// ParseLineID は LineID で生成した識別子を分解する。
func ParseLineID(id string) (productID int, color string, ok bool) {
	head, tail, found := strings.Cut(id, ":")
	if !found {
		return 0, "", false
	}
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", false
	}
	return pid, tail, true
}

// Len は表示対象の行数を返す。商品配列の長さを基準にする。
func (c ShoppingCart) Len() int {
	return len(c.Products)
}

// IsEmpty はカートが空かを返す。
func (c ShoppingCart) IsEmpty() bool {
	return len(c.Products) == 0
}

// ProductAt は i 行目の商品を返す。範囲外なら空の商品を返す。
func (c ShoppingCart) ProductAt(i int) Product {
	if i < 0 || i >= len(c.Products) {
		return Product{}
	}
	return c.Products[i]
}

// ColorAt は i 行目のカラー名を返す。範囲外なら空文字を返す。
func (c ShoppingCart) ColorAt(i int) string {
	if i < 0 || i >= len(c.Colors) {
		return ""
	}
	return c.Colors[i].Name
}

// QuantityAt は i 行目の数量を返す。範囲外なら0を返す。
func (c ShoppingCart) QuantityAt(i int) int {
	if i < 0 || i >= len(c.Quantities) {
		return 0
	}
	return c.Quantities[i]
}

// Lines はカートを行単位に変換する。
func (c ShoppingCart) Lines() []CartLine {
	lines := make([]CartLine, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		p := c.ProductAt(i)
		color := c.ColorAt(i)
		qty := c.QuantityAt(i)
		lines = append(lines, CartLine{
			ID:       LineID(p.ID, color),
			Index:    i,
			Product:  p,
			Color:    color,
			Quantity: qty,
			Subtotal: p.Price * float64(qty),
		})
	}
	return lines
}

// IndexOf は行IDに対応する現在のインデックスを返す。見つからなければ -1。
func (c ShoppingCart) IndexOf(lineID string) int {
	for i := 0; i < c.Len(); i++ {
		if LineID(c.ProductAt(i).ID, c.ColorAt(i)) == lineID {
			return i
		}
	}
	return -1
}

// Total は合計金額を返す。
func (c ShoppingCart) Total() float64 {
	var total float64
	for i := 0; i < c.Len(); i++ {
		total += c.ProductAt(i).Price * float64(c.QuantityAt(i))
	}
	return total
}

// ItemCount は数量の合計を返す。
func (c ShoppingCart) ItemCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		n += c.QuantityAt(i)
	}
	return n
}

// QuantitiesByProduct は商品IDごとの要求数量を集計する。
// 同一商品の異なるカラーは同じ在庫を消費する。
func (c ShoppingCart) QuantitiesByProduct() map[int]int {
	out := make(map[int]int)
	for i := 0; i < c.Len(); i++ {
		out[c.ProductAt(i).ID] += c.QuantityAt(i)
	}
	return out
}
