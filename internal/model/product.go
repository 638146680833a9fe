package model

import "strings"

// ProductType は商品種別タグ。
type ProductType string

// 店舗APIが受け付ける商品種別
const (
	ProductTypeMouse      ProductType = "MOUSE"
	ProductTypeKeyboard   ProductType = "KEYBOARD"
	ProductTypeHeadset    ProductType = "HEADSET"
	ProductTypeMic        ProductType = "MIC"
	ProductTypeController ProductType = "CONTROLLER"
	ProductTypeSpeaker    ProductType = "SPEAKER"
	ProductTypeWebcam     ProductType = "WEBCAM"
)

var productTypes = []ProductType{
	ProductTypeMouse,
	ProductTypeKeyboard,
	ProductTypeHeadset,
	ProductTypeMic,
	ProductTypeController,
	ProductTypeSpeaker,
	ProductTypeWebcam,
}

// ProductTypes は既知の商品種別の一覧を返す。
func ProductTypes() []ProductType {
	out := make([]ProductType, len(productTypes))
	copy(out, productTypes)
	return out
}

// ParseProductType は大文字小文字を区別せずに商品種別を解釈する。
func ParseProductType(s string) (ProductType, bool) {
	for _, pt := range productTypes {
		if strings.EqualFold(string(pt), strings.TrimSpace(s)) {
			return pt, true
		}
	}
	return "", false
}

// Color は商品カラー。名前で同一性を判定する。
type Color struct {
	Name string `json:"name"`
}

// Product はカタログ上の商品を表す。
type Product struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Price       float64     `json:"price"`
	Quantity    int         `json:"quantity"`
	ProductType ProductType `json:"productType"`
	Description string      `json:"description"`
	ImageURL    string      `json:"imageURL"`
	Colors      []Color     `json:"color"`
}

// InStock は在庫があるかを返す。
func (p Product) InStock() bool {
	return p.Quantity > 0
}

// HasColor は商品が指定カラーを持つかを返す。
func (p Product) HasColor(name string) bool {
	for _, c := range p.Colors {
		if c.Name == name {
			return true
		}
	}
	return false
}
