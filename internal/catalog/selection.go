package catalog

import (
	"strings"

	"github.com/hitoshi/techasaurus/internal/model"
)

// ColorSelection は商品に割り当てるカラーの選択状態。
// 選択できるのはカラーカタログに存在するカラーだけで、同じカラーが重複することはない。
type ColorSelection struct {
	known    map[string]bool
	selected []model.Color
}

// NewColorSelection はカラーカタログと現在の選択から選択状態を生成する。
// カタログにない既存の選択と重複は取り除く。
func NewColorSelection(catalog, selected []model.Color) *ColorSelection {
	s := &ColorSelection{known: make(map[string]bool, len(catalog))}
	for _, c := range catalog {
		s.known[c.Name] = true
	}
	for _, c := range selected {
		if s.known[c.Name] && !s.Contains(c.Name) {
			s.selected = append(s.selected, c)
		}
	}
	return s
}

// Toggle は未選択なら選択し、選択済みなら選択を外す。
func (s *ColorSelection) Toggle(name string) error {
	name = strings.TrimSpace(name)
	if !s.known[name] {
		return model.NewUnknownColorError(name)
	}
	for i, c := range s.selected {
		if c.Name == name {
			s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
			return nil
		}
	}
	s.selected = append(s.selected, model.Color{Name: name})
	return nil
}

// Select はカラーを選択する。選択済みの場合は何もしない。
func (s *ColorSelection) Select(name string) error {
	name = strings.TrimSpace(name)
	if !s.known[name] {
		return model.NewUnknownColorError(name)
	}
	if !s.Contains(name) {
		s.selected = append(s.selected, model.Color{Name: name})
	}
	return nil
}

// Contains は選択済みかを返す。
func (s *ColorSelection) Contains(name string) bool {
	for _, c := range s.selected {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Selected は選択中のカラーのコピーを返す。
func (s *ColorSelection) Selected() []model.Color {
	out := make([]model.Color, len(s.selected))
	copy(out, s.selected)
	return out
}
