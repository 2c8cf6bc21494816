package model

import "time"

// Product is a stock-keeping unit that can be scanned by barcode or product code.
type Product struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Barcode     string     `json:"barcode,omitempty"`
	Description string     `json:"description,omitempty"`
	Stock       int        `json:"stock"`
	SetStock    int        `json:"set_stock"`
	ShelfLabel  string     `json:"shelf_label,omitempty"`
	ImageMime   string     `json:"image_mime,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Matches reports whether a scanned value identifies this product,
// either by its barcode or by its product code.
func (p *Product) Matches(value string) bool {
	if value == "" {
		return false
	}
	return (p.Barcode != "" && p.Barcode == value) || (p.Code != "" && p.Code == value)
}
