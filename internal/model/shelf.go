package model

import "time"

// Shelf is a storage location products are stocked on.
type Shelf struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ShelfStock is the quantity of a product held on one shelf.
type ShelfStock struct {
	ProductID int64 `json:"product_id"`
	ShelfID   int64 `json:"shelf_id"`
	Units     int   `json:"units"`
	Sets      int   `json:"sets"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
	ShelfName   string `json:"shelf_name,omitempty"`
}
