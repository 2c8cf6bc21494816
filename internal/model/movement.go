package model

import "time"

// Movement directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// MovementRequest is the payload of a "create movement" call.
type MovementRequest struct {
	ProductID   int64  `json:"product_id"`
	Direction   string `json:"direction"`
	Quantity    int    `json:"quantity"`
	SetQuantity *int   `json:"set_quantity,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Note        string `json:"note,omitempty"`
	ShelfID     *int64 `json:"shelf_id,omitempty"`
}

// Movement is a recorded stock movement.
type Movement struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	Direction   string    `json:"direction"`
	Quantity    int       `json:"quantity"`
	SetQuantity int       `json:"set_quantity"`
	ShelfID     *int64    `json:"shelf_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	MovedAt     time.Time `json:"moved_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`

	// Joined fields (not always populated).
	ProductName string `json:"product_name,omitempty"`
	ShelfName   string `json:"shelf_name,omitempty"`
}
