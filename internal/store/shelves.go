package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/stockscan/internal/model"
)

// CreateShelf creates a new shelf.
func CreateShelf(ctx context.Context, db *sql.DB, name string) (*model.Shelf, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO shelves (name) VALUES (?)`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating shelf: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting shelf id: %w", err)
	}

	return GetShelf(ctx, db, id)
}

// GetShelf returns a shelf by ID.
func GetShelf(ctx context.Context, db *sql.DB, id int64) (*model.Shelf, error) {
	s := &model.Shelf{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at FROM shelves WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.CreatedAt, &s.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting shelf: %w", err)
	}
	return s, nil
}

// ListShelves returns all non-deleted shelves.
func ListShelves(ctx context.Context, db *sql.DB) ([]model.Shelf, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, created_at, deleted_at
		 FROM shelves WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing shelves: %w", err)
	}
	defer rows.Close()

	var shelves []model.Shelf
	for rows.Next() {
		var s model.Shelf
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning shelf: %w", err)
		}
		shelves = append(shelves, s)
	}
	return shelves, rows.Err()
}

// UpdateShelf renames a shelf.
func UpdateShelf(ctx context.Context, db *sql.DB, id int64, name string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE shelves SET name = ? WHERE id = ? AND deleted_at IS NULL`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("updating shelf: %w", err)
	}
	return nil
}

// DeleteShelf soft-deletes a shelf. Fails if the shelf still holds stock.
func DeleteShelf(ctx context.Context, db *sql.DB, id int64) error {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shelf_stock WHERE shelf_id = ? AND (units > 0 OR sets > 0)`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking shelf stock: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete shelf: still holds %d products", count)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE shelves SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting shelf: %w", err)
	}
	return nil
}

// GetShelfStock returns the stock held on a shelf.
func GetShelfStock(ctx context.Context, db *sql.DB, shelfID int64) ([]model.ShelfStock, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ss.product_id, ss.shelf_id, ss.units, ss.sets, p.name, s.name
		 FROM shelf_stock ss
		 JOIN products p ON p.id = ss.product_id
		 JOIN shelves s ON s.id = ss.shelf_id
		 WHERE ss.shelf_id = ? AND (ss.units > 0 OR ss.sets > 0)
		 ORDER BY p.name`, shelfID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting shelf stock: %w", err)
	}
	defer rows.Close()

	var stock []model.ShelfStock
	for rows.Next() {
		var ss model.ShelfStock
		if err := rows.Scan(&ss.ProductID, &ss.ShelfID, &ss.Units, &ss.Sets, &ss.ProductName, &ss.ShelfName); err != nil {
			return nil, fmt.Errorf("scanning shelf stock: %w", err)
		}
		stock = append(stock, ss)
	}
	return stock, rows.Err()
}
