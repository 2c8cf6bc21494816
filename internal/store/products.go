package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/stockscan/internal/model"
)

// ProductInput holds the editable fields of a product.
type ProductInput struct {
	Name        string
	Code        string
	Barcode     string
	Description string
	ShelfLabel  string
}

const productColumns = `id, name, code, barcode, description, stock, set_stock, shelf_label,
        image_mime, created_at, updated_at, deleted_at`

// CreateProduct creates a new product with zero stock.
func CreateProduct(ctx context.Context, db *sql.DB, in ProductInput) (*model.Product, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO products (name, code, barcode, description, shelf_label) VALUES (?, ?, ?, ?, ?)`,
		in.Name, in.Code, nullIfEmpty(in.Barcode), nullIfEmpty(in.Description), nullIfEmpty(in.ShelfLabel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return GetProduct(ctx, db, id)
}

// GetProduct returns a product by ID.
func GetProduct(ctx context.Context, db *sql.DB, id int64) (*model.Product, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id,
	)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// FindProductByScan returns the active product whose barcode or code equals value.
// Barcode matches win over code matches.
func FindProductByScan(ctx context.Context, db *sql.DB, value string) (*model.Product, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE deleted_at IS NULL AND (barcode = ? OR code = ?)
		 ORDER BY CASE WHEN barcode = ? THEN 0 ELSE 1 END, id
		 LIMIT 1`, value, value, value,
	)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding product by scan: %w", err)
	}
	return p, nil
}

// ListProducts returns all non-deleted products, optionally filtered by a
// search term matched against name, code and barcode.
func ListProducts(ctx context.Context, db *sql.DB, query string) ([]model.Product, error) {
	var rows *sql.Rows
	var err error

	if q := strings.TrimSpace(query); q != "" {
		like := "%" + q + "%"
		rows, err = db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products
			 WHERE deleted_at IS NULL AND (name LIKE ? OR code LIKE ? OR barcode LIKE ?)
			 ORDER BY name`, like, like, like,
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE deleted_at IS NULL ORDER BY name`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's metadata. Stock is only changed by movements.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, in ProductInput) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET name = ?, code = ?, barcode = ?, description = ?, shelf_label = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		in.Name, in.Code, nullIfEmpty(in.Barcode), nullIfEmpty(in.Description), nullIfEmpty(in.ShelfLabel), id,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return nil
}

// DeleteProduct soft-deletes a product.
func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// SetProductImage sets a product's image data.
func SetProductImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return nil
}

// GetProductImage returns a product's image data and MIME type.
func GetProductImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM products WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return image, mime.String, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var barcode, description, shelfLabel, imageMime sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Code, &barcode, &description, &p.Stock, &p.SetStock,
		&shelfLabel, &imageMime, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	p.Description = description.String
	p.ShelfLabel = shelfLabel.String
	p.ImageMime = imageMime.String
	return p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
