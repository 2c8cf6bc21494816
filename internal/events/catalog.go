package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// LoadCatalog builds a scan catalog from the active products and shelves.
func LoadCatalog(ctx context.Context, db *sql.DB) (*scan.Catalog, error) {
	products, shelves, err := loadLists(ctx, db)
	if err != nil {
		return nil, err
	}
	return scan.NewCatalog(products, shelves), nil
}

// RefreshCatalog returns a handler that reloads catalog after a batch, since
// committed movements change stock levels.
func RefreshCatalog(db *sql.DB, catalog *scan.Catalog) BatchHandler {
	return func(ctx context.Context, result model.BatchResult) error {
		products, shelves, err := loadLists(ctx, db)
		if err != nil {
			return err
		}
		catalog.Replace(products, shelves)
		slog.Info("scan catalog refreshed", "session", result.SessionID, "products", len(products))
		return nil
	}
}

func loadLists(ctx context.Context, db *sql.DB) ([]model.Product, []model.Shelf, error) {
	products, err := store.ListProducts(ctx, db, "")
	if err != nil {
		return nil, nil, fmt.Errorf("loading catalog products: %w", err)
	}
	shelves, err := store.ListShelves(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("loading catalog shelves: %w", err)
	}
	return products, shelves, nil
}
