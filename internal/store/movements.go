package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/stockscan/internal/model"
)

// CreateMovement records a stock movement and applies it to the product's stock
// (and the shelf's stock when a shelf is given) in a single transaction.
func CreateMovement(ctx context.Context, db *sql.DB, req model.MovementRequest, createdBy *int64) (*model.Movement, error) {
	if req.Direction != model.DirectionIn && req.Direction != model.DirectionOut {
		return nil, fmt.Errorf("invalid direction %q", req.Direction)
	}
	sets := 0
	if req.SetQuantity != nil {
		sets = *req.SetQuantity
	}
	if req.Quantity < 0 || sets < 0 {
		return nil, fmt.Errorf("quantities must not be negative")
	}
	if req.Quantity == 0 && sets == 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	movedAt, err := movementTime(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var stock, setStock int
	err = tx.QueryRowContext(ctx,
		`SELECT stock, set_stock FROM products WHERE id = ? AND deleted_at IS NULL`, req.ProductID,
	).Scan(&stock, &setStock)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("checking product: %w", err)
	}

	units, setDelta := req.Quantity, sets
	if req.Direction == model.DirectionOut {
		if stock < units || setStock < sets {
			return nil, fmt.Errorf("insufficient stock: have %d units/%d sets, need %d/%d", stock, setStock, units, sets)
		}
		units, setDelta = -units, -sets
	}

	if req.ShelfID != nil {
		if err := applyShelfStock(ctx, tx, req.ProductID, *req.ShelfID, units, setDelta); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + ?, set_stock = set_stock + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		units, setDelta, req.ProductID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating product stock: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO movements (product_id, direction, quantity, set_quantity, shelf_id, note, moved_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ProductID, req.Direction, req.Quantity, sets, req.ShelfID, nullIfEmpty(req.Note), movedAt, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("recording movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing movement: %w", err)
	}

	movementID, _ := result.LastInsertId()
	return GetMovement(ctx, db, movementID)
}

// applyShelfStock adds the (possibly negative) deltas to a shelf's stock row.
func applyShelfStock(ctx context.Context, tx *sql.Tx, productID, shelfID int64, units, sets int) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM shelves WHERE id = ? AND deleted_at IS NULL`, shelfID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("shelf not found")
	}
	if err != nil {
		return fmt.Errorf("checking shelf: %w", err)
	}

	var curUnits, curSets int
	err = tx.QueryRowContext(ctx,
		`SELECT units, sets FROM shelf_stock WHERE product_id = ? AND shelf_id = ?`,
		productID, shelfID,
	).Scan(&curUnits, &curSets)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("checking shelf stock: %w", err)
	}

	if curUnits+units < 0 || curSets+sets < 0 {
		return fmt.Errorf("insufficient stock on shelf: have %d units/%d sets", curUnits, curSets)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO shelf_stock (product_id, shelf_id, units, sets) VALUES (?, ?, ?, ?)
		 ON CONFLICT (product_id, shelf_id) DO UPDATE SET units = units + ?, sets = sets + ?`,
		productID, shelfID, units, sets, units, sets,
	)
	if err != nil {
		return fmt.Errorf("updating shelf stock: %w", err)
	}
	return nil
}

// movementTime combines the date and time fields of a movement request.
// Empty fields default to the current date or time.
func movementTime(date, clock string) (time.Time, error) {
	now := time.Now()
	if date == "" {
		date = now.Format("2006-01-02")
	}
	if clock == "" {
		clock = now.Format("15:04:05")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid movement date/time %q %q", date, clock)
	}
	return t.UTC(), nil
}

const movementSelect = `SELECT m.id, m.product_id, m.direction, m.quantity, m.set_quantity, m.shelf_id,
        m.note, m.moved_at, m.created_by, p.name, s.name
 FROM movements m
 JOIN products p ON p.id = m.product_id
 LEFT JOIN shelves s ON s.id = m.shelf_id`

// GetMovement returns a movement by ID.
func GetMovement(ctx context.Context, db *sql.DB, id int64) (*model.Movement, error) {
	rows, err := db.QueryContext(ctx, movementSelect+` WHERE m.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting movement: %w", err)
	}
	defer rows.Close()

	movements, err := scanMovements(rows)
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, nil
	}
	return &movements[0], nil
}

// ListMovements returns movements, newest first, optionally filtered by product or shelf.
func ListMovements(ctx context.Context, db *sql.DB, productID, shelfID int64) ([]model.Movement, error) {
	query := movementSelect + ` WHERE 1=1`
	var args []any

	if productID > 0 {
		query += ` AND m.product_id = ?`
		args = append(args, productID)
	}
	if shelfID > 0 {
		query += ` AND m.shelf_id = ?`
		args = append(args, shelfID)
	}

	query += ` ORDER BY m.moved_at DESC, m.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

func scanMovements(rows *sql.Rows) ([]model.Movement, error) {
	var movements []model.Movement
	for rows.Next() {
		var m model.Movement
		var note, shelfName sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Direction, &m.Quantity, &m.SetQuantity, &m.ShelfID,
			&note, &m.MovedAt, &m.CreatedBy, &m.ProductName, &shelfName); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.Note = note.String
		m.ShelfName = shelfName.String
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// MovementService creates movements against the local database. It satisfies
// the movement service the scan engine commits batches through.
type MovementService struct {
	DB *sql.DB
	// UserID is recorded as the creator of every movement, if set.
	UserID *int64
}

// CreateMovement implements scan.MovementService. The user set with WithUser
// takes precedence over UserID.
func (s *MovementService) CreateMovement(ctx context.Context, req model.MovementRequest) error {
	createdBy := s.UserID
	if id, ok := ctx.Value(userKey{}).(int64); ok {
		createdBy = &id
	}
	_, err := CreateMovement(ctx, s.DB, req, createdBy)
	return err
}

type userKey struct{}

// WithUser returns a context that attributes movements created through
// MovementService to the given user.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}
