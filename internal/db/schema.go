package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS shelves (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS products (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    code        TEXT NOT NULL,
    barcode     TEXT,
    description TEXT,
    stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
    set_stock   INTEGER NOT NULL DEFAULT 0 CHECK (set_stock >= 0),
    shelf_label TEXT,
    image       BLOB,
    image_mime  TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_code_active
    ON products(code) WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_products_barcode
    ON products(barcode) WHERE barcode IS NOT NULL;

CREATE TABLE IF NOT EXISTS shelf_stock (
    product_id INTEGER NOT NULL REFERENCES products(id),
    shelf_id   INTEGER NOT NULL REFERENCES shelves(id),
    units      INTEGER NOT NULL DEFAULT 0 CHECK (units >= 0),
    sets       INTEGER NOT NULL DEFAULT 0 CHECK (sets >= 0),
    PRIMARY KEY (product_id, shelf_id)
);

CREATE TABLE IF NOT EXISTS movements (
    id           INTEGER PRIMARY KEY,
    product_id   INTEGER NOT NULL REFERENCES products(id),
    direction    TEXT NOT NULL CHECK (direction IN ('in', 'out')),
    quantity     INTEGER NOT NULL CHECK (quantity >= 0),
    set_quantity INTEGER NOT NULL DEFAULT 0 CHECK (set_quantity >= 0),
    shelf_id     INTEGER REFERENCES shelves(id),
    note         TEXT,
    moved_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by   INTEGER REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_movements_product
    ON movements(product_id, moved_at);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{}

// EnsureSchema creates all tables and indexes if they don't already exist and
// applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
