package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockscan/internal/config"
	"github.com/erazemk/stockscan/internal/db"
	"github.com/erazemk/stockscan/internal/events"
	"github.com/erazemk/stockscan/internal/kv"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// openDatabase opens the database, creating it with an admin account on first run.
func openDatabase(cfg config.Database) (*sql.DB, error) {
	if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
		database, password, err := initDatabase(cfg.Path, cfg.AdminUser)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.Path, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	// Idempotent; picks up tables added since the file was created.
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring database schema: %w", err)
	}

	slog.Info("database ready", "path", cfg.Path)
	return database, nil
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(what string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("%s: %w", what, err)
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail("ensuring schema", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail("hashing password", err)
	}

	if _, err := store.CreateUser(context.Background(), database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail("creating admin user", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// engine is a scan controller wired to the database, the session store and
// the batch event bus.
type engine struct {
	ctl     *scan.Controller
	bus     *events.Bus
	closers []func() error
}

// newEngine builds the controller and resumes an interrupted session, if any.
// The catalog refresh subscription lives until ctx is done.
func newEngine(ctx context.Context, cfg config.Config, database *sql.DB, notifier scan.Notifier) (*engine, error) {
	catalog, err := events.LoadCatalog(ctx, database)
	if err != nil {
		return nil, err
	}

	e := &engine{bus: events.NewBus()}
	e.closers = append(e.closers, e.bus.Close)

	sessions, err := e.sessionStore(ctx, cfg.Persistence, database)
	if err != nil {
		e.Close()
		return nil, err
	}

	if err := e.bus.OnBatch(ctx, "catalog-refresh", events.RefreshCatalog(database, catalog)); err != nil {
		e.Close()
		return nil, err
	}

	e.ctl = scan.NewController(scan.Options{
		Catalog:            catalog,
		Movements:          &store.MovementService{DB: database},
		Store:              sessions,
		Key:                cfg.Persistence.Key,
		Notifier:           notifier,
		Keyboard:           scan.NewKeyboard(cfg.Scan.Keyboard()),
		Cooldown:           cfg.Scan.Cooldown,
		DefaultTarget:      cfg.Scan.DefaultTarget,
		DefaultInputMethod: cfg.Scan.DefaultInputMethod,
		OnBatchComplete: func(result model.BatchResult) {
			if err := e.bus.PublishBatch(result); err != nil {
				slog.Warn("failed to publish batch", "session", result.SessionID, "error", err)
			}
		},
	})

	if _, err := e.ctl.Resume(ctx); err != nil {
		slog.Warn("could not resume scan session", "error", err)
	}

	slog.Info("scan engine ready", "products", len(catalog.Products()), "shelves", len(catalog.Shelves()),
		"persistence", cfg.Persistence.Driver)
	return e, nil
}

func (e *engine) sessionStore(ctx context.Context, cfg config.Persistence, database *sql.DB) (scan.KV, error) {
	if cfg.Driver != config.DriverRedis {
		return &store.SettingsKV{DB: database}, nil
	}

	r, err := kv.NewRedis(cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		// The client reconnects on its own; until then the session lives in memory.
		slog.Warn("redis unavailable, scan session kept in memory until it recovers", "error", err)
	}
	e.closers = append(e.closers, r.Close)
	return r, nil
}

// Close releases the bus and the session store connection.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("error closing scan engine", "error", err)
		}
	}
}
