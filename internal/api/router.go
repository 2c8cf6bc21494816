package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/stockscan/internal/auth"
	"github.com/erazemk/stockscan/internal/decoder"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, issuer *auth.Issuer, ctl *scan.Controller) http.Handler {
	mux := http.NewServeMux()

	catalog := ctl.Catalog()
	authHandler := &AuthHandler{DB: db, Issuer: issuer}
	usersHandler := &UsersHandler{DB: db}
	productsHandler := &ProductsHandler{DB: db, Catalog: catalog}
	shelvesHandler := &ShelvesHandler{DB: db, Catalog: catalog}
	movementsHandler := &MovementsHandler{DB: db, Catalog: catalog}
	scanHandler := &ScanHandler{DB: db, Controller: ctl, Decoder: decoder.New()}

	authMW := AuthMiddleware(issuer, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Products: read (all roles), write (manager+).
	mux.Handle("GET /api/products", authMW(http.HandlerFunc(productsHandler.List)))
	mux.Handle("POST /api/products", authMW(requireManager(http.HandlerFunc(productsHandler.Create))))
	mux.Handle("GET /api/products/{id}", authMW(http.HandlerFunc(productsHandler.Get)))
	mux.Handle("PUT /api/products/{id}", authMW(requireManager(http.HandlerFunc(productsHandler.Update))))
	mux.Handle("DELETE /api/products/{id}", authMW(requireManager(http.HandlerFunc(productsHandler.Delete))))
	mux.Handle("PUT /api/products/{id}/image", authMW(requireManager(http.HandlerFunc(productsHandler.UploadImage))))
	mux.Handle("GET /api/products/{id}/image", authMW(http.HandlerFunc(productsHandler.GetImage)))
	mux.Handle("GET /api/products/{id}/label", authMW(http.HandlerFunc(productsHandler.Label)))

	// Shelves: read (all roles), write (manager+).
	mux.Handle("GET /api/shelves", authMW(http.HandlerFunc(shelvesHandler.List)))
	mux.Handle("POST /api/shelves", authMW(requireManager(http.HandlerFunc(shelvesHandler.Create))))
	mux.Handle("GET /api/shelves/{id}", authMW(http.HandlerFunc(shelvesHandler.Get)))
	mux.Handle("PUT /api/shelves/{id}", authMW(requireManager(http.HandlerFunc(shelvesHandler.Update))))
	mux.Handle("DELETE /api/shelves/{id}", authMW(requireManager(http.HandlerFunc(shelvesHandler.Delete))))
	mux.Handle("GET /api/shelves/{id}/label", authMW(http.HandlerFunc(shelvesHandler.Label)))

	// Movements (all roles).
	mux.Handle("POST /api/movements", authMW(http.HandlerFunc(movementsHandler.Create)))
	mux.Handle("GET /api/movements", authMW(http.HandlerFunc(movementsHandler.List)))

	// Scan session (all roles; quick-add creates a product, so manager+).
	mux.Handle("GET /api/scan/session", authMW(http.HandlerFunc(scanHandler.GetSession)))
	mux.Handle("POST /api/scan/session", authMW(http.HandlerFunc(scanHandler.StartSession)))
	mux.Handle("DELETE /api/scan/session", authMW(http.HandlerFunc(scanHandler.EndSession)))
	mux.Handle("PUT /api/scan/session/target", authMW(http.HandlerFunc(scanHandler.SetTarget)))
	mux.Handle("PUT /api/scan/session/method", authMW(http.HandlerFunc(scanHandler.SetMethod)))
	mux.Handle("PUT /api/scan/session/shelf", authMW(http.HandlerFunc(scanHandler.SetShelf)))
	mux.Handle("PUT /api/scan/session/step", authMW(http.HandlerFunc(scanHandler.SetStep)))
	mux.Handle("POST /api/scan/barcode", authMW(http.HandlerFunc(scanHandler.Barcode)))
	mux.Handle("POST /api/scan/keys", authMW(http.HandlerFunc(scanHandler.Keys)))
	mux.Handle("POST /api/scan/capture", authMW(http.HandlerFunc(scanHandler.Capture)))
	mux.Handle("POST /api/scan/frame", authMW(http.HandlerFunc(scanHandler.Frame)))
	mux.Handle("PATCH /api/scan/queue/{id}", authMW(http.HandlerFunc(scanHandler.UpdateItem)))
	mux.Handle("DELETE /api/scan/queue/{id}", authMW(http.HandlerFunc(scanHandler.RemoveItem)))
	mux.Handle("DELETE /api/scan/queue", authMW(http.HandlerFunc(scanHandler.ClearQueue)))
	mux.Handle("POST /api/scan/queue/{id}/product", authMW(requireManager(http.HandlerFunc(scanHandler.QuickAddProduct))))
	mux.Handle("POST /api/scan/undo", authMW(http.HandlerFunc(scanHandler.Undo)))
	mux.Handle("POST /api/scan/commit", authMW(http.HandlerFunc(scanHandler.Commit)))

	return mux
}
