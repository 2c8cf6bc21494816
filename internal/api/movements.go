package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// MovementsHandler handles stock movement endpoints.
type MovementsHandler struct {
	DB      *sql.DB
	Catalog *scan.Catalog
}

// Create handles POST /api/movements.
func (h *MovementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 {
		jsonError(w, http.StatusBadRequest, "product_id required")
		return
	}

	claims := GetClaims(r.Context())
	var userID *int64
	if claims != nil {
		userID = &claims.UserID
	}

	movement, err := store.CreateMovement(r.Context(), h.DB, req, userID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Stock changed; keep the catalog's copy current.
	if p, err := store.GetProduct(r.Context(), h.DB, req.ProductID); err == nil && p != nil {
		h.Catalog.Add(*p)
	}

	slog.Info("movement created", "user", claims.Username, "product", movement.ProductName,
		"direction", movement.Direction, "quantity", movement.Quantity, "sets", movement.SetQuantity)
	jsonResponse(w, http.StatusCreated, movement)
}

// List handles GET /api/movements.
func (h *MovementsHandler) List(w http.ResponseWriter, r *http.Request) {
	var productID, shelfID int64

	if v := r.URL.Query().Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid product_id")
			return
		}
		productID = id
	}

	if v := r.URL.Query().Get("shelf_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid shelf_id")
			return
		}
		shelfID = id
	}

	movements, err := store.ListMovements(r.Context(), h.DB, productID, shelfID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list movements")
		return
	}
	if movements == nil {
		movements = []model.Movement{}
	}
	jsonResponse(w, http.StatusOK, movements)
}
