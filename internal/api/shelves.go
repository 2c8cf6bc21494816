package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/stockscan/internal/labels"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// ShelvesHandler handles shelf endpoints.
type ShelvesHandler struct {
	DB      *sql.DB
	Catalog *scan.Catalog
}

type shelfRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/shelves.
func (h *ShelvesHandler) List(w http.ResponseWriter, r *http.Request) {
	shelves, err := store.ListShelves(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list shelves", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list shelves")
		return
	}
	if shelves == nil {
		shelves = []model.Shelf{}
	}
	jsonResponse(w, http.StatusOK, shelves)
}

// Create handles POST /api/shelves.
func (h *ShelvesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req shelfRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	shelf, err := store.CreateShelf(r.Context(), h.DB, name)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create shelf")
		return
	}
	h.Catalog.PutShelf(*shelf)

	jsonResponse(w, http.StatusCreated, shelf)
}

// Get handles GET /api/shelves/{id}. The response includes the stock held on the shelf.
func (h *ShelvesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}

	shelf, err := store.GetShelf(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get shelf")
		return
	}
	if shelf == nil || shelf.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "shelf not found")
		return
	}

	stock, err := store.GetShelfStock(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get shelf stock")
		return
	}
	if stock == nil {
		stock = []model.ShelfStock{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"shelf": shelf,
		"stock": stock,
	})
}

// Update handles PUT /api/shelves/{id}.
func (h *ShelvesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}

	var req shelfRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := store.UpdateShelf(r.Context(), h.DB, id, name); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update shelf")
		return
	}

	shelf, _ := store.GetShelf(r.Context(), h.DB, id)
	if shelf == nil || shelf.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "shelf not found")
		return
	}
	h.Catalog.PutShelf(*shelf)
	jsonResponse(w, http.StatusOK, shelf)
}

// Delete handles DELETE /api/shelves/{id}.
func (h *ShelvesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}

	if err := store.DeleteShelf(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	h.Catalog.RemoveShelf(id)

	jsonMessage(w, http.StatusOK, "shelf deleted")
}

// Label handles GET /api/shelves/{id}/label?size=N. Scanning the QR code
// during a session selects the shelf.
func (h *ShelvesHandler) Label(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}

	size := labels.DefaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			jsonError(w, http.StatusBadRequest, "size must be between 64 and 2048")
			return
		}
		size = n
	}

	shelf, err := store.GetShelf(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get shelf")
		return
	}
	if shelf == nil || shelf.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "shelf not found")
		return
	}

	data, err := labels.ShelfPNG(id, size)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to render label")
		return
	}
	pngResponse(w, data)
}
