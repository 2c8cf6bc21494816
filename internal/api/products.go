package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/stockscan/internal/imaging"
	"github.com/erazemk/stockscan/internal/labels"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// maxUploadSize caps image and frame uploads.
const maxUploadSize = 5 << 20

// ProductsHandler handles product endpoints. Changes are mirrored into the
// scan catalog so the running session sees them.
type ProductsHandler struct {
	DB      *sql.DB
	Catalog *scan.Catalog
}

type productRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Barcode     string `json:"barcode"`
	Description string `json:"description"`
	ShelfLabel  string `json:"shelf_label"`
}

func (req productRequest) input() (store.ProductInput, string) {
	in := store.ProductInput{
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.TrimSpace(req.Code),
		Barcode:     strings.TrimSpace(req.Barcode),
		Description: strings.TrimSpace(req.Description),
		ShelfLabel:  strings.TrimSpace(req.ShelfLabel),
	}
	if in.Name == "" || in.Code == "" {
		return in, "name and code required"
	}
	return in, ""
}

// List handles GET /api/products.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := store.ListProducts(r.Context(), h.DB, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("failed to list products", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	jsonResponse(w, http.StatusOK, products)
}

// Create handles POST /api/products.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, problem := req.input()
	if problem != "" {
		jsonError(w, http.StatusBadRequest, problem)
		return
	}

	product, err := store.CreateProduct(r.Context(), h.DB, in)
	if err != nil {
		slog.Warn("failed to create product", "code", in.Code, "error", err)
		jsonError(w, http.StatusConflict, "product code or barcode already exists")
		return
	}
	h.Catalog.Add(*product)

	claims := GetClaims(r.Context())
	slog.Info("product created", "user", claims.Username, "product", product.Name, "code", product.Code)
	jsonResponse(w, http.StatusCreated, product)
}

// Get handles GET /api/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil || product.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}
	jsonResponse(w, http.StatusOK, product)
}

// Update handles PUT /api/products/{id}.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, problem := req.input()
	if problem != "" {
		jsonError(w, http.StatusBadRequest, problem)
		return
	}

	if err := store.UpdateProduct(r.Context(), h.DB, id, in); err != nil {
		slog.Warn("failed to update product", "id", id, "error", err)
		jsonError(w, http.StatusConflict, "product code or barcode already exists")
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil || product.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}
	h.Catalog.Add(*product)
	jsonResponse(w, http.StatusOK, product)
}

// Delete handles DELETE /api/products/{id}.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := store.DeleteProduct(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}
	h.Catalog.Remove(id)

	claims := GetClaims(r.Context())
	slog.Info("product deleted", "user", claims.Username, "id", id)
	jsonMessage(w, http.StatusOK, "product deleted")
}

// UploadImage handles PUT /api/products/{id}/image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.ProcessPhoto(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetProductImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonMessage(w, http.StatusOK, "image uploaded")
}

// GetImage handles GET /api/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	data, mime, err := store.GetProductImage(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Label handles GET /api/products/{id}/label. The barcode is printed when
// set, the product code otherwise.
func (h *ProductsHandler) Label(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil || product.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	value := product.Barcode
	if value == "" {
		value = product.Code
	}
	data, err := labels.ProductPNG(value)
	if err != nil {
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	pngResponse(w, data)
}
