package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/stockscan/internal/decoder"
	"github.com/erazemk/stockscan/internal/labels"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

// ScanHandler exposes the scan session controller.
type ScanHandler struct {
	DB         *sql.DB
	Controller *scan.Controller
	Decoder    *decoder.Decoder
}

type sessionResponse struct {
	Session    *model.ScanSession `json:"session"`
	Counts     scan.QueueCounts   `json:"counts"`
	Committing bool               `json:"committing"`
}

type startSessionRequest struct {
	Mode             string `json:"mode"`
	PrefillProductID int64  `json:"prefill_product_id"`
}

type scanResponse struct {
	*scan.ScanOutcome
	Barcode string       `json:"barcode,omitempty"`
	Shelf   *model.Shelf `json:"shelf,omitempty"`
}

type keyEventRequest struct {
	Key            string    `json:"key"`
	Editable       bool      `json:"editable"`
	ScannerCapture bool      `json:"scanner_capture"`
	At             time.Time `json:"at"`
}

type itemPatchRequest struct {
	Units      *int   `json:"units"`
	Sets       *int   `json:"sets"`
	ShelfID    *int64 `json:"shelf_id"`
	ClearShelf bool   `json:"clear_shelf"`
}

// scanError maps controller errors to HTTP statuses.
func scanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scan.ErrNoSession), errors.Is(err, scan.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrSessionActive), errors.Is(err, scan.ErrCommitInProgress),
		errors.Is(err, scan.ErrAlreadyResolved):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrInvalidMode), errors.Is(err, scan.ErrInvalidTarget),
		errors.Is(err, scan.ErrInvalidInputMethod), errors.Is(err, scan.ErrInvalidStep),
		errors.Is(err, scan.ErrNotTransfer), errors.Is(err, scan.ErrInvalidQuantity),
		errors.Is(err, scan.ErrTransferShelves):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("scan request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *ScanHandler) sessionView() sessionResponse {
	s := h.Controller.Session()
	resp := sessionResponse{Session: s, Committing: h.Controller.Committing()}
	if s != nil {
		resp.Counts = scan.Count(s.Queue)
	}
	return resp
}

// GetSession handles GET /api/scan/session. With no active session the
// session field is null.
func (h *ScanHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// StartSession handles POST /api/scan/session.
func (h *ScanHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var prefill *model.Product
	if req.PrefillProductID > 0 {
		p, err := store.GetProduct(r.Context(), h.DB, req.PrefillProductID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to get product")
			return
		}
		if p == nil || p.DeletedAt != nil {
			jsonError(w, http.StatusNotFound, "product not found")
			return
		}
		prefill = p
	}

	if _, err := h.Controller.Start(r.Context(), req.Mode, prefill); err != nil {
		scanError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("scan session opened", "user", claims.Username, "mode", req.Mode)
	jsonResponse(w, http.StatusCreated, h.sessionView())
}

// EndSession handles DELETE /api/scan/session.
func (h *ScanHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.End(r.Context()); err != nil {
		scanError(w, err)
		return
	}
	jsonMessage(w, http.StatusOK, "session ended")
}

// SetTarget handles PUT /api/scan/session/target.
func (h *ScanHandler) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Controller.SetScanTarget(r.Context(), req.Target); err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// SetMethod handles PUT /api/scan/session/method.
func (h *ScanHandler) SetMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InputMethod string `json:"input_method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Controller.SetInputMethod(r.Context(), req.InputMethod); err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// SetShelf handles PUT /api/scan/session/shelf.
func (h *ScanHandler) SetShelf(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShelfID int64 `json:"shelf_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.selectShelf(r, req.ShelfID, false); err != nil {
		h.shelfError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// SetStep handles PUT /api/scan/session/step.
func (h *ScanHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step string `json:"step"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Controller.SetTransferStep(r.Context(), req.Step); err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

var errUnknownShelf = errors.New("shelf not found")

func (h *ScanHandler) selectShelf(r *http.Request, id int64, fromLabel bool) (*model.Shelf, error) {
	shelf, ok := h.Controller.Catalog().Shelf(id)
	if !ok {
		return nil, errUnknownShelf
	}
	apply := h.Controller.SetActiveShelf
	if fromLabel {
		apply = h.Controller.ScanShelfLabel
	}
	if _, err := apply(r.Context(), shelf.ID, shelf.Name); err != nil {
		return nil, err
	}
	return shelf, nil
}

func (h *ScanHandler) shelfError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnknownShelf) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	scanError(w, err)
}

// applyCode routes a decoded value: shelf labels select the shelf, anything
// else is a product scan.
func (h *ScanHandler) applyCode(w http.ResponseWriter, r *http.Request, code string) {
	if id, ok := labels.ParseShelf(code); ok {
		shelf, err := h.selectShelf(r, id, true)
		if err != nil {
			h.shelfError(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, scanResponse{ScanOutcome: &scan.ScanOutcome{}, Barcode: code, Shelf: shelf})
		return
	}

	out, err := h.Controller.HandleScan(r.Context(), code)
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, scanResponse{ScanOutcome: out, Barcode: strings.TrimSpace(code)})
}

// Barcode handles POST /api/scan/barcode with a value decoded on the client.
func (h *ScanHandler) Barcode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.applyCode(w, r, req.Barcode)
}

// Capture handles POST /api/scan/capture with the contents of a scanner
// capture field.
func (h *ScanHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value := strings.TrimSpace(req.Value)
	if _, ok := labels.ParseShelf(value); ok {
		h.applyCode(w, r, value)
		return
	}

	out, err := h.Controller.HandleCapture(r.Context(), value)
	if err != nil {
		scanError(w, err)
		return
	}
	if out == nil {
		out = &scan.ScanOutcome{Dropped: true}
	}
	jsonResponse(w, http.StatusOK, scanResponse{ScanOutcome: out, Barcode: value})
}

// Keys handles POST /api/scan/keys: a batch of key presses forwarded from
// the client, in order. Every completed barcode is scanned.
func (h *ScanHandler) Keys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []keyEventRequest `json:"events"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcomes := []*scan.ScanOutcome{}
	for _, e := range req.Events {
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		out, err := h.Controller.HandleKey(r.Context(), scan.KeyEvent{
			Key:    e.Key,
			Target: scan.Target{Editable: e.Editable, ScannerCapture: e.ScannerCapture},
			At:     at,
		})
		if err != nil {
			scanError(w, err)
			return
		}
		if out != nil {
			outcomes = append(outcomes, out)
		}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// Frame handles POST /api/scan/frame: a camera frame (PNG or JPEG body)
// decoded on the server.
func (h *ScanHandler) Frame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	defer r.Body.Close()

	code, err := h.Decoder.Decode(r.Body)
	if errors.Is(err, decoder.ErrNoCode) {
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.applyCode(w, r, code)
}

// UpdateItem handles PATCH /api/scan/queue/{id}.
func (h *ScanHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := scan.ItemPatch{Units: req.Units, Sets: req.Sets, ClearShelf: req.ClearShelf}
	if req.ShelfID != nil && !req.ClearShelf {
		shelf, ok := h.Controller.Catalog().Shelf(*req.ShelfID)
		if !ok {
			jsonError(w, http.StatusNotFound, errUnknownShelf.Error())
			return
		}
		patch.ShelfID, patch.ShelfName = &shelf.ID, &shelf.Name
	}

	item, err := h.Controller.UpdateQueueItem(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// RemoveItem handles DELETE /api/scan/queue/{id}.
func (h *ScanHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.RemoveQueueItem(r.Context(), r.PathValue("id")); err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// ClearQueue handles DELETE /api/scan/queue.
func (h *ScanHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.ClearQueue(r.Context()); err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.sessionView())
}

// Undo handles POST /api/scan/undo.
func (h *ScanHandler) Undo(w http.ResponseWriter, r *http.Request) {
	item, err := h.Controller.UndoLastScan(r.Context())
	if err != nil {
		scanError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// QuickAddProduct handles POST /api/scan/queue/{id}/product: creates the
// product for a not-found line, using the scanned barcode, and resolves the line.
func (h *ScanHandler) QuickAddProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.Controller.Session()
	if s == nil {
		scanError(w, scan.ErrNoSession)
		return
	}
	var item *model.ScanQueueItem
	for i := range s.Queue {
		if s.Queue[i].ID == id {
			item = &s.Queue[i]
			break
		}
	}
	if item == nil {
		scanError(w, scan.ErrItemNotFound)
		return
	}
	if item.Status != model.ItemNotFound {
		scanError(w, scan.ErrAlreadyResolved)
		return
	}

	req.Barcode = item.Barcode
	if strings.TrimSpace(req.Code) == "" {
		req.Code = item.Barcode
	}
	in, problem := req.input()
	if problem != "" {
		jsonError(w, http.StatusBadRequest, problem)
		return
	}

	product, err := store.CreateProduct(r.Context(), h.DB, in)
	if err != nil {
		slog.Warn("failed to quick-add product", "barcode", in.Barcode, "error", err)
		jsonError(w, http.StatusConflict, "product code or barcode already exists")
		return
	}

	resolved, err := h.Controller.OnProductCreated(r.Context(), id, *product)
	if err != nil {
		// The product exists either way; the line can be rescanned.
		h.Controller.Catalog().Add(*product)
		scanError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("product added from scan", "user", claims.Username, "product", product.Name, "barcode", product.Barcode)
	jsonResponse(w, http.StatusCreated, map[string]any{
		"product": product,
		"item":    resolved,
	})
}

// Commit handles POST /api/scan/commit.
func (h *ScanHandler) Commit(w http.ResponseWriter, r *http.Request) {
	// A dropped connection must not abort a commit halfway through.
	ctx := context.WithoutCancel(r.Context())
	if claims := GetClaims(ctx); claims != nil {
		ctx = store.WithUser(ctx, claims.UserID)
	}

	result, err := h.Controller.ProcessQueue(ctx)
	if err != nil {
		scanError(w, err)
		return
	}
	if result.TotalLines == 0 {
		jsonMessage(w, http.StatusOK, "nothing to process")
		return
	}
	jsonResponse(w, http.StatusOK, result)
}
