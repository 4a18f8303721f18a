// Package server exposes the service over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mfcarvalho/financeapp/internal/importer"
	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/search"
	"github.com/mfcarvalho/financeapp/internal/service"
	"github.com/mfcarvalho/financeapp/internal/store"
)

// maxImportBytes caps uploaded statement files at 10 MB.
const maxImportBytes = 10 << 20

// Exporter triggers a snapshot export; nil when no bucket is configured.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Searcher answers full-text transaction queries; nil when no search index
// is configured.
type Searcher interface {
	Search(ctx context.Context, params search.SearchParams) ([]search.SearchHit, error)
}

// Handler serves the JSON API over the finance service.
type Handler struct {
	svc      *service.FinanceService
	exporter Exporter
	searcher Searcher
	log      zerolog.Logger
}

// New creates a Handler. exporter and searcher may be nil.
func New(svc *service.FinanceService, exporter Exporter, searcher Searcher, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, exporter: exporter, searcher: searcher, log: log}
}

// Register attaches all routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/transactions", h.createTransaction)
	mux.HandleFunc("GET /v1/transactions", h.listTransactions)
	mux.HandleFunc("GET /v1/transactions/{id}", h.getTransaction)
	mux.HandleFunc("PUT /v1/transactions/{id}", h.updateTransaction)
	mux.HandleFunc("DELETE /v1/transactions/{id}", h.deleteTransaction)
	mux.HandleFunc("POST /v1/transactions/{id}/category", h.assignCategory)

	mux.HandleFunc("POST /v1/categories", h.createCategory)
	mux.HandleFunc("GET /v1/categories", h.listCategories)
	mux.HandleFunc("GET /v1/categories/{id}", h.getCategory)
	mux.HandleFunc("DELETE /v1/categories/{id}", h.deleteCategory)
	mux.HandleFunc("POST /v1/categories/{id}/recompute", h.recomputeCategory)
	mux.HandleFunc("POST /v1/categories/recompute", h.recomputeAll)

	mux.HandleFunc("GET /v1/search", h.search)

	mux.HandleFunc("POST /v1/sync", h.syncBatch)
	mux.HandleFunc("POST /v1/detect-recurring", h.detectRecurring)
	mux.HandleFunc("GET /v1/predictions", h.predictions)
	mux.HandleFunc("POST /v1/import", h.importFile)
	mux.HandleFunc("POST /v1/export", h.exportSnapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type transactionRequest struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
	Type        string `json:"type"`
	Notes       string `json:"notes"`
}

func (r transactionRequest) parse() (time.Time, decimal.Decimal, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, decimal.Zero, fmt.Errorf("invalid date %q", r.Date)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return time.Time{}, decimal.Zero, fmt.Errorf("invalid amount %q", r.Amount)
	}
	return date, amount, nil
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	date, amount, err := req.parse()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tx, err := h.svc.CreateTransaction(r.Context(), service.CreateTransactionInput{
		Date:        date,
		Amount:      amount,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Type:        model.TransactionType(req.Type),
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	pageSize := int32(100)
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = int32(n)
		}
	}
	txs, nextToken, err := h.svc.ListTransactions(r.Context(), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions":    txs,
		"next_page_token": nextToken,
	})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	date, amount, err := req.parse()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tx, err := h.svc.UpdateTransaction(r.Context(), r.PathValue("id"), service.UpdateTransactionInput{
		Date:        date,
		Amount:      amount,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Type:        model.TransactionType(req.Type),
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID string `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	tx, err := h.svc.AssignCategory(r.Context(), r.PathValue("id"), req.CategoryID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		ParentID string `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	cat, err := h.svc.CreateCategory(r.Context(), req.Name, model.TransactionType(req.Type), req.ParentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recomputeCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RecomputeCategoryStats(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recomputeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RecomputeAllCategoryStats(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// search proxies a full-text query to the configured index. Filters: category,
// recurring (true/false), start_date/end_date (YYYY-MM-DD), page, page_size.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "search index not configured"})
		return
	}

	q := r.URL.Query()
	params := search.SearchParams{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if v := q.Get("recurring"); v != "" {
		recurring := v == "true"
		params.Recurring = &recurring
	}
	for _, bound := range []struct {
		name   string
		target **time.Time
	}{
		{"start_date", &params.StartDate},
		{"end_date", &params.EndDate},
	} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid %s %q", bound.name, v)})
			return
		}
		*bound.target = &t
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.PageSize = n
		}
	}

	hits, err := h.searcher.Search(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *Handler) syncBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string                 `json:"connection_id"`
		Transactions []model.RawTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result, err := h.svc.SyncBatch(r.Context(), req.ConnectionID, req.Transactions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) detectRecurring(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.DetectRecurring(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) predictions(w http.ResponseWriter, r *http.Request) {
	daysAhead := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			daysAhead = n
		}
	}
	predictions, err := h.svc.PredictUpcoming(r.Context(), daysAhead)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
}

// importFile accepts a multipart upload (field "file") with source_type csv
// or pdf, parses it, and reconciles the rows through the sync path under the
// given connection id.
func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
		return
	}
	defer file.Close()

	connectionID := r.FormValue("connection_id")
	if connectionID == "" {
		connectionID = "file-import"
	}

	var records []model.RawTransaction
	switch r.FormValue("source_type") {
	case "csv":
		records, err = importer.ParseCSV(file)
	case "pdf":
		var data []byte
		data, err = io.ReadAll(io.LimitReader(file, maxImportBytes))
		if err == nil {
			records, err = importer.ParsePDF(data)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_type must be csv or pdf"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.svc.SyncBatch(r.Context(), connectionID, records)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "export bucket not configured"})
		return
	}
	object, err := h.exporter.Export(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"object": object})
}
