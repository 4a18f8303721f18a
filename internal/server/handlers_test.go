package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/search"
	"github.com/mfcarvalho/financeapp/internal/service"
	"github.com/mfcarvalho/financeapp/internal/store"
)

func newTestHandler(t *testing.T) (*http.ServeMux, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.PutBankConnection(context.Background(), &model.BankConnection{
		ID:     "file-import",
		BankID: "file",
	}))
	svc := service.NewFinanceService(mem, zerolog.Nop())
	mux := http.NewServeMux()
	New(svc, nil, nil, zerolog.Nop()).Register(mux)
	return mux, mem
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestTransactionLifecycle(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/transactions", map[string]string{
		"date":        "2024-01-05",
		"amount":      "-39.90",
		"description": "Netflix",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Transaction
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.TransactionTypeExpense, created.Type)

	rec = doJSON(t, mux, http.MethodGet, "/v1/transactions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPut, "/v1/transactions/"+created.ID, map[string]string{
		"date":        "2024-01-05",
		"amount":      "-44.90",
		"description": "Netflix",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.Transaction
	decodeBody(t, rec, &updated)
	assert.Equal(t, "-44.90", updated.Amount.StringFixed(2))

	rec = doJSON(t, mux, http.MethodDelete, "/v1/transactions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/transactions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransaction_BadRequests(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/transactions", map[string]string{
		"date": "not-a-date", "amount": "-1.00", "description": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/transactions", map[string]string{
		"date": "2024-01-05", "amount": "ten", "description": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestSyncEndpoint(t *testing.T) {
	mux, mem := newTestHandler(t)
	require.NoError(t, mem.PutBankConnection(context.Background(), &model.BankConnection{
		ID: "conn-1", BankID: "acme",
	}))

	body := map[string]any{
		"connection_id": "conn-1",
		"transactions": []map[string]string{
			{"external_id": "ext-1", "date": "2024-01-05", "amount": "-39.90", "description": "Netflix"},
			{"external_id": "ext-2", "date": "bad", "amount": "-1.00", "description": "Broken"},
		},
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/sync", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.SyncResult
	decodeBody(t, rec, &result)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Failed)

	// Unknown connection surfaces as an error status.
	rec = doJSON(t, mux, http.MethodPost, "/v1/sync", map[string]any{"connection_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetectRecurringEndpoint(t *testing.T) {
	mux, mem := newTestHandler(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-01", "2024-02-01", "2024-03-03"} {
		day, err := time.Parse("2006-01-02", date)
		require.NoError(t, err)
		require.NoError(t, mem.CreateTransaction(ctx, &model.Transaction{
			Date:        day,
			Amount:      decimal.RequireFromString("-39.90"),
			Description: "Netflix",
			Type:        model.TransactionTypeExpense,
		}))
	}

	rec := doJSON(t, mux, http.MethodPost, "/v1/detect-recurring", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]int
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result["updated"])
}

func TestCategoryEndpoints(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/categories", map[string]string{
		"name": "Groceries", "type": "expense",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var cat model.Category
	decodeBody(t, rec, &cat)
	require.NotEmpty(t, cat.ID)

	rec = doJSON(t, mux, http.MethodPost, "/v1/categories/"+cat.ID+"/recompute", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/v1/categories/"+cat.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/categories/"+cat.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportEndpoint_CSV(t *testing.T) {
	mux, mem := newTestHandler(t)

	csvData := "date,amount,description\n2024-01-05,-39.90,Netflix\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvData))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source_type", "csv"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.SyncResult
	decodeBody(t, rec, &result)
	assert.Equal(t, 1, result.Inserted)

	txs, _, err := mem.ListTransactions(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "file-import", txs[0].External.ConnectionID)
}

func TestImportEndpoint_UnknownSourceType(t *testing.T) {
	mux, _ := newTestHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "statement.xls")
	require.NoError(t, err)
	_, err = part.Write([]byte("whatever"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source_type", "xls"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportEndpoint_NotConfigured(t *testing.T) {
	mux, _ := newTestHandler(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/export", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

type stubSearcher struct {
	params search.SearchParams
	hits   []search.SearchHit
}

func (s *stubSearcher) Search(ctx context.Context, params search.SearchParams) ([]search.SearchHit, error) {
	s.params = params
	return s.hits, nil
}

func newSearchHandler(t *testing.T, stub *stubSearcher) *http.ServeMux {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := service.NewFinanceService(mem, zerolog.Nop())
	mux := http.NewServeMux()
	New(svc, nil, stub, zerolog.Nop()).Register(mux)
	return mux
}

func TestSearchEndpoint(t *testing.T) {
	stub := &stubSearcher{hits: []search.SearchHit{
		{ID: "tx-1", Description: "Netflix", AmountCents: -3990},
	}}
	mux := newSearchHandler(t, stub)

	rec := doJSON(t, mux, http.MethodGet,
		"/v1/search?q=netflix&category=cat-1&recurring=true&start_date=2024-01-01&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hits []search.SearchHit `json:"hits"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "tx-1", resp.Hits[0].ID)
	assert.Equal(t, int64(-3990), resp.Hits[0].AmountCents)

	assert.Equal(t, "netflix", stub.params.Query)
	assert.Equal(t, "cat-1", stub.params.Category)
	require.NotNil(t, stub.params.Recurring)
	assert.True(t, *stub.params.Recurring)
	require.NotNil(t, stub.params.StartDate)
	assert.Equal(t, "2024-01-01", stub.params.StartDate.Format("2006-01-02"))
	assert.Nil(t, stub.params.EndDate)
	assert.Equal(t, 10, stub.params.PageSize)
}

func TestSearchEndpoint_InvalidDateFilter(t *testing.T) {
	mux := newSearchHandler(t, &stubSearcher{})
	rec := doJSON(t, mux, http.MethodGet, "/v1/search?q=x&start_date=January", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint_NotConfigured(t *testing.T) {
	mux, _ := newTestHandler(t)
	rec := doJSON(t, mux, http.MethodGet, "/v1/search?q=netflix", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
