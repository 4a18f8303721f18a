// Package search keeps an optional Algolia index of transactions for
// full-text lookup from the dashboard. The store remains the source of
// truth; indexing is best-effort.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// Config holds Algolia configuration.
type Config struct {
	AppID     string
	APIKey    string // write API key
	IndexName string
}

// AlgoliaClient wraps the Algolia search API client.
type AlgoliaClient struct {
	client    *search.APIClient
	indexName string
}

// NewAlgoliaClient creates a new Algolia client.
func NewAlgoliaClient(cfg Config) (*AlgoliaClient, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("algolia AppID and APIKey are required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "transactions"
	}

	client, err := search.NewClient(cfg.AppID, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating algolia client: %w", err)
	}
	return &AlgoliaClient{client: client, indexName: cfg.IndexName}, nil
}

// IndexTransactions upserts transaction records into the index.
func (c *AlgoliaClient) IndexTransactions(ctx context.Context, txs []*model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	objects := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		objects = append(objects, map[string]any{
			"objectID":    tx.ID,
			"Description": tx.Description,
			"CategoryId":  tx.CategoryID,
			"Type":        string(tx.Type),
			"AmountCents": tx.Amount.Shift(2).IntPart(),
			"DateUnix":    tx.Date.Unix(),
			"IsRecurring": tx.IsRecurring,
		})
	}

	_, err := c.client.SaveObjects(c.indexName, objects)
	if err != nil {
		return fmt.Errorf("algolia save objects: %w", err)
	}
	return nil
}

// DeleteTransaction removes one transaction from the index.
func (c *AlgoliaClient) DeleteTransaction(ctx context.Context, txID string) error {
	_, err := c.client.DeleteObject(c.client.NewApiDeleteObjectRequest(c.indexName, txID))
	if err != nil {
		return fmt.Errorf("algolia delete object: %w", err)
	}
	return nil
}

// SearchParams defines the input for a transaction search.
type SearchParams struct {
	Query     string
	Category  string
	Recurring *bool
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// SearchHit is one matching transaction reference.
type SearchHit struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

// Search performs a full-text search over indexed transactions.
func (c *AlgoliaClient) Search(ctx context.Context, params SearchParams) ([]SearchHit, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := params.Page
	if page < 0 {
		page = 0
	}

	searchParams := search.SearchParamsObjectAsSearchParams(
		search.NewSearchParamsObject().
			SetQuery(params.Query).
			SetHitsPerPage(int32(pageSize)).
			SetPage(int32(page)).
			SetFilters(buildFilters(params)),
	)

	resp, err := c.client.SearchSingleIndex(c.client.NewApiSearchSingleIndexRequest(c.indexName).WithSearchParams(searchParams))
	if err != nil {
		return nil, fmt.Errorf("algolia search: %w", err)
	}

	hits := make([]SearchHit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		props := hit.AdditionalProperties
		var h SearchHit
		if v, ok := props["objectID"].(string); ok {
			h.ID = v
		}
		if v, ok := props["Description"].(string); ok {
			h.Description = v
		}
		if v, ok := props["AmountCents"].(float64); ok {
			h.AmountCents = int64(v)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func buildFilters(params SearchParams) string {
	var parts []string
	if params.Category != "" {
		parts = append(parts, fmt.Sprintf("CategoryId:%q", params.Category))
	}
	if params.Recurring != nil {
		parts = append(parts, fmt.Sprintf("IsRecurring:%t", *params.Recurring))
	}
	if params.StartDate != nil {
		parts = append(parts, fmt.Sprintf("DateUnix >= %d", params.StartDate.Unix()))
	}
	if params.EndDate != nil {
		parts = append(parts, fmt.Sprintf("DateUnix <= %d", params.EndDate.Unix()))
	}
	return strings.Join(parts, " AND ")
}
