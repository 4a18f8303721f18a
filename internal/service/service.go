// Package service implements the batch components of the backend: sync
// reconciliation, recurring pattern detection and category statistics, plus
// the transaction/category CRUD surface that keeps the statistics consistent.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/store"
)

// SearchIndex is the optional full-text index kept in step with the
// transaction table. A nil index disables indexing; the core never depends
// on search being available.
type SearchIndex interface {
	IndexTransactions(ctx context.Context, txs []*model.Transaction) error
	DeleteTransaction(ctx context.Context, txID string) error
}

// FinanceService exposes the core operations over a Store.
type FinanceService struct {
	store  store.Store
	search SearchIndex
	log    zerolog.Logger

	// statsLocks serializes stats recomputes per category id. Recomputes for
	// different ids run in parallel.
	statsMu    sync.Mutex
	statsLocks map[string]*sync.Mutex
}

// Option configures optional collaborators on the service.
type Option func(*FinanceService)

// WithSearchIndex attaches a search index that is updated on transaction
// insert and delete.
func WithSearchIndex(idx SearchIndex) Option {
	return func(s *FinanceService) { s.search = idx }
}

// NewFinanceService creates a service over the given store.
func NewFinanceService(st store.Store, log zerolog.Logger, opts ...Option) *FinanceService {
	s := &FinanceService{
		store:      st,
		log:        log,
		statsLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTransactionInput carries the fields of a manual transaction entry.
type CreateTransactionInput struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	CategoryID  string
	Type        model.TransactionType
	Notes       string
}

// CreateTransaction records a manually entered transaction and refreshes the
// statistics of its category, if any.
func (s *FinanceService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*model.Transaction, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("date is required")
	}

	txType := in.Type
	if txType == "" {
		txType = model.TypeForAmount(in.Amount)
	}

	now := time.Now().UTC()
	tx := &model.Transaction{
		ID:           uuid.New().String(),
		Date:         model.DateOnly(in.Date),
		Amount:       in.Amount.Round(2),
		Description:  description,
		CategoryID:   in.CategoryID,
		Type:         txType,
		ImportSource: model.ImportSourceManual,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	s.indexTransactions(ctx, tx)

	if tx.CategoryID != "" {
		if err := s.RecomputeCategoryStats(ctx, tx.CategoryID); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// GetTransaction returns a single transaction by id.
func (s *FinanceService) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	return s.store.GetTransaction(ctx, txID)
}

// ListTransactions pages through all transactions.
func (s *FinanceService) ListTransactions(ctx context.Context, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	return s.store.ListTransactions(ctx, pageSize, pageToken)
}

// UpdateTransactionInput carries the full replacement set of mutable fields.
// Every field is written as given; callers must supply the complete desired
// state, not a partial patch.
type UpdateTransactionInput struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	CategoryID  string
	Type        model.TransactionType
	Notes       string
}

// UpdateTransaction replaces the mutable fields of an existing transaction.
// Amount and category edits refresh the statistics of every affected
// category.
func (s *FinanceService) UpdateTransaction(ctx context.Context, txID string, in UpdateTransactionInput) (*model.Transaction, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("date is required")
	}

	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	previousCategory := tx.CategoryID

	tx.Date = model.DateOnly(in.Date)
	tx.Description = description
	tx.Amount = in.Amount.Round(2)
	tx.CategoryID = in.CategoryID
	tx.Type = in.Type
	if tx.Type == "" {
		tx.Type = model.TypeForAmount(tx.Amount)
	}
	tx.Notes = in.Notes
	tx.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	s.indexTransactions(ctx, tx)

	for _, categoryID := range affectedCategories(previousCategory, tx.CategoryID) {
		if err := s.RecomputeCategoryStats(ctx, categoryID); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// AssignCategory sets or clears the category of a transaction. Category
// assignment may arrive asynchronously from the external categorization
// collaborator; this is its entry point into the core.
func (s *FinanceService) AssignCategory(ctx context.Context, txID, categoryID string) (*model.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if categoryID != "" {
		if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
			return nil, fmt.Errorf("failed to resolve category %s: %w", categoryID, err)
		}
	}

	previousCategory := tx.CategoryID
	tx.CategoryID = categoryID
	tx.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to assign category: %w", err)
	}

	for _, id := range affectedCategories(previousCategory, categoryID) {
		if err := s.RecomputeCategoryStats(ctx, id); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// DeleteTransaction removes a transaction. Removal is always an explicit
// action; nothing in the core deletes rows as a side effect.
func (s *FinanceService) DeleteTransaction(ctx context.Context, txID string) error {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, txID); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if s.search != nil {
		if err := s.search.DeleteTransaction(ctx, txID); err != nil {
			s.log.Warn().Err(err).Str("transaction_id", txID).Msg("failed to remove transaction from search index")
		}
	}
	if tx.CategoryID != "" {
		return s.RecomputeCategoryStats(ctx, tx.CategoryID)
	}
	return nil
}

// CreateCategory creates a category with empty statistics.
func (s *FinanceService) CreateCategory(ctx context.Context, name string, catType model.TransactionType, parentID string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if parentID != "" {
		parent, err := s.store.GetCategory(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent category: %w", err)
		}
		// One level of hierarchy only.
		if parent.ParentID != "" {
			return nil, fmt.Errorf("category %s is already a subcategory", parentID)
		}
	}

	now := time.Now().UTC()
	cat := &model.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      catType,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

// GetCategory returns a category by id, including its cached statistics.
func (s *FinanceService) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	return s.store.GetCategory(ctx, categoryID)
}

// ListCategories returns all categories.
func (s *FinanceService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return s.store.ListCategories(ctx)
}

// DeleteCategory removes a category and clears the reference from its
// transactions.
func (s *FinanceService) DeleteCategory(ctx context.Context, categoryID string) error {
	txs, err := s.store.ListTransactionsByCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("failed to list category transactions: %w", err)
	}
	for _, tx := range txs {
		tx.CategoryID = ""
		tx.UpdatedAt = time.Now().UTC()
	}
	if err := s.store.BulkUpdateTransactions(ctx, txs); err != nil {
		return fmt.Errorf("failed to detach transactions: %w", err)
	}
	return s.store.DeleteCategory(ctx, categoryID)
}

func (s *FinanceService) indexTransactions(ctx context.Context, txs ...*model.Transaction) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexTransactions(ctx, txs); err != nil {
		// Indexing is best-effort; the store remains the source of truth.
		s.log.Warn().Err(err).Int("count", len(txs)).Msg("failed to index transactions")
	}
}

func affectedCategories(previous, current string) []string {
	var ids []string
	if previous != "" {
		ids = append(ids, previous)
	}
	if current != "" && current != previous {
		ids = append(ids, current)
	}
	return ids
}

// normalizeDescription lowercases and trims a description for grouping.
// Matching is exact after normalization; fuzzy grouping belongs to the
// external categorization collaborator.
func normalizeDescription(desc string) string {
	return strings.ToLower(strings.TrimSpace(desc))
}
