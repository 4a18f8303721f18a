package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// MemoryStore implements Store with in-memory maps. It is used for local
// development and as the backing store for service tests.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*model.Transaction
	externalIdx  map[model.ExternalRef]string // dedup key -> transaction ID
	categories   map[string]*model.Category
	connections  map[string]*model.BankConnection
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*model.Transaction),
		externalIdx:  make(map[model.ExternalRef]string),
		categories:   make(map[string]*model.Category),
		connections:  make(map[string]*model.BankConnection),
	}
}

func cloneTransaction(tx *model.Transaction) *model.Transaction {
	c := *tx
	return &c
}

func cloneCategory(cat *model.Category) *model.Category {
	c := *cat
	return &c
}

// paginateIDs applies cursor-based pagination to a sorted slice of IDs.
// Returns the page of IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	sort.Strings(ids)

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		startIdx = sort.SearchStrings(ids, cursorID)
		if startIdx < len(ids) && ids[startIdx] == cursorID {
			startIdx++
		}
	}
	ids = ids[startIdx:]

	var nextToken string
	if int32(len(ids)) > pageSize {
		nextToken = EncodePageToken(ids[pageSize-1])
		ids = ids[:pageSize]
	}
	return ids, nextToken, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if !tx.External.IsZero() {
		if _, exists := m.externalIdx[tx.External]; exists {
			return ErrDuplicate
		}
		m.externalIdx[tx.External] = tx.ID
	}
	m.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (m *MemoryStore) GetTransactionByExternal(ctx context.Context, ref model.ExternalRef) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.externalIdx[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(m.transactions[id]), nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transactions[tx.ID]
	if !ok {
		return ErrNotFound
	}
	// Keep the external index in step when the reference changes.
	if existing.External != tx.External {
		if !existing.External.IsZero() {
			delete(m.externalIdx, existing.External)
		}
		if !tx.External.IsZero() {
			if otherID, exists := m.externalIdx[tx.External]; exists && otherID != tx.ID {
				return ErrDuplicate
			}
			m.externalIdx[tx.External] = tx.ID
		}
	}
	m.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[txID]
	if !ok {
		return ErrNotFound
	}
	if !tx.External.IsZero() {
		delete(m.externalIdx, tx.External)
	}
	delete(m.transactions, txID)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.transactions))
	for id := range m.transactions {
		ids = append(ids, id)
	}
	page, nextToken, err := paginateIDs(ids, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	txs := make([]*model.Transaction, 0, len(page))
	for _, id := range page {
		txs = append(txs, cloneTransaction(m.transactions[id]))
	}
	return txs, nextToken, nil
}

func (m *MemoryStore) ListTransactionsByCategory(ctx context.Context, categoryID string) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txs []*model.Transaction
	for _, tx := range m.transactions {
		if tx.CategoryID == categoryID {
			txs = append(txs, cloneTransaction(tx))
		}
	}
	sortTransactionsByDate(txs)
	return txs, nil
}

func (m *MemoryStore) ListNonRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return m.listByRecurring(false)
}

func (m *MemoryStore) ListRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return m.listByRecurring(true)
}

func (m *MemoryStore) listByRecurring(recurring bool) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txs []*model.Transaction
	for _, tx := range m.transactions {
		if tx.IsRecurring == recurring {
			txs = append(txs, cloneTransaction(tx))
		}
	}
	sortTransactionsByDate(txs)
	return txs, nil
}

func (m *MemoryStore) BulkUpdateTransactions(ctx context.Context, txs []*model.Transaction) error {
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func sortTransactionsByDate(txs []*model.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Date.Before(txs[j].Date)
	})
}

// Category operations

func (m *MemoryStore) CreateCategory(ctx context.Context, category *model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	m.categories[category.ID] = cloneCategory(category)
	return nil
}

func (m *MemoryStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cat, ok := m.categories[categoryID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCategory(cat), nil
}

func (m *MemoryStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[category.ID]; !ok {
		return ErrNotFound
	}
	m.categories[category.ID] = cloneCategory(category)
	return nil
}

func (m *MemoryStore) DeleteCategory(ctx context.Context, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[categoryID]; !ok {
		return ErrNotFound
	}
	delete(m.categories, categoryID)
	return nil
}

func (m *MemoryStore) ListCategories(ctx context.Context) ([]*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cats := make([]*model.Category, 0, len(m.categories))
	for _, cat := range m.categories {
		cats = append(cats, cloneCategory(cat))
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats, nil
}

// Bank connection operations

func (m *MemoryStore) GetBankConnection(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conn
	return &c, nil
}

func (m *MemoryStore) ListBankConnections(ctx context.Context) ([]*model.BankConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*model.BankConnection, 0, len(m.connections))
	for _, conn := range m.connections {
		c := *conn
		conns = append(conns, &c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns, nil
}

func (m *MemoryStore) PutBankConnection(ctx context.Context, conn *model.BankConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	c := *conn
	m.connections[conn.ID] = &c
	return nil
}
