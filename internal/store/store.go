package store

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert would violate the external
// reference uniqueness constraint.
var ErrDuplicate = errors.New("duplicate external reference")

// Store defines the database operations used by the service layer.
type Store interface {
	// Transaction operations
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, txID string) (*model.Transaction, error)
	// GetTransactionByExternal looks up a transaction by its de-duplication
	// key. Returns ErrNotFound when no row carries the reference.
	GetTransactionByExternal(ctx context.Context, ref model.ExternalRef) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	DeleteTransaction(ctx context.Context, txID string) error
	ListTransactions(ctx context.Context, pageSize int32, pageToken string) ([]*model.Transaction, string, error)
	ListTransactionsByCategory(ctx context.Context, categoryID string) ([]*model.Transaction, error)
	// ListNonRecurringTransactions returns the pattern detector's candidate
	// set: every transaction with is_recurring = false.
	ListNonRecurringTransactions(ctx context.Context) ([]*model.Transaction, error)
	ListRecurringTransactions(ctx context.Context) ([]*model.Transaction, error)
	// BulkUpdateTransactions applies updates one row at a time; each row's
	// write is atomic but the set as a whole is not.
	BulkUpdateTransactions(ctx context.Context, txs []*model.Transaction) error

	// Category operations
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, categoryID string) (*model.Category, error)
	UpdateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context) ([]*model.Category, error)

	// Bank connection operations. Connections are configured by the external
	// sync integration; the core only reads them during reconciliation.
	GetBankConnection(ctx context.Context, connectionID string) (*model.BankConnection, error)
	ListBankConnections(ctx context.Context) ([]*model.BankConnection, error)
	PutBankConnection(ctx context.Context, conn *model.BankConnection) error
}

// EncodePageToken encodes a row ID into an opaque page token.
func EncodePageToken(id string) string {
	if id == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(id))
}

// DecodePageToken decodes a page token back to a row ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
