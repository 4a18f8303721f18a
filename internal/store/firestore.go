package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/mfcarvalho/financeapp/internal/model"
)

const (
	collTransactions    = "transactions"
	collCategories      = "categories"
	collBankConnections = "bankConnections"
)

// FirestoreStore implements the Store interface using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) Store {
	return &FirestoreStore{client: client}
}

// firestoreTransaction is the document shape for a transaction. Firestore has
// no decimal type, so amounts are persisted as integer cents.
type firestoreTransaction struct {
	ID               string    `firestore:"id"`
	Date             time.Time `firestore:"date"`
	AmountCents      int64     `firestore:"amountCents"`
	Description      string    `firestore:"description"`
	CategoryID       string    `firestore:"categoryId"`
	Type             string    `firestore:"type"`
	IsRecurring      bool      `firestore:"isRecurring"`
	RecurringPattern string    `firestore:"recurringPattern"`
	ConnectionID     string    `firestore:"connectionId"`
	ExternalID       string    `firestore:"externalId"`
	// ExternalKey is "<connectionId>|<externalId>", the indexed form of the
	// de-duplication key. Empty when the transaction has no external ref.
	ExternalKey  string    `firestore:"externalKey"`
	ImportSource string    `firestore:"importSource"`
	Notes        string    `firestore:"notes"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type firestoreCategory struct {
	ID                  string    `firestore:"id"`
	Name                string    `firestore:"name"`
	Type                string    `firestore:"type"`
	ParentID            string    `firestore:"parentId"`
	TransactionCount    int       `firestore:"transactionCount"`
	TotalAmountCents    int64     `firestore:"totalAmountCents"`
	AvgAmountCents      int64     `firestore:"avgAmountCents"`
	LastTransactionDate time.Time `firestore:"lastTransactionDate"`
	CreatedAt           time.Time `firestore:"createdAt"`
	UpdatedAt           time.Time `firestore:"updatedAt"`
}

type firestoreBankConnection struct {
	ID            string `firestore:"id"`
	BankID        string `firestore:"bankId"`
	CredentialRef string `firestore:"credentialRef"`
	Sandbox       bool   `firestore:"sandbox"`
	SyncFrequency string `firestore:"syncFrequency"`
	LookbackDays  int    `firestore:"lookbackDays"`
}

func externalKey(ref model.ExternalRef) string {
	if ref.IsZero() {
		return ""
	}
	return ref.ConnectionID + "|" + ref.ExternalID
}

func toFirestoreTransaction(tx *model.Transaction) *firestoreTransaction {
	return &firestoreTransaction{
		ID:               tx.ID,
		Date:             tx.Date,
		AmountCents:      tx.Amount.Shift(2).IntPart(),
		Description:      tx.Description,
		CategoryID:       tx.CategoryID,
		Type:             string(tx.Type),
		IsRecurring:      tx.IsRecurring,
		RecurringPattern: string(tx.RecurringPattern),
		ConnectionID:     tx.External.ConnectionID,
		ExternalID:       tx.External.ExternalID,
		ExternalKey:      externalKey(tx.External),
		ImportSource:     string(tx.ImportSource),
		Notes:            tx.Notes,
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
	}
}

func (d *firestoreTransaction) toModel() *model.Transaction {
	return &model.Transaction{
		ID:               d.ID,
		Date:             d.Date,
		Amount:           decimal.New(d.AmountCents, -2),
		Description:      d.Description,
		CategoryID:       d.CategoryID,
		Type:             model.TransactionType(d.Type),
		IsRecurring:      d.IsRecurring,
		RecurringPattern: model.RecurringPattern(d.RecurringPattern),
		External: model.ExternalRef{
			ConnectionID: d.ConnectionID,
			ExternalID:   d.ExternalID,
		},
		ImportSource: model.ImportSource(d.ImportSource),
		Notes:        d.Notes,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toFirestoreCategory(cat *model.Category) *firestoreCategory {
	return &firestoreCategory{
		ID:                  cat.ID,
		Name:                cat.Name,
		Type:                string(cat.Type),
		ParentID:            cat.ParentID,
		TransactionCount:    cat.Stats.TransactionCount,
		TotalAmountCents:    cat.Stats.TotalAmount.Shift(2).IntPart(),
		AvgAmountCents:      cat.Stats.AvgAmount.Shift(2).IntPart(),
		LastTransactionDate: cat.Stats.LastTransactionDate,
		CreatedAt:           cat.CreatedAt,
		UpdatedAt:           cat.UpdatedAt,
	}
}

func (d *firestoreCategory) toModel() *model.Category {
	return &model.Category{
		ID:       d.ID,
		Name:     d.Name,
		Type:     model.TransactionType(d.Type),
		ParentID: d.ParentID,
		Stats: model.CategoryStats{
			TransactionCount:    d.TransactionCount,
			TotalAmount:         decimal.New(d.TotalAmountCents, -2),
			AvgAmount:           decimal.New(d.AvgAmountCents, -2),
			LastTransactionDate: d.LastTransactionDate,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Transaction operations

func (s *FirestoreStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if !tx.External.IsZero() {
		// Enforce the de-duplication invariant before writing.
		_, err := s.GetTransactionByExternal(ctx, tx.External)
		if err == nil {
			return ErrDuplicate
		}
		if err != ErrNotFound {
			return err
		}
	}
	_, err := s.client.Collection(collTransactions).Doc(tx.ID).Set(ctx, toFirestoreTransaction(tx))
	return err
}

func (s *FirestoreStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	doc, err := s.client.Collection(collTransactions).Doc(txID).Get(ctx)
	if err != nil {
		return nil, ErrNotFound
	}
	var d firestoreTransaction
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return d.toModel(), nil
}

func (s *FirestoreStore) GetTransactionByExternal(ctx context.Context, ref model.ExternalRef) (*model.Transaction, error) {
	iter := s.client.Collection(collTransactions).
		Where("externalKey", "==", externalKey(ref)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query by external reference: %w", err)
	}
	var d firestoreTransaction
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return d.toModel(), nil
}

func (s *FirestoreStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	_, err := s.client.Collection(collTransactions).Doc(tx.ID).Set(ctx, toFirestoreTransaction(tx))
	return err
}

func (s *FirestoreStore) DeleteTransaction(ctx context.Context, txID string) error {
	_, err := s.client.Collection(collTransactions).Doc(txID).Delete(ctx)
	return err
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	query := s.client.Collection(collTransactions).Query.
		OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1) // +1 to detect next page

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list transactions: %w", err)
	}

	var txs []*model.Transaction
	for _, doc := range docs {
		var d firestoreTransaction
		if err := doc.DataTo(&d); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction: %w", err)
		}
		txs = append(txs, d.toModel())
	}

	var nextToken string
	if int32(len(txs)) > pageSize {
		txs = txs[:pageSize]
		nextToken = EncodePageToken(txs[len(txs)-1].ID)
	}
	return txs, nextToken, nil
}

func (s *FirestoreStore) ListTransactionsByCategory(ctx context.Context, categoryID string) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.client.Collection(collTransactions).
		Where("categoryId", "==", categoryID))
}

func (s *FirestoreStore) ListNonRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.client.Collection(collTransactions).
		Where("isRecurring", "==", false))
}

func (s *FirestoreStore) ListRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.client.Collection(collTransactions).
		Where("isRecurring", "==", true))
}

func (s *FirestoreStore) queryTransactions(ctx context.Context, query firestore.Query) ([]*model.Transaction, error) {
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	var txs []*model.Transaction
	for _, doc := range docs {
		var d firestoreTransaction
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		txs = append(txs, d.toModel())
	}
	sortTransactionsByDate(txs)
	return txs, nil
}

func (s *FirestoreStore) BulkUpdateTransactions(ctx context.Context, txs []*model.Transaction) error {
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.UpdateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

// Category operations

func (s *FirestoreStore) CreateCategory(ctx context.Context, category *model.Category) error {
	_, err := s.client.Collection(collCategories).Doc(category.ID).Set(ctx, toFirestoreCategory(category))
	return err
}

func (s *FirestoreStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	doc, err := s.client.Collection(collCategories).Doc(categoryID).Get(ctx)
	if err != nil {
		return nil, ErrNotFound
	}
	var d firestoreCategory
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse category: %w", err)
	}
	return d.toModel(), nil
}

func (s *FirestoreStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	_, err := s.client.Collection(collCategories).Doc(category.ID).Set(ctx, toFirestoreCategory(category))
	return err
}

func (s *FirestoreStore) DeleteCategory(ctx context.Context, categoryID string) error {
	_, err := s.client.Collection(collCategories).Doc(categoryID).Delete(ctx)
	return err
}

func (s *FirestoreStore) ListCategories(ctx context.Context) ([]*model.Category, error) {
	docs, err := s.client.Collection(collCategories).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var cats []*model.Category
	for _, doc := range docs {
		var d firestoreCategory
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse category: %w", err)
		}
		cats = append(cats, d.toModel())
	}
	return cats, nil
}

// Bank connection operations

func (s *FirestoreStore) GetBankConnection(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	doc, err := s.client.Collection(collBankConnections).Doc(connectionID).Get(ctx)
	if err != nil {
		return nil, ErrNotFound
	}
	var d firestoreBankConnection
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse bank connection: %w", err)
	}
	return &model.BankConnection{
		ID:            d.ID,
		BankID:        d.BankID,
		CredentialRef: d.CredentialRef,
		Sandbox:       d.Sandbox,
		SyncFrequency: d.SyncFrequency,
		LookbackDays:  d.LookbackDays,
	}, nil
}

func (s *FirestoreStore) ListBankConnections(ctx context.Context) ([]*model.BankConnection, error) {
	docs, err := s.client.Collection(collBankConnections).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list bank connections: %w", err)
	}
	var conns []*model.BankConnection
	for _, doc := range docs {
		var d firestoreBankConnection
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse bank connection: %w", err)
		}
		conns = append(conns, &model.BankConnection{
			ID:            d.ID,
			BankID:        d.BankID,
			CredentialRef: d.CredentialRef,
			Sandbox:       d.Sandbox,
			SyncFrequency: d.SyncFrequency,
			LookbackDays:  d.LookbackDays,
		})
	}
	return conns, nil
}

func (s *FirestoreStore) PutBankConnection(ctx context.Context, conn *model.BankConnection) error {
	_, err := s.client.Collection(collBankConnections).Doc(conn.ID).Set(ctx, &firestoreBankConnection{
		ID:            conn.ID,
		BankID:        conn.BankID,
		CredentialRef: conn.CredentialRef,
		Sandbox:       conn.Sandbox,
		SyncFrequency: conn.SyncFrequency,
		LookbackDays:  conn.LookbackDays,
	})
	return err
}
