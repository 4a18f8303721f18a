package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// PostgresStore implements the Store interface on PostgreSQL via GORM.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore opens a connection with the given DSN and migrates the
// schema.
func NewPostgresStore(dsn string) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.AutoMigrate(&pgTransaction{}, &pgCategory{}, &pgBankConnection{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// pgTransaction is the transactions table row. ExternalKey is the nullable
// unique form of the (connection id, external id) de-duplication key; NULL
// rows (manual/file entries without a bank reference) do not collide.
type pgTransaction struct {
	ID               string          `gorm:"primaryKey;size:36"`
	Date             time.Time       `gorm:"index;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Description      string          `gorm:"size:500;not null"`
	CategoryID       string          `gorm:"size:36;index"`
	Type             string          `gorm:"size:20;not null"`
	IsRecurring      bool            `gorm:"index;not null;default:false"`
	RecurringPattern string          `gorm:"size:20"`
	ConnectionID     string          `gorm:"size:100"`
	ExternalID       string          `gorm:"size:100"`
	ExternalKey      *string         `gorm:"size:200;uniqueIndex"`
	ImportSource     string          `gorm:"size:20"`
	Notes            string          `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (pgTransaction) TableName() string { return "transactions" }

type pgCategory struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	Name                string          `gorm:"size:100;not null"`
	Type                string          `gorm:"size:20;not null"`
	ParentID            string          `gorm:"size:36;index"`
	TransactionCount    int             `gorm:"not null;default:0"`
	TotalAmount         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	AvgAmount           decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	LastTransactionDate time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (pgCategory) TableName() string { return "categories" }

type pgBankConnection struct {
	ID            string `gorm:"primaryKey;size:36"`
	BankID        string `gorm:"size:50;not null"`
	CredentialRef string `gorm:"size:200"`
	Sandbox       bool
	SyncFrequency string `gorm:"size:20"`
	LookbackDays  int
}

func (pgBankConnection) TableName() string { return "bank_connections" }

func toPgTransaction(tx *model.Transaction) *pgTransaction {
	row := &pgTransaction{
		ID:               tx.ID,
		Date:             tx.Date,
		Amount:           tx.Amount,
		Description:      tx.Description,
		CategoryID:       tx.CategoryID,
		Type:             string(tx.Type),
		IsRecurring:      tx.IsRecurring,
		RecurringPattern: string(tx.RecurringPattern),
		ConnectionID:     tx.External.ConnectionID,
		ExternalID:       tx.External.ExternalID,
		ImportSource:     string(tx.ImportSource),
		Notes:            tx.Notes,
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
	}
	if !tx.External.IsZero() {
		key := externalKey(tx.External)
		row.ExternalKey = &key
	}
	return row
}

func (r *pgTransaction) toModel() *model.Transaction {
	return &model.Transaction{
		ID:               r.ID,
		Date:             r.Date,
		Amount:           r.Amount,
		Description:      r.Description,
		CategoryID:       r.CategoryID,
		Type:             model.TransactionType(r.Type),
		IsRecurring:      r.IsRecurring,
		RecurringPattern: model.RecurringPattern(r.RecurringPattern),
		External: model.ExternalRef{
			ConnectionID: r.ConnectionID,
			ExternalID:   r.ExternalID,
		},
		ImportSource: model.ImportSource(r.ImportSource),
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Transaction operations

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	err := s.db.WithContext(ctx).Create(toPgTransaction(tx)).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	var row pgTransaction
	err := s.db.WithContext(ctx).First(&row, "id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *PostgresStore) GetTransactionByExternal(ctx context.Context, ref model.ExternalRef) (*model.Transaction, error) {
	var row pgTransaction
	err := s.db.WithContext(ctx).
		First(&row, "external_key = ?", externalKey(ref)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	res := s.db.WithContext(ctx).
		Model(&pgTransaction{}).
		Where("id = ?", tx.ID).
		Select("*").
		Omit("created_at").
		Updates(toPgTransaction(tx))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, txID string) error {
	res := s.db.WithContext(ctx).Delete(&pgTransaction{}, "id = ?", txID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	query := s.db.WithContext(ctx).Order("id asc").Limit(int(pageSize) + 1)
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("id > ?", cursorID)
	}

	var rows []pgTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	var nextToken string
	if int32(len(rows)) > pageSize {
		rows = rows[:pageSize]
		nextToken = EncodePageToken(rows[len(rows)-1].ID)
	}
	txs := make([]*model.Transaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, rows[i].toModel())
	}
	return txs, nextToken, nil
}

func (s *PostgresStore) ListTransactionsByCategory(ctx context.Context, categoryID string) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, "category_id = ?", categoryID)
}

func (s *PostgresStore) ListNonRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, "is_recurring = ?", false)
}

func (s *PostgresStore) ListRecurringTransactions(ctx context.Context) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, "is_recurring = ?", true)
}

func (s *PostgresStore) queryTransactions(ctx context.Context, cond string, args ...interface{}) ([]*model.Transaction, error) {
	var rows []pgTransaction
	err := s.db.WithContext(ctx).
		Where(cond, args...).
		Order("date asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	txs := make([]*model.Transaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, rows[i].toModel())
	}
	return txs, nil
}

func (s *PostgresStore) BulkUpdateTransactions(ctx context.Context, txs []*model.Transaction) error {
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

func (s *PostgresStore) CreateCategory(ctx context.Context, category *model.Category) error {
	return s.db.WithContext(ctx).Create(toPgCategory(category)).Error
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	var row pgCategory
	err := s.db.WithContext(ctx).First(&row, "id = ?", categoryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	res := s.db.WithContext(ctx).
		Model(&pgCategory{}).
		Where("id = ?", category.ID).
		Select("*").
		Omit("created_at").
		Updates(toPgCategory(category))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) error {
	res := s.db.WithContext(ctx).Delete(&pgCategory{}, "id = ?", categoryID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]*model.Category, error) {
	var rows []pgCategory
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	cats := make([]*model.Category, 0, len(rows))
	for i := range rows {
		cats = append(cats, rows[i].toModel())
	}
	return cats, nil
}

func toPgCategory(cat *model.Category) *pgCategory {
	return &pgCategory{
		ID:                  cat.ID,
		Name:                cat.Name,
		Type:                string(cat.Type),
		ParentID:            cat.ParentID,
		TransactionCount:    cat.Stats.TransactionCount,
		TotalAmount:         cat.Stats.TotalAmount,
		AvgAmount:           cat.Stats.AvgAmount,
		LastTransactionDate: cat.Stats.LastTransactionDate,
		CreatedAt:           cat.CreatedAt,
		UpdatedAt:           cat.UpdatedAt,
	}
}

func (r *pgCategory) toModel() *model.Category {
	return &model.Category{
		ID:       r.ID,
		Name:     r.Name,
		Type:     model.TransactionType(r.Type),
		ParentID: r.ParentID,
		Stats: model.CategoryStats{
			TransactionCount:    r.TransactionCount,
			TotalAmount:         r.TotalAmount,
			AvgAmount:           r.AvgAmount,
			LastTransactionDate: r.LastTransactionDate,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Bank connection operations

func (s *PostgresStore) GetBankConnection(ctx context.Context, connectionID string) (*model.BankConnection, error) {
	var row pgBankConnection
	err := s.db.WithContext(ctx).First(&row, "id = ?", connectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *PostgresStore) ListBankConnections(ctx context.Context) ([]*model.BankConnection, error) {
	var rows []pgBankConnection
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	conns := make([]*model.BankConnection, 0, len(rows))
	for i := range rows {
		conns = append(conns, rows[i].toModel())
	}
	return conns, nil
}

func (s *PostgresStore) PutBankConnection(ctx context.Context, conn *model.BankConnection) error {
	row := &pgBankConnection{
		ID:            conn.ID,
		BankID:        conn.BankID,
		CredentialRef: conn.CredentialRef,
		Sandbox:       conn.Sandbox,
		SyncFrequency: conn.SyncFrequency,
		LookbackDays:  conn.LookbackDays,
	}
	return s.db.WithContext(ctx).Save(row).Error
}

func (r *pgBankConnection) toModel() *model.BankConnection {
	return &model.BankConnection{
		ID:            r.ID,
		BankID:        r.BankID,
		CredentialRef: r.CredentialRef,
		Sandbox:       r.Sandbox,
		SyncFrequency: r.SyncFrequency,
		LookbackDays:  r.LookbackDays,
	}
}
