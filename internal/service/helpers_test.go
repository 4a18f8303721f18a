package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/store"
)

func newTestService(t *testing.T) (*FinanceService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	return NewFinanceService(mem, zerolog.Nop()), mem
}

func seedConnection(t *testing.T, st *store.MemoryStore, id string) {
	t.Helper()
	err := st.PutBankConnection(context.Background(), &model.BankConnection{
		ID:           id,
		BankID:       "testbank",
		LookbackDays: 30,
	})
	require.NoError(t, err)
}

func seedCategory(t *testing.T, st *store.MemoryStore, id, name string) {
	t.Helper()
	err := st.CreateCategory(context.Background(), &model.Category{
		ID:   id,
		Name: name,
		Type: model.TransactionTypeExpense,
	})
	require.NoError(t, err)
}

// seedTransaction inserts a transaction directly into the store, bypassing
// the service, so tests can shape history precisely.
func seedTransaction(t *testing.T, st *store.MemoryStore, date, description, amount, categoryID string) *model.Transaction {
	t.Helper()
	day, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)

	tx := &model.Transaction{
		Date:        model.DateOnly(day),
		Amount:      amt,
		Description: description,
		CategoryID:  categoryID,
		Type:        model.TypeForAmount(amt),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateTransaction(context.Background(), tx))
	return tx
}

func rawTx(externalID, date, amount, description string) model.RawTransaction {
	return model.RawTransaction{
		ExternalID:  externalID,
		Date:        date,
		Amount:      amount,
		Description: description,
	}
}
