package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/store"
)

// seedRecurring inserts a transaction already flagged with a cadence,
// daysAgo days before today.
func seedRecurring(t *testing.T, st *store.MemoryStore, daysAgo int, description, amount string, pattern model.RecurringPattern) *model.Transaction {
	t.Helper()
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)

	tx := &model.Transaction{
		Date:             model.DateOnly(time.Now().UTC()).AddDate(0, 0, -daysAgo),
		Amount:           amt,
		Description:      description,
		Type:             model.TypeForAmount(amt),
		IsRecurring:      true,
		RecurringPattern: pattern,
	}
	require.NoError(t, st.CreateTransaction(context.Background(), tx))
	return tx
}

func TestPredictUpcoming_MonthlyGroup(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	// Last charge 5 days ago, so the next two land 25 and 55 days out.
	seedRecurring(t, mem, 65, "Netflix", "-39.90", model.RecurringPatternMonthly)
	seedRecurring(t, mem, 35, "Netflix", "-39.90", model.RecurringPatternMonthly)
	last := seedRecurring(t, mem, 5, "Netflix", "-39.90", model.RecurringPatternMonthly)

	predictions, err := svc.PredictUpcoming(ctx, 60)
	require.NoError(t, err)
	require.Len(t, predictions, 2)

	assert.Equal(t, last.Date.AddDate(0, 0, 30), predictions[0].Date)
	assert.Equal(t, last.Date.AddDate(0, 0, 60), predictions[1].Date)
	for _, p := range predictions {
		assert.Equal(t, "Netflix", p.Description)
		assert.Equal(t, "-39.90", p.Amount.StringFixed(2))
		assert.Equal(t, model.RecurringPatternMonthly, p.Pattern)
	}
}

func TestPredictUpcoming_WeeklyGroupRepeatsWithinHorizon(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	seedRecurring(t, mem, 15, "Cleaning", "-45.00", model.RecurringPatternWeekly)
	seedRecurring(t, mem, 8, "Cleaning", "-45.00", model.RecurringPatternWeekly)
	seedRecurring(t, mem, 1, "Cleaning", "-45.00", model.RecurringPatternWeekly)

	// Next charges land 6, 13, 20 and 27 days out.
	predictions, err := svc.PredictUpcoming(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, predictions, 4)
}

func TestPredictUpcoming_IrregularGroupsAreSkipped(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	seedRecurring(t, mem, 40, "Pharmacy", "-23.00", model.RecurringPatternIrregular)
	seedRecurring(t, mem, 12, "Pharmacy", "-23.00", model.RecurringPatternIrregular)
	seedRecurring(t, mem, 2, "Pharmacy", "-23.00", model.RecurringPatternIrregular)

	predictions, err := svc.PredictUpcoming(ctx, 90)
	require.NoError(t, err)
	assert.Empty(t, predictions)
}

func TestPredictUpcoming_SortedByDateThenDescription(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	seedRecurring(t, mem, 25, "Netflix", "-39.90", model.RecurringPatternMonthly)
	seedRecurring(t, mem, 3, "Cleaning", "-45.00", model.RecurringPatternWeekly)

	predictions, err := svc.PredictUpcoming(ctx, 14)
	require.NoError(t, err)
	require.Len(t, predictions, 3)

	// Weekly hits 3 and 10 days out, monthly 5 days out.
	assert.Equal(t, "Cleaning", predictions[0].Description)
	assert.Equal(t, "Netflix", predictions[1].Description)
	assert.Equal(t, "Cleaning", predictions[2].Description)
	for i := 1; i < len(predictions); i++ {
		assert.False(t, predictions[i].Date.Before(predictions[i-1].Date))
	}
}

func TestPredictUpcoming_DefaultHorizon(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	seedRecurring(t, mem, 10, "Netflix", "-39.90", model.RecurringPatternMonthly)

	// Zero falls back to a 30-day horizon; the next charge is 20 days out.
	predictions, err := svc.PredictUpcoming(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, predictions, 1)
}

func TestPredictUpcoming_NoRecurringRows(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "One-off purchase", "-99.00", "")

	predictions, err := svc.PredictUpcoming(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, predictions)
}
