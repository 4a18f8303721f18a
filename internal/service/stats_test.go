package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeCategoryStats_CountTotalAvgLastDate(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "Supermarket", "-50.00", "cat-1")
	seedTransaction(t, mem, "2024-01-12", "Supermarket", "-30.50", "cat-1")
	seedTransaction(t, mem, "2024-01-03", "Bakery", "-9.49", "cat-1")

	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))

	cat, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Stats.TransactionCount)
	assert.Equal(t, "-89.99", cat.Stats.TotalAmount.StringFixed(2))
	assert.Equal(t, "-30.00", cat.Stats.AvgAmount.StringFixed(2))
	assert.Equal(t, "2024-01-12", cat.Stats.LastTransactionDate.Format("2006-01-02"))
}

func TestRecomputeCategoryStats_EmptyCategoryIsZeroed(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	ctx := context.Background()

	// Pretend stale stats survived a bulk edit.
	cat, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	cat.Stats.TransactionCount = 7
	cat.Stats.TotalAmount = decimal.NewFromInt(-123)
	require.NoError(t, mem.UpdateCategory(ctx, cat))

	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))

	cat, err = mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Stats.TransactionCount)
	assert.True(t, cat.Stats.TotalAmount.IsZero())
	assert.True(t, cat.Stats.AvgAmount.IsZero())
	assert.True(t, cat.Stats.LastTransactionDate.IsZero())
}

func TestRecomputeCategoryStats_RepeatedRunsAreStable(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "Supermarket", "-50.00", "cat-1")
	seedTransaction(t, mem, "2024-01-12", "Supermarket", "-30.00", "cat-1")
	seedTransaction(t, mem, "2024-01-19", "Supermarket", "-20.00", "cat-1")

	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))
	first, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)

	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))
	second, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)

	assert.Equal(t, first.Stats.TransactionCount, second.Stats.TransactionCount)
	assert.True(t, first.Stats.TotalAmount.Equal(second.Stats.TotalAmount))
	assert.True(t, first.Stats.AvgAmount.Equal(second.Stats.AvgAmount))
	assert.Equal(t, first.Stats.LastTransactionDate, second.Stats.LastTransactionDate)
}

func TestDeleteTransaction_RecomputesFromRemainingRows(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "Supermarket", "-50.00", "cat-1")
	victim := seedTransaction(t, mem, "2024-01-19", "Supermarket", "-20.00", "cat-1")
	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))

	require.NoError(t, svc.DeleteTransaction(ctx, victim.ID))

	cat, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Stats.TransactionCount)
	assert.Equal(t, "-50.00", cat.Stats.TotalAmount.StringFixed(2))
	assert.Equal(t, "2024-01-05", cat.Stats.LastTransactionDate.Format("2006-01-02"))
}

func TestAssignCategory_RecomputesBothCategories(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	seedCategory(t, mem, "cat-2", "Dining")
	ctx := context.Background()

	tx := seedTransaction(t, mem, "2024-01-05", "Corner cafe", "-18.00", "cat-1")
	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))

	_, err := svc.AssignCategory(ctx, tx.ID, "cat-2")
	require.NoError(t, err)

	from, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 0, from.Stats.TransactionCount)
	assert.True(t, from.Stats.TotalAmount.IsZero())

	to, err := mem.GetCategory(ctx, "cat-2")
	require.NoError(t, err)
	assert.Equal(t, 1, to.Stats.TransactionCount)
	assert.Equal(t, "-18.00", to.Stats.TotalAmount.StringFixed(2))
}

func TestRecomputeCategoryStats_AverageRoundsToCents(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Fees")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-01", "Fee", "-10.00", "cat-1")
	seedTransaction(t, mem, "2024-01-02", "Fee", "-0.01", "cat-1")

	require.NoError(t, svc.RecomputeCategoryStats(ctx, "cat-1"))

	cat, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, "-10.01", cat.Stats.TotalAmount.StringFixed(2))
	assert.Equal(t, "-5.01", cat.Stats.AvgAmount.StringFixed(2))
}

func TestRecomputeAllCategoryStats(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	seedCategory(t, mem, "cat-2", "Dining")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "Supermarket", "-50.00", "cat-1")
	seedTransaction(t, mem, "2024-01-06", "Corner cafe", "-18.00", "cat-2")
	seedTransaction(t, mem, "2024-01-07", "Corner cafe", "-18.00", "cat-2")

	require.NoError(t, svc.RecomputeAllCategoryStats(ctx))

	groceries, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 1, groceries.Stats.TransactionCount)

	dining, err := mem.GetCategory(ctx, "cat-2")
	require.NoError(t, err)
	assert.Equal(t, 2, dining.Stats.TransactionCount)
	assert.Equal(t, "-36.00", dining.Stats.TotalAmount.StringFixed(2))
}

func TestRecomputeCategoryStats_ConcurrentRunsStaySane(t *testing.T) {
	svc, mem := newTestService(t)
	seedCategory(t, mem, "cat-1", "Groceries")
	seedCategory(t, mem, "cat-2", "Dining")
	ctx := context.Background()

	seedTransaction(t, mem, "2024-01-05", "Supermarket", "-50.00", "cat-1")
	seedTransaction(t, mem, "2024-01-06", "Corner cafe", "-18.00", "cat-2")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, id := range []string{"cat-1", "cat-2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				assert.NoError(t, svc.RecomputeCategoryStats(ctx, id))
			}(id)
		}
	}
	wg.Wait()

	groceries, err := mem.GetCategory(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 1, groceries.Stats.TransactionCount)
	assert.Equal(t, "-50.00", groceries.Stats.TotalAmount.StringFixed(2))

	dining, err := mem.GetCategory(ctx, "cat-2")
	require.NoError(t, err)
	assert.Equal(t, 1, dining.Stats.TransactionCount)
	assert.Equal(t, "-18.00", dining.Stats.TotalAmount.StringFixed(2))
}

func TestRecomputeCategoryStats_UnknownCategory(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.RecomputeCategoryStats(context.Background(), "missing")
	assert.Error(t, err)
}
