package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RecomputeCategoryStats rebuilds the denormalized statistics of one category
// from scratch over the transactions referencing it. The recompute is a pure
// function of the current transaction table, so repeated runs with no
// intervening writes yield identical statistics. Runs for the same category
// id are serialized; different ids proceed independently.
func (s *FinanceService) RecomputeCategoryStats(ctx context.Context, categoryID string) error {
	if categoryID == "" {
		return fmt.Errorf("category id is required")
	}

	lock := s.categoryLock(categoryID)
	lock.Lock()
	defer lock.Unlock()

	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("failed to load category %s: %w", categoryID, err)
	}
	txs, err := s.store.ListTransactionsByCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("failed to list transactions for category %s: %w", categoryID, err)
	}

	total := decimal.Zero
	var lastDate time.Time
	for _, tx := range txs {
		total = total.Add(tx.Amount)
		if tx.Date.After(lastDate) {
			lastDate = tx.Date
		}
	}

	category.Stats.TransactionCount = len(txs)
	category.Stats.TotalAmount = total
	if len(txs) > 0 {
		category.Stats.AvgAmount = total.Div(decimal.NewFromInt(int64(len(txs)))).Round(2)
	} else {
		category.Stats.AvgAmount = decimal.Zero
	}
	category.Stats.LastTransactionDate = lastDate
	category.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateCategory(ctx, category); err != nil {
		return fmt.Errorf("failed to write category stats %s: %w", categoryID, err)
	}
	return nil
}

// RecomputeAllCategoryStats rebuilds statistics for every category. Used to
// repair the cache after bulk or manual data edits.
func (s *FinanceService) RecomputeAllCategoryStats(ctx context.Context) error {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.RecomputeCategoryStats(ctx, cat.ID); err != nil {
			return err
		}
	}
	s.log.Info().Int("categories", len(categories)).Msg("category stats recomputed")
	return nil
}

func (s *FinanceService) categoryLock(categoryID string) *sync.Mutex {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	lock, ok := s.statsLocks[categoryID]
	if !ok {
		lock = &sync.Mutex{}
		s.statsLocks[categoryID] = lock
	}
	return lock
}
