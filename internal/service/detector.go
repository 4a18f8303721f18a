package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// groupKey identifies one candidate recurrence group: exact equality on the
// normalized description and the signed amount.
type groupKey struct {
	description string
	amount      string
}

// DetectRecurring scans unclassified transactions for regular cadences and
// tags qualifying ones with is_recurring plus the pattern of their own gap to
// the previous occurrence. Returns the number of transactions newly marked.
//
// The job is idempotent: rows already classified are excluded from the
// candidate set, so a pattern, once assigned, is stable across runs. Prior
// recurring rows of the same (description, amount) group still participate as
// anchors so that new occurrences extend existing patterns.
func (s *FinanceService) DetectRecurring(ctx context.Context) (int, error) {
	candidates, err := s.store.ListNonRecurringTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list candidate transactions: %w", err)
	}
	prior, err := s.store.ListRecurringTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring transactions: %w", err)
	}

	groups := make(map[groupKey][]*model.Transaction)
	for _, tx := range append(prior, candidates...) {
		key := groupKey{
			description: normalizeDescription(tx.Description),
			amount:      tx.Amount.StringFixed(2),
		}
		groups[key] = append(groups[key], tx)
	}

	var updated []*model.Transaction
	for _, group := range groups {
		if len(group) < 3 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].Date.Equal(group[j].Date) {
				return group[i].ID < group[j].ID
			}
			return group[i].Date.Before(group[j].Date)
		})

		// The first occurrence has no prior gap and is never reclassified.
		for i := 1; i < len(group); i++ {
			tx := group[i]
			if tx.IsRecurring {
				continue
			}
			gap := daysBetween(group[i-1].Date, tx.Date)
			tx.IsRecurring = true
			tx.RecurringPattern = ClassifyGap(gap)
			tx.UpdatedAt = time.Now().UTC()
			updated = append(updated, tx)
		}
	}

	if err := s.store.BulkUpdateTransactions(ctx, updated); err != nil {
		return 0, fmt.Errorf("failed to mark recurring transactions: %w", err)
	}

	s.log.Info().
		Int("candidates", len(candidates)).
		Int("marked", len(updated)).
		Msg("recurring detection completed")
	return len(updated), nil
}

// ClassifyGap maps a gap in days to a cadence, inclusive on both bounds.
// Gaps outside every band classify as irregular. Classification is per pair
// of consecutive occurrences, so a group spanning mixed gaps carries mixed
// patterns across its members.
func ClassifyGap(days int) model.RecurringPattern {
	switch {
	case days >= 6 && days <= 8:
		return model.RecurringPatternWeekly
	case days >= 13 && days <= 16:
		return model.RecurringPatternBiweekly
	case days >= 28 && days <= 32:
		return model.RecurringPatternMonthly
	case days >= 89 && days <= 93:
		return model.RecurringPatternQuarterly
	default:
		return model.RecurringPatternIrregular
	}
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}
