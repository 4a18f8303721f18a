package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// patternDays maps a cadence to its projection interval in days. Irregular
// groups have no defined interval and are never projected.
var patternDays = map[model.RecurringPattern]int{
	model.RecurringPatternWeekly:    7,
	model.RecurringPatternBiweekly:  14,
	model.RecurringPatternMonthly:   30,
	model.RecurringPatternQuarterly: 90,
}

// PredictUpcoming projects the expected future occurrences of each recurring
// (description, amount) group within the next daysAhead days, starting from
// the group's most recent occurrence.
func (s *FinanceService) PredictUpcoming(ctx context.Context, daysAhead int) ([]*model.PredictedTransaction, error) {
	if daysAhead <= 0 {
		daysAhead = 30
	}
	recurring, err := s.store.ListRecurringTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring transactions: %w", err)
	}

	groups := make(map[groupKey][]*model.Transaction)
	for _, tx := range recurring {
		key := groupKey{
			description: normalizeDescription(tx.Description),
			amount:      tx.Amount.StringFixed(2),
		}
		groups[key] = append(groups[key], tx)
	}

	horizon := model.DateOnly(time.Now().UTC()).AddDate(0, 0, daysAhead)
	var predictions []*model.PredictedTransaction

	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })
		last := group[len(group)-1]

		interval, ok := patternDays[last.RecurringPattern]
		if !ok {
			continue
		}
		for next := last.Date.AddDate(0, 0, interval); !next.After(horizon); next = next.AddDate(0, 0, interval) {
			predictions = append(predictions, &model.PredictedTransaction{
				Date:        next,
				Description: last.Description,
				Amount:      last.Amount,
				Pattern:     last.RecurringPattern,
			})
		}
	}

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Date.Equal(predictions[j].Date) {
			return predictions[i].Description < predictions[j].Description
		}
		return predictions[i].Date.Before(predictions[j].Date)
	})
	return predictions, nil
}
