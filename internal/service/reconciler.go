package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/store"
)

// rawDateFormats are the layouts accepted for dates in raw sync records.
// Bank exports disagree on this; ISO is tried first.
var rawDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

// SyncBatch reconciles one batch of externally fetched transactions into the
// store. The run is idempotent: records whose (connection id, external id)
// key already exists are skipped untouched, preserving any category or
// recurring flags assigned since the original import. Malformed records are
// reported in the result and never abort the batch; each insert is atomic, so
// a cancelled run leaves a well-defined committed prefix.
func (s *FinanceService) SyncBatch(ctx context.Context, connectionID string, batch []model.RawTransaction) (*model.SyncResult, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("connection id is required")
	}
	conn, err := s.store.GetBankConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bank connection %s: %w", connectionID, err)
	}

	result := &model.SyncResult{}
	var inserted []*model.Transaction

	for _, raw := range batch {
		// Cooperative cancellation between records; inserts already
		// committed stay committed.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tx, reason := s.buildTransaction(conn, raw)
		if reason != "" {
			result.Failed++
			result.Failures = append(result.Failures, model.SyncFailure{
				ExternalID: raw.ExternalID,
				Reason:     reason,
			})
			continue
		}

		_, err := s.store.GetTransactionByExternal(ctx, tx.External)
		if err == nil {
			// Idempotent re-sync: existing row wins, flags preserved.
			result.Skipped++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return result, fmt.Errorf("failed to look up external reference: %w", err)
		}

		if err := s.store.CreateTransaction(ctx, tx); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Lost a race with a concurrent run carrying the same id;
				// same outcome as the lookup hit.
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to insert transaction %s: %w", raw.ExternalID, err)
		}
		result.Inserted++
		inserted = append(inserted, tx)
	}

	s.indexTransactions(ctx, inserted...)

	s.log.Info().
		Str("connection_id", connectionID).
		Str("bank_id", conn.BankID).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("sync batch reconciled")
	return result, nil
}

// buildTransaction validates one raw record and shapes it into a new
// transaction. Returns a non-empty reason when the record is malformed.
func (s *FinanceService) buildTransaction(conn *model.BankConnection, raw model.RawTransaction) (*model.Transaction, string) {
	if strings.TrimSpace(raw.ExternalID) == "" {
		return nil, "missing external id"
	}
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return nil, "missing description"
	}

	date, err := parseRawDate(raw.Date)
	if err != nil {
		return nil, fmt.Sprintf("malformed date %q", raw.Date)
	}
	amount, err := parseRawAmount(raw.Amount)
	if err != nil {
		return nil, fmt.Sprintf("malformed amount %q", raw.Amount)
	}

	now := time.Now().UTC()
	return &model.Transaction{
		ID:          uuid.New().String(),
		Date:        date,
		Amount:      amount,
		Description: description,
		Type:        model.TypeForAmount(amount),
		IsRecurring: false,
		External: model.ExternalRef{
			ConnectionID: conn.ID,
			ExternalID:   strings.TrimSpace(raw.ExternalID),
		},
		ImportSource: model.ImportSourceAPI,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, ""
}

func parseRawDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range rawDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return model.DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

func parseRawAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(2), nil
}
