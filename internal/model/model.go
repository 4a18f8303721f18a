// Package model defines the domain types shared by the store, service and
// import layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

// RecurringPattern is the classified cadence of a recurring transaction.
type RecurringPattern string

const (
	RecurringPatternNone      RecurringPattern = ""
	RecurringPatternWeekly    RecurringPattern = "weekly"
	RecurringPatternBiweekly  RecurringPattern = "biweekly"
	RecurringPatternMonthly   RecurringPattern = "monthly"
	RecurringPatternQuarterly RecurringPattern = "quarterly"
	RecurringPatternIrregular RecurringPattern = "irregular"
)

// ImportSource records how a transaction entered the system.
type ImportSource string

const (
	ImportSourceManual ImportSource = "manual"
	ImportSourceCSV    ImportSource = "csv"
	ImportSourcePDF    ImportSource = "pdf"
	ImportSourceAPI    ImportSource = "api"
)

// ExternalRef identifies a transaction at its originating bank. The
// (ConnectionID, ExternalID) pair is the de-duplication key for sync.
type ExternalRef struct {
	ConnectionID string `json:"connection_id"`
	ExternalID   string `json:"external_id"`
}

// IsZero reports whether no external reference is set.
func (r ExternalRef) IsZero() bool {
	return r.ConnectionID == "" && r.ExternalID == ""
}

// Transaction is a single financial transaction. Amount is a fixed-point
// decimal with two places: positive amounts are credits, negative are debits.
// RecurringPattern is non-empty iff IsRecurring is true.
type Transaction struct {
	ID               string           `json:"id"`
	Date             time.Time        `json:"date"` // calendar date, UTC midnight
	Amount           decimal.Decimal  `json:"amount"`
	Description      string           `json:"description"`
	CategoryID       string           `json:"category_id,omitempty"`
	Type             TransactionType  `json:"type"`
	IsRecurring      bool             `json:"is_recurring"`
	RecurringPattern RecurringPattern `json:"recurring_pattern,omitempty"`
	External         ExternalRef      `json:"external,omitempty"`
	ImportSource     ImportSource     `json:"import_source,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TypeForAmount derives the transaction type from the sign of the amount.
// Transfers cannot be inferred from the amount alone and are never returned.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.Sign() >= 0 {
		return TransactionTypeIncome
	}
	return TransactionTypeExpense
}

// CategoryStats is the denormalized rollup cached on a category. It is always
// recomputable from scratch over the transactions referencing the category.
type CategoryStats struct {
	TransactionCount    int             `json:"transaction_count"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	AvgAmount           decimal.Decimal `json:"avg_amount"`
	LastTransactionDate time.Time       `json:"last_transaction_date,omitempty"`
}

// Category groups transactions. ParentID supports one level of hierarchy.
type Category struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	ParentID  string          `json:"parent_id,omitempty"`
	Stats     CategoryStats   `json:"stats"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BankConnection is the read-only context for one configured bank sync. The
// core consumes it for reconciliation; credentials live with the external
// integration and are referenced, never stored here.
type BankConnection struct {
	ID            string `json:"id"`
	BankID        string `json:"bank_id"`
	CredentialRef string `json:"credential_ref,omitempty"`
	Sandbox       bool   `json:"sandbox"`
	SyncFrequency string `json:"sync_frequency,omitempty"`
	LookbackDays  int    `json:"lookback_days"`
}

// RawTransaction is one externally fetched record in a sync batch, carried
// as supplied by the source so that validation failures can be reported
// verbatim.
type RawTransaction struct {
	ExternalID  string `json:"external_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// SyncFailure reports a single raw record that could not be reconciled.
type SyncFailure struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Failures []SyncFailure `json:"failures,omitempty"`
}

// PredictedTransaction is a projected future occurrence of a recurring group.
type PredictedTransaction struct {
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Pattern     RecurringPattern `json:"pattern"`
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
