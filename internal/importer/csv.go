// Package importer converts uploaded statement files (CSV, PDF) into raw
// sync records. Parsed records flow through the same reconciliation path as
// bank-API batches, so re-importing a file is idempotent.
package importer

import (
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mfcarvalho/financeapp/internal/model"
)

var titleCaser = cases.Title(language.English)

// ParseCSV reads a statement CSV with a header row. Recognized columns (case
// insensitive): date, amount, description, and optionally external_id. When
// no external id column is present, a stable id is derived from the record
// content so duplicate imports de-duplicate.
func ParseCSV(r io.Reader) ([]model.RawTransaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "amount", "description"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	var records []model.RawTransaction
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		record := model.RawTransaction{
			Date:        field(row, cols, "date"),
			Amount:      field(row, cols, "amount"),
			Description: prettyDescription(field(row, cols, "description")),
		}
		if idx, ok := cols["external_id"]; ok && idx < len(row) {
			record.ExternalID = strings.TrimSpace(row[idx])
		}
		if record.ExternalID == "" {
			record.ExternalID = contentID(record)
		}
		records = append(records, record)
	}
	return records, nil
}

func field(row []string, cols map[string]int, name string) string {
	idx := cols[name]
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// contentID derives a stable external id from the record content, keyed so
// that re-importing the same file skips already-seen rows.
func contentID(record model.RawTransaction) string {
	h := sha1.Sum([]byte(record.Date + "|" + record.Amount + "|" + strings.ToLower(record.Description)))
	return "file-" + hex.EncodeToString(h[:])
}

// prettyDescription rewrites shouting bank descriptions ("NETFLIX.COM
// ASSINATURA") into title case; mixed-case input passes through untouched.
func prettyDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc != strings.ToUpper(desc) || desc == "" {
		return desc
	}
	return titleCaser.String(strings.ToLower(desc))
}
