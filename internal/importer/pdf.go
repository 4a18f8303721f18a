package importer

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mfcarvalho/financeapp/internal/model"
)

// statementLineRe matches one statement line: date ... description ... amount.
// Groups: (1) date, (2) description, (3) signed amount.
var statementLineRe = regexp.MustCompile(
	`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-]\d{2}[/\-]\d{2})` +
		`\s+(.+?)\s+` +
		`(-?\$?\d{1,3}(?:,\d{3})*\.\d{2})\s*(?:CR|DR)?$`,
)

// ParsePDF extracts transaction lines from a text-based statement PDF.
// Scanned (image-only) statements yield no rows and are reported as an error.
func ParsePDF(data []byte) ([]model.RawTransaction, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}

	records := parseStatementText(text.String())
	if len(records) == 0 {
		return nil, fmt.Errorf("no transaction lines found; statement may be scanned")
	}
	return records, nil
}

func parseStatementText(text string) []model.RawTransaction {
	var records []model.RawTransaction
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		matches := statementLineRe.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		amount := strings.NewReplacer("$", "", ",", "").Replace(matches[3])
		if strings.HasSuffix(line, "DR") && !strings.HasPrefix(amount, "-") {
			amount = "-" + amount
		}

		record := model.RawTransaction{
			Date:        matches[1],
			Amount:      amount,
			Description: prettyDescription(matches[2]),
		}
		record.ExternalID = contentID(record)
		records = append(records, record)
	}
	return records
}
