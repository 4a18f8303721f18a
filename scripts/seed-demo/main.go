// seed-demo loads a small demo dataset into a locally running server: a few
// categories, one synced bank batch with a recurring subscription, and a
// detection pass so the dashboard has something to show.
//
// Usage:
//
//	USE_MEMORY_STORE=true go run ./cmd/server &
//	go run ./scripts/seed-demo
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
)

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8111"
	}

	log.Printf("Seeding demo data against %s", apiURL)
	log.Println("The server must be running with USE_MEMORY_STORE=true or SKIP_AUTH=true")

	categories := []map[string]string{
		{"name": "Streaming", "type": "expense"},
		{"name": "Groceries", "type": "expense"},
		{"name": "Salary", "type": "income"},
	}
	for _, cat := range categories {
		if err := post(apiURL+"/v1/categories", cat); err != nil {
			log.Fatalf("Failed to create category %s: %v", cat["name"], err)
		}
	}
	log.Printf("Created %d categories", len(categories))

	// Three months of a subscription plus some one-off spending, delivered
	// through the file-import connection seeded by the server.
	batch := map[string]any{
		"connection_id": "file-import",
		"transactions": []map[string]string{
			{"external_id": "demo-001", "date": "2024-01-05", "amount": "-39.90", "description": "Netflix"},
			{"external_id": "demo-002", "date": "2024-02-05", "amount": "-39.90", "description": "Netflix"},
			{"external_id": "demo-003", "date": "2024-03-05", "amount": "-39.90", "description": "Netflix"},
			{"external_id": "demo-004", "date": "2024-01-12", "amount": "-86.30", "description": "Supermarket"},
			{"external_id": "demo-005", "date": "2024-02-18", "amount": "-54.75", "description": "Supermarket"},
			{"external_id": "demo-006", "date": "2024-01-31", "amount": "4200.00", "description": "Salary ACME Corp"},
			{"external_id": "demo-007", "date": "2024-02-29", "amount": "4200.00", "description": "Salary ACME Corp"},
		},
	}
	if err := post(apiURL+"/v1/sync", batch); err != nil {
		log.Fatalf("Failed to sync demo batch: %v", err)
	}
	log.Println("Synced demo transaction batch")

	if err := post(apiURL+"/v1/detect-recurring", nil); err != nil {
		log.Fatalf("Failed to run recurring detection: %v", err)
	}
	log.Println("Recurring detection completed")

	log.Println("Done. Try GET /v1/predictions?days=60")
}

func post(url string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
