// Package export writes point-in-time JSON snapshots of the ledger to Cloud
// Storage. Snapshots replace the ad hoc database dump scripts of earlier
// deployments with a structured, restorable format.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/mfcarvalho/financeapp/internal/model"
	st "github.com/mfcarvalho/financeapp/internal/store"
)

// Snapshot is the serialized form of one backup.
type Snapshot struct {
	TakenAt      time.Time            `json:"taken_at"`
	Transactions []*model.Transaction `json:"transactions"`
	Categories   []*model.Category    `json:"categories"`
}

// Service exports snapshots to a GCS bucket.
type Service struct {
	store  st.Store
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewService creates an export service writing to the given bucket.
func NewService(store st.Store, client *storage.Client, bucket string, log zerolog.Logger) *Service {
	return &Service{store: store, client: client, bucket: bucket, log: log}
}

// Export writes a full snapshot object named snapshots/<RFC3339 timestamp>.json
// and returns the object name.
func (s *Service) Export(ctx context.Context) (string, error) {
	snapshot := Snapshot{TakenAt: time.Now().UTC()}

	pageToken := ""
	for {
		txs, next, err := s.store.ListTransactions(ctx, 1000, pageToken)
		if err != nil {
			return "", fmt.Errorf("failed to list transactions: %w", err)
		}
		snapshot.Transactions = append(snapshot.Transactions, txs...)
		if next == "" {
			break
		}
		pageToken = next
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list categories: %w", err)
	}
	snapshot.Categories = categories

	name := fmt.Sprintf("snapshots/%s.json", snapshot.TakenAt.Format(time.RFC3339))
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.log.Info().
		Str("object", name).
		Int("transactions", len(snapshot.Transactions)).
		Int("categories", len(snapshot.Categories)).
		Msg("snapshot exported")
	return name, nil
}
