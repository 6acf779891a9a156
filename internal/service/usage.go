package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/models"
)

type UsageEntry struct {
	AccountID string
	Kind      models.GenerationKind
	Model     string
	Usage     gemini.Usage
	Status    models.UsageStatus
	Metadata  map[string]any
}

type UsageStore interface {
	Insert(ctx context.Context, rec *models.UsageRecord) error
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
}

// UsageTracker writes one audit row per completed generation.
type UsageTracker struct {
	store UsageStore
}

func NewUsageTracker(store UsageStore) *UsageTracker {
	return &UsageTracker{store: store}
}

func (t *UsageTracker) Record(ctx context.Context, e UsageEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal usage metadata: %w", err)
	}
	total := e.Usage.TotalTokens
	if total == 0 {
		total = e.Usage.InputTokens + e.Usage.OutputTokens
	}
	rec := &models.UsageRecord{
		ID:           uuid.NewString(),
		AccountID:    e.AccountID,
		Kind:         e.Kind,
		InputTokens:  e.Usage.InputTokens,
		OutputTokens: e.Usage.OutputTokens,
		TotalTokens:  total,
		Model:        e.Model,
		Status:       e.Status,
		Metadata:     meta,
	}
	if err := t.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (t *UsageTracker) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	return t.store.Summary(ctx, since)
}
