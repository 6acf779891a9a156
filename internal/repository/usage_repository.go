package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sorapixel/studio/internal/models"
)

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Insert(ctx context.Context, rec *models.UsageRecord) error {
	const query = `
INSERT INTO usage_records (id, account_id, generation_type, input_tokens, output_tokens, total_tokens, model_used, status, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var metadata any
	if len(rec.Metadata) > 0 {
		metadata = string(rec.Metadata)
	}
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.AccountID, string(rec.Kind), rec.InputTokens, rec.OutputTokens,
		rec.TotalTokens, rec.Model, string(rec.Status), metadata); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary aggregates usage per generation kind since the given time.
func (r *UsageRepository) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	const query = `
SELECT generation_type, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
FROM usage_records WHERE created_at >= ?
GROUP BY generation_type ORDER BY generation_type`
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	var out []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		var kind string
		if err := rows.Scan(&kind, &s.Generations, &s.InputTokens, &s.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		s.Kind = models.GenerationKind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}
