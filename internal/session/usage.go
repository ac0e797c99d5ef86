package session

import (
	"context"
	"fmt"
	"time"
)

// Usage captures the backend-reported cost of one completed response.
type Usage struct {
	OwnerID      int64
	SessionName  string
	Model        string
	PromptTokens int
	EvalTokens   int
	Duration     time.Duration
	CreatedAt    time.Time
}

// UsageRow is a per-model aggregate over a time window.
type UsageRow struct {
	Model        string
	Responses    int
	PromptTokens int
	EvalTokens   int
	Duration     time.Duration
}

// RecordUsage appends one usage row. Temporary sessions record under
// their Temp-<channel> name.
func (s *Store) RecordUsage(ctx context.Context, u Usage) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_stats (owner_id, session_name, model, prompt_tokens, eval_tokens, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.OwnerID, u.SessionName, u.Model, u.PromptTokens, u.EvalTokens,
		u.Duration.Milliseconds(), u.CreatedAt.UTC().Format(TimestampLayout))
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// UsageSummary aggregates usage per model for rows recorded at or after
// since, busiest model first.
func (s *Store) UsageSummary(ctx context.Context, since time.Time) ([]UsageRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, COUNT(*), SUM(prompt_tokens), SUM(eval_tokens), SUM(duration_ms)
		FROM usage_stats
		WHERE created_at >= ?
		GROUP BY model
		ORDER BY SUM(prompt_tokens) + SUM(eval_tokens) DESC`,
		since.UTC().Format(TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var summary []UsageRow
	for rows.Next() {
		var r UsageRow
		var durationMs int64
		if err := rows.Scan(&r.Model, &r.Responses, &r.PromptTokens, &r.EvalTokens, &durationMs); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
