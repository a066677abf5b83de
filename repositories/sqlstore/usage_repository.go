package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/upb/agency-llm-client/models"
)

// UsageRepository stores usage log entries in the usage_log table
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new UsageRepository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Append inserts one entry
func (r *UsageRepository) Append(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry == nil {
		return errors.New("usage entry cannot be nil")
	}

	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal usage metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO usage_log
		(timestamp, agent, provider, tokens_in, tokens_out, total_tokens, cost_usd, status, metadata)
		VALUES (` + r.db.placeholders(9) + `)`

	_, err := r.db.ExecContext(ctx, query,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Agent,
		entry.Provider,
		entry.TokensIn,
		entry.TokensOut,
		entry.TotalTokens,
		entry.CostUSD,
		string(entry.Status),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage entry: %w", err)
	}
	return nil
}

// List returns every entry ordered by insertion
func (r *UsageRepository) List(ctx context.Context) ([]*models.UsageLogEntry, error) {
	query := `
		SELECT timestamp, agent, provider, tokens_in, tokens_out, total_tokens, cost_usd, status, metadata
		FROM usage_log
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage log: %w", err)
	}
	defer rows.Close()

	entries := []*models.UsageLogEntry{}
	for rows.Next() {
		var (
			entry    models.UsageLogEntry
			ts       string
			status   string
			metadata sql.NullString
		)
		if err := rows.Scan(&ts, &entry.Agent, &entry.Provider, &entry.TokensIn, &entry.TokensOut,
			&entry.TotalTokens, &entry.CostUSD, &status, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan usage entry: %w", err)
		}

		entry.Timestamp, err = models.ParseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		entry.Status = models.UsageStatus(status)

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("invalid usage metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage log: %w", err)
	}

	return entries, nil
}

// Close closes the underlying pool
func (r *UsageRepository) Close() error {
	return r.db.Close()
}
