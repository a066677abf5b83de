package repositories

import (
	"context"

	"github.com/upb/agency-llm-client/models"
)

// UsageRepository persists the append-only usage log.
//
// Append must be atomic with respect to concurrent callers, in this process
// and in others sharing the same backing store: N concurrent appends leave
// exactly N new entries.
type UsageRepository interface {
	// Append adds one entry to the end of the log
	Append(ctx context.Context, entry *models.UsageLogEntry) error

	// List returns every entry in append order
	List(ctx context.Context) ([]*models.UsageLogEntry, error)

	// Close releases the underlying resources
	Close() error
}
