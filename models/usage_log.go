package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// UsageStatus is the outcome of one provider attempt
type UsageStatus string

const (
	UsageStatusSuccess UsageStatus = "success"
	UsageStatusFailure UsageStatus = "failure"
)

// Period key layouts for calendar-day and calendar-month windows.
const (
	DayKeyLayout   = "2006-01-02"
	MonthKeyLayout = "2006-01"
)

// UsageLogEntry is one append-only record of the usage log. Entries are
// written once and never mutated.
type UsageLogEntry struct {
	Timestamp   time.Time              `json:"timestamp" db:"timestamp"`
	Agent       string                 `json:"agent" db:"agent"`
	Provider    string                 `json:"provider" db:"provider"`
	TokensIn    int                    `json:"tokens_in" db:"tokens_in"`
	TokensOut   int                    `json:"tokens_out" db:"tokens_out"`
	TotalTokens int                    `json:"total_tokens" db:"total_tokens"`
	CostUSD     float64                `json:"cost_usd" db:"cost_usd"`
	Status      UsageStatus            `json:"status" db:"status"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// localTimestampLayouts are accepted for timestamps written without a UTC
// offset. Fractional seconds are optional when parsing.
var localTimestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads an RFC 3339 timestamp, falling back to an
// offset-less ISO 8601 timestamp interpreted in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range localTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid usage timestamp %q", s)
}

// UnmarshalJSON decodes an entry, accepting timestamps with or without
// a UTC offset.
func (e *UsageLogEntry) UnmarshalJSON(data []byte) error {
	type plain UsageLogEntry
	aux := struct {
		*plain
		Timestamp string `json:"timestamp"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = ts
	return nil
}

// TableName returns the table name for the UsageLogEntry model
func (UsageLogEntry) TableName() string {
	return "usage_log"
}

// NewUsageLogEntry creates an entry stamped at ts with total tokens derived
// and cost rounded to 4 decimals.
func NewUsageLogEntry(ts time.Time, agent, provider string, tokensIn, tokensOut int, cost float64, status UsageStatus) *UsageLogEntry {
	return &UsageLogEntry{
		Timestamp:   ts,
		Agent:       agent,
		Provider:    provider,
		TokensIn:    tokensIn,
		TokensOut:   tokensOut,
		TotalTokens: tokensIn + tokensOut,
		CostUSD:     Round(cost, 4),
		Status:      status,
	}
}

// WithMetadata attaches metadata; empty maps are dropped.
func (e *UsageLogEntry) WithMetadata(metadata map[string]interface{}) *UsageLogEntry {
	if len(metadata) > 0 {
		e.Metadata = metadata
	}
	return e
}

// IsSuccess reports whether the attempt succeeded
func (e *UsageLogEntry) IsSuccess() bool {
	return e.Status == UsageStatusSuccess
}

// DayKey returns the local calendar date of the entry
func (e *UsageLogEntry) DayKey(loc *time.Location) string {
	return e.Timestamp.In(loc).Format(DayKeyLayout)
}

// MonthKey returns the local calendar month of the entry
func (e *UsageLogEntry) MonthKey(loc *time.Location) string {
	return e.Timestamp.In(loc).Format(MonthKeyLayout)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
