package models

import (
	"strings"
	"time"
)

// HistoryKind identifies the ingestion entry point that produced an entry.
type HistoryKind string

const (
	HistorySingle HistoryKind = "single"
	HistoryRaw    HistoryKind = "raw"
	HistoryBulk   HistoryKind = "bulk"
)

// DefaultHistoryLimit is the retention window for history entries.
const DefaultHistoryLimit = 50

// HistoryEntry records one ingestion invocation. Entries are never mutated.
type HistoryEntry struct {
	ID            string      `json:"id"`
	Kind          HistoryKind `json:"kind"`
	Details       string      `json:"details"`
	PropertyCount int         `json:"property_count"`
	Timestamp     time.Time   `json:"timestamp"`
}

// StorageStats is the size of each stored collection.
type StorageStats struct {
	RecordCount  int `json:"record_count"`
	HistoryCount int `json:"history_count"`
}

// DeleteResult reports the outcome of a bulk delete by id.
type DeleteResult struct {
	DeletedCount  int `json:"deleted_count"`
	NotFoundCount int `json:"not_found_count"`
}

// Filter selects listings. Every field is optional; dates are ISO strings.
type Filter struct {
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Location     string `json:"location,omitempty"`
	MinPrice     *int64 `json:"min_price,omitempty"`
	MaxPrice     *int64 `json:"max_price,omitempty"`
}

// IsEmpty reports whether the filter has no predicates. Blank strings count
// as unset, the same as when the filter is applied.
func (f Filter) IsEmpty() bool {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	return blank(f.StartDate) && blank(f.EndDate) && blank(f.PropertyType) &&
		blank(f.Location) && f.MinPrice == nil && f.MaxPrice == nil
}
