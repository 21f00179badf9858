package models

import "time"

// TimeRange is an inclusive [Start, End] bound on record timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the inclusive range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// RecordFilter selects records from a store. Nil fields do not filter.
type RecordFilter struct {
	// SensorID restricts results to a single sensor (exact match).
	SensorID *int64

	// TimeRange restricts results to timestamps within the inclusive range.
	// Only set when both bounds were supplied.
	TimeRange *TimeRange
}

// Matches reports whether rec passes every set filter.
func (f RecordFilter) Matches(rec *SensorRecord) bool {
	if f.SensorID != nil && rec.SensorID != *f.SensorID {
		return false
	}
	if f.TimeRange != nil && !f.TimeRange.Contains(rec.Timestamp) {
		return false
	}
	return true
}

// QueryFilter is a fully parsed query request.
type QueryFilter struct {
	RecordFilter

	// Page is the 1-indexed page to return.
	Page int

	// PageSize is the number of records per page.
	PageSize int
}

// Page is one fixed-size slice of a filtered, ordered result set.
type Page struct {
	Records     []*SensorRecord `json:"data"`
	Page        int             `json:"page"`
	PageSize    int             `json:"page_size"`
	Total       int             `json:"total"`
	NumPages    int             `json:"num_pages"`
	HasNext     bool            `json:"has_next"`
	HasPrevious bool            `json:"has_previous"`
}
