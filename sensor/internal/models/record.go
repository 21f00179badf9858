package models

import "time"

// SensorRecord is the canonical, persisted proximity observation.
// Records are created once by the ingestion pipeline and never mutated.
type SensorRecord struct {
	// ID is assigned by the store on insert. Zero until persisted.
	ID            int64     `json:"id"`
	SensorID      int64     `json:"sensor_id"`
	HumanPresence bool      `json:"human_presence"`
	DwellTime     float64   `json:"dwell_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// Less reports whether r sorts before o in the default retrieval order:
// most recent timestamp first, newest insertion first on ties.
func (r *SensorRecord) Less(o *SensorRecord) bool {
	if !r.Timestamp.Equal(o.Timestamp) {
		return r.Timestamp.After(o.Timestamp)
	}
	return r.ID > o.ID
}
