package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSensorRecord_Less(t *testing.T) {
	t0 := time.Date(2022, 11, 8, 4, 0, 4, 317801000, time.UTC)
	older := &SensorRecord{ID: 9, Timestamp: t0}
	newer := &SensorRecord{ID: 1, Timestamp: t0.Add(time.Second)}
	tie := &SensorRecord{ID: 10, Timestamp: t0}

	assert.True(t, newer.Less(older), "more recent timestamp sorts first")
	assert.False(t, older.Less(newer))
	assert.True(t, tie.Less(older), "higher id wins a timestamp tie")
	assert.False(t, older.Less(tie))
}

func TestTimeRange_ContainsIsInclusive(t *testing.T) {
	start := time.Date(2022, 11, 8, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tr := TimeRange{Start: start, End: end}

	assert.True(t, tr.Contains(start))
	assert.True(t, tr.Contains(end))
	assert.True(t, tr.Contains(start.Add(time.Minute)))
	assert.False(t, tr.Contains(start.Add(-time.Nanosecond)))
	assert.False(t, tr.Contains(end.Add(time.Nanosecond)))
}

func TestRecordFilter_Matches(t *testing.T) {
	ts := time.Date(2022, 11, 8, 4, 0, 0, 0, time.UTC)
	rec := &SensorRecord{SensorID: 100013, Timestamp: ts}
	sensor := int64(100013)
	other := int64(7)

	assert.True(t, RecordFilter{}.Matches(rec))
	assert.True(t, RecordFilter{SensorID: &sensor}.Matches(rec))
	assert.False(t, RecordFilter{SensorID: &other}.Matches(rec))
	assert.True(t, RecordFilter{TimeRange: &TimeRange{Start: ts, End: ts}}.Matches(rec))
	assert.False(t, RecordFilter{
		SensorID:  &sensor,
		TimeRange: &TimeRange{Start: ts.Add(time.Second), End: ts.Add(time.Hour)},
	}.Matches(rec))
}

func TestPushMessage_ID(t *testing.T) {
	var nilMsg *PushMessage
	assert.Equal(t, "", nilMsg.ID())
	assert.Equal(t, "a", (&PushMessage{MessageID: "a", MessageIDAlt: "b"}).ID())
	assert.Equal(t, "b", (&PushMessage{MessageIDAlt: "b"}).ID())
}
