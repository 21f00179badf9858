package pipeline

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

func envelopeFor(reading string) *models.RawEnvelope {
	data := base64.StdEncoding.EncodeToString([]byte(reading))
	return &models.RawEnvelope{Message: &models.PushMessage{Data: &data}}
}

func rawEnvelope(data string) *models.RawEnvelope {
	return &models.RawEnvelope{Message: &models.PushMessage{Data: &data}}
}

func TestDecode_ValidReading(t *testing.T) {
	env := envelopeFor(`{"v0": 100013, "v11": 0, "v18": 2.72, "Time": "2022-11-08T04:00:04.317801"}`)

	record, err := Decode(env)
	require.NoError(t, err)

	assert.Equal(t, int64(100013), record.SensorID)
	assert.False(t, record.HumanPresence)
	assert.InDelta(t, 2.72, record.DwellTime, 1e-9)
	assert.True(t, record.Timestamp.Equal(time.Date(2022, 11, 8, 4, 0, 4, 317801000, time.UTC)))
	assert.Zero(t, record.ID)
}

func TestDecode_TimezoneOffsets(t *testing.T) {
	want := time.Date(2022, 11, 8, 2, 0, 4, 0, time.UTC)
	tests := map[string]time.Time{
		"2022-11-08T04:00:04+02:00":       want,
		"2022-11-08T04:00:04+0200":        want,
		"2022-11-08T04:00:04+02":          want,
		"2022-11-08 04:00:04+0200":        want,
		"2022-11-08 04:00:04-02":          want.Add(4 * time.Hour),
		"2022-11-08T04:00:04.317801+02":   want.Add(317801 * time.Microsecond),
		"2022-11-08T04:00:04.317801-0130": time.Date(2022, 11, 8, 5, 30, 4, 317801000, time.UTC),
		"2022-11-08T04:00:04.317801Z":     time.Date(2022, 11, 8, 4, 0, 4, 317801000, time.UTC),
	}
	for ts, expected := range tests {
		t.Run(ts, func(t *testing.T) {
			record, err := Decode(envelopeFor(`{"v0": 1, "v11": 0, "v18": 1, "Time": "` + ts + `"}`))
			require.NoError(t, err)
			assert.True(t, record.Timestamp.Equal(expected), "got %s", record.Timestamp)
			assert.Equal(t, time.UTC, record.Timestamp.Location())
		})
	}
}

func TestDecode_DuplicateKeysLastWins(t *testing.T) {
	env := envelopeFor(`{"v0": 1, "v0": 2, "v11": 0, "v11": 1, "v18": 1, "Time": "2022-11-08", "Time": "2022-11-09T00:00:00Z"}`)

	record, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.SensorID)
	assert.True(t, record.HumanPresence)
	assert.True(t, record.Timestamp.Equal(time.Date(2022, 11, 9, 0, 0, 0, 0, time.UTC)))
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	env := envelopeFor(`{"v0": 7, "v11": true, "v18": 1, "Time": "2022-11-08T04:00:04Z", "v3": "extra", "nested": {"a": 1}}`)

	record, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, int64(7), record.SensorID)
	assert.True(t, record.HumanPresence)
}

func TestDecode_ErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		env   *models.RawEnvelope
		kind  sensorerr.Kind
		field string
	}{
		{name: "nil envelope", env: nil, kind: sensorerr.KindMalformedEnvelope, field: "message"},
		{name: "missing message", env: &models.RawEnvelope{}, kind: sensorerr.KindMalformedEnvelope, field: "message"},
		{name: "missing data", env: &models.RawEnvelope{Message: &models.PushMessage{}}, kind: sensorerr.KindMalformedEnvelope},
		{name: "invalid base64", env: rawEnvelope("invalid_base64"), kind: sensorerr.KindDecode},
		{name: "truncated base64", env: rawEnvelope("eyJ2MCI6"[:7]), kind: sensorerr.KindDecode},
		{name: "not utf8", env: rawEnvelope(base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})), kind: sensorerr.KindDecode},
		{name: "invalid json", env: envelopeFor(`{"v0": 1,`), kind: sensorerr.KindParse},
		{name: "json array", env: envelopeFor(`[1, 2, 3]`), kind: sensorerr.KindParse},
		{name: "json scalar", env: envelopeFor(`42`), kind: sensorerr.KindParse},
		{name: "missing v0", env: envelopeFor(`{"v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v0"},
		{name: "null v0", env: envelopeFor(`{"v0": null, "v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v0"},
		{name: "boolean v0", env: envelopeFor(`{"v0": true, "v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v0"},
		{name: "non numeric v0", env: envelopeFor(`{"v0": "abc", "v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v0"},
		{name: "missing v11", env: envelopeFor(`{"v0": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v11"},
		{name: "missing v18", env: envelopeFor(`{"v0": 1, "v11": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v18"},
		{name: "object v18", env: envelopeFor(`{"v0": 1, "v11": 1, "v18": {}, "Time": "2022-11-08"}`), kind: sensorerr.KindFieldExtraction, field: "v18"},
		{name: "missing Time", env: envelopeFor(`{"v0": 1, "v11": 1, "v18": 1}`), kind: sensorerr.KindFieldExtraction, field: "Time"},
		{name: "numeric Time", env: envelopeFor(`{"v0": 1, "v11": 1, "v18": 1, "Time": 1667880004}`), kind: sensorerr.KindFieldExtraction, field: "Time"},
		{name: "fractional v0", env: envelopeFor(`{"v0": 1.5, "v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindValidation, field: "v0"},
		{name: "huge v0", env: envelopeFor(`{"v0": 1e30, "v11": 1, "v18": 1, "Time": "2022-11-08"}`), kind: sensorerr.KindValidation, field: "v0"},
		{name: "NaN v18", env: envelopeFor(`{"v0": 1, "v11": 1, "v18": "NaN", "Time": "2022-11-08"}`), kind: sensorerr.KindValidation, field: "v18"},
		{name: "unparseable Time", env: envelopeFor(`{"v0": 1, "v11": 1, "v18": 1, "Time": "yesterday"}`), kind: sensorerr.KindValidation, field: "Time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Decode(tt.env)
			require.Error(t, err)
			assert.Nil(t, record)
			assert.Equal(t, tt.kind, sensorerr.KindOf(err), "error: %v", err)
			assert.Equal(t, tt.field, sensorerr.FieldOf(err))
		})
	}
}

func TestDecode_FirstFailingFieldWins(t *testing.T) {
	_, err := Decode(envelopeFor(`{"v11": 1}`))
	require.Error(t, err)
	assert.Equal(t, "v0", sensorerr.FieldOf(err))
}

func TestDecode_DecodeErrorMessage(t *testing.T) {
	_, err := Decode(rawEnvelope("invalid_base64"))
	require.Error(t, err)
	assert.Contains(t, sensorerr.Message(err), "invalid base64-encoded string")
}

func TestDecode_NumericCoercion(t *testing.T) {
	tests := []struct {
		name     string
		reading  string
		sensorID int64
		dwell    float64
	}{
		{"integral float sensor id", `{"v0": 100013.0, "v11": 1, "v18": 3, "Time": "2022-11-08"}`, 100013, 3},
		{"string sensor id", `{"v0": "42", "v11": 1, "v18": "0.5", "Time": "2022-11-08"}`, 42, 0.5},
		{"negative dwell", `{"v0": 1, "v11": 1, "v18": -1.25, "Time": "2022-11-08"}`, 1, -1.25},
		{"large sensor id", `{"v0": 9007199254740993, "v11": 1, "v18": 0, "Time": "2022-11-08"}`, 9007199254740993, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Decode(envelopeFor(tt.reading))
			require.NoError(t, err)
			assert.Equal(t, tt.sensorID, record.SensorID)
			assert.InDelta(t, tt.dwell, record.DwellTime, 1e-9)
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`null`, false},
		{`0`, false},
		{`0.0`, false},
		{`1`, true},
		{`-3`, true},
		{`0.01`, true},
		{`""`, false},
		{`"0"`, true},
		{`"false"`, true},
		{`[]`, false},
		{`[0]`, true},
		{`{}`, false},
		{`{"a": 0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, truthy(gjson.Parse(tt.raw)))
		})
	}
}

func TestDecode_PresenceTruthiness(t *testing.T) {
	record, err := Decode(envelopeFor(`{"v0": 1, "v11": "yes", "v18": 1, "Time": "2022-11-08"}`))
	require.NoError(t, err)
	assert.True(t, record.HumanPresence)

	record, err = Decode(envelopeFor(`{"v0": 1, "v11": null, "v18": 1, "Time": "2022-11-08"}`))
	require.NoError(t, err)
	assert.False(t, record.HumanPresence)
}

func TestParseEnvelope(t *testing.T) {
	t.Run("full push envelope", func(t *testing.T) {
		body := []byte(`{
			"message": {
				"data": "eyJ2MCI6IDF9",
				"attributes": {"origin": "gateway-1", "seq": 4},
				"messageId": "136969346945",
				"publishTime": "2022-11-08T04:00:05Z"
			},
			"subscription": "projects/demo/subscriptions/sensors"
		}`)

		env, err := ParseEnvelope(body)
		require.NoError(t, err)
		require.NotNil(t, env.Message.Data)
		assert.Equal(t, "eyJ2MCI6IDF9", *env.Message.Data)
		assert.Equal(t, "gateway-1", env.Message.Attributes["origin"])
		assert.Equal(t, "4", env.Message.Attributes["seq"])
		assert.Equal(t, "136969346945", env.Message.ID())
		assert.Equal(t, "projects/demo/subscriptions/sensors", env.Subscription)
	})

	t.Run("opaque fields of unexpected shape are ignored", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"message": {"data": "", "attributes": [1, 2]}, "subscription": 12}`))
		require.NoError(t, err)
		assert.Nil(t, env.Message.Attributes)
		assert.Empty(t, env.Subscription)
	})

	malformed := map[string]string{
		"invalid json":    `{"message":`,
		"array body":      `[]`,
		"missing message": `{"subscription": "x"}`,
		"string message":  `{"message": "hello"}`,
		"missing data":    `{"message": {}}`,
		"numeric data":    `{"message": {"data": 5}}`,
		"null data":       `{"message": {"data": null}}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(body))
			require.Error(t, err)
			assert.Equal(t, sensorerr.KindMalformedEnvelope, sensorerr.KindOf(err))
		})
	}
}
