package pipeline

import (
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

var errMissingData = errors.New("message.data is required")

// ParseEnvelope reads a push envelope from its JSON wire form. Opaque
// delivery fields are copied when they have the expected shape and ignored
// otherwise; only a missing or non-string message.data is fatal.
func ParseEnvelope(body []byte) (*models.RawEnvelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, sensorerr.Newf(sensorerr.KindMalformedEnvelope, "request body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, sensorerr.Newf(sensorerr.KindMalformedEnvelope, "request body must be a JSON object")
	}

	msg := root.Get("message")
	if !msg.IsObject() {
		return nil, sensorerr.FieldError(sensorerr.KindMalformedEnvelope, "message", "message must be an object")
	}
	data := msg.Get("data")
	if data.Type != gjson.String {
		return nil, sensorerr.FieldError(sensorerr.KindMalformedEnvelope, "message.data", "message.data must be a base64 string")
	}

	payload := data.Str
	env := &models.RawEnvelope{
		Message: &models.PushMessage{
			Data:           &payload,
			MessageID:      msg.Get("messageId").String(),
			MessageIDAlt:   msg.Get("message_id").String(),
			PublishTime:    msg.Get("publishTime").String(),
			PublishTimeAlt: msg.Get("publish_time").String(),
		},
	}
	if attrs := msg.Get("attributes"); attrs.IsObject() {
		env.Message.Attributes = make(map[string]string)
		attrs.ForEach(func(k, v gjson.Result) bool {
			env.Message.Attributes[k.String()] = v.String()
			return true
		})
	}
	if sub := root.Get("subscription"); sub.Type == gjson.String {
		env.Subscription = sub.Str
	}
	return env, nil
}

// Decode runs the side-effect free stages of ingestion: envelope access,
// base64 decode, JSON parse, field extraction and normalization. The first
// failing stage determines the error kind.
func Decode(env *models.RawEnvelope) (*models.SensorRecord, error) {
	if env == nil || env.Message == nil {
		return nil, sensorerr.FieldError(sensorerr.KindMalformedEnvelope, "message", "envelope has no message")
	}
	if env.Message.Data == nil {
		return nil, sensorerr.New(sensorerr.KindMalformedEnvelope, errMissingData)
	}

	text, err := decodeData(*env.Message.Data)
	if err != nil {
		return nil, err
	}

	reading, err := parseReading(text)
	if err != nil {
		return nil, err
	}

	fields, err := extractFields(reading)
	if err != nil {
		return nil, err
	}

	return fields.normalize()
}

// decodeData decodes standard, padded base64 and requires UTF-8 text.
func decodeData(data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return "", sensorerr.Newf(sensorerr.KindDecode, "invalid base64-encoded string: %v", err)
	}
	if !utf8.Valid(raw) {
		return "", sensorerr.Newf(sensorerr.KindDecode, "decoded payload is not valid UTF-8")
	}
	return string(raw), nil
}

func parseReading(text string) (gjson.Result, error) {
	if !gjson.Valid(text) {
		return gjson.Result{}, sensorerr.Newf(sensorerr.KindParse, "invalid JSON data")
	}
	reading := gjson.Parse(text)
	if !reading.IsObject() {
		return gjson.Result{}, sensorerr.Newf(sensorerr.KindParse, "reading must be a JSON object")
	}
	return reading, nil
}

// readingFields holds the typed but not yet normalized reading values.
type readingFields struct {
	sensorID      gjson.Result
	humanPresence gjson.Result
	dwellTime     float64
	timestamp     string
}

func extractFields(reading gjson.Result) (*readingFields, error) {
	var f readingFields
	var err error

	if f.sensorID, err = requireNumeric(reading, models.ReadingSensorID); err != nil {
		return nil, err
	}

	// Any JSON type is accepted for presence; only absence is an error.
	f.humanPresence = lastField(reading, models.ReadingHumanPresence)
	if !f.humanPresence.Exists() {
		return nil, missingField(models.ReadingHumanPresence)
	}

	dwell, err := requireNumeric(reading, models.ReadingDwellTime)
	if err != nil {
		return nil, err
	}
	f.dwellTime, _ = numericValue(dwell)

	ts := lastField(reading, models.ReadingTime)
	switch {
	case !ts.Exists() || ts.Type == gjson.Null:
		return nil, missingField(models.ReadingTime)
	case ts.Type != gjson.String:
		return nil, sensorerr.FieldError(sensorerr.KindFieldExtraction, models.ReadingTime, "must be a string, got %s", ts.Type)
	}
	f.timestamp = ts.Str

	return &f, nil
}

func (f *readingFields) normalize() (*models.SensorRecord, error) {
	sensorID, err := integralValue(f.sensorID)
	if err != nil {
		return nil, sensorerr.FieldError(sensorerr.KindValidation, models.ReadingSensorID, "%v", err)
	}

	if math.IsNaN(f.dwellTime) || math.IsInf(f.dwellTime, 0) {
		return nil, sensorerr.FieldError(sensorerr.KindValidation, models.ReadingDwellTime, "must be a finite number")
	}

	ts, err := models.ParseTimestamp(f.timestamp)
	if err != nil {
		return nil, sensorerr.FieldError(sensorerr.KindValidation, models.ReadingTime, "%v", err)
	}

	return &models.SensorRecord{
		SensorID:      sensorID,
		HumanPresence: truthy(f.humanPresence),
		DwellTime:     f.dwellTime,
		Timestamp:     ts,
	}, nil
}

// lastField returns the value of the last occurrence of key in the reading
// object. A missing key yields a Result whose Exists is false.
func lastField(reading gjson.Result, key string) gjson.Result {
	var out gjson.Result
	reading.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out = v
		}
		return true
	})
	return out
}

func missingField(name string) error {
	return sensorerr.FieldError(sensorerr.KindFieldExtraction, name, "missing required field")
}

// requireNumeric returns the named value if it is a JSON number or a string
// holding one.
func requireNumeric(reading gjson.Result, name string) (gjson.Result, error) {
	v := lastField(reading, name)
	if !v.Exists() || v.Type == gjson.Null {
		return v, missingField(name)
	}
	if _, ok := numericValue(v); !ok {
		return v, sensorerr.FieldError(sensorerr.KindFieldExtraction, name, "must be numeric, got %s", describe(v))
	}
	return v, nil
}

func numericValue(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

var errNotIntegral = errors.New("must be an integer")

// integralValue converts a numeric value to int64. The literal is parsed as
// an integer first so large IDs keep full precision; otherwise it must be a
// float with no fractional part ("100013.0").
func integralValue(v gjson.Result) (int64, error) {
	literal := strings.TrimSpace(v.Raw)
	if v.Type == gjson.String {
		literal = strings.TrimSpace(v.Str)
	}
	if n, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return n, nil
	}

	f, ok := numericValue(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotIntegral
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.New("out of range for a sensor id")
	}
	return int64(f), nil
}

// truthy applies the upstream truthiness rule: false, null, zero, the empty
// string and empty arrays/objects are false; everything else is true.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.False, gjson.Null:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		return len(v.Map()) > 0
	default:
		return false
	}
}

func describe(v gjson.Result) string {
	if v.Type == gjson.JSON {
		if v.IsArray() {
			return "array"
		}
		return "object"
	}
	if v.Type == gjson.String {
		return strconv.Quote(v.Str)
	}
	return v.Type.String()
}
