package messaging

import (
	"strings"
	"testing"
)

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	for _, subject := range []string{SubjectSensorTelemetry, SubjectSensorTelemetryAll, SubjectSensorDLQAll} {
		if parts := strings.Split(subject, "."); len(parts) < 3 {
			t.Errorf("subject %q should have at least 3 dot-separated parts", subject)
		}
	}
}

func TestTelemetryWildcardCoversSubject(t *testing.T) {
	prefix := strings.TrimSuffix(SubjectSensorTelemetryAll, ">")
	if !strings.HasPrefix(SubjectSensorTelemetry, prefix) {
		t.Errorf("%q is not matched by %q", SubjectSensorTelemetry, SubjectSensorTelemetryAll)
	}
}

func TestSensorDLQSubject(t *testing.T) {
	tests := map[string]string{
		"decode":           "sensor.dlq.decode",
		"field_extraction": "sensor.dlq.field_extraction",
		"":                 "sensor.dlq.unknown",
	}
	for kind, want := range tests {
		if got := SensorDLQSubject(kind); got != want {
			t.Errorf("SensorDLQSubject(%q) = %q, want %q", kind, got, want)
		}
	}
}
