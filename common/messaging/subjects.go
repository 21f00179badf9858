package messaging

// Subject constants for the sensor telemetry bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	// SubjectSensorTelemetry carries push envelopes from proximity sensors.
	SubjectSensorTelemetry = "sensor.telemetry.proximity"

	// SubjectSensorTelemetryAll matches every telemetry subject.
	SubjectSensorTelemetryAll = "sensor.telemetry.>"

	// SubjectSensorDLQ is the prefix for dead-lettered envelopes.
	// The failure kind is appended (sensor.dlq.decode).
	SubjectSensorDLQ = "sensor.dlq"

	// SubjectSensorDLQAll matches every dead-letter subject.
	SubjectSensorDLQAll = SubjectSensorDLQ + ".>"
)

// Durable consumer names.
const (
	ConsumerSensorIngest = "sensor-ingest"
)

// SensorDLQSubject returns the dead-letter subject for a failure kind.
// Example: sensor.dlq.parse
func SensorDLQSubject(kind string) string {
	if kind == "" {
		kind = "unknown"
	}
	return SubjectSensorDLQ + "." + kind
}
