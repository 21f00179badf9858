package seeder

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

// readingTimeLayout matches what the gateways emit: no zone, microseconds.
const readingTimeLayout = "2006-01-02T15:04:05.000000"

// Malformation names the defect injected into a malformed envelope.
type Malformation string

const (
	MalformedNone       Malformation = ""
	MalformedBase64     Malformation = "base64"
	MalformedJSON       Malformation = "json"
	MalformedMissingV0  Malformation = "missing_v0"
	MalformedBadTime    Malformation = "bad_time"
	MalformedFractional Malformation = "fractional_v0"
)

var malformations = []Malformation{
	MalformedBase64,
	MalformedJSON,
	MalformedMissingV0,
	MalformedBadTime,
	MalformedFractional,
}

// Generator produces gateway-shaped readings and push envelopes.
type Generator struct {
	profile *Profile
	faker   *gofakeit.Faker
	sensors []int64
	now     time.Time
}

// NewGenerator builds a generator. A zero profile seed draws a random one.
func NewGenerator(p *Profile, now time.Time) *Generator {
	faker := gofakeit.New(p.Seed)

	sensors := p.Sensors
	if len(sensors) == 0 {
		sensors = make([]int64, p.SensorCount)
		for i := range sensors {
			sensors[i] = int64(100000 + faker.Number(1, 899999))
		}
	}

	return &Generator{profile: p, faker: faker, sensors: sensors, now: now.UTC()}
}

// Sensors returns the sensor ids readings are drawn from.
func (g *Generator) Sensors() []int64 {
	return g.sensors
}

// Reading returns a decoded gateway reading: the consumed v0/v11/v18/Time
// fields plus the gateway's other channels.
func (g *Generator) Reading() map[string]any {
	f := g.faker
	sensorID := g.sensors[f.Number(0, len(g.sensors)-1)]

	presence := 0
	if f.Float64Range(0, 1) < g.profile.PresenceRatio {
		presence = 1
	}

	ts := g.now
	if g.profile.TimeSpread > 0 {
		ts = f.DateRange(g.now.Add(-g.profile.TimeSpread), g.now).UTC()
	}

	reading := map[string]any{
		"serial":      f.Numerify("############"),
		"application": 11,
		"Type":        "xkgw",
		"device":      f.AppName(),
		"Time":        ts.Format(readingTimeLayout),
		"v0":          sensorID,
		"v11":         presence,
		"v18":         round2(f.Float64Range(0, g.profile.MaxDwell)),
		"v16":         sensorID,
	}
	for _, ch := range []string{"v1", "v2", "v3", "v5", "v8", "v12", "v14"} {
		reading[ch] = round2(f.Float64Range(0, 2))
	}
	for _, ch := range []string{"v4", "v6", "v10", "v13"} {
		reading[ch] = f.Number(0, 1)
	}
	reading["v7"] = f.Number(10000, 99999)
	reading["v9"] = f.Number(1, 99999999)
	reading["v15"] = f.Number(10000, 10099)
	reading["v17"] = reading["v7"]
	return reading
}

// Envelope wraps one reading in a push envelope and returns its JSON body
// and message id. With a malformed ratio configured, some envelopes carry
// one of the defects in malformations.
func (g *Generator) Envelope() ([]byte, string, Malformation, error) {
	var defect Malformation
	if g.profile.MalformedRatio > 0 && g.faker.Float64Range(0, 1) < g.profile.MalformedRatio {
		defect = malformations[g.faker.Number(0, len(malformations)-1)]
	}
	body, id, err := g.envelope(defect)
	return body, id, defect, err
}

func (g *Generator) envelope(defect Malformation) ([]byte, string, error) {
	reading := g.Reading()
	switch defect {
	case MalformedMissingV0:
		delete(reading, models.ReadingSensorID)
	case MalformedBadTime:
		reading[models.ReadingTime] = g.faker.Word()
	case MalformedFractional:
		reading[models.ReadingSensorID] = float64(reading[models.ReadingSensorID].(int64)) + 0.5
	}

	raw, err := json.Marshal(reading)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode reading: %w", err)
	}
	if defect == MalformedJSON {
		raw = raw[:len(raw)/2]
	}

	data := base64.StdEncoding.EncodeToString(raw)
	if defect == MalformedBase64 {
		data = "invalid_base64"
	}

	id := g.faker.Numerify("################")
	published := g.now.Format(time.RFC3339Nano)
	env := models.RawEnvelope{
		Message: &models.PushMessage{
			Data:           &data,
			Attributes:     map[string]string{"gateway": g.faker.Numerify("gw-####")},
			MessageID:      id,
			MessageIDAlt:   id,
			PublishTime:    published,
			PublishTimeAlt: published,
		},
		Subscription: "projects/proximity/subscriptions/sensor-push",
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return body, id, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
