package seeder

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/proximity-stack/common/messaging"
)

// Seed targets.
const (
	TargetNATS = "nats"
	TargetHTTP = "http"
)

// Profile describes a synthetic load run. It is read from YAML and
// individual values are overridden by command-line flags.
type Profile struct {
	Count          int           `yaml:"count"`
	Sensors        []int64       `yaml:"sensors,omitempty"`
	SensorCount    int           `yaml:"sensor_count"`
	PresenceRatio  float64       `yaml:"presence_ratio"`
	MaxDwell       float64       `yaml:"max_dwell"`
	TimeSpread     time.Duration `yaml:"time_spread"`
	Interval       time.Duration `yaml:"interval"`
	MalformedRatio float64       `yaml:"malformed_ratio"`
	Seed           int64         `yaml:"seed"`

	Target  string        `yaml:"target"`
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultProfile() *Profile {
	return &Profile{
		Count:         1000,
		SensorCount:   10,
		PresenceRatio: 0.3,
		MaxDwell:      120,
		TimeSpread:    24 * time.Hour,
		Target:        TargetNATS,
		URL:           "http://localhost:8000/sensor-records",
		Subject:       messaging.SubjectSensorTelemetry,
		Timeout:       10 * time.Second,
	}
}

// LoadProfile reads a YAML profile on top of the defaults. An empty path
// returns the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}
	return p, nil
}

// Marshal renders the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

func (p *Profile) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if len(p.Sensors) == 0 && p.SensorCount < 1 {
		return fmt.Errorf("either sensors or sensor_count is required")
	}
	if p.PresenceRatio < 0 || p.PresenceRatio > 1 {
		return fmt.Errorf("presence_ratio must be between 0 and 1")
	}
	if p.MalformedRatio < 0 || p.MalformedRatio > 1 {
		return fmt.Errorf("malformed_ratio must be between 0 and 1")
	}
	if p.MaxDwell < 0 {
		return fmt.Errorf("max_dwell must not be negative")
	}
	if p.TimeSpread < 0 || p.Interval < 0 {
		return fmt.Errorf("time_spread and interval must not be negative")
	}
	switch p.Target {
	case TargetNATS:
		if p.Subject == "" {
			return fmt.Errorf("subject is required for target nats")
		}
	case TargetHTTP:
		if p.URL == "" {
			return fmt.Errorf("url is required for target http")
		}
	default:
		return fmt.Errorf("invalid target %q: must be nats or http", p.Target)
	}
	return nil
}
