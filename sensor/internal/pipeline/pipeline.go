// Package pipeline turns push envelopes into persisted sensor records.
package pipeline

import (
	"context"
	"time"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

// Source labels where an envelope entered the system.
type Source string

const (
	SourceHTTP  Source = "http"
	SourceQueue Source = "queue"
)

// Store is the write side of the record store.
type Store interface {
	Insert(ctx context.Context, record *models.SensorRecord) error
}

// Pipeline decodes, validates and persists envelopes. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	store  Store
	source Source
	logger *logging.Logger
}

// New creates a pipeline writing to store. A nil logger discards output.
func New(store Store, source Source, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		store:  store,
		source: source,
		logger: logger.With(logging.Source(string(source))),
	}
}

// Ingest decodes env and persists the resulting record. On success the
// record carries its store-assigned ID. On failure nothing is persisted and
// the returned error is a *sensorerr.Error.
func (p *Pipeline) Ingest(ctx context.Context, env *models.RawEnvelope) (*models.SensorRecord, error) {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(string(p.source)).Observe(time.Since(start).Seconds())
	}()

	record, err := Decode(env)
	if err != nil {
		return nil, p.fail(ctx, env, err)
	}

	if err := p.store.Insert(ctx, record); err != nil {
		return nil, p.fail(ctx, env, sensorerr.New(sensorerr.KindStore, err))
	}

	metrics.IngestTotal.WithLabelValues(string(p.source), metrics.OutcomeAccepted).Inc()
	metrics.DwellTime.Observe(record.DwellTime)
	p.logger.DebugContext(ctx, "sensor record stored",
		logging.RecordID(record.ID),
		logging.SensorID(record.SensorID),
	)
	return record, nil
}

// IngestBytes parses body as an envelope and ingests it.
func (p *Pipeline) IngestBytes(ctx context.Context, body []byte) (*models.SensorRecord, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		return nil, p.fail(ctx, nil, err)
	}
	return p.Ingest(ctx, env)
}

func (p *Pipeline) fail(ctx context.Context, env *models.RawEnvelope, err error) error {
	kind := sensorerr.KindOf(err)
	metrics.IngestTotal.WithLabelValues(string(p.source), kind.String()).Inc()

	args := []any{logging.Kind(kind.String()), logging.Error(err)}
	if field := sensorerr.FieldOf(err); field != "" {
		args = append(args, logging.Field(field))
	}
	if env != nil && env.Message != nil {
		if id := env.Message.ID(); id != "" {
			args = append(args, "message_id", id)
		}
	}

	if kind.IsClientError() {
		p.logger.WarnContext(ctx, "envelope rejected", args...)
	} else {
		p.logger.ErrorContext(ctx, "envelope ingestion failed", args...)
	}
	return err
}
