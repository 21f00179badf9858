package seeder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/common/messaging"
)

// Sink delivers one envelope body to the ingestion path.
type Sink interface {
	Send(ctx context.Context, body []byte, messageID string) error
}

// PublisherSink publishes envelopes to the telemetry stream.
type PublisherSink struct {
	Publisher messaging.Publisher
	Subject   string
}

func (s *PublisherSink) Send(ctx context.Context, body []byte, messageID string) error {
	return s.Publisher.PublishMsg(ctx, &messaging.Message{
		Subject:   s.Subject,
		Data:      body,
		ID:        messageID,
		Timestamp: time.Now().UTC(),
	})
}

// HTTPSink POSTs envelopes to the records endpoint.
type HTTPSink struct {
	URL    string
	Client *http.Client
}

func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSink) Send(ctx context.Context, body []byte, _ string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// Result summarizes a run.
type Result struct {
	Sent      int
	Failed    int
	Malformed int
}

// Runner drives a Generator into a Sink.
type Runner struct {
	gen     *Generator
	sink    Sink
	profile *Profile
	logger  *logging.Logger
}

func NewRunner(p *Profile, gen *Generator, sink Sink, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{gen: gen, sink: sink, profile: p, logger: logger}
}

// Run sends profile.Count envelopes. Send failures are counted and logged;
// only context cancellation stops the run early.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result

	r.logger.InfoContext(ctx, "starting sensor seeder",
		"count", r.profile.Count,
		"target", r.profile.Target,
		"sensors", len(r.gen.Sensors()),
		"time_spread", r.profile.TimeSpread.String(),
		"malformed_ratio", r.profile.MalformedRatio,
	)

	progressInterval := max(r.profile.Count/10, 100)

	for i := 0; i < r.profile.Count; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		body, id, defect, err := r.gen.Envelope()
		if err != nil {
			return res, err
		}
		if defect != MalformedNone {
			res.Malformed++
		}

		if err := r.sink.Send(ctx, body, id); err != nil {
			res.Failed++
			// Malformed envelopes are expected to be rejected over HTTP.
			if defect == MalformedNone {
				r.logger.WarnContext(ctx, "failed to send envelope", "message_id", id, logging.Error(err))
			}
		} else {
			res.Sent++
		}

		if (i+1)%progressInterval == 0 {
			r.logger.InfoContext(ctx, "seeding progress", "sent", res.Sent, "failed", res.Failed, "total", r.profile.Count)
		}

		if r.profile.Interval > 0 && i < r.profile.Count-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(r.profile.Interval):
			}
		}
	}

	r.logger.InfoContext(ctx, "seeding complete", "sent", res.Sent, "failed", res.Failed, "malformed", res.Malformed)
	return res, nil
}
