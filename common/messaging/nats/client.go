// Package nats provides the JetStream transport for sensor telemetry.
package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Client owns a NATS connection.
type Client struct {
	conn *nats.Conn
}

// Config holds connection settings. Credentials are optional; a token takes
// precedence over a user/password pair.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int // -1 retries forever
	ReconnectWait time.Duration
	Timeout       time.Duration
	Username      string
	Password      string
	Token         string

	// Logger receives connection state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "proximity-sensor",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// options translates cfg into connect options.
func (cfg Config) options() []nats.Option {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("nats_client", cfg.Name))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{slog.String("error", err.Error())}
			if sub != nil {
				attrs = append(attrs, slog.String("subject", sub.Subject))
			}
			logger.Error("NATS async error", attrs...)
		}),
	}

	switch {
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.Username != "":
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	return opts
}

func NewClient(cfg Config) (*Client, error) {
	conn, err := nats.Connect(cfg.URL, cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection without draining.
func (c *Client) Close() {
	c.conn.Close()
}

// Drain lets in-flight deliveries finish, then closes.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// IsConnected reports whether the connection is currently up; false while
// reconnecting.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
