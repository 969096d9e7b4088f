package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"trafficpilot/internal/models"
)

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

// NATSForwarder publishes lifecycle events to NATS as JSON.
type NATSForwarder struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSForwarder connects to NATS.
func NewNATSForwarder(cfg NATSConfig, logger zerolog.Logger) (*NATSForwarder, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "trafficpilot.status"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	logger = logger.With().Str("component", "nats").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("trafficpilot"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSForwarder{
		conn:    conn,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

// Publish forwards event on <subject>.<status>. The client buffers
// writes, so this never waits on the network.
func (f *NATSForwarder) Publish(event models.BotStatusEvent) {
	subject, payload, err := encodeNATS(f.subject, event)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to encode status event")
		return
	}

	if err := f.conn.Publish(subject, payload); err != nil {
		f.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to forward status event")
	}
}

// Close flushes pending events and closes the connection.
func (f *NATSForwarder) Close() error {
	return f.conn.Drain()
}

func encodeNATS(base string, event models.BotStatusEvent) (string, []byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", nil, err
	}

	return base + "." + string(event.Status), payload, nil
}
