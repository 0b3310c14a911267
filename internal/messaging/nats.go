// Package messaging provides a NATS client wrapper for fanning subscriber
// lifecycle events out to downstream services. Publishing is best-effort:
// the bot never fails a webhook request because a NATS publish failed.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS subjects published by the welcome bot.
const (
	SubjectSubscribed   = "viber.subscribed"
	SubjectUnsubscribed = "viber.unsubscribed"
)

// SubscriberEvent is the payload published on subscriber lifecycle subjects.
type SubscriberEvent struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NATSClient wraps the NATS connection with helper methods for publishing
// lifecycle events.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "viber-welcome-bot",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger zerolog.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &NATSClient{conn: nc, log: logger}, nil
}

// PublishSubscribed publishes a subscriber-joined event.
func (c *NATSClient) PublishSubscribed(ev SubscriberEvent) error {
	return c.publish(SubjectSubscribed, ev)
}

// PublishUnsubscribed publishes a subscriber-left event.
func (c *NATSClient) PublishUnsubscribed(ev SubscriberEvent) error {
	return c.publish(SubjectUnsubscribed, ev)
}

func (c *NATSClient) publish(subject string, ev SubscriberEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes and closes the NATS connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Flush()
		c.conn.Close()
	}
}
