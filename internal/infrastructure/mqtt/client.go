package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dialer opens paho-backed subscriptions. It implements ingest.Dialer.
//
// Each Dial creates a fresh paho client. The returned stream keeps the
// subscription alive across network drops: paho reconnects on its own and
// the on-connect handler restores the subscription.
type Dialer struct {
	opts   Options
	logger Logger
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts:   opts.withDefaults(),
		logger: noopLogger{},
	}
}

// SetLogger sets a logger for connection events and handler panics.
func (d *Dialer) SetLogger(logger Logger) {
	d.logger = logger
}

// Dial connects to settings.Broker and subscribes to settings.Topic.
//
// It performs the following:
//  1. Validates the topic and QoS
//  2. Builds client options (clean session, auto-reconnect, ordered delivery)
//  3. Connects, bounded by the connect timeout and ctx
//  4. Subscribes and waits for the SUBACK
//
// Returns:
//   - ingest.Stream: live subscription; the caller must Close it
//   - error: wrapping ErrConnectionFailed or ErrSubscribeFailed
func (d *Dialer) Dial(ctx context.Context, clientID string, settings ingest.Settings) (ingest.Stream, error) {
	if settings.Topic == "" || strings.ContainsAny(settings.Topic, "+#") {
		return nil, ErrInvalidTopic
	}
	if d.opts.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	s := newStream(settings.Topic, d.opts, d.logger)

	opts := buildClientOptions(clientID, settings, d.opts)
	opts.SetOnConnectHandler(s.handleConnect)
	opts.SetConnectionLostHandler(s.handleConnectionLost)
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		d.logger.Info("reconnecting to MQTT broker", "broker", settings.Broker)
	})

	client := pahomqtt.NewClient(opts)
	s.client = client

	// The handshake itself is bounded by ConnectTimeout; the extra second
	// covers the TCP dial that precedes it.
	if err := waitToken(ctx, client.Connect(), d.opts.ConnectTimeout+time.Second); err != nil {
		s.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := s.subscribe(ctx); err != nil {
		s.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return s, nil
}

// waitToken waits for a paho token, ctx cancellation or the timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
