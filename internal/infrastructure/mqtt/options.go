package mqtt

import (
	"crypto/tls"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/config"
	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the connect handshake.
	defaultConnectTimeout = 5 * time.Second

	// defaultSubscribeTimeout bounds the wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectMax caps the transport's automatic reconnect backoff.
	// paho always starts that backoff at 1s and doubles it.
	defaultReconnectMax = 30 * time.Second

	// defaultBufferSize is the capacity of the stream's message channel.
	defaultBufferSize = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options tune the transport. Zero values take the defaults above.
type Options struct {
	QoS            byte
	ConnectTimeout time.Duration
	ReconnectMax   time.Duration
	BufferSize     int

	// AutoReconnect lets paho restore a dropped connection itself. When
	// false, a lost connection ends the stream and the session redials.
	AutoReconnect bool
}

// OptionsFromConfig converts the mqtt config section into Options.
func OptionsFromConfig(cfg config.MQTTConfig) Options {
	return Options{
		QoS:            byte(cfg.QoS), //nolint:gosec // Validated to 0..2 by config.Validate
		ConnectTimeout: time.Duration(cfg.Broker.ConnectTimeout) * time.Second,
		ReconnectMax:   time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		BufferSize:     cfg.BufferSize,
		AutoReconnect:  true,
	}
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = defaultReconnectMax
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// buildClientOptions creates paho options for one dial.
//
// This configures:
//   - Broker URL as given (tcp://, ssl://, tls://, ws://)
//   - The session's client ID and credentials
//   - Clean session mode
//   - Auto-reconnect with backoff capped at ReconnectMax
//   - In-order message delivery
//   - TLS for secure schemes
func buildClientOptions(clientID string, settings ingest.Settings, o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(settings.Broker)
	opts.SetClientID(clientID)

	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// The initial connect is not retried here; the session owns that loop.
	// Automatic reconnects back off from paho's fixed 1s up to ReconnectMax.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetMaxReconnectInterval(o.ReconnectMax)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Handlers run one at a time in receipt order.
	opts.SetOrderMatters(true)

	if isSecureScheme(settings.Broker) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

func isSecureScheme(broker string) bool {
	u, err := url.Parse(broker)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		return true
	default:
		return false
	}
}
