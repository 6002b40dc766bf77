package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

// Session defaults.
const (
	// DefaultPollInterval is the wait between connection attempts while
	// disconnected.
	DefaultPollInterval = 10 * time.Second

	// DefaultClientIDPrefix is joined with a random UUID to form the client id.
	DefaultClientIDPrefix = "glowmarkt_logger"
)

// Message is one payload received on the subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Settings identify the broker and the single topic to follow.
type Settings struct {
	Broker   string
	Topic    string
	Username string
	Password string
}

// IsComplete reports whether every field needed to connect is set.
func (s Settings) IsComplete() bool {
	return s.Broker != "" && s.Topic != "" && s.Username != "" && s.Password != ""
}

// Stream is a live subscription.
//
// Messages delivers payloads in receipt order. The channel is closed when
// the transport gives up on the connection, after which the stream is dead
// and must be closed.
type Stream interface {
	Messages() <-chan Message
	Close() error
}

// Dialer connects to the broker and subscribes to the settings' topic.
type Dialer interface {
	Dial(ctx context.Context, clientID string, settings Settings) (Stream, error)
}

// Handler processes one message to completion.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f(ctx, msg).
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Logger defines the logging interface for the ingest package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateName is the externally visible session state.
type StateName string

const (
	StateDisconnected StateName = "disconnected"
	StateConnecting   StateName = "connecting"
	StateSubscribed   StateName = "subscribed"
)

// state is the session's tagged union. Only stateSubscribed owns a stream.
type state interface {
	name() StateName
}

type stateDisconnected struct {
	// wait delays the next settings check by the poll interval.
	wait bool
}

type stateConnecting struct{}

type stateSubscribed struct {
	stream Stream
}

func (stateDisconnected) name() StateName { return StateDisconnected }
func (stateConnecting) name() StateName   { return StateConnecting }
func (stateSubscribed) name() StateName   { return StateSubscribed }

// Config holds the collaborators and tunables for a Session.
type Config struct {
	Dialer   Dialer
	Handler  Handler
	Settings Settings

	// ClientIDPrefix defaults to DefaultClientIDPrefix.
	ClientIDPrefix string

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock

	Logger  Logger
	Metrics *Metrics
}

// Session owns one broker subscription and its receive loop.
//
// The client id is generated once and reused for every reconnect.
type Session struct {
	dialer       Dialer
	handler      Handler
	settings     Settings
	clientID     string
	pollInterval time.Duration
	clock        clock.Clock
	logger       Logger
	metrics      *Metrics

	mu      sync.RWMutex
	current StateName
}

// NewSession creates a session in the Disconnected state.
func NewSession(cfg Config) *Session {
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = DefaultClientIDPrefix
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	return &Session{
		dialer:       cfg.Dialer,
		handler:      cfg.Handler,
		settings:     cfg.Settings,
		clientID:     cfg.ClientIDPrefix + "-" + uuid.NewString(),
		pollInterval: cfg.PollInterval,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		current:      StateDisconnected,
	}
}

// ClientID returns the identifier presented to the broker.
func (s *Session) ClientID() string {
	return s.clientID
}

// State returns the current state name.
func (s *Session) State() StateName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Session) setState(name StateName) {
	s.mu.Lock()
	changed := s.current != name
	s.current = name
	s.mu.Unlock()

	if changed {
		s.logger.Debug("session state changed", "state", string(name))
		s.metrics.setState(name)
	}
}

// Run drives the state machine until ctx is cancelled. A live stream is
// closed before Run returns.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info("ingest session starting",
		"client_id", s.clientID,
		"broker", s.settings.Broker,
		"topic", s.settings.Topic,
	)

	var st state = stateDisconnected{}
	defer func() {
		if sub, ok := st.(stateSubscribed); ok {
			s.closeStream(sub.stream)
		}
		s.setState(StateDisconnected)
		s.logger.Info("ingest session stopped")
	}()

	for ctx.Err() == nil {
		s.setState(st.name())

		switch cur := st.(type) {
		case stateDisconnected:
			st = s.disconnected(ctx, cur)
		case stateConnecting:
			st = s.connecting(ctx)
		case stateSubscribed:
			st = s.subscribed(ctx, cur)
		}
	}
}

func (s *Session) disconnected(ctx context.Context, cur stateDisconnected) state {
	if cur.wait && !s.sleep(ctx) {
		return cur
	}

	if !s.settings.IsComplete() {
		s.logger.Warn("broker settings incomplete, waiting",
			"poll_interval", s.pollInterval,
			"broker_set", s.settings.Broker != "",
			"topic_set", s.settings.Topic != "",
			"username_set", s.settings.Username != "",
			"password_set", s.settings.Password != "",
		)
		return stateDisconnected{wait: true}
	}

	return stateConnecting{}
}

func (s *Session) connecting(ctx context.Context) state {
	stream, err := s.dialer.Dial(ctx, s.clientID, s.settings)
	if err != nil {
		if ctx.Err() != nil {
			return stateDisconnected{}
		}
		s.metrics.connectFailed()
		connErr := &ConnectError{Broker: s.settings.Broker, Topic: s.settings.Topic, Err: err}
		s.logger.Error("broker connection failed",
			"error", connErr,
			"retry_in", s.pollInterval,
		)
		return stateDisconnected{wait: true}
	}

	s.metrics.connected()
	s.logger.Info("subscribed to broker",
		"broker", s.settings.Broker,
		"topic", s.settings.Topic,
	)
	return stateSubscribed{stream: stream}
}

func (s *Session) subscribed(ctx context.Context, cur stateSubscribed) state {
	select {
	case <-ctx.Done():
		return cur
	case msg, ok := <-cur.stream.Messages():
		if !ok {
			s.logger.Warn("message stream closed, reconnecting",
				"retry_in", s.pollInterval,
			)
			s.closeStream(cur.stream)
			return stateDisconnected{wait: true}
		}
		s.dispatch(ctx, msg)
		return cur
	}
}

// dispatch runs the handler for one message. Errors and panics stay here.
func (s *Session) dispatch(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message handler panic recovered",
				"topic", msg.Topic,
				"panic", r,
			)
		}
	}()

	err := s.handler.Handle(ctx, msg)
	if err == nil {
		return
	}

	var decErr *meter.DecodeError
	if errors.As(err, &decErr) {
		s.logger.Warn("dropping undecodable message",
			"topic", msg.Topic,
			"error", err,
		)
		return
	}
	s.logger.Error("dropping message after persist failure",
		"topic", msg.Topic,
		"error", err,
	)
}

// sleep waits one poll interval. It returns false if ctx was cancelled.
func (s *Session) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(s.pollInterval):
		return true
	}
}

func (s *Session) closeStream(stream Stream) {
	if err := stream.Close(); err != nil {
		s.logger.Warn("closing message stream", "error", err)
	}
}
