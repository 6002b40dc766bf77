package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
)

// stream is one subscription on one paho client. It implements ingest.Stream.
//
// Thread Safety:
//   - deliver is called from paho's router goroutine.
//   - end and Close may race with deliver; sends never hit a closed channel.
type stream struct {
	client        pahomqtt.Client
	topic         string
	qos           byte
	autoReconnect bool
	logger        Logger

	messages chan ingest.Message
	done     chan struct{}

	// connects counts on-connect callbacks; the first belongs to Dial.
	connects atomic.Int32

	mu       sync.RWMutex
	finished bool

	endOnce   sync.Once
	closeOnce sync.Once
}

func newStream(topic string, opts Options, logger Logger) *stream {
	return &stream{
		topic:         topic,
		qos:           opts.QoS,
		autoReconnect: opts.AutoReconnect,
		logger:        logger,
		messages:      make(chan ingest.Message, opts.BufferSize),
		done:          make(chan struct{}),
	}
}

// Messages returns the receive channel. It is closed when the stream ends.
func (s *stream) Messages() <-chan ingest.Message {
	return s.messages
}

// Close ends the stream and disconnects from the broker.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.end()
		if s.client != nil {
			s.client.Disconnect(defaultDisconnectQuiesce)
		}
	})
	return nil
}

// end closes the message channel exactly once.
func (s *stream) end() {
	s.endOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.finished = true
		close(s.messages)
		s.mu.Unlock()
	})
}

// subscribe registers the topic and waits for the broker's acknowledgement.
func (s *stream) subscribe(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, s.qos, s.deliver)
	if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	// A granted QoS of 0x80 is a broker-side refusal.
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if granted, found := st.Result()[s.topic]; found && granted == 0x80 {
			return fmt.Errorf("%w: broker refused topic %q", ErrSubscribeFailed, s.topic)
		}
	}
	return nil
}

// handleConnect restores the subscription after an automatic reconnect.
// The clean session means the broker forgot it.
func (s *stream) handleConnect(_ pahomqtt.Client) {
	if s.connects.Add(1) == 1 {
		return
	}

	s.logger.Info("MQTT connection restored, resubscribing", "topic", s.topic)
	if err := s.subscribe(context.Background()); err != nil {
		s.logger.Error("MQTT resubscribe failed", "topic", s.topic, "error", err)
	}
}

func (s *stream) handleConnectionLost(_ pahomqtt.Client, err error) {
	if s.autoReconnect {
		s.logger.Warn("MQTT connection lost, transport will reconnect", "error", err)
		return
	}
	s.logger.Warn("MQTT connection lost, ending stream", "error", err)
	s.end()
}

// deliver forwards a paho message onto the stream with panic recovery.
func (s *stream) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finished {
		return
	}

	select {
	case s.messages <- ingest.Message{Topic: msg.Topic(), Payload: msg.Payload()}:
	case <-s.done:
	}
}
