package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

func completeSettings() Settings {
	return Settings{
		Broker:   "tcp://glow.local:1883",
		Topic:    "glow/ABCDEF/SENSOR/electricitymeter",
		Username: "meter",
		Password: "secret",
	}
}

// startSession runs s in the background and returns a stop function that
// cancels it and waits for Run to return.
func startSession(t *testing.T, s *Session) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
	t.Cleanup(stop)
	return stop
}

func TestSettings_IsComplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
		want   bool
	}{
		{"complete", func(_ *Settings) {}, true},
		{"no broker", func(s *Settings) { s.Broker = "" }, false},
		{"no topic", func(s *Settings) { s.Topic = "" }, false},
		{"no username", func(s *Settings) { s.Username = "" }, false},
		{"no password", func(s *Settings) { s.Password = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := completeSettings()
			tt.mutate(&s)
			if got := s.IsComplete(); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(Config{Dialer: newFakeDialer(), Handler: &recordingHandler{}})

	if !strings.HasPrefix(s.ClientID(), DefaultClientIDPrefix+"-") {
		t.Errorf("ClientID() = %q, want prefix %q", s.ClientID(), DefaultClientIDPrefix+"-")
	}
	if len(s.ClientID()) != len(DefaultClientIDPrefix)+1+36 {
		t.Errorf("ClientID() = %q, want prefix plus UUID", s.ClientID())
	}
	if s.pollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", s.pollInterval, DefaultPollInterval)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %q, want %q", s.State(), StateDisconnected)
	}

	other := NewSession(Config{Dialer: newFakeDialer(), Handler: &recordingHandler{}})
	if other.ClientID() == s.ClientID() {
		t.Error("two sessions share a client id")
	}
}

func TestSession_IncompleteSettingsStayIdle(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	dialer := newFakeDialer()
	settings := completeSettings()
	settings.Password = ""

	s := NewSession(Config{
		Dialer:   dialer,
		Handler:  &recordingHandler{},
		Settings: settings,
		Clock:    clk,
	})
	startSession(t, s)

	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(DefaultPollInterval, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
	}

	if n := dialer.calls(); n != 0 {
		t.Errorf("Dial called %d times with incomplete settings", n)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %q, want %q", s.State(), StateDisconnected)
	}
}

func TestSession_ConnectFailureRetriesAfterPollInterval(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	stream := newFakeStream()
	dialer := newFakeDialer(
		dialResult{err: errors.New("connection refused")},
		dialResult{stream: stream},
	)
	metrics := NewMetrics()

	s := NewSession(Config{
		Dialer:   dialer,
		Handler:  &recordingHandler{},
		Settings: completeSettings(),
		Clock:    clk,
		Metrics:  metrics,
	})
	startSession(t, s)

	dialer.waitDial(t)
	if err := clk.WaitAdvance(DefaultPollInterval, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	dialer.waitDial(t)

	waitFor(t, "subscribed state", func() bool { return s.State() == StateSubscribed })

	dialer.mu.Lock()
	ids := append([]string(nil), dialer.clientIDs...)
	dialer.mu.Unlock()
	if len(ids) != 2 || ids[0] != ids[1] || ids[0] != s.ClientID() {
		t.Errorf("client ids = %v, want the session's id reused", ids)
	}

	if got := metricValue(t, metrics, "glowlogger_ingest_connect_attempts_total", "result", "failure"); got != 1 {
		t.Errorf("failed connects = %v, want 1", got)
	}
	if got := metricValue(t, metrics, "glowlogger_ingest_session_state", "state", "subscribed"); got != 1 {
		t.Errorf("subscribed gauge = %v, want 1", got)
	}
}

func TestSession_ProcessesMessagesInOrder(t *testing.T) {
	stream := newFakeStream()
	handler := &recordingHandler{}

	s := NewSession(Config{
		Dialer:   newFakeDialer(dialResult{stream: stream}),
		Handler:  handler,
		Settings: completeSettings(),
		Clock:    testclock.NewClock(time.Now()),
	})
	startSession(t, s)

	want := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	for _, p := range want {
		stream.send(p)
	}

	waitFor(t, "all messages handled", func() bool { return len(handler.seen()) == len(want) })

	got := handler.seen()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled order = %v, want %v", got, want)
		}
	}

	handler.mu.Lock()
	maxSeen := handler.maxSeen
	handler.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("max concurrent handlers = %d, want 1", maxSeen)
	}
}

func TestSession_HandlerFailuresDoNotStopLoop(t *testing.T) {
	stream := newFakeStream()
	handler := &recordingHandler{
		fn: func(payload string) error {
			switch payload {
			case "undecodable":
				return &meter.DecodeError{Field: "electricitymeter.power", Reason: "missing"}
			case "storage":
				return &meter.PersistError{Kind: meter.PersistStorage, Op: "commit", Err: errors.New("disk I/O error")}
			case "panic":
				panic("boom")
			}
			return nil
		},
	}

	s := NewSession(Config{
		Dialer:   newFakeDialer(dialResult{stream: stream}),
		Handler:  handler,
		Settings: completeSettings(),
		Clock:    testclock.NewClock(time.Now()),
	})
	startSession(t, s)

	for _, p := range []string{"ok-1", "undecodable", "panic", "storage", "ok-2"} {
		stream.send(p)
	}

	waitFor(t, "all messages handled", func() bool { return len(handler.seen()) == 5 })

	if s.State() != StateSubscribed {
		t.Errorf("State() = %q, want %q", s.State(), StateSubscribed)
	}
	if stream.isClosed() {
		t.Error("stream closed after handler failures")
	}
}

func TestSession_StreamClosedReconnects(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	first := newFakeStream()
	second := newFakeStream()
	dialer := newFakeDialer(dialResult{stream: first}, dialResult{stream: second})
	handler := &recordingHandler{}

	s := NewSession(Config{
		Dialer:   dialer,
		Handler:  handler,
		Settings: completeSettings(),
		Clock:    clk,
	})
	startSession(t, s)

	first.send("before")
	waitFor(t, "first message", func() bool { return len(handler.seen()) == 1 })

	close(first.ch)
	waitFor(t, "first stream closed", first.isClosed)

	if err := clk.WaitAdvance(DefaultPollInterval, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	waitFor(t, "second dial", func() bool { return dialer.calls() == 2 })

	second.send("after")
	waitFor(t, "second message", func() bool { return len(handler.seen()) == 2 })

	if got := handler.seen(); got[0] != "before" || got[1] != "after" {
		t.Errorf("handled = %v", got)
	}
}

func TestSession_RunClosesStreamOnCancel(t *testing.T) {
	stream := newFakeStream()

	s := NewSession(Config{
		Dialer:   newFakeDialer(dialResult{stream: stream}),
		Handler:  &recordingHandler{},
		Settings: completeSettings(),
		Clock:    testclock.NewClock(time.Now()),
	})
	stop := startSession(t, s)

	waitFor(t, "subscribed state", func() bool { return s.State() == StateSubscribed })
	stop()

	if !stream.isClosed() {
		t.Error("stream not closed after Run returned")
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %q, want %q", s.State(), StateDisconnected)
	}
}

func TestSession_CancelWhileIdle(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	dialer := newFakeDialer(dialResult{err: errors.New("no route to host")})

	s := NewSession(Config{
		Dialer:   dialer,
		Handler:  &recordingHandler{},
		Settings: completeSettings(),
		Clock:    clk,
	})
	stop := startSession(t, s)

	dialer.waitDial(t)
	// Never advance the clock: Run must still return promptly.
	stop()
}

func TestConnectError(t *testing.T) {
	inner := errors.New("not authorised")
	err := &ConnectError{Broker: "tcp://glow.local:1883", Topic: "glow/x", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ConnectError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "tcp://glow.local:1883") {
		t.Errorf("Error() = %q, want broker in message", err.Error())
	}
}
