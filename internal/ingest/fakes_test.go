package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// fakeStream is an in-memory Stream. Closing ch simulates the transport
// giving up on the connection.
type fakeStream struct {
	ch chan Message

	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan Message, 16)}
}

func (s *fakeStream) Messages() <-chan Message {
	return s.ch
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) send(payload string) {
	s.ch <- Message{Topic: "glow/test/SENSOR/electricitymeter", Payload: []byte(payload)}
}

// dialResult is one scripted outcome for fakeDialer.
type dialResult struct {
	stream *fakeStream
	err    error
}

// fakeDialer returns scripted results in order.
type fakeDialer struct {
	mu        sync.Mutex
	results   []dialResult
	clientIDs []string
	dialed    chan struct{}
}

func newFakeDialer(results ...dialResult) *fakeDialer {
	return &fakeDialer{
		results: results,
		dialed:  make(chan struct{}, 16),
	}
}

func (d *fakeDialer) Dial(_ context.Context, clientID string, _ Settings) (Stream, error) {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.dialed <- struct{}{}
	}()

	d.clientIDs = append(d.clientIDs, clientID)
	if len(d.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.stream, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clientIDs)
}

func (d *fakeDialer) waitDial(t *testing.T) {
	t.Helper()
	select {
	case <-d.dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Dial")
	}
}

// recordingHandler keeps every payload it sees.
type recordingHandler struct {
	mu       sync.Mutex
	payloads []string
	inFlight int
	maxSeen  int
	fn       func(payload string) error
}

func (h *recordingHandler) Handle(_ context.Context, msg Message) error {
	h.mu.Lock()
	h.inFlight++
	if h.inFlight > h.maxSeen {
		h.maxSeen = h.inFlight
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inFlight--
		h.payloads = append(h.payloads, string(msg.Payload))
		h.mu.Unlock()
	}()

	time.Sleep(time.Millisecond)
	if h.fn != nil {
		return h.fn(string(msg.Payload))
	}
	return nil
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.payloads...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// metricValue gathers m and returns the counter or gauge value for name
// with the given label pair (empty label matches an unlabelled metric).
func metricValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()

	reg := prometheus.NewRegistry()
	reg.MustRegister(m)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" {
				matched := false
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == label && lp.GetValue() == value {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}
