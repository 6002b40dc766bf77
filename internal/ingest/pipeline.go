package ingest

import (
	"context"
	"errors"

	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

// Recorder stores decoded readings.
type Recorder interface {
	RecordReading(ctx context.Context, r meter.Reading) (bool, error)
}

// Sink receives every newly stored reading, e.g. a time-series mirror.
// WriteReading must not block.
type Sink interface {
	WriteReading(r meter.Reading)
}

// Pipeline is the Handler that decodes a payload and records the reading.
type Pipeline struct {
	recorder Recorder
	sink     Sink
	metrics  *Metrics
	logger   Logger
}

// NewPipeline creates a pipeline that records into recorder.
// metrics may be nil.
func NewPipeline(recorder Recorder, metrics *Metrics) *Pipeline {
	return &Pipeline{
		recorder: recorder,
		metrics:  metrics,
		logger:   noopLogger{},
	}
}

// SetSink sets an optional sink for stored readings.
func (p *Pipeline) SetSink(sink Sink) {
	p.sink = sink
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// Handle decodes msg and records the reading.
//
// Returns *meter.DecodeError for an undecodable payload, or the recorder's
// error when storage fails. A duplicate reading is not an error.
func (p *Pipeline) Handle(ctx context.Context, msg Message) error {
	p.metrics.received()

	reading, err := meter.Decode(msg.Payload)
	if err != nil {
		p.metrics.decodeFailed()
		return err
	}

	inserted, err := p.recorder.RecordReading(ctx, reading)
	if err != nil {
		p.metrics.persistFailed(failureReason(err))
		return err
	}

	if !inserted {
		p.metrics.duplicate()
		p.logger.Debug("duplicate reading discarded",
			"timestamp", reading.StorageTimestamp(),
		)
		return nil
	}

	p.metrics.storedReading()
	p.logger.Debug("reading stored",
		"timestamp", reading.StorageTimestamp(),
		"power", reading.Power.Value,
		"power_units", reading.Power.Units,
	)

	if p.sink != nil {
		p.sink.WriteReading(reading)
	}
	return nil
}

func failureReason(err error) string {
	if errors.Is(err, meter.ErrPoolExhausted) {
		return failurePoolExhausted
	}
	var persistErr *meter.PersistError
	if errors.As(err, &persistErr) && persistErr.Kind == meter.PersistTimestampParse {
		return failureTimestamp
	}
	return failureStorage
}
