package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

// healthCheckTimeout bounds the database probes made by /health.
const healthCheckTimeout = 2 * time.Second

// Overall health values.
const (
	healthOK          = "ok"
	healthDegraded    = "degraded"
	healthUnavailable = "unavailable"
)

// HealthResponse is the body returned by /health.
type HealthResponse struct {
	Status      string             `json:"status"`
	Version     string             `json:"version,omitempty"`
	Database    ComponentHealth    `json:"database"`
	Session     *SessionHealth     `json:"session,omitempty"`
	Readings    ReadingsHealth     `json:"readings"`
	Maintenance *MaintenanceHealth `json:"maintenance,omitempty"`
	InfluxDB    *ComponentHealth   `json:"influxdb,omitempty"`
}

// ComponentHealth reports a single dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SessionHealth reports the broker session.
type SessionHealth struct {
	State    string `json:"state"`
	ClientID string `json:"client_id"`
}

// ReadingsHealth reports stored reading totals.
type ReadingsHealth struct {
	Count  int    `json:"count"`
	Latest string `json:"latest,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MaintenanceHealth reports the WAL checkpoint task.
type MaintenanceHealth struct {
	Runs               int    `json:"runs"`
	Failures           int    `json:"failures"`
	LastRun            string `json:"last_run,omitempty"`
	LastError          string `json:"last_error,omitempty"`
	LogFrames          int    `json:"log_frames"`
	CheckpointedFrames int    `json:"checkpointed_frames"`
}

// handleHealth reports process health.
//
// An unreachable database answers 503. A session that is not subscribed,
// a failing reading query or an unreachable InfluxDB mirror answers 200
// with status "degraded": SQLite is the system of record and the process
// recovers on its own.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   healthOK,
		Version:  s.version,
		Database: ComponentHealth{Status: healthOK},
	}

	if err := s.db.HealthCheck(ctx); err != nil {
		resp.Status = healthUnavailable
		resp.Database = ComponentHealth{Status: healthUnavailable, Error: err.Error()}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if s.session != nil {
		state := s.session.State()
		resp.Session = &SessionHealth{State: string(state), ClientID: s.session.ClientID()}
		if state != ingest.StateSubscribed {
			resp.Status = healthDegraded
		}
	}

	resp.Readings = s.readingTotals(ctx)
	if resp.Readings.Error != "" {
		resp.Status = healthDegraded
	}

	if s.maintenance != nil {
		st := s.maintenance.Status()
		mh := &MaintenanceHealth{
			Runs:               st.Runs,
			Failures:           st.Failures,
			LastError:          st.LastError,
			LogFrames:          st.Last.LogFrames,
			CheckpointedFrames: st.Last.CheckpointedFrames,
		}
		if !st.LastRun.IsZero() {
			mh.LastRun = st.LastRun.UTC().Format(time.RFC3339)
		}
		resp.Maintenance = mh
	}

	if s.mirror != nil {
		resp.InfluxDB = &ComponentHealth{Status: healthOK}
		if err := s.mirror.HealthCheck(ctx); err != nil {
			resp.InfluxDB = &ComponentHealth{Status: healthUnavailable, Error: err.Error()}
			resp.Status = healthDegraded
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readingTotals(ctx context.Context) ReadingsHealth {
	count, err := s.readings.Count(ctx)
	if err != nil {
		return ReadingsHealth{Error: err.Error()}
	}
	latest, ok, err := s.readings.Latest(ctx)
	if err != nil {
		return ReadingsHealth{Count: count, Error: err.Error()}
	}
	out := ReadingsHealth{Count: count}
	if ok {
		out.Latest = latest.Format(meter.WireTimestampLayout)
	}
	return out
}
