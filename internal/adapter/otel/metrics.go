// Package otel provides metric instruments and the OTLP exporter setup.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pagecraft"

// Metrics holds all pagecraft metric instruments. Services treat a nil
// *Metrics as metrics-disabled and skip recording.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	SessionsCompleted metric.Int64Counter
	SessionsFailed    metric.Int64Counter
	SessionsCancelled metric.Int64Counter
	PatchConflicts    metric.Int64Counter
	CommandsRun       metric.Int64Counter
	SessionDuration   metric.Float64Histogram
	BuildDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("pagecraft.sessions.started",
		metric.WithDescription("Number of edit sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsCompleted, err = meter.Int64Counter("pagecraft.sessions.completed",
		metric.WithDescription("Number of edit sessions completed"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("pagecraft.sessions.failed",
		metric.WithDescription("Number of edit sessions failed"))
	if err != nil {
		return nil, err
	}

	m.SessionsCancelled, err = meter.Int64Counter("pagecraft.sessions.cancelled",
		metric.WithDescription("Number of edit sessions cancelled"))
	if err != nil {
		return nil, err
	}

	m.PatchConflicts, err = meter.Int64Counter("pagecraft.patches.conflicts",
		metric.WithDescription("Number of patch applications rejected with a conflict"))
	if err != nil {
		return nil, err
	}

	m.CommandsRun, err = meter.Int64Counter("pagecraft.commands.run",
		metric.WithDescription("Number of sandboxed commands executed"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("pagecraft.session.duration_seconds",
		metric.WithDescription("Edit session duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.BuildDuration, err = meter.Float64Histogram("pagecraft.build.duration_seconds",
		metric.WithDescription("Static site rebuild duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
