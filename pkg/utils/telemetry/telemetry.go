// Package telemetry exposes the OpenTelemetry tracer and metric instruments of the
// planning pipeline. Both use the global providers, which are no-ops unless the
// host process installs real ones.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jakechorley/clinic-planner"

// Metrics holds the pipeline instruments
type Metrics struct {
	SolveDuration      metric.Float64Histogram
	AssignmentsWritten metric.Int64Counter
	InfeasibleOutcomes metric.Int64Counter
	SolverErrors       metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
	metricsErr  error
)

// InitMetrics creates the pipeline instruments on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	solveDuration, err := meter.Float64Histogram(
		"planner.solve.duration",
		metric.WithDescription("Duration of a model solve in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	assignmentsWritten, err := meter.Int64Counter(
		"planner.assignments.written",
		metric.WithDescription("Number of slot assignments written"),
	)
	if err != nil {
		return nil, err
	}

	infeasible, err := meter.Int64Counter(
		"planner.outcome.infeasible",
		metric.WithDescription("Number of dates whose model was infeasible"),
	)
	if err != nil {
		return nil, err
	}

	solverErrors, err := meter.Int64Counter(
		"planner.outcome.solver_error",
		metric.WithDescription("Number of dates whose solve failed"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		SolveDuration:      solveDuration,
		AssignmentsWritten: assignmentsWritten,
		InfeasibleOutcomes: infeasible,
		SolverErrors:       solverErrors,
	}, nil
}

// Instruments returns the process-wide instruments, created on first use
func Instruments() (*Metrics, error) {
	metricsOnce.Do(func() {
		metrics, metricsErr = InitMetrics()
	})
	return metrics, metricsErr
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error in the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}
