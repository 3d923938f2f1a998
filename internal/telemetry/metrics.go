// Package telemetry exposes OpenTelemetry meters for the query pipeline
// and the history sync engine.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the core. All methods are
// nil-receiver safe so callers can run uninstrumented.
type Metrics struct {
	queries        metric.Int64Counter
	stageDuration  metric.Float64Histogram
	syncAdmitted   metric.Int64Counter
	syncDuplicates metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/rescuelabs/protocold")

	queries, err := meter.Int64Counter("protocold.queries",
		metric.WithDescription("Query submissions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create queries counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram("protocold.pipeline.stage.duration",
		metric.WithDescription("Pipeline stage duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create stage histogram: %w", err)
	}

	syncAdmitted, err := meter.Int64Counter("protocold.sync.admitted",
		metric.WithDescription("Sync entries admitted as new records"))
	if err != nil {
		return nil, fmt.Errorf("create sync admitted counter: %w", err)
	}

	syncDuplicates, err := meter.Int64Counter("protocold.sync.duplicates",
		metric.WithDescription("Sync entries discarded as duplicates"))
	if err != nil {
		return nil, fmt.Errorf("create sync duplicates counter: %w", err)
	}

	return &Metrics{
		queries:        queries,
		stageDuration:  stageDuration,
		syncAdmitted:   syncAdmitted,
		syncDuplicates: syncDuplicates,
	}, nil
}

// RecordQuery counts one query submission with its outcome
// ("success", "quota_exceeded", "no_matching_protocols", "error").
func (m *Metrics) RecordQuery(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, float64(d.Microseconds())/1000.0,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSync counts admitted and duplicate entries for one sync call.
func (m *Metrics) RecordSync(ctx context.Context, admitted, duplicates int64) {
	if m == nil {
		return
	}
	if admitted > 0 {
		m.syncAdmitted.Add(ctx, admitted)
	}
	if duplicates > 0 {
		m.syncDuplicates.Add(ctx, duplicates)
	}
}
