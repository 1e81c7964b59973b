package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded on ledger_operation_duration_seconds
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
)

// AllocationMetrics counts what the allocation services write and reject
type AllocationMetrics struct {
	allocationsWritten *Counter
	amountApplied      *FloatCounter
	rejected           *Counter
	conflicts          *Counter
	duration           *Histogram
}

// NewAllocationMetrics registers the allocation instruments on meter
func NewAllocationMetrics(meter metric.Meter) (*AllocationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		am  AllocationMetrics
		err error
	)
	if am.allocationsWritten, err = NewCounter(meter,
		"ledger_allocations_written_total",
		"Allocation rows committed",
		"{allocations}",
	); err != nil {
		return nil, err
	}
	if am.amountApplied, err = NewFloatCounter(meter,
		"ledger_amount_applied_total",
		"Base amount moved from credit sources to debit documents",
		"{currency}",
	); err != nil {
		return nil, err
	}
	if am.rejected, err = NewCounter(meter,
		"ledger_requests_rejected_total",
		"Allocation requests rejected by validation",
		"{requests}",
	); err != nil {
		return nil, err
	}
	if am.conflicts, err = NewCounter(meter,
		"ledger_concurrency_conflicts_total",
		"Transactions aborted by a concurrent writer",
		"{conflicts}",
	); err != nil {
		return nil, err
	}
	if am.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_operation_duration_seconds",
		Description: "Duration of allocation service operations",
		Unit:        "s",
		Boundaries:  OperationDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return &am, nil
}

// RecordApplied counts committed allocation rows and the amount they moved
func (m *AllocationMetrics) RecordApplied(ctx context.Context, operation string, rows int, amount decimal.Decimal) {
	if m == nil || rows == 0 {
		return
	}
	attrs := []attribute.KeyValue{AttrOperation.String(operation)}
	m.allocationsWritten.Add(ctx, int64(rows), attrs...)
	m.amountApplied.Add(ctx, amount.InexactFloat64(), attrs...)
}

// RecordRejected counts a request refused with the given error code
func (m *AllocationMetrics) RecordRejected(ctx context.Context, operation, code string) {
	if m == nil {
		return
	}
	m.rejected.Inc(ctx, AttrOperation.String(operation), AttrErrorCode.String(code))
}

// RecordConflict counts a transaction lost to a concurrent writer
func (m *AllocationMetrics) RecordConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflicts.Inc(ctx, AttrOperation.String(operation))
}

// RecordDuration records how long an operation took and how it ended
func (m *AllocationMetrics) RecordDuration(ctx context.Context, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.RecordDuration(ctx, d, AttrOperation.String(operation), AttrOutcome.String(outcome))
}
