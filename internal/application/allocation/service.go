// Package allocation orchestrates the ledger allocation strategies: each
// operation opens one transaction, locks and re-reads the documents it
// touches, validates with the pure functions of the ledger package and only
// then writes.
package allocation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/infrastructure/logger"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a service
type Option func(*base)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics sets the allocation metrics
func WithMetrics(m *telemetry.AllocationMetrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

// base carries what every service needs
type base struct {
	scope    ledger.TransactionScope
	logger   *zap.Logger
	metrics  *telemetry.AllocationMetrics
	validate *validator.Validate
	name     string
}

func newBase(name string, scope ledger.TransactionScope, opts ...Option) base {
	b := base{
		scope:    scope,
		logger:   zap.NewNop(),
		validate: newValidator(),
		name:     name,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.Named(name)
	return b
}

// op tracks one service call from span start to outcome
type op struct {
	b      *base
	name   string
	span   trace.Span
	start  time.Time
	noop   bool
	logger *zap.Logger
}

func (b *base) begin(ctx context.Context, method string, attrs ...telemetry.SpanOption) (context.Context, *op) {
	ctx, span := telemetry.StartServiceSpan(ctx, b.name, method, attrs...)
	return ctx, &op{
		b:      b,
		name:   method,
		span:   span,
		start:  time.Now(),
		logger: logger.L(ctx, b.logger).With(zap.String("operation", method)),
	}
}

// end closes the span and records the outcome. Rejections are domain errors
// raised by validation; conflicts come from a concurrent writer.
func (o *op) end(ctx context.Context, err error) {
	defer o.span.End()

	elapsed := time.Since(o.start)
	switch {
	case err == nil && o.noop:
		telemetry.AddEvent(o.span, "nothing_to_apply")
		o.b.metrics.RecordDuration(ctx, o.name, telemetry.OutcomeNoop, elapsed)
	case err == nil:
		o.b.metrics.RecordDuration(ctx, o.name, telemetry.OutcomeCommitted, elapsed)
	case errors.Is(err, shared.ErrConcurrencyConflict):
		telemetry.RecordError(o.span, err)
		o.b.metrics.RecordConflict(ctx, o.name)
		o.b.metrics.RecordDuration(ctx, o.name, telemetry.OutcomeFailed, elapsed)
		o.logger.Warn("Concurrent modification, transaction rolled back", zap.Error(err))
	case shared.CodeOf(err) != "":
		code := shared.CodeOf(err)
		telemetry.RecordError(o.span, err)
		telemetry.SetAttributes(o.span, telemetry.SpanAttrErrorCode, code)
		o.b.metrics.RecordRejected(ctx, o.name, code)
		o.b.metrics.RecordDuration(ctx, o.name, telemetry.OutcomeRejected, elapsed)
		o.logger.Warn("Request rejected", zap.String("code", code), zap.Error(err))
	default:
		telemetry.RecordError(o.span, err)
		o.b.metrics.RecordDuration(ctx, o.name, telemetry.OutcomeFailed, elapsed)
		o.logger.Error("Operation failed", zap.Error(err))
	}
}

// lockedDocuments is a consistent read of documents and their allocated
// totals taken inside one transaction
type lockedDocuments struct {
	docs      map[int64]*ledger.LedgerDocument
	allocated map[int64]decimal.Decimal
}

// loadDocuments reads the documents with the given ids, row-locking them when
// forUpdate is set, and sums their allocations on the side matching each
// document's kind. Unknown ids are simply absent.
func loadDocuments(ctx context.Context, store ledger.Store, ids []int64, forUpdate bool) (*lockedDocuments, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return snapshotOf(ctx, store, nil)
	}
	docs, err := store.FindDocuments(ctx, ledger.DocumentFilter{IDs: ids, ForUpdate: forUpdate})
	if err != nil {
		return nil, err
	}
	return snapshotOf(ctx, store, docs)
}

// snapshotOf sums the allocations of documents already read in this transaction
func snapshotOf(ctx context.Context, store ledger.Store, docs []ledger.LedgerDocument) (*lockedDocuments, error) {
	out := &lockedDocuments{
		docs:      make(map[int64]*ledger.LedgerDocument, len(docs)),
		allocated: make(map[int64]decimal.Decimal, len(docs)),
	}
	var debits, receipts, credits []int64
	for i := range docs {
		doc := &docs[i]
		out.docs[doc.ID] = doc
		switch doc.Kind {
		case ledger.DocumentKindReceipt:
			receipts = append(receipts, doc.ID)
		case ledger.DocumentKindCreditNote:
			credits = append(credits, doc.ID)
		default:
			debits = append(debits, doc.ID)
		}
	}
	if err := out.addSums(ctx, store, debits, receipts, credits); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *lockedDocuments) addSums(ctx context.Context, store ledger.Store, debits, receipts, credits []int64) error {
	merge := func(sums map[int64]decimal.Decimal) {
		for id, v := range sums {
			l.allocated[id] = v
		}
	}
	if len(debits) > 0 {
		sums, err := store.SumAllocationsByTarget(ctx, debits)
		if err != nil {
			return err
		}
		merge(sums)
	}
	if len(receipts) > 0 {
		sums, err := store.SumAllocationsBySource(ctx, ledger.SourceKindReceipt, receipts)
		if err != nil {
			return err
		}
		merge(sums)
	}
	if len(credits) > 0 {
		sums, err := store.SumAllocationsBySource(ctx, ledger.SourceKindCreditDocument, credits)
		if err != nil {
			return err
		}
		merge(sums)
	}
	return nil
}

// position returns the document with its open amount, or nil when unknown
func (l *lockedDocuments) position(id int64) *ledger.Position {
	doc, ok := l.docs[id]
	if !ok {
		return nil
	}
	allocated, ok := l.allocated[id]
	if !ok {
		allocated = decimal.Zero
	}
	return ledger.NewPosition(doc, allocated)
}

// sourcePositions keys the positions of the requested sources by source
func (l *lockedDocuments) sourcePositions(sources []ledger.Source) map[ledger.Source]*ledger.Position {
	out := make(map[ledger.Source]*ledger.Position, len(sources))
	for _, src := range sources {
		if pos := l.position(src.ID()); pos != nil {
			out[src] = pos
		}
	}
	return out
}

// versions returns the version token of each listed document that was loaded
func (l *lockedDocuments) versions(ids ...int64) map[int64]int {
	out := make(map[int64]int, len(ids))
	for _, id := range ids {
		if doc, ok := l.docs[id]; ok {
			out[id] = doc.Version
		}
	}
	return out
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sourceIDs(sources []ledger.Source) []int64 {
	ids := make([]int64, len(sources))
	for i, s := range sources {
		ids[i] = s.ID()
	}
	return ids
}

func partyAttrs(p ledger.Party) []telemetry.SpanOption {
	return []telemetry.SpanOption{
		telemetry.WithAttribute(telemetry.SpanAttrPartyType, p.Type.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPartyID, p.ID),
	}
}
