package allocation

import (
	"context"
	"testing"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func receiptPick(doc *ledger.LedgerDocument) CreditPick {
	return CreditPick{SourceKind: ledger.SourceKindReceipt, SourceID: doc.ID}
}

func notePick(doc *ledger.LedgerDocument) CreditPick {
	return CreditPick{SourceKind: ledger.SourceKindCreditDocument, SourceID: doc.ID}
}

func TestOrderedCreditService_GreedyOrder(t *testing.T) {
	tests := []struct {
		name     string
		reversed bool
		wantA    string
		wantB    string
		leftA    string
		leftB    string
	}{
		{name: "A then B", wantA: "40.00", wantB: "60.00", leftA: "0.00", leftB: "30.00"},
		{name: "B then A", reversed: true, wantA: "10.00", wantB: "90.00", leftA: "30.00", leftB: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			svc := NewOrderedCreditService(env.scope)

			invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "100.00")
			a := env.seed(t, customer, ledger.DocumentKindReceipt, "40.00")
			b := env.seed(t, customer, ledger.DocumentKindCreditNote, "90.00")
			picks := []CreditPick{receiptPick(a), notePick(b)}
			if tt.reversed {
				picks = []CreditPick{notePick(b), receiptPick(a)}
			}

			result, err := svc.Apply(context.Background(), OrderedCreditRequest{
				Party:           customer,
				DebitDocumentID: invoice.ID,
				Picks:           picks,
			})
			require.NoError(t, err)

			assertDec(t, "100.00", result.Pending)
			assertDec(t, "100.00", result.AppliedTotal)
			assertDec(t, "0.00", result.Remaining)
			require.Len(t, result.Splits, 2)

			applied := map[int64]string{}
			for _, s := range result.Splits {
				assert.NotZero(t, s.AllocationID)
				applied[s.Source.ID()] = s.Amount.StringFixed(2)
			}
			assert.Equal(t, tt.wantA, applied[a.ID])
			assert.Equal(t, tt.wantB, applied[b.ID])

			assertDec(t, "0.00", env.open(t, invoice))
			assertDec(t, tt.leftA, env.open(t, a))
			assertDec(t, tt.leftB, env.open(t, b))
		})
	}
}

func TestOrderedCreditService_RetryIsNoop(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "50.00")
	receipt := env.seed(t, customer, ledger.DocumentKindReceipt, "80.00")
	req := OrderedCreditRequest{Party: customer, DebitDocumentID: invoice.ID, Picks: []CreditPick{receiptPick(receipt)}}

	first, err := svc.Apply(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Splits, 1)

	second, err := svc.Apply(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, second.Splits)
	assertDec(t, "0.00", second.AppliedTotal)
	assert.Equal(t, 1, env.allocationCount(t))
	assertDec(t, "30.00", env.open(t, receipt))
}

func TestOrderedCreditService_InsufficientCoverage(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "100.00")
	a := env.seed(t, customer, ledger.DocumentKindReceipt, "40.00")
	b := env.seed(t, customer, ledger.DocumentKindReceipt, "59.98")

	_, err := svc.Apply(context.Background(), OrderedCreditRequest{
		Party:           customer,
		DebitDocumentID: invoice.ID,
		Picks:           []CreditPick{receiptPick(a), receiptPick(b)},
	})
	assert.ErrorIs(t, err, shared.ErrInsufficientCoverage)
	assert.Zero(t, env.allocationCount(t))
}

func TestOrderedCreditService_WithinToleranceLeavesCent(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "100.00")
	a := env.seed(t, customer, ledger.DocumentKindReceipt, "99.99")

	result, err := svc.Apply(context.Background(), OrderedCreditRequest{
		Party:           customer,
		DebitDocumentID: invoice.ID,
		Picks:           []CreditPick{receiptPick(a)},
	})
	require.NoError(t, err)
	assertDec(t, "99.99", result.AppliedTotal)
	assertDec(t, "0.01", result.Remaining)
}

func TestOrderedCreditService_RoundingCoversExactly(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "100.00")
	r1 := env.seed(t, customer, ledger.DocumentKindReceipt, "33.33")
	r2 := env.seed(t, customer, ledger.DocumentKindReceipt, "33.33")
	r3 := env.seed(t, customer, ledger.DocumentKindReceipt, "33.34")

	result, err := svc.Apply(context.Background(), OrderedCreditRequest{
		Party:           customer,
		DebitDocumentID: invoice.ID,
		Picks:           []CreditPick{receiptPick(r1), receiptPick(r2), receiptPick(r3)},
	})
	require.NoError(t, err)
	assert.Len(t, result.Splits, 3)
	assertDec(t, "0.00", env.open(t, invoice))
}

func TestOrderedCreditService_Rejections(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "10.00")
	receipt := env.seed(t, customer, ledger.DocumentKindReceipt, "10.00")
	foreign := env.seed(t, stranger, ledger.DocumentKindReceipt, "10.00")
	voidable := env.seed(t, customer, ledger.DocumentKindReceipt, "10.00")
	_, err := NewDocumentService(env.scope).Void(ctx, customer, voidable.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  OrderedCreditRequest
		want error
	}{
		{"receipt tagged as credit document", OrderedCreditRequest{customer, invoice.ID, []CreditPick{notePick(receipt)}}, shared.ErrInvalidState},
		{"source of another party", OrderedCreditRequest{customer, invoice.ID, []CreditPick{receiptPick(foreign)}}, shared.ErrInvalidState},
		{"voided source", OrderedCreditRequest{customer, invoice.ID, []CreditPick{receiptPick(voidable)}}, shared.ErrInvalidState},
		{"receipt as target", OrderedCreditRequest{customer, receipt.ID, []CreditPick{receiptPick(receipt)}}, shared.ErrInvalidState},
		{"unknown target", OrderedCreditRequest{customer, 999, []CreditPick{receiptPick(receipt)}}, shared.ErrNotFound},
		{"unknown source", OrderedCreditRequest{customer, invoice.ID, []CreditPick{{ledger.SourceKindReceipt, 999}}}, shared.ErrNotFound},
		{"unknown tag", OrderedCreditRequest{customer, invoice.ID, []CreditPick{{"CASH", receipt.ID}}}, shared.ErrInvalidInput},
		{"no picks", OrderedCreditRequest{customer, invoice.ID, nil}, shared.ErrInvalidInput},
		{"bad party", OrderedCreditRequest{ledger.Party{Type: "VENDOR", ID: 1}, invoice.ID, []CreditPick{receiptPick(receipt)}}, shared.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, env.allocationCount(t))
}

func TestOrderedCreditService_SuggestPicks(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderedCreditService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "70.00")
	settled := env.seed(t, customer, ledger.DocumentKindInvoice, "10.00")
	older := env.seed(t, customer, ledger.DocumentKindReceipt, "50.00")
	newer := env.seed(t, customer, ledger.DocumentKindCreditNote, "50.00")
	spent := env.seed(t, customer, ledger.DocumentKindReceipt, "10.00")
	env.seed(t, stranger, ledger.DocumentKindReceipt, "99.00")

	_, err := svc.Apply(ctx, OrderedCreditRequest{
		Party: customer, DebitDocumentID: settled.ID, Picks: []CreditPick{receiptPick(spent)},
	})
	require.NoError(t, err)

	suggestions, err := svc.SuggestPicks(ctx, customer)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, ledger.ReceiptSource(older.ID), suggestions[0].Source)
	assert.Equal(t, ledger.CreditDocumentSource(newer.ID), suggestions[1].Source)

	result, err := svc.Apply(ctx, OrderedCreditRequest{
		Party: customer, DebitDocumentID: invoice.ID, Picks: PicksFromSuggestions(suggestions),
	})
	require.NoError(t, err)
	assertDec(t, "70.00", result.AppliedTotal)
	assertDec(t, "0.00", env.open(t, invoice))
	assertDec(t, "0.00", env.open(t, older))
	assertDec(t, "30.00", env.open(t, newer))
	assertDec(t, "0.00", env.open(t, spent))
}

func TestOrderedCreditService_RecordsMetrics(t *testing.T) {
	env := newTestEnv(t)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewAllocationMetrics(provider.Meter("test"))
	require.NoError(t, err)

	svc := NewOrderedCreditService(env.scope, WithMetrics(metrics))
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "25.00")
	receipt := env.seed(t, customer, ledger.DocumentKindReceipt, "10.00")

	_, err = svc.Apply(ctx, OrderedCreditRequest{Party: customer, DebitDocumentID: invoice.ID, Picks: []CreditPick{receiptPick(receipt)}})
	require.ErrorIs(t, err, shared.ErrInsufficientCoverage)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var rejected int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "ledger_requests_rejected_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				rejected += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), rejected)
}
