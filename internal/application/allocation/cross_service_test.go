package allocation

import (
	"context"
	"testing"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crossRequest(invoice *ledger.LedgerDocument, lines ...ledger.CrossLine) CrossAllocationRequest {
	return CrossAllocationRequest{
		Party:            customer,
		SourceKind:       invoice.SourceKind,
		SourceDocumentID: invoice.SourceDocumentID,
		Lines:            lines,
	}
}

func line(receipt *ledger.LedgerDocument, amount string) ledger.CrossLine {
	return ledger.CrossLine{ReceiptID: receipt.ID, Amount: dec(amount)}
}

func TestCrossAllocationService_ExactCover(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCrossAllocationService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "150.00")
	r1 := env.seed(t, customer, ledger.DocumentKindReceipt, "100.00")
	r2 := env.seed(t, customer, ledger.DocumentKindReceipt, "80.00")

	result, err := svc.Apply(ctx, crossRequest(invoice, line(r1, "100.00"), line(r2, "50.00")))
	require.NoError(t, err)

	assert.NotZero(t, result.BatchID)
	assert.NotEqual(t, uuid.Nil, result.Reference)
	assert.Equal(t, invoice.ID, result.TargetDocumentID)
	assertDec(t, "150.00", result.TotalApplied)
	require.Len(t, result.Items, 2)
	assert.Equal(t, r1.ID, result.Items[0].SourceDocumentID)
	assert.NotZero(t, result.Items[0].AllocationID)

	assertDec(t, "0.00", env.open(t, invoice))
	assertDec(t, "0.00", env.open(t, r1))
	assertDec(t, "30.00", env.open(t, r2))
	assert.Equal(t, 2, env.version(t, invoice.ID))

	batch, err := svc.GetBatch(ctx, customer, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, result.Reference, batch.Reference)
	assert.Len(t, batch.Items, 2)

	_, err = svc.GetBatch(ctx, stranger, result.BatchID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCrossAllocationService_RejectsInexactCover(t *testing.T) {
	for _, second := range []string{"49.99", "50.01"} {
		t.Run(second, func(t *testing.T) {
			env := newTestEnv(t)
			svc := NewCrossAllocationService(env.scope)

			invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "150.00")
			r1 := env.seed(t, customer, ledger.DocumentKindReceipt, "100.00")
			r2 := env.seed(t, customer, ledger.DocumentKindReceipt, "80.00")

			_, err := svc.Apply(context.Background(), crossRequest(invoice, line(r1, "100.00"), line(r2, second)))
			assert.ErrorIs(t, err, shared.ErrInsufficientCoverage)
			assert.Zero(t, env.allocationCount(t))
			assert.Equal(t, 1, env.version(t, invoice.ID))
		})
	}
}

func TestCrossAllocationService_Rejections(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCrossAllocationService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "100.00")
	receipt := env.seed(t, customer, ledger.DocumentKindReceipt, "60.00")
	foreign := env.seed(t, stranger, ledger.DocumentKindReceipt, "100.00")
	note := env.seed(t, customer, ledger.DocumentKindCreditNote, "100.00")

	tests := []struct {
		name string
		req  CrossAllocationRequest
		want error
	}{
		{
			name: "receipt listed twice beyond its available amount",
			req:  crossRequest(invoice, line(receipt, "50.00"), line(receipt, "50.00")),
			want: shared.ErrInsufficientCoverage,
		},
		{
			name: "receipt of another party",
			req:  crossRequest(invoice, line(foreign, "100.00")),
			want: shared.ErrInvalidState,
		},
		{
			name: "credit note is not a receipt",
			req:  crossRequest(invoice, line(note, "100.00")),
			want: shared.ErrInvalidState,
		},
		{
			name: "zero amount",
			req:  crossRequest(invoice, line(receipt, "0.00"), line(receipt, "60.00")),
			want: shared.ErrInvalidState,
		},
		{
			name: "unknown receipt",
			req:  crossRequest(invoice, ledger.CrossLine{ReceiptID: 999, Amount: dec("100.00")}),
			want: shared.ErrNotFound,
		},
		{
			name: "unknown invoice",
			req: CrossAllocationRequest{
				Party: customer, SourceKind: "erp", SourceDocumentID: "missing",
				Lines: []ledger.CrossLine{line(receipt, "10.00")},
			},
			want: shared.ErrNotFound,
		},
		{
			name: "no lines",
			req:  crossRequest(invoice),
			want: shared.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, env.allocationCount(t))
}

func TestCrossAllocationService_InvoiceOfAnotherParty(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCrossAllocationService(env.scope)

	invoice := env.seed(t, stranger, ledger.DocumentKindInvoice, "10.00")
	receipt := env.seed(t, customer, ledger.DocumentKindReceipt, "10.00")

	_, err := svc.Apply(context.Background(), crossRequest(invoice, line(receipt, "10.00")))
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCrossAllocationService_NothingPending(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCrossAllocationService(env.scope)
	ctx := context.Background()

	invoice := env.seed(t, customer, ledger.DocumentKindInvoice, "40.00")
	r1 := env.seed(t, customer, ledger.DocumentKindReceipt, "40.00")
	r2 := env.seed(t, customer, ledger.DocumentKindReceipt, "40.00")

	_, err := svc.Apply(ctx, crossRequest(invoice, line(r1, "40.00")))
	require.NoError(t, err)

	_, err = svc.Apply(ctx, crossRequest(invoice, line(r2, "40.00")))
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assertDec(t, "40.00", env.open(t, r2))
}
