package ledger

import (
	"testing"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manualSnapshot() PlanSnapshot {
	return PlanSnapshot{
		Debits: map[int64]*Position{
			1: openPos(testDoc(1, DocumentKindInvoice, "100.00"), "0"),
			2: openPos(testDoc(2, DocumentKindDebitNote, "50.00"), "0"),
		},
		Sources: map[Source]*Position{
			ReceiptSource(10):        openPos(testDoc(10, DocumentKindReceipt, "120.00"), "0"),
			CreditDocumentSource(11): openPos(testDoc(11, DocumentKindCreditNote, "40.00"), "0"),
		},
	}
}

func line(src Source, amount string) ManualLine {
	return ManualLine{SourceKind: src.Kind(), SourceID: src.ID(), Amount: dec(amount)}
}

func codes(v *PlanValidation) []WarningCode {
	out := make([]WarningCode, 0, len(v.Warnings))
	for _, w := range v.Warnings {
		out = append(out, w.Code)
	}
	return out
}

func TestValidateManualPlan(t *testing.T) {
	t.Run("clean plan splitting one source across two debits", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 1, Lines: []ManualLine{line(ReceiptSource(10), "70.00"), line(CreditDocumentSource(11), "30.00")}},
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(10), "50.00")}},
		}}

		v := ValidateManualPlan(plan, manualSnapshot())
		assert.True(t, v.OK(), codes(v))
		require.Len(t, v.Coverage, 2)
		assert.True(t, v.Coverage[0].Proposed.Equal(dec("100.00")))
	})

	t.Run("three-way split of 100 passes exact cover", func(t *testing.T) {
		snap := manualSnapshot()
		snap.Sources[ReceiptSource(12)] = openPos(testDoc(12, DocumentKindReceipt, "33.34"), "0")
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 1, Lines: []ManualLine{
				line(ReceiptSource(10), "33.33"),
				line(CreditDocumentSource(11), "33.33"),
				line(ReceiptSource(12), "33.34"),
			}},
		}}

		v := ValidateManualPlan(plan, snap)
		assert.True(t, v.OK(), codes(v))
	})

	t.Run("cover within tolerance", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(10), "49.99")}},
		}}
		assert.True(t, ValidateManualPlan(plan, manualSnapshot()).OK())

		plan.Groups[0].Lines[0].Amount = dec("49.98")
		v := ValidateManualPlan(plan, manualSnapshot())
		assert.Equal(t, []WarningCode{WarningCoverMismatch}, codes(v))
		assert.Equal(t, shared.CodeInsufficientCoverage, v.Warnings[0].Category)
	})

	t.Run("proposing one cent above pending is rejected", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 1, Lines: []ManualLine{line(ReceiptSource(10), "100.01")}},
		}}

		v := ValidateManualPlan(plan, manualSnapshot())
		assert.Equal(t, []WarningCode{WarningDebitOvercovered}, codes(v))
		assert.Equal(t, shared.CodeInvalidState, v.Warnings[0].Category)
		assert.Equal(t, int64(1), v.Warnings[0].DebitDocumentID)
	})

	t.Run("over-subscribed source warns every debit drawing from it", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 1, Lines: []ManualLine{line(ReceiptSource(10), "80.00"), line(CreditDocumentSource(11), "20.00")}},
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(10), "50.00")}},
		}}

		v := ValidateManualPlan(plan, manualSnapshot())
		require.False(t, v.OK())
		assert.Equal(t, []WarningCode{WarningSourceOverdrawn, WarningSourceOverdrawn}, codes(v))
		assert.ElementsMatch(t, []int64{1, 2}, v.WarnedDebits())
		require.NotNil(t, v.Warnings[0].Source)
		assert.Equal(t, ReceiptSource(10), *v.Warnings[0].Source)
	})

	t.Run("collects every problem instead of stopping", func(t *testing.T) {
		snap := manualSnapshot()
		voided := testDoc(3, DocumentKindInvoice, "10.00")
		voided.Status = DocumentStatusVoided
		snap.Debits[3] = openPos(voided, "0")
		foreign := testDoc(13, DocumentKindReceipt, "10.00")
		foreign.PartyID = otherParty.ID
		snap.Sources[ReceiptSource(13)] = openPos(foreign, "0")

		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 99, Lines: []ManualLine{line(ReceiptSource(10), "1.00")}},
			{DebitDocumentID: 3, Lines: []ManualLine{line(ReceiptSource(13), "10.00")}},
			{DebitDocumentID: 1, Lines: []ManualLine{line(ReceiptSource(77), "50.00"), line(ReceiptSource(10), "-1.00")}},
		}}

		v := ValidateManualPlan(plan, snap)
		assert.Equal(t, []WarningCode{
			WarningDebitNotFound,
			WarningDebitNotActive,
			WarningSourceWrongParty,
			WarningSourceNotFound,
			WarningNonPositiveAmount,
			WarningCoverMismatch,
		}, codes(v))
		assert.Equal(t, shared.CodeNotFound, v.Warnings[0].Category)
		assert.Equal(t, shared.CodeInvalidState, v.Warnings[1].Category)
	})

	t.Run("source tag must match the document kind", func(t *testing.T) {
		snap := manualSnapshot()
		snap.Sources[ReceiptSource(11)] = snap.Sources[CreditDocumentSource(11)]
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(11), "40.00"), line(ReceiptSource(10), "10.00")}},
		}}

		v := ValidateManualPlan(plan, snap)
		assert.Equal(t, []WarningCode{WarningSourceWrongKind}, codes(v))
	})

	t.Run("debit must be an invoice or debit note of the party", func(t *testing.T) {
		snap := manualSnapshot()
		snap.Debits[11] = snap.Sources[CreditDocumentSource(11)]
		other := testDoc(4, DocumentKindInvoice, "10.00")
		other.PartyType = PartyTypeSupplier
		snap.Debits[4] = openPos(other, "0")

		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 11, Lines: []ManualLine{line(ReceiptSource(10), "40.00")}},
			{DebitDocumentID: 4, Lines: []ManualLine{line(ReceiptSource(10), "10.00")}},
		}}

		v := ValidateManualPlan(plan, snap)
		assert.Equal(t, []WarningCode{WarningDebitWrongKind, WarningDebitWrongParty}, codes(v))
	})

	t.Run("duplicated debit and empty group", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(10), "50.00")}},
			{DebitDocumentID: 2, Lines: []ManualLine{line(CreditDocumentSource(11), "1.00")}},
			{DebitDocumentID: 1},
		}}

		v := ValidateManualPlan(plan, manualSnapshot())
		assert.Equal(t, []WarningCode{WarningDebitDuplicated, WarningEmptyGroup}, codes(v))
	})

	t.Run("plan helpers list distinct ids", func(t *testing.T) {
		plan := ManualPlan{Party: testParty, Groups: []ManualGroup{
			{DebitDocumentID: 2, Lines: []ManualLine{line(ReceiptSource(10), "1"), line(ReceiptSource(10), "1")}},
			{DebitDocumentID: 1, Lines: []ManualLine{line(CreditDocumentSource(10), "1")}},
			{DebitDocumentID: 2},
		}}
		assert.Equal(t, []int64{2, 1}, plan.DebitIDs())
		assert.Equal(t, []Source{ReceiptSource(10), CreditDocumentSource(10)}, plan.Sources())
	})
}
