package ledger

import (
	"time"

	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Balances is the aggregate position of a party
type Balances struct {
	Outstanding decimal.Decimal `json:"outstanding"` // uncovered debit
	Credits     decimal.Decimal `json:"credits"`     // unconsumed credit
	Net         decimal.Decimal `json:"net"`         // outstanding - credits
}

// StatementLine is one document of an account statement
type StatementLine struct {
	DocumentID int64           `json:"document_id"`
	Kind       DocumentKind    `json:"kind"`
	Number     string          `json:"number"`
	IssuedAt   time.Time       `json:"issued_at"`
	TotalBase  decimal.Decimal `json:"total_base"`
	Allocated  decimal.Decimal `json:"allocated"`
	Open       decimal.Decimal `json:"open"`
}

// Statement lists a party's active documents with their open amounts
type Statement struct {
	Party    Party           `json:"party"`
	Lines    []StatementLine `json:"lines"`
	Balances Balances        `json:"balances"`
}

// AllocationSums holds allocated totals keyed by document id. Debit documents
// are looked up in ByTarget, credit sources in BySource. A missing key is zero.
type AllocationSums struct {
	ByTarget map[int64]decimal.Decimal
	BySource map[int64]decimal.Decimal
}

// AllocatedTo returns the allocated total for a document on its own side
func (s AllocationSums) AllocatedTo(doc *LedgerDocument) decimal.Decimal {
	var m map[int64]decimal.Decimal
	if doc.Kind.IsDebit() {
		m = s.ByTarget
	} else {
		m = s.BySource
	}
	if v, ok := m[doc.ID]; ok {
		return valueobject.Round2(v)
	}
	return decimal.Zero
}

// ComputeBalances aggregates outstanding debt and available credit. Voided
// documents are ignored. Debit pendings are floored at zero; every partial sum
// is rounded.
func ComputeBalances(docs []LedgerDocument, sums AllocationSums) Balances {
	outstanding := decimal.Zero
	credits := decimal.Zero

	for i := range docs {
		doc := &docs[i]
		if !doc.IsActive() {
			continue
		}
		open := doc.OpenAmount(sums.AllocatedTo(doc))
		switch {
		case doc.Kind.IsDebit():
			outstanding = valueobject.Sum(outstanding, decimal.Max(open, decimal.Zero))
		case doc.Kind.IsCredit():
			credits = valueobject.Sum(credits, open)
		}
	}

	return Balances{
		Outstanding: outstanding,
		Credits:     credits,
		Net:         valueobject.Sub(outstanding, credits),
	}
}

// BuildStatement produces one line per active document in the given order
// together with the aggregate balances
func BuildStatement(party Party, docs []LedgerDocument, sums AllocationSums) *Statement {
	lines := make([]StatementLine, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if !doc.IsActive() {
			continue
		}
		allocated := sums.AllocatedTo(doc)
		lines = append(lines, StatementLine{
			DocumentID: doc.ID,
			Kind:       doc.Kind,
			Number:     doc.Number,
			IssuedAt:   doc.IssuedAt,
			TotalBase:  doc.TotalBase,
			Allocated:  allocated,
			Open:       doc.OpenAmount(allocated),
		})
	}
	return &Statement{
		Party:    party,
		Lines:    lines,
		Balances: ComputeBalances(docs, sums),
	}
}
