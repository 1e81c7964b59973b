package ledger

import (
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Position is a document together with its open amount: pending for debit
// documents, available for credit sources.
type Position struct {
	Document *LedgerDocument
	Open     decimal.Decimal
}

// NewPosition derives the open amount from the allocations already recorded
func NewPosition(doc *LedgerDocument, allocated decimal.Decimal) *Position {
	return &Position{
		Document: doc,
		Open:     doc.OpenAmount(allocated),
	}
}

// Take reduces the open amount and returns the new value
func (p *Position) Take(amount decimal.Decimal) decimal.Decimal {
	p.Open = valueobject.Sub(p.Open, amount)
	return p.Open
}

// Versions collects the version token of every document in the positions
func Versions(positions ...*Position) map[int64]int {
	out := make(map[int64]int, len(positions))
	for _, p := range positions {
		if p == nil || p.Document == nil {
			continue
		}
		out[p.Document.ID] = p.Document.Version
	}
	return out
}
