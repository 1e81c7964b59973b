package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	testParty  = Party{Type: PartyTypeCustomer, ID: 7}
	otherParty = Party{Type: PartyTypeCustomer, ID: 8}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testDoc(id int64, kind DocumentKind, total string) *LedgerDocument {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
	return &LedgerDocument{
		ID:        id,
		PartyType: testParty.Type,
		PartyID:   testParty.ID,
		Kind:      kind,
		Status:    DocumentStatusActive,
		TotalBase: dec(total),
		FxRate:    decimal.NewFromInt(1),
		IssuedAt:  issued,
		CreatedAt: issued,
		Version:   1,
	}
}

func openPos(doc *LedgerDocument, allocated string) *Position {
	return NewPosition(doc, dec(allocated))
}
