package ledger

import (
	"fmt"
	"time"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Allocation applies part of a credit source to a debit document.
// Allocations are immutable; removing one means deleting the row.
type Allocation struct {
	ID              int64           `json:"id"`
	PartyType       PartyType       `json:"party_type"`
	PartyID         int64           `json:"party_id"`
	Source          Source          `json:"source"`
	DebitDocumentID int64           `json:"debit_document_id"`
	AmountBase      decimal.Decimal `json:"amount_base"`
	BatchID         *int64          `json:"batch_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewAllocation creates an allocation record. The amount is rounded half-to-even
// before the positivity check, so 0.004 is rejected.
func NewAllocation(party Party, source Source, debitDocumentID int64, amount decimal.Decimal) (*Allocation, error) {
	if source.IsZero() || !source.Kind().IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Allocation source is required")
	}
	if debitDocumentID <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Allocation target is required")
	}
	rounded := valueobject.Round2(amount)
	if !rounded.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Allocation amount must be positive, got %s", rounded.StringFixed(valueobject.MoneyScale)))
	}
	return &Allocation{
		PartyType:       party.Type,
		PartyID:         party.ID,
		Source:          source,
		DebitDocumentID: debitDocumentID,
		AmountBase:      rounded,
		CreatedAt:       time.Now(),
	}, nil
}

// Party returns the owning party
func (a *Allocation) Party() Party {
	return Party{Type: a.PartyType, ID: a.PartyID}
}

// AllocationFilter narrows allocation lookups
type AllocationFilter struct {
	Party           *Party
	DebitDocumentID *int64
	Source          *Source
	BatchID         *int64
}
