package ledger

import (
	"time"

	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationBatch groups the items written by one exact-cover cross allocation.
// A batch is created together with its items and never changes afterwards.
type AllocationBatch struct {
	ID               int64            `json:"id"`
	Reference        uuid.UUID        `json:"reference"`
	PartyType        PartyType        `json:"party_type"`
	PartyID          int64            `json:"party_id"`
	TargetDocumentID int64            `json:"target_document_id"`
	TotalApplied     decimal.Decimal  `json:"total_applied"`
	Items            []AllocationItem `json:"items"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AllocationItem is one source line of a batch
type AllocationItem struct {
	ID               int64           `json:"id"`
	BatchID          int64           `json:"batch_id"`
	SourceDocumentID int64           `json:"source_document_id"`
	AppliedAmount    decimal.Decimal `json:"applied_amount"`
	AllocationID     int64           `json:"allocation_id"`
}

// NewAllocationBatch starts an empty batch against a target
func NewAllocationBatch(party Party, targetDocumentID int64) *AllocationBatch {
	return &AllocationBatch{
		Reference:        uuid.New(),
		PartyType:        party.Type,
		PartyID:          party.ID,
		TargetDocumentID: targetDocumentID,
		TotalApplied:     decimal.Zero,
		Items:            make([]AllocationItem, 0),
		CreatedAt:        time.Now(),
	}
}

// AddItem appends a source line and keeps the running total rounded
func (b *AllocationBatch) AddItem(sourceDocumentID int64, amount decimal.Decimal) {
	applied := valueobject.Round2(amount)
	b.Items = append(b.Items, AllocationItem{
		SourceDocumentID: sourceDocumentID,
		AppliedAmount:    applied,
	})
	b.TotalApplied = valueobject.Sum(b.TotalApplied, applied)
}
