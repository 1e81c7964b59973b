package models

import (
	"time"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerDocumentModel is the persistence model for ledger documents.
// (source_kind, source_document_id) identifies the upstream record and is unique.
type LedgerDocumentModel struct {
	ID               int64                 `gorm:"primaryKey;autoIncrement"`
	PartyType        ledger.PartyType      `gorm:"type:varchar(20);not null;index:idx_ledger_documents_party,priority:1"`
	PartyID          int64                 `gorm:"not null;index:idx_ledger_documents_party,priority:2"`
	Kind             ledger.DocumentKind   `gorm:"type:varchar(20);not null;index"`
	Status           ledger.DocumentStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Number           string                `gorm:"type:varchar(100);not null;default:''"`
	TotalOriginal    decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Currency         string                `gorm:"type:varchar(3);not null"`
	FxRate           decimal.Decimal       `gorm:"type:decimal(18,8);not null"`
	TotalBase        decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	SourceKind       string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_ledger_documents_source,priority:1"`
	SourceDocumentID string                `gorm:"type:varchar(100);not null;uniqueIndex:idx_ledger_documents_source,priority:2"`
	ReceiptID        *int64                `gorm:"index"`
	IssuedAt         time.Time             `gorm:"not null"`
	Version          int                   `gorm:"not null;default:1"`
	CreatedAt        time.Time             `gorm:"not null"`
	UpdatedAt        time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerDocumentModel) TableName() string {
	return "ledger_documents"
}

// ToDomain converts the persistence model to a domain LedgerDocument
func (m *LedgerDocumentModel) ToDomain() *ledger.LedgerDocument {
	return &ledger.LedgerDocument{
		ID:               m.ID,
		PartyType:        m.PartyType,
		PartyID:          m.PartyID,
		Kind:             m.Kind,
		Status:           m.Status,
		Number:           m.Number,
		TotalOriginal:    m.TotalOriginal,
		Currency:         valueobject.Currency(m.Currency),
		FxRate:           m.FxRate,
		TotalBase:        valueobject.Round2(m.TotalBase),
		SourceKind:       m.SourceKind,
		SourceDocumentID: m.SourceDocumentID,
		ReceiptID:        m.ReceiptID,
		IssuedAt:         m.IssuedAt,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// LedgerDocumentModelFromDomain creates a persistence model from a domain document
func LedgerDocumentModelFromDomain(d *ledger.LedgerDocument) *LedgerDocumentModel {
	return &LedgerDocumentModel{
		ID:               d.ID,
		PartyType:        d.PartyType,
		PartyID:          d.PartyID,
		Kind:             d.Kind,
		Status:           d.Status,
		Number:           d.Number,
		TotalOriginal:    d.TotalOriginal,
		Currency:         d.Currency.String(),
		FxRate:           d.FxRate,
		TotalBase:        d.TotalBase,
		SourceKind:       d.SourceKind,
		SourceDocumentID: d.SourceDocumentID,
		ReceiptID:        d.ReceiptID,
		IssuedAt:         d.IssuedAt,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// AllocationModel stores one allocation. Exactly one of ReceiptID and
// CreditDocumentID is set; the migration enforces it with a CHECK constraint.
type AllocationModel struct {
	ID               int64            `gorm:"primaryKey;autoIncrement"`
	PartyType        ledger.PartyType `gorm:"type:varchar(20);not null;index:idx_allocations_party,priority:1"`
	PartyID          int64            `gorm:"not null;index:idx_allocations_party,priority:2"`
	ReceiptID        *int64           `gorm:"index"`
	CreditDocumentID *int64           `gorm:"index"`
	DebitDocumentID  int64            `gorm:"not null;index"`
	AmountBase       decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	BatchID          *int64           `gorm:"index"`
	CreatedAt        time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "allocations"
}

// ToDomain converts the persistence model to a domain Allocation
func (m *AllocationModel) ToDomain() *ledger.Allocation {
	var source ledger.Source
	switch {
	case m.ReceiptID != nil:
		source = ledger.ReceiptSource(*m.ReceiptID)
	case m.CreditDocumentID != nil:
		source = ledger.CreditDocumentSource(*m.CreditDocumentID)
	}
	return &ledger.Allocation{
		ID:              m.ID,
		PartyType:       m.PartyType,
		PartyID:         m.PartyID,
		Source:          source,
		DebitDocumentID: m.DebitDocumentID,
		AmountBase:      valueobject.Round2(m.AmountBase),
		BatchID:         m.BatchID,
		CreatedAt:       m.CreatedAt,
	}
}

// AllocationModelFromDomain creates a persistence model from a domain allocation
func AllocationModelFromDomain(a *ledger.Allocation) *AllocationModel {
	m := &AllocationModel{
		ID:              a.ID,
		PartyType:       a.PartyType,
		PartyID:         a.PartyID,
		DebitDocumentID: a.DebitDocumentID,
		AmountBase:      a.AmountBase,
		BatchID:         a.BatchID,
		CreatedAt:       a.CreatedAt,
	}
	if id, ok := a.Source.ReceiptID(); ok {
		m.ReceiptID = &id
	}
	if id, ok := a.Source.CreditDocumentID(); ok {
		m.CreditDocumentID = &id
	}
	return m
}

// AllocationBatchModel is the header of an exact-cover cross allocation
type AllocationBatchModel struct {
	ID               int64                 `gorm:"primaryKey;autoIncrement"`
	Reference        uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex"`
	PartyType        ledger.PartyType      `gorm:"type:varchar(20);not null"`
	PartyID          int64                 `gorm:"not null"`
	TargetDocumentID int64                 `gorm:"not null;index"`
	TotalApplied     decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Items            []AllocationItemModel `gorm:"foreignKey:BatchID"`
	CreatedAt        time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationBatchModel) TableName() string {
	return "allocation_batches"
}

// AllocationItemModel is one source line of a batch
type AllocationItemModel struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	BatchID          int64           `gorm:"not null;index"`
	SourceDocumentID int64           `gorm:"not null"`
	AppliedAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AllocationID     int64           `gorm:"not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (AllocationItemModel) TableName() string {
	return "allocation_items"
}

// ToDomain converts the persistence model to a domain AllocationBatch
func (m *AllocationBatchModel) ToDomain() *ledger.AllocationBatch {
	items := make([]ledger.AllocationItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = ledger.AllocationItem{
			ID:               it.ID,
			BatchID:          it.BatchID,
			SourceDocumentID: it.SourceDocumentID,
			AppliedAmount:    valueobject.Round2(it.AppliedAmount),
			AllocationID:     it.AllocationID,
		}
	}
	return &ledger.AllocationBatch{
		ID:               m.ID,
		Reference:        m.Reference,
		PartyType:        m.PartyType,
		PartyID:          m.PartyID,
		TargetDocumentID: m.TargetDocumentID,
		TotalApplied:     valueobject.Round2(m.TotalApplied),
		Items:            items,
		CreatedAt:        m.CreatedAt,
	}
}

// AllocationBatchModelFromDomain creates the header model. Items are written
// separately once their allocations have ids.
func AllocationBatchModelFromDomain(b *ledger.AllocationBatch) *AllocationBatchModel {
	return &AllocationBatchModel{
		ID:               b.ID,
		Reference:        b.Reference,
		PartyType:        b.PartyType,
		PartyID:          b.PartyID,
		TargetDocumentID: b.TargetDocumentID,
		TotalApplied:     b.TotalApplied,
		CreatedAt:        b.CreatedAt,
	}
}
