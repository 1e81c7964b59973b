package ledger

import (
	"fmt"
	"time"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PartyType identifies which side of the business a party is on
type PartyType string

const (
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeSupplier PartyType = "SUPPLIER"
)

// IsValid checks if the party type is valid
func (p PartyType) IsValid() bool {
	switch p {
	case PartyTypeCustomer, PartyTypeSupplier:
		return true
	}
	return false
}

// String returns the string representation of PartyType
func (p PartyType) String() string {
	return string(p)
}

// Party scopes every document and allocation
type Party struct {
	Type PartyType `json:"party_type" validate:"required,oneof=CUSTOMER SUPPLIER"`
	ID   int64     `json:"party_id" validate:"required,gt=0"`
}

// Validate checks the party reference
func (p Party) Validate() error {
	if !p.Type.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid party type %q", p.Type))
	}
	if p.ID <= 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Party ID must be positive")
	}
	return nil
}

// String returns "TYPE:id"
func (p Party) String() string {
	return fmt.Sprintf("%s:%d", p.Type, p.ID)
}

// DocumentKind classifies a ledger document
type DocumentKind string

const (
	DocumentKindInvoice    DocumentKind = "INVOICE"
	DocumentKindDebitNote  DocumentKind = "DEBIT_NOTE"
	DocumentKindCreditNote DocumentKind = "CREDIT_NOTE"
	DocumentKindReceipt    DocumentKind = "RECEIPT"
)

// IsValid checks if the kind is valid
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindInvoice, DocumentKindDebitNote, DocumentKindCreditNote, DocumentKindReceipt:
		return true
	}
	return false
}

// IsDebit returns true for documents representing money owed by the party
func (k DocumentKind) IsDebit() bool {
	return k == DocumentKindInvoice || k == DocumentKindDebitNote
}

// IsCredit returns true for documents that can be consumed as allocation sources
func (k DocumentKind) IsCredit() bool {
	return k == DocumentKindCreditNote || k == DocumentKindReceipt
}

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// DebitKinds lists the kinds that can be allocation targets
func DebitKinds() []DocumentKind {
	return []DocumentKind{DocumentKindInvoice, DocumentKindDebitNote}
}

// CreditKinds lists the kinds that can be allocation sources
func CreditKinds() []DocumentKind {
	return []DocumentKind{DocumentKindCreditNote, DocumentKindReceipt}
}

// DocumentStatus is the lifecycle state of a ledger document
type DocumentStatus string

const (
	DocumentStatusActive DocumentStatus = "ACTIVE"
	DocumentStatusVoided DocumentStatus = "VOIDED" // terminal
)

// IsValid checks if the status is valid
func (s DocumentStatus) IsValid() bool {
	return s == DocumentStatusActive || s == DocumentStatusVoided
}

// String returns the string representation of DocumentStatus
func (s DocumentStatus) String() string {
	return string(s)
}

// LedgerDocument is one row per fiscal/accounting event
type LedgerDocument struct {
	ID               int64                `json:"id"`
	PartyType        PartyType            `json:"party_type"`
	PartyID          int64                `json:"party_id"`
	Kind             DocumentKind         `json:"kind"`
	Status           DocumentStatus       `json:"status"`
	Number           string               `json:"number"` // display only
	TotalOriginal    decimal.Decimal      `json:"total_original"`
	Currency         valueobject.Currency `json:"currency"`
	FxRate           decimal.Decimal      `json:"fx_rate"`
	TotalBase        decimal.Decimal      `json:"total_base"`
	SourceKind       string               `json:"source_kind"`
	SourceDocumentID string               `json:"source_document_id"`
	ReceiptID        *int64               `json:"receipt_id,omitempty"`
	IssuedAt         time.Time            `json:"issued_at"`
	Version          int                  `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// NewDocumentParams carries the fields needed to ingest a document
type NewDocumentParams struct {
	Party            Party
	Kind             DocumentKind
	Number           string
	TotalOriginal    valueobject.Money
	FxRate           decimal.Decimal
	SourceKind       string
	SourceDocumentID string
	ReceiptID        *int64
	IssuedAt         time.Time
}

// NewLedgerDocument creates an active document and computes its base total
func NewLedgerDocument(p NewDocumentParams) (*LedgerDocument, error) {
	if err := p.Party.Validate(); err != nil {
		return nil, err
	}
	if !p.Kind.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid document kind %q", p.Kind))
	}
	if p.SourceKind == "" || p.SourceDocumentID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Source kind and source document ID are required")
	}
	if p.TotalOriginal.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Document total cannot be negative")
	}
	if !p.TotalOriginal.Currency().IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Document currency is required")
	}
	if p.ReceiptID != nil && p.Kind != DocumentKindReceipt {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Only receipts can reference a local receipt")
	}

	totalBase, err := p.TotalOriginal.ToBase(p.FxRate)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, err.Error())
	}

	issuedAt := p.IssuedAt
	now := time.Now()
	if issuedAt.IsZero() {
		issuedAt = now
	}

	return &LedgerDocument{
		PartyType:        p.Party.Type,
		PartyID:          p.Party.ID,
		Kind:             p.Kind,
		Status:           DocumentStatusActive,
		Number:           p.Number,
		TotalOriginal:    p.TotalOriginal.Amount(),
		Currency:         p.TotalOriginal.Currency(),
		FxRate:           p.FxRate,
		TotalBase:        totalBase,
		SourceKind:       p.SourceKind,
		SourceDocumentID: p.SourceDocumentID,
		ReceiptID:        p.ReceiptID,
		IssuedAt:         issuedAt,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Party returns the owning party
func (d *LedgerDocument) Party() Party {
	return Party{Type: d.PartyType, ID: d.PartyID}
}

// BelongsTo reports whether the document is owned by the party
func (d *LedgerDocument) BelongsTo(p Party) bool {
	return d.PartyType == p.Type && d.PartyID == p.ID
}

// IsActive reports whether the document can take part in allocations
func (d *LedgerDocument) IsActive() bool {
	return d.Status == DocumentStatusActive
}

// OpenAmount returns totalBase minus what has already been allocated against
// the document. For debit kinds this is the pending amount, for credit kinds
// the available amount.
func (d *LedgerDocument) OpenAmount(allocated decimal.Decimal) decimal.Decimal {
	return valueobject.Sub(d.TotalBase, allocated)
}

// Void moves the document to VOIDED. allocationCount is the number of
// allocations touching the document on either side.
func (d *LedgerDocument) Void(allocationCount int64) error {
	if d.Status == DocumentStatusVoided {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Document %d is already voided", d.ID))
	}
	if allocationCount > 0 {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Document %d carries %d allocation(s) and cannot be voided", d.ID, allocationCount))
	}
	d.Status = DocumentStatusVoided
	d.UpdatedAt = time.Now()
	return nil
}

// Label returns a short human-readable reference for messages
func (d *LedgerDocument) Label() string {
	if d.Number != "" {
		return fmt.Sprintf("%s %s", d.Kind, d.Number)
	}
	return fmt.Sprintf("%s #%d", d.Kind, d.ID)
}
