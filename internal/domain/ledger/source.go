package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
)

// SourceKind tags which kind of credit an allocation draws from
type SourceKind string

const (
	SourceKindReceipt        SourceKind = "RECEIPT"
	SourceKindCreditDocument SourceKind = "CREDIT_DOCUMENT"
)

// IsValid checks if the source kind is valid
func (k SourceKind) IsValid() bool {
	return k == SourceKindReceipt || k == SourceKindCreditDocument
}

// String returns the string representation of SourceKind
func (k SourceKind) String() string {
	return string(k)
}

// DocumentKind returns the ledger document kind a source of this kind must reference
func (k SourceKind) DocumentKind() DocumentKind {
	if k == SourceKindReceipt {
		return DocumentKindReceipt
	}
	return DocumentKindCreditNote
}

// Source is the credit side of an allocation: Receipt(id) or CreditDocument(id).
// The zero value is not a valid source; use ReceiptSource or CreditDocumentSource.
type Source struct {
	kind SourceKind
	id   int64
}

// ReceiptSource references a receipt document
func ReceiptSource(id int64) Source {
	return Source{kind: SourceKindReceipt, id: id}
}

// CreditDocumentSource references a credit note document
func CreditDocumentSource(id int64) Source {
	return Source{kind: SourceKindCreditDocument, id: id}
}

// NewSource builds a source from its tag, rejecting unknown tags and non-positive ids
func NewSource(kind SourceKind, id int64) (Source, error) {
	if !kind.IsValid() {
		return Source{}, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid source kind %q", kind))
	}
	if id <= 0 {
		return Source{}, shared.NewDomainError(shared.CodeInvalidInput, "Source ID must be positive")
	}
	return Source{kind: kind, id: id}, nil
}

// SourceForDocument returns the source that draws from the given credit document
func SourceForDocument(doc *LedgerDocument) (Source, error) {
	switch doc.Kind {
	case DocumentKindReceipt:
		return ReceiptSource(doc.ID), nil
	case DocumentKindCreditNote:
		return CreditDocumentSource(doc.ID), nil
	}
	return Source{}, shared.NewDomainError(shared.CodeInvalidState,
		fmt.Sprintf("%s cannot be used as an allocation source", doc.Label()))
}

// Kind returns the source tag
func (s Source) Kind() SourceKind {
	return s.kind
}

// ID returns the referenced document id
func (s Source) ID() int64 {
	return s.id
}

// IsZero reports whether the source was never set
func (s Source) IsZero() bool {
	return s.kind == "" && s.id == 0
}

// ReceiptID returns the id when the source is a receipt
func (s Source) ReceiptID() (int64, bool) {
	return s.id, s.kind == SourceKindReceipt
}

// CreditDocumentID returns the id when the source is a credit document
func (s Source) CreditDocumentID() (int64, bool) {
	return s.id, s.kind == SourceKindCreditDocument
}

// Accepts reports whether a document has the kind this source must reference
func (s Source) Accepts(doc *LedgerDocument) bool {
	return doc.Kind == s.kind.DocumentKind()
}

// String returns "KIND:id"
func (s Source) String() string {
	return fmt.Sprintf("%s:%d", s.kind, s.id)
}

type sourceJSON struct {
	Kind SourceKind `json:"source_kind"`
	ID   int64      `json:"source_id"`
}

// MarshalJSON implements json.Marshaler
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceJSON{Kind: s.kind, ID: s.id})
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown tags
func (s *Source) UnmarshalJSON(data []byte) error {
	var v sourceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	src, err := NewSource(v.Kind, v.ID)
	if err != nil {
		return err
	}
	*s = src
	return nil
}
