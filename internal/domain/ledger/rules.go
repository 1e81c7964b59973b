package ledger

import (
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
)

// CheckDebit verifies a document can be the target of an allocation for the party
func CheckDebit(party Party, doc *LedgerDocument) error {
	if !doc.BelongsTo(party) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s does not belong to party %s", doc.Label(), party))
	}
	if !doc.Kind.IsDebit() {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s is not an invoice or debit note", doc.Label()))
	}
	if !doc.IsActive() {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s is %s", doc.Label(), doc.Status))
	}
	return nil
}

// CheckSource verifies a document can be drawn from as the given source for the party
func CheckSource(party Party, src Source, doc *LedgerDocument) error {
	if !doc.BelongsTo(party) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s does not belong to party %s", doc.Label(), party))
	}
	if !src.Accepts(doc) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s cannot be used as a %s source", doc.Label(), src.Kind()))
	}
	if !doc.IsActive() {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s is %s", doc.Label(), doc.Status))
	}
	return nil
}
