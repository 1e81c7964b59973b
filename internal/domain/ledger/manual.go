package ledger

import (
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ManualLine proposes an amount drawn from one source
type ManualLine struct {
	SourceKind SourceKind      `json:"source_kind" validate:"required,oneof=RECEIPT CREDIT_DOCUMENT"`
	SourceID   int64           `json:"source_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

// Source returns the tagged source the line draws from
func (l ManualLine) Source() Source {
	return Source{kind: l.SourceKind, id: l.SourceID}
}

// ManualGroup is the set of lines proposed to cover one debit document
type ManualGroup struct {
	DebitDocumentID int64        `json:"debit_document_id" validate:"required,gt=0"`
	Lines           []ManualLine `json:"lines" validate:"dive"`
}

// ManualPlan is a complete many-to-many allocation proposal for one party
type ManualPlan struct {
	Party  Party         `json:"party" validate:"required"`
	Groups []ManualGroup `json:"groups" validate:"required,min=1,dive"`
}

// DebitIDs returns the distinct debit ids in plan order
func (p ManualPlan) DebitIDs() []int64 {
	seen := make(map[int64]struct{}, len(p.Groups))
	ids := make([]int64, 0, len(p.Groups))
	for _, g := range p.Groups {
		if _, ok := seen[g.DebitDocumentID]; ok {
			continue
		}
		seen[g.DebitDocumentID] = struct{}{}
		ids = append(ids, g.DebitDocumentID)
	}
	return ids
}

// Sources returns the distinct sources in plan order
func (p ManualPlan) Sources() []Source {
	seen := make(map[Source]struct{})
	out := make([]Source, 0)
	for _, g := range p.Groups {
		for _, l := range g.Lines {
			src := l.Source()
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}

// WarningCode identifies why a plan cannot be executed
type WarningCode string

const (
	WarningDebitNotFound     WarningCode = "DEBIT_NOT_FOUND"
	WarningDebitWrongParty   WarningCode = "DEBIT_WRONG_PARTY"
	WarningDebitWrongKind    WarningCode = "DEBIT_WRONG_KIND"
	WarningDebitNotActive    WarningCode = "DEBIT_NOT_ACTIVE"
	WarningDebitDuplicated   WarningCode = "DEBIT_DUPLICATED"
	WarningEmptyGroup        WarningCode = "EMPTY_GROUP"
	WarningCoverMismatch     WarningCode = "COVER_MISMATCH"
	WarningDebitOvercovered  WarningCode = "DEBIT_OVERCOVERED"
	WarningSourceNotFound    WarningCode = "SOURCE_NOT_FOUND"
	WarningSourceWrongParty  WarningCode = "SOURCE_WRONG_PARTY"
	WarningSourceWrongKind   WarningCode = "SOURCE_WRONG_KIND"
	WarningSourceNotActive   WarningCode = "SOURCE_NOT_ACTIVE"
	WarningSourceOverdrawn   WarningCode = "SOURCE_OVERDRAWN"
	WarningNonPositiveAmount WarningCode = "NON_POSITIVE_AMOUNT"
)

// Category maps the warning onto the error taxonomy
func (c WarningCode) Category() string {
	switch c {
	case WarningDebitNotFound, WarningSourceNotFound:
		return shared.CodeNotFound
	case WarningCoverMismatch, WarningSourceOverdrawn:
		return shared.CodeInsufficientCoverage
	default:
		return shared.CodeInvalidState
	}
}

// Warning is one problem found in a plan, attached to the debit it affects
type Warning struct {
	DebitDocumentID int64       `json:"debit_document_id"`
	Source          *Source     `json:"source,omitempty"`
	Code            WarningCode `json:"code"`
	Category        string      `json:"category"`
	Message         string      `json:"message"`
}

// DebitCoverage compares a debit's pending amount with what the plan proposes
type DebitCoverage struct {
	DebitDocumentID int64           `json:"debit_document_id"`
	Pending         decimal.Decimal `json:"pending"`
	Proposed        decimal.Decimal `json:"proposed"`
}

// PlanSnapshot holds the positions a plan is validated against. Positions must
// be read in one pass; documents absent from the maps are reported as not found.
type PlanSnapshot struct {
	Debits  map[int64]*Position
	Sources map[Source]*Position
}

// PlanValidation is the full result of validating a plan
type PlanValidation struct {
	Warnings []Warning       `json:"warnings"`
	Coverage []DebitCoverage `json:"coverage"`
}

// OK reports whether the plan can be executed
func (v *PlanValidation) OK() bool {
	return len(v.Warnings) == 0
}

// WarnedDebits returns the distinct debit ids that carry at least one warning
func (v *PlanValidation) WarnedDebits() []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, w := range v.Warnings {
		if _, ok := seen[w.DebitDocumentID]; ok {
			continue
		}
		seen[w.DebitDocumentID] = struct{}{}
		ids = append(ids, w.DebitDocumentID)
	}
	return ids
}

func (v *PlanValidation) warn(debitID int64, src *Source, code WarningCode, format string, args ...any) {
	v.Warnings = append(v.Warnings, Warning{
		DebitDocumentID: debitID,
		Source:          src,
		Code:            code,
		Category:        code.Category(),
		Message:         fmt.Sprintf(format, args...),
	})
}

// ValidateManualPlan checks a plan against a snapshot and collects every problem.
// It never stops at the first failure:
//  1. each debit exists, belongs to the party, is ACTIVE and is an invoice or debit note
//  2. the lines of each debit sum to its pending amount within the tolerance,
//     never above it
//  3. each source exists, belongs to the party, is ACTIVE and matches its tag
//  4. the cumulative draw on each source across the whole plan fits its available
//     amount; every debit drawing from an overdrawn source is warned
//  5. each amount is strictly positive
func ValidateManualPlan(plan ManualPlan, snap PlanSnapshot) *PlanValidation {
	v := &PlanValidation{
		Warnings: make([]Warning, 0),
		Coverage: make([]DebitCoverage, 0, len(plan.Groups)),
	}

	seenDebits := make(map[int64]struct{}, len(plan.Groups))
	sourceOK := make(map[Source]bool)
	draws := make(map[Source]decimal.Decimal)
	drawers := make(map[Source][]int64)
	drawOrder := make([]Source, 0)

	for _, group := range plan.Groups {
		debitID := group.DebitDocumentID
		_, duplicated := seenDebits[debitID]
		seenDebits[debitID] = struct{}{}
		if duplicated {
			v.warn(debitID, nil, WarningDebitDuplicated, "Debit document %d is listed more than once", debitID)
		}

		debitOK := checkPlanDebit(v, plan.Party, debitID, snap.Debits[debitID])
		if len(group.Lines) == 0 {
			v.warn(debitID, nil, WarningEmptyGroup, "No lines proposed for debit document %d", debitID)
		}

		proposed := decimal.Zero
		for _, line := range group.Lines {
			src := line.Source()
			amount := valueobject.Round2(line.Amount)
			proposed = valueobject.Sum(proposed, amount)

			if !amount.IsPositive() {
				lineSrc := src
				v.warn(debitID, &lineSrc, WarningNonPositiveAmount,
					"Amount %s from %s must be positive", amount.StringFixed(valueobject.MoneyScale), src)
				continue
			}

			ok, checked := sourceOK[src]
			if !checked || !ok {
				ok = checkPlanSource(v, plan.Party, debitID, src, snap.Sources[src])
				sourceOK[src] = ok
			}
			if !ok {
				continue
			}

			if _, drawn := draws[src]; !drawn {
				draws[src] = decimal.Zero
				drawOrder = append(drawOrder, src)
			}
			draws[src] = valueobject.Sum(draws[src], amount)
			drawers[src] = appendUnique(drawers[src], debitID)
		}

		if !debitOK || duplicated || len(group.Lines) == 0 {
			continue
		}
		pending := snap.Debits[debitID].Open
		v.Coverage = append(v.Coverage, DebitCoverage{
			DebitDocumentID: debitID,
			Pending:         pending,
			Proposed:        proposed,
		})
		switch {
		case proposed.GreaterThan(pending):
			v.warn(debitID, nil, WarningDebitOvercovered,
				"Proposed %s exceeds %s pending on debit document %d",
				proposed.StringFixed(valueobject.MoneyScale), pending.StringFixed(valueobject.MoneyScale), debitID)
		case !valueobject.WithinTolerance(proposed, pending):
			v.warn(debitID, nil, WarningCoverMismatch,
				"Proposed %s does not cover %s pending on debit document %d",
				proposed.StringFixed(valueobject.MoneyScale), pending.StringFixed(valueobject.MoneyScale), debitID)
		}
	}

	for _, src := range drawOrder {
		available := snap.Sources[src].Open
		if draws[src].LessThanOrEqual(available) {
			continue
		}
		for _, debitID := range drawers[src] {
			s := src
			v.warn(debitID, &s, WarningSourceOverdrawn,
				"%s has %s available but the plan draws %s",
				src, available.StringFixed(valueobject.MoneyScale), draws[src].StringFixed(valueobject.MoneyScale))
		}
	}

	return v
}

func checkPlanDebit(v *PlanValidation, party Party, debitID int64, pos *Position) bool {
	if pos == nil || pos.Document == nil {
		v.warn(debitID, nil, WarningDebitNotFound, "Debit document %d not found", debitID)
		return false
	}
	doc := pos.Document
	ok := true
	if !doc.BelongsTo(party) {
		v.warn(debitID, nil, WarningDebitWrongParty, "%s does not belong to party %s", doc.Label(), party)
		ok = false
	}
	if !doc.Kind.IsDebit() {
		v.warn(debitID, nil, WarningDebitWrongKind, "%s is not an invoice or debit note", doc.Label())
		ok = false
	}
	if !doc.IsActive() {
		v.warn(debitID, nil, WarningDebitNotActive, "%s is %s", doc.Label(), doc.Status)
		ok = false
	}
	return ok
}

func checkPlanSource(v *PlanValidation, party Party, debitID int64, src Source, pos *Position) bool {
	s := src
	if pos == nil || pos.Document == nil {
		v.warn(debitID, &s, WarningSourceNotFound, "Credit source %s not found", src)
		return false
	}
	doc := pos.Document
	ok := true
	if !doc.BelongsTo(party) {
		v.warn(debitID, &s, WarningSourceWrongParty, "%s does not belong to party %s", doc.Label(), party)
		ok = false
	}
	if !src.Accepts(doc) {
		v.warn(debitID, &s, WarningSourceWrongKind, "%s cannot be used as a %s source", doc.Label(), src.Kind())
		ok = false
	}
	if !doc.IsActive() {
		v.warn(debitID, &s, WarningSourceNotActive, "%s is %s", doc.Label(), doc.Status)
		ok = false
	}
	return ok
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
