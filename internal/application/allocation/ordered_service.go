package allocation

import (
	"context"
	"fmt"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditPick names one credit source, in the order it should be consumed
type CreditPick struct {
	SourceKind ledger.SourceKind `json:"source_kind" validate:"required,oneof=RECEIPT CREDIT_DOCUMENT"`
	SourceID   int64             `json:"source_id" validate:"required,gt=0"`
}

// OrderedCreditRequest applies the picked credits to one debit document
type OrderedCreditRequest struct {
	Party           ledger.Party `json:"party" validate:"required"`
	DebitDocumentID int64        `json:"debit_document_id" validate:"required,gt=0"`
	Picks           []CreditPick `json:"picks" validate:"required,min=1,dive"`
}

// AppliedSplit is one written allocation
type AppliedSplit struct {
	AllocationID int64           `json:"allocation_id"`
	Source       ledger.Source   `json:"source"`
	Amount       decimal.Decimal `json:"amount"`
}

// OrderedCreditResult reports what was applied. Splits is empty when the
// target had nothing pending.
type OrderedCreditResult struct {
	DebitDocumentID int64           `json:"debit_document_id"`
	Pending         decimal.Decimal `json:"pending"`
	AppliedTotal    decimal.Decimal `json:"applied_total"`
	Remaining       decimal.Decimal `json:"remaining"`
	Splits          []AppliedSplit  `json:"splits"`
}

// OrderedCreditService applies a caller-ordered pool of credits to one target
type OrderedCreditService struct {
	base
}

// NewOrderedCreditService creates a new OrderedCreditService
func NewOrderedCreditService(scope ledger.TransactionScope, opts ...Option) *OrderedCreditService {
	return &OrderedCreditService{base: newBase("OrderedCreditService", scope, opts...)}
}

// Apply takes min(available, remaining) from each pick in order until the
// target is covered. A target with nothing pending is a no-op, which makes
// retries of a committed request harmless.
func (s *OrderedCreditService) Apply(ctx context.Context, req OrderedCreditRequest) (result *OrderedCreditResult, err error) {
	ctx, o := s.begin(ctx, "Apply", append(partyAttrs(req.Party),
		telemetry.WithAttribute(telemetry.SpanAttrDebitDocumentID, req.DebitDocumentID))...)
	defer func() { o.end(ctx, err) }()

	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	picks := make([]ledger.Source, len(req.Picks))
	for i, p := range req.Picks {
		src, err := ledger.NewSource(p.SourceKind, p.SourceID)
		if err != nil {
			return nil, err
		}
		picks[i] = src
	}
	telemetry.SetAttributes(o.span, telemetry.SpanAttrSourceCount, len(picks))

	result = &OrderedCreditResult{DebitDocumentID: req.DebitDocumentID}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		ids := append([]int64{req.DebitDocumentID}, sourceIDs(picks)...)
		locked, err := loadDocuments(ctx, store, ids, true)
		if err != nil {
			return err
		}
		target := locked.position(req.DebitDocumentID)
		if target == nil {
			return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Debit document %d not found", req.DebitDocumentID))
		}
		if !target.Document.BelongsTo(req.Party) {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("%s does not belong to party %s", target.Document.Label(), req.Party))
		}

		plan, err := ledger.PlanOrderedCredits(target, picks, locked.sourcePositions(picks))
		if err != nil {
			return err
		}
		result.Pending = plan.Pending
		result.AppliedTotal = plan.AppliedTotal
		result.Remaining = plan.Remaining
		result.Splits = make([]AppliedSplit, 0, len(plan.Splits))
		if plan.IsNoop() {
			return nil
		}

		touched := []int64{req.DebitDocumentID}
		for _, split := range plan.Splits {
			touched = append(touched, split.Source.ID())
		}
		if err := store.BumpVersions(ctx, locked.versions(touched...)); err != nil {
			return err
		}

		for _, split := range plan.Splits {
			allocation, err := ledger.NewAllocation(req.Party, split.Source, req.DebitDocumentID, split.Amount)
			if err != nil {
				return err
			}
			if err := store.AddAllocation(ctx, allocation); err != nil {
				return err
			}
			result.Splits = append(result.Splits, AppliedSplit{
				AllocationID: allocation.ID,
				Source:       split.Source,
				Amount:       allocation.AmountBase,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Splits) == 0 {
		o.noop = true
		o.logger.Info("Nothing pending, no credits applied", zap.Int64("debit_document_id", req.DebitDocumentID))
		return result, nil
	}

	s.metrics.RecordApplied(ctx, "ordered", len(result.Splits), result.AppliedTotal)
	telemetry.SetAttributes(o.span,
		telemetry.SpanAttrAmount, result.AppliedTotal,
		telemetry.SpanAttrPending, result.Remaining.IsPositive(),
	)
	o.logger.Info("Ordered credits applied",
		zap.Int64("debit_document_id", req.DebitDocumentID),
		zap.String("applied_total", result.AppliedTotal.StringFixed(2)),
		zap.Int("splits", len(result.Splits)),
	)
	return result, nil
}

// SuggestPicks lists the party's open credits oldest first, ready to be passed
// back as Picks
func (s *OrderedCreditService) SuggestPicks(ctx context.Context, party ledger.Party) (suggestions []ledger.CreditSuggestion, err error) {
	ctx, o := s.begin(ctx, "SuggestPicks", partyAttrs(party)...)
	defer func() { o.end(ctx, err) }()

	if err := party.Validate(); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		docs, err := store.FindDocuments(ctx, ledger.DocumentFilter{
			Party:    &party,
			Kinds:    ledger.CreditKinds(),
			Statuses: []ledger.DocumentStatus{ledger.DocumentStatusActive},
		})
		if err != nil {
			return err
		}
		snapshot, err := snapshotOf(ctx, store, docs)
		if err != nil {
			return err
		}
		positions := make([]*ledger.Position, 0, len(docs))
		for i := range docs {
			positions = append(positions, snapshot.position(docs[i].ID))
		}
		suggestions = ledger.SuggestFIFOPicks(positions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}

// PicksFromSuggestions converts suggestions into request picks
func PicksFromSuggestions(suggestions []ledger.CreditSuggestion) []CreditPick {
	out := make([]CreditPick, len(suggestions))
	for i, src := range ledger.Picks(suggestions) {
		out[i] = CreditPick{SourceKind: src.Kind(), SourceID: src.ID()}
	}
	return out
}
