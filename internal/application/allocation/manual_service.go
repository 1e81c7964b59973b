package allocation

import (
	"context"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ManualAllocationLine is one allocation written by Execute
type ManualAllocationLine struct {
	AllocationID    int64           `json:"allocation_id"`
	DebitDocumentID int64           `json:"debit_document_id"`
	Source          ledger.Source   `json:"source"`
	Amount          decimal.Decimal `json:"amount"`
}

// ManualAllocationResult is the validation outcome of a plan. After a
// successful Execute, Warnings is empty and Allocations lists what was written.
type ManualAllocationResult struct {
	Party        ledger.Party           `json:"party"`
	Warnings     []ledger.Warning       `json:"warnings"`
	Coverage     []ledger.DebitCoverage `json:"coverage"`
	Executed     bool                   `json:"executed"`
	TotalApplied decimal.Decimal        `json:"total_applied"`
	Allocations  []ManualAllocationLine `json:"allocations"`
}

// ManualAllocationService validates and executes many-to-many allocation plans
type ManualAllocationService struct {
	base
}

// NewManualAllocationService creates a new ManualAllocationService
func NewManualAllocationService(scope ledger.TransactionScope, opts ...Option) *ManualAllocationService {
	return &ManualAllocationService{base: newBase("ManualAllocationService", scope, opts...)}
}

// Preview validates the plan against current balances without writing.
// Problems are returned as warnings, not as an error.
func (s *ManualAllocationService) Preview(ctx context.Context, plan ledger.ManualPlan) (result *ManualAllocationResult, err error) {
	ctx, o := s.begin(ctx, "Preview", partyAttrs(plan.Party)...)
	defer func() { o.end(ctx, err) }()

	if err := validateRequest(s.validate, plan); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		validation, _, err := validatePlan(ctx, store, plan, false)
		if err != nil {
			return err
		}
		result = newManualResult(plan.Party, validation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.noop = true
	telemetry.SetAttributes(o.span,
		telemetry.SpanAttrGroupCount, len(plan.Groups),
		telemetry.SpanAttrWarningCount, len(result.Warnings),
	)
	return result, nil
}

// Execute re-validates the plan inside the write transaction, with the
// documents locked, and writes one allocation per line only when there are no
// warnings. A plan with warnings is returned unexecuted with a nil error.
func (s *ManualAllocationService) Execute(ctx context.Context, plan ledger.ManualPlan) (result *ManualAllocationResult, err error) {
	ctx, o := s.begin(ctx, "Execute", partyAttrs(plan.Party)...)
	defer func() { o.end(ctx, err) }()

	if err := validateRequest(s.validate, plan); err != nil {
		return nil, err
	}
	var warned []int64
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		validation, locked, err := validatePlan(ctx, store, plan, true)
		if err != nil {
			return err
		}
		result = newManualResult(plan.Party, validation)
		if !validation.OK() {
			warned = validation.WarnedDebits()
			return nil
		}

		touched := append(plan.DebitIDs(), sourceIDs(plan.Sources())...)
		if err := store.BumpVersions(ctx, locked.versions(touched...)); err != nil {
			return err
		}

		for _, group := range plan.Groups {
			for _, line := range group.Lines {
				allocation, err := ledger.NewAllocation(plan.Party, line.Source(), group.DebitDocumentID, line.Amount)
				if err != nil {
					return err
				}
				if err := store.AddAllocation(ctx, allocation); err != nil {
					return err
				}
				result.Allocations = append(result.Allocations, ManualAllocationLine{
					AllocationID:    allocation.ID,
					DebitDocumentID: group.DebitDocumentID,
					Source:          allocation.Source,
					Amount:          allocation.AmountBase,
				})
				result.TotalApplied = valueobject.Sum(result.TotalApplied, allocation.AmountBase)
			}
		}
		result.Executed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(o.span,
		telemetry.SpanAttrGroupCount, len(plan.Groups),
		telemetry.SpanAttrWarningCount, len(result.Warnings),
	)
	if !result.Executed {
		o.noop = true
		o.logger.Warn("Manual allocation plan not executed",
			zap.Int("warnings", len(result.Warnings)),
			zap.Int64s("debit_document_ids", warned),
		)
		return result, nil
	}

	s.metrics.RecordApplied(ctx, "manual", len(result.Allocations), result.TotalApplied)
	telemetry.SetAttributes(o.span, telemetry.SpanAttrAmount, result.TotalApplied)
	o.logger.Info("Manual allocation executed",
		zap.Int("groups", len(plan.Groups)),
		zap.Int("allocations", len(result.Allocations)),
		zap.String("total_applied", result.TotalApplied.StringFixed(2)),
	)
	return result, nil
}

// validatePlan reads every debit and source of the plan in one pass and runs
// the pure plan validation on that snapshot
func validatePlan(ctx context.Context, store ledger.Store, plan ledger.ManualPlan, forUpdate bool) (*ledger.PlanValidation, *lockedDocuments, error) {
	sources := plan.Sources()
	debitIDs := plan.DebitIDs()
	locked, err := loadDocuments(ctx, store, append(debitIDs, sourceIDs(sources)...), forUpdate)
	if err != nil {
		return nil, nil, err
	}

	snap := ledger.PlanSnapshot{
		Debits:  make(map[int64]*ledger.Position, len(debitIDs)),
		Sources: locked.sourcePositions(sources),
	}
	for _, id := range debitIDs {
		if pos := locked.position(id); pos != nil {
			snap.Debits[id] = pos
		}
	}
	return ledger.ValidateManualPlan(plan, snap), locked, nil
}

func newManualResult(party ledger.Party, v *ledger.PlanValidation) *ManualAllocationResult {
	return &ManualAllocationResult{
		Party:        party,
		Warnings:     v.Warnings,
		Coverage:     v.Coverage,
		TotalApplied: decimal.Zero,
		Allocations:  make([]ManualAllocationLine, 0),
	}
}
