package allocation

import (
	"context"
	"fmt"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CrossAllocationRequest covers one invoice, identified by its external
// provenance, with amounts from several receipts
type CrossAllocationRequest struct {
	Party            ledger.Party       `json:"party" validate:"required"`
	SourceKind       string             `json:"source_kind" validate:"required,max=50"`
	SourceDocumentID string             `json:"source_document_id" validate:"required,max=100"`
	Lines            []ledger.CrossLine `json:"lines" validate:"required,min=1,dive"`
}

// CrossAllocationResult describes the committed batch
type CrossAllocationResult struct {
	BatchID          int64                   `json:"batch_id"`
	Reference        uuid.UUID               `json:"reference"`
	TargetDocumentID int64                   `json:"target_document_id"`
	TotalApplied     decimal.Decimal         `json:"total_applied"`
	Items            []ledger.AllocationItem `json:"items"`
}

// CrossAllocationService applies receipts to an invoice as one exact-cover batch
type CrossAllocationService struct {
	base
}

// NewCrossAllocationService creates a new CrossAllocationService
func NewCrossAllocationService(scope ledger.TransactionScope, opts ...Option) *CrossAllocationService {
	return &CrossAllocationService{base: newBase("CrossAllocationService", scope, opts...)}
}

// Apply validates the lines against the invoice's pending amount and, when they
// cover it exactly, writes the batch, its items and one allocation per item.
// Nothing is written on any violation.
func (s *CrossAllocationService) Apply(ctx context.Context, req CrossAllocationRequest) (result *CrossAllocationResult, err error) {
	ctx, o := s.begin(ctx, "Apply", partyAttrs(req.Party)...)
	defer func() { o.end(ctx, err) }()

	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(o.span, telemetry.SpanAttrSourceCount, len(req.Lines))

	var (
		batch   *ledger.AllocationBatch
		applied []*ledger.Allocation
	)
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		target, err := store.FindDocument(ctx, ledger.DocumentFilter{
			SourceKind:       req.SourceKind,
			SourceDocumentID: req.SourceDocumentID,
		})
		if err != nil {
			if shared.CodeOf(err) == shared.CodeNotFound {
				return shared.NewDomainError(shared.CodeNotFound,
					fmt.Sprintf("Invoice %s/%s not found", req.SourceKind, req.SourceDocumentID))
			}
			return err
		}

		ids := []int64{target.ID}
		for _, line := range req.Lines {
			ids = append(ids, line.ReceiptID)
		}
		locked, err := loadDocuments(ctx, store, ids, true)
		if err != nil {
			return err
		}
		targetPos := locked.position(target.ID)
		if targetPos == nil {
			return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Invoice %d not found", target.ID))
		}
		// the invoice is checked against the requesting party, not its own
		if !targetPos.Document.BelongsTo(req.Party) {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("%s does not belong to party %s", targetPos.Document.Label(), req.Party))
		}

		receipts := make(map[int64]*ledger.Position, len(req.Lines))
		for _, line := range req.Lines {
			if pos := locked.position(line.ReceiptID); pos != nil {
				receipts[line.ReceiptID] = pos
			}
		}

		plan, err := ledger.PlanCrossAllocation(targetPos, req.Lines, receipts)
		if err != nil {
			return err
		}

		if err := store.BumpVersions(ctx, locked.versions(ids...)); err != nil {
			return err
		}

		batch = ledger.NewAllocationBatch(req.Party, plan.TargetID)
		applied = make([]*ledger.Allocation, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			allocation, err := ledger.NewAllocation(req.Party, line.Source, plan.TargetID, line.Amount)
			if err != nil {
				return err
			}
			batch.AddItem(line.Source.ID(), line.Amount)
			applied = append(applied, allocation)
		}
		if !batch.TotalApplied.Equal(plan.Pending) {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("Batch total %s differs from pending %s", batch.TotalApplied.StringFixed(2), plan.Pending.StringFixed(2)))
		}
		return store.CreateBatch(ctx, batch, applied)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordApplied(ctx, "cross", len(applied), batch.TotalApplied)
	telemetry.SetAttributes(o.span,
		telemetry.SpanAttrBatchID, batch.ID,
		telemetry.SpanAttrDebitDocumentID, batch.TargetDocumentID,
		telemetry.SpanAttrAmount, batch.TotalApplied,
	)
	o.logger.Info("Cross allocation committed",
		zap.Int64("batch_id", batch.ID),
		zap.String("reference", batch.Reference.String()),
		zap.Int64("target_document_id", batch.TargetDocumentID),
		zap.String("total_applied", batch.TotalApplied.StringFixed(2)),
		zap.Int("items", len(batch.Items)),
	)

	return &CrossAllocationResult{
		BatchID:          batch.ID,
		Reference:        batch.Reference,
		TargetDocumentID: batch.TargetDocumentID,
		TotalApplied:     batch.TotalApplied,
		Items:            batch.Items,
	}, nil
}

// GetBatch returns a committed batch with its items, scoped to the party
func (s *CrossAllocationService) GetBatch(ctx context.Context, party ledger.Party, batchID int64) (batch *ledger.AllocationBatch, err error) {
	ctx, o := s.begin(ctx, "GetBatch", partyAttrs(party)...)
	defer func() { o.end(ctx, err) }()

	if err := party.Validate(); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		found, err := store.FindBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if found.PartyType != party.Type || found.PartyID != party.ID {
			return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Allocation batch %d not found", batchID))
		}
		batch = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}
