package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordDocumentRequest ingests one document from an upstream system
type RecordDocumentRequest struct {
	Party            ledger.Party        `json:"party" validate:"required"`
	Kind             ledger.DocumentKind `json:"kind" validate:"required,oneof=INVOICE DEBIT_NOTE CREDIT_NOTE RECEIPT"`
	Number           string              `json:"number" validate:"max=100"`
	TotalOriginal    decimal.Decimal     `json:"total_original"`
	Currency         string              `json:"currency" validate:"required,len=3"`
	FxRate           decimal.Decimal     `json:"fx_rate"`
	SourceKind       string              `json:"source_kind" validate:"required,max=50"`
	SourceDocumentID string              `json:"source_document_id" validate:"required,max=100"`
	ReceiptID        *int64              `json:"receipt_id,omitempty" validate:"omitempty,gt=0"`
	IssuedAt         time.Time           `json:"issued_at"`
}

// RecordDocumentResult carries the stored document and whether this call created it
type RecordDocumentResult struct {
	Document *ledger.LedgerDocument `json:"document"`
	Created  bool                   `json:"created"`
}

// DocumentService handles document ingestion, voiding and deallocation
type DocumentService struct {
	base
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(scope ledger.TransactionScope, opts ...Option) *DocumentService {
	return &DocumentService{base: newBase("DocumentService", scope, opts...)}
}

// Record stores a document once per (source kind, source document id).
// Recording the same provenance again returns the stored row; recording it for
// a different party or kind is an ALREADY_EXISTS error.
func (s *DocumentService) Record(ctx context.Context, req RecordDocumentRequest) (result *RecordDocumentResult, err error) {
	ctx, o := s.begin(ctx, "Record", partyAttrs(req.Party)...)
	defer func() { o.end(ctx, err) }()

	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	money, err := valueobject.NewMoney(req.TotalOriginal, valueobject.Currency(req.Currency))
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, err.Error())
	}
	doc, err := ledger.NewLedgerDocument(ledger.NewDocumentParams{
		Party:            req.Party,
		Kind:             req.Kind,
		Number:           req.Number,
		TotalOriginal:    money,
		FxRate:           req.FxRate,
		SourceKind:       req.SourceKind,
		SourceDocumentID: req.SourceDocumentID,
		ReceiptID:        req.ReceiptID,
		IssuedAt:         req.IssuedAt,
	})
	if err != nil {
		return nil, err
	}

	result, err = s.record(ctx, req, doc)
	if errors.Is(err, shared.ErrAlreadyExists) {
		// a concurrent ingestion won the unique index; its row is the answer
		result, err = s.record(ctx, req, doc)
	}
	if err != nil {
		return nil, err
	}

	if !result.Created {
		o.noop = true
	}
	telemetry.SetAttributes(o.span, telemetry.SpanAttrDocumentID, result.Document.ID)
	o.logger.Info("Document recorded",
		zap.Int64("document_id", result.Document.ID),
		zap.String("kind", result.Document.Kind.String()),
		zap.String("source", req.SourceKind+"/"+req.SourceDocumentID),
		zap.Bool("created", result.Created),
	)
	return result, nil
}

func (s *DocumentService) record(ctx context.Context, req RecordDocumentRequest, doc *ledger.LedgerDocument) (*RecordDocumentResult, error) {
	var result *RecordDocumentResult
	err := s.scope.Execute(ctx, func(store ledger.Store) error {
		existing, err := store.FindDocument(ctx, ledger.DocumentFilter{
			SourceKind:       req.SourceKind,
			SourceDocumentID: req.SourceDocumentID,
		})
		switch {
		case err == nil:
			if !existing.BelongsTo(req.Party) || existing.Kind != req.Kind {
				return shared.NewDomainError(shared.CodeAlreadyExists,
					fmt.Sprintf("%s/%s is already recorded as %s for party %s",
						req.SourceKind, req.SourceDocumentID, existing.Label(), existing.Party()))
			}
			result = &RecordDocumentResult{Document: existing}
			return nil
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}

		created := *doc
		if err := store.SaveDocument(ctx, &created); err != nil {
			return err
		}
		result = &RecordDocumentResult{Document: &created, Created: true}
		return nil
	})
	return result, err
}

// Void marks an ACTIVE document VOIDED. Documents with allocations on either
// side cannot be voided; deallocate them first.
func (s *DocumentService) Void(ctx context.Context, party ledger.Party, documentID int64) (doc *ledger.LedgerDocument, err error) {
	ctx, o := s.begin(ctx, "Void", append(partyAttrs(party),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, documentID))...)
	defer func() { o.end(ctx, err) }()

	if err := party.Validate(); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		found, err := store.FindDocument(ctx, ledger.DocumentFilter{
			IDs:       []int64{documentID},
			Party:     &party,
			ForUpdate: true,
		})
		if err != nil {
			return err
		}
		count, err := store.CountAllocationsTouching(ctx, documentID)
		if err != nil {
			return err
		}
		if err := found.Void(count); err != nil {
			return err
		}
		if err := store.UpdateDocumentStatus(ctx, found); err != nil {
			return err
		}
		doc = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Document voided", zap.Int64("document_id", documentID))
	return doc, nil
}

// Deallocate deletes one allocation of the party and bumps the version of both
// documents it linked. Allocations written by a cross batch belong to the
// batch audit and cannot be removed one by one.
func (s *DocumentService) Deallocate(ctx context.Context, party ledger.Party, allocationID int64) (removed *ledger.Allocation, err error) {
	ctx, o := s.begin(ctx, "Deallocate", append(partyAttrs(party),
		telemetry.WithAttribute(telemetry.SpanAttrAllocationID, allocationID))...)
	defer func() { o.end(ctx, err) }()

	if err := party.Validate(); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		allocation, err := store.FindAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		if allocation.Party() != party {
			return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Allocation %d not found", allocationID))
		}
		if allocation.BatchID != nil {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("Allocation %d belongs to batch %d and cannot be removed on its own", allocationID, *allocation.BatchID))
		}

		ids := []int64{allocation.DebitDocumentID, allocation.Source.ID()}
		locked, err := loadDocuments(ctx, store, ids, true)
		if err != nil {
			return err
		}
		if err := store.BumpVersions(ctx, locked.versions(ids...)); err != nil {
			return err
		}
		if err := store.DeleteAllocation(ctx, allocationID); err != nil {
			return err
		}
		removed = allocation
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(o.span, telemetry.SpanAttrAmount, removed.AmountBase)
	o.logger.Info("Allocation removed",
		zap.Int64("allocation_id", allocationID),
		zap.Int64("debit_document_id", removed.DebitDocumentID),
		zap.String("source", removed.Source.String()),
		zap.String("amount", removed.AmountBase.StringFixed(2)),
	)
	return removed, nil
}

// ListAllocations returns the party's allocations, optionally narrowed to one
// debit document
func (s *DocumentService) ListAllocations(ctx context.Context, party ledger.Party, debitDocumentID *int64) (allocations []ledger.Allocation, err error) {
	ctx, o := s.begin(ctx, "ListAllocations", partyAttrs(party)...)
	defer func() { o.end(ctx, err) }()

	if err := party.Validate(); err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(store ledger.Store) error {
		var err error
		allocations, err = store.FindAllocations(ctx, ledger.AllocationFilter{
			Party:           &party,
			DebitDocumentID: debitDocumentID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return allocations, nil
}
