package persistence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/erp/allocation/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerStore implements ledger.Store using GORM
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore creates a new GormLedgerStore
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE
func (s *GormLedgerStore) supportsRowLocks() bool {
	return s.db.Dialector.Name() != "sqlite"
}

func (s *GormLedgerStore) applyDocumentFilter(query *gorm.DB, filter ledger.DocumentFilter) *gorm.DB {
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Party != nil {
		query = query.Where("party_type = ? AND party_id = ?", filter.Party.Type, filter.Party.ID)
	}
	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.SourceKind != "" {
		query = query.Where("source_kind = ?", filter.SourceKind)
	}
	if filter.SourceDocumentID != "" {
		query = query.Where("source_document_id = ?", filter.SourceDocumentID)
	}
	if filter.ForUpdate && s.supportsRowLocks() {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	// ids ascending keeps lock acquisition order stable across transactions
	return query.Order("id ASC")
}

// FindDocument returns the first matching document by id
func (s *GormLedgerStore) FindDocument(ctx context.Context, filter ledger.DocumentFilter) (*ledger.LedgerDocument, error) {
	var model models.LedgerDocumentModel
	query := s.applyDocumentFilter(s.db.WithContext(ctx).Model(&models.LedgerDocumentModel{}), filter)
	if err := query.Take(&model).Error; err != nil {
		return nil, translateError("find ledger document", err)
	}
	return model.ToDomain(), nil
}

// FindDocuments returns all matching documents ordered by id
func (s *GormLedgerStore) FindDocuments(ctx context.Context, filter ledger.DocumentFilter) ([]ledger.LedgerDocument, error) {
	var rows []models.LedgerDocumentModel
	query := s.applyDocumentFilter(s.db.WithContext(ctx).Model(&models.LedgerDocumentModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, translateError("find ledger documents", err)
	}
	docs := make([]ledger.LedgerDocument, len(rows))
	for i := range rows {
		docs[i] = *rows[i].ToDomain()
	}
	return docs, nil
}

// SaveDocument inserts a new document and assigns its id
func (s *GormLedgerStore) SaveDocument(ctx context.Context, doc *ledger.LedgerDocument) error {
	model := models.LedgerDocumentModelFromDomain(doc)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError("save ledger document", err)
	}
	doc.ID = model.ID
	return nil
}

// UpdateDocumentStatus persists the status with an optimistic version check
func (s *GormLedgerStore) UpdateDocumentStatus(ctx context.Context, doc *ledger.LedgerDocument) error {
	result := s.db.WithContext(ctx).
		Model(&models.LedgerDocumentModel{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version).
		Updates(map[string]any{
			"status":     doc.Status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": doc.UpdatedAt,
		})
	if result.Error != nil {
		return translateError("update ledger document status", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrencyConflict,
			fmt.Sprintf("Document %d has been modified by another process", doc.ID))
	}
	doc.Version++
	return nil
}

// BumpVersions increments the version of every listed document in id order
func (s *GormLedgerStore) BumpVersions(ctx context.Context, versions map[int64]int) error {
	ids := make([]int64, 0, len(versions))
	for id := range versions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := time.Now()
	for _, id := range ids {
		result := s.db.WithContext(ctx).
			Model(&models.LedgerDocumentModel{}).
			Where("id = ? AND version = ?", id, versions[id]).
			Updates(map[string]any{
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return translateError("bump document version", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError(shared.CodeConcurrencyConflict,
				fmt.Sprintf("Document %d has been modified by another process", id))
		}
	}
	return nil
}

type allocationSumRow struct {
	DocumentID int64
	Total      decimal.Decimal
}

func (s *GormLedgerStore) sumAllocations(ctx context.Context, column string, ids []int64) (map[int64]decimal.Decimal, error) {
	sums := make(map[int64]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return sums, nil
	}
	var rows []allocationSumRow
	err := s.db.WithContext(ctx).
		Model(&models.AllocationModel{}).
		Select(column+" AS document_id, SUM(amount_base) AS total").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError("sum allocations", err)
	}
	for _, r := range rows {
		// SQLite returns SUM as a float
		sums[r.DocumentID] = valueobject.Round2(r.Total)
	}
	return sums, nil
}

// SumAllocationsByTarget sums allocations grouped by debit document
func (s *GormLedgerStore) SumAllocationsByTarget(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	return s.sumAllocations(ctx, "debit_document_id", ids)
}

// SumAllocationsBySource sums allocations grouped by receipt or credit document
func (s *GormLedgerStore) SumAllocationsBySource(ctx context.Context, kind ledger.SourceKind, ids []int64) (map[int64]decimal.Decimal, error) {
	switch kind {
	case ledger.SourceKindReceipt:
		return s.sumAllocations(ctx, "receipt_id", ids)
	case ledger.SourceKindCreditDocument:
		return s.sumAllocations(ctx, "credit_document_id", ids)
	}
	return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid source kind %q", kind))
}

// CountAllocationsTouching counts allocations on either side of a document
func (s *GormLedgerStore) CountAllocationsTouching(ctx context.Context, documentID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AllocationModel{}).
		Where("debit_document_id = ? OR receipt_id = ? OR credit_document_id = ?", documentID, documentID, documentID).
		Count(&count).Error
	if err != nil {
		return 0, translateError("count allocations", err)
	}
	return count, nil
}

// FindAllocation returns one allocation by id
func (s *GormLedgerStore) FindAllocation(ctx context.Context, id int64) (*ledger.Allocation, error) {
	var model models.AllocationModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return nil, translateError("find allocation", err)
	}
	return model.ToDomain(), nil
}

// FindAllocations lists allocations ordered by id
func (s *GormLedgerStore) FindAllocations(ctx context.Context, filter ledger.AllocationFilter) ([]ledger.Allocation, error) {
	query := s.db.WithContext(ctx).Model(&models.AllocationModel{})
	if filter.Party != nil {
		query = query.Where("party_type = ? AND party_id = ?", filter.Party.Type, filter.Party.ID)
	}
	if filter.DebitDocumentID != nil {
		query = query.Where("debit_document_id = ?", *filter.DebitDocumentID)
	}
	if filter.Source != nil {
		if id, ok := filter.Source.ReceiptID(); ok {
			query = query.Where("receipt_id = ?", id)
		} else {
			query = query.Where("credit_document_id = ?", filter.Source.ID())
		}
	}
	if filter.BatchID != nil {
		query = query.Where("batch_id = ?", *filter.BatchID)
	}

	var rows []models.AllocationModel
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translateError("find allocations", err)
	}
	allocations := make([]ledger.Allocation, len(rows))
	for i := range rows {
		allocations[i] = *rows[i].ToDomain()
	}
	return allocations, nil
}

// AddAllocation inserts an allocation and assigns its id
func (s *GormLedgerStore) AddAllocation(ctx context.Context, allocation *ledger.Allocation) error {
	model := models.AllocationModelFromDomain(allocation)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError("add allocation", err)
	}
	allocation.ID = model.ID
	return nil
}

// DeleteAllocation removes one allocation row
func (s *GormLedgerStore) DeleteAllocation(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.AllocationModel{})
	if result.Error != nil {
		return translateError("delete allocation", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Allocation %d not found", id))
	}
	return nil
}

// CreateBatch writes the header, the linked allocations and the items
func (s *GormLedgerStore) CreateBatch(ctx context.Context, batch *ledger.AllocationBatch, allocations []*ledger.Allocation) error {
	if len(batch.Items) != len(allocations) {
		return shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("Batch has %d items but %d allocations", len(batch.Items), len(allocations)))
	}
	db := s.db.WithContext(ctx)

	header := models.AllocationBatchModelFromDomain(batch)
	if err := db.Omit("Items").Create(header).Error; err != nil {
		return translateError("create allocation batch", err)
	}
	batch.ID = header.ID

	for i, allocation := range allocations {
		batchID := header.ID
		allocation.BatchID = &batchID
		if err := s.AddAllocation(ctx, allocation); err != nil {
			return err
		}

		item := &models.AllocationItemModel{
			BatchID:          header.ID,
			SourceDocumentID: batch.Items[i].SourceDocumentID,
			AppliedAmount:    batch.Items[i].AppliedAmount,
			AllocationID:     allocation.ID,
		}
		if err := db.Create(item).Error; err != nil {
			return translateError("create allocation item", err)
		}
		batch.Items[i].ID = item.ID
		batch.Items[i].BatchID = header.ID
		batch.Items[i].AllocationID = allocation.ID
	}
	return nil
}

// FindBatch loads a batch with its items
func (s *GormLedgerStore) FindBatch(ctx context.Context, id int64) (*ledger.AllocationBatch, error) {
	var model models.AllocationBatchModel
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		Take(&model).Error
	if err != nil {
		return nil, translateError("find allocation batch", err)
	}
	return model.ToDomain(), nil
}

var _ ledger.Store = (*GormLedgerStore)(nil)
