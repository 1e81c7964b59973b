package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// DocumentFilter defines filtering options for document queries
type DocumentFilter struct {
	IDs              []int64          // Filter by document ids
	Party            *Party           // Filter by owning party
	Kinds            []DocumentKind   // Filter by kind
	Statuses         []DocumentStatus // Filter by status
	SourceKind       string           // Filter by external provenance kind
	SourceDocumentID string           // Filter by external provenance id
	ForUpdate        bool             // Row-lock the matched documents until the transaction ends
}

// Store is the persistence contract for documents, allocations and batches.
//
// Sums are computed from the allocation rows present when the call is made and
// are never cached. Ids without allocations are absent from the returned maps;
// callers treat a missing key as zero.
type Store interface {
	// FindDocument returns the single matching document or shared.ErrNotFound
	FindDocument(ctx context.Context, filter DocumentFilter) (*LedgerDocument, error)

	// FindDocuments returns all matching documents ordered by id
	FindDocuments(ctx context.Context, filter DocumentFilter) ([]LedgerDocument, error)

	// SaveDocument inserts a new document and assigns its id
	SaveDocument(ctx context.Context, doc *LedgerDocument) error

	// UpdateDocumentStatus persists a status change guarded by the document version
	UpdateDocumentStatus(ctx context.Context, doc *LedgerDocument) error

	// BumpVersions increments the version of each document, failing with
	// shared.ErrConcurrencyConflict when a stored version differs from the one given
	BumpVersions(ctx context.Context, versions map[int64]int) error

	// SumAllocationsByTarget sums allocations grouped by debit document
	SumAllocationsByTarget(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)

	// SumAllocationsBySource sums allocations grouped by source document of the given kind
	SumAllocationsBySource(ctx context.Context, kind SourceKind, ids []int64) (map[int64]decimal.Decimal, error)

	// CountAllocationsTouching counts allocations where the document is target or source
	CountAllocationsTouching(ctx context.Context, documentID int64) (int64, error)

	// FindAllocation returns one allocation or shared.ErrNotFound
	FindAllocation(ctx context.Context, id int64) (*Allocation, error)

	// FindAllocations lists allocations ordered by id
	FindAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error)

	// AddAllocation inserts an allocation and assigns its id
	AddAllocation(ctx context.Context, allocation *Allocation) error

	// DeleteAllocation removes an allocation row
	DeleteAllocation(ctx context.Context, id int64) error

	// CreateBatch inserts the batch header, then each allocation linked to the
	// batch, then each item linked to its allocation. batch.Items[i] describes
	// allocations[i]; ids are assigned on all three.
	CreateBatch(ctx context.Context, batch *AllocationBatch, allocations []*Allocation) error

	// FindBatch loads a batch with its items or returns shared.ErrNotFound
	FindBatch(ctx context.Context, id int64) (*AllocationBatch, error)
}

// TransactionScope runs a unit of work atomically. The store passed to fn is
// bound to the transaction: returning nil commits, returning an error, panicking
// or cancelling the context rolls everything back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(store Store) error) error
}
