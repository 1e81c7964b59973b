package allocation

import (
	"context"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// BalanceService computes party balances and statements from the allocation history
type BalanceService struct {
	base
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(scope ledger.TransactionScope, opts ...Option) *BalanceService {
	return &BalanceService{base: newBase("BalanceService", scope, opts...)}
}

// GetBalances returns outstanding debt, available credit and the net of both
func (s *BalanceService) GetBalances(ctx context.Context, party ledger.Party) (balances *ledger.Balances, err error) {
	ctx, o := s.begin(ctx, "GetBalances", partyAttrs(party)...)
	defer func() { o.end(ctx, err) }()

	docs, sums, err := s.readParty(ctx, party)
	if err != nil {
		return nil, err
	}
	b := ledger.ComputeBalances(docs, sums)
	telemetry.SetAttributes(o.span, telemetry.SpanAttrAmount, b.Net)
	return &b, nil
}

// GetStatement lists the party's active documents with allocated and open
// amounts, followed by the same totals GetBalances returns
func (s *BalanceService) GetStatement(ctx context.Context, party ledger.Party) (statement *ledger.Statement, err error) {
	ctx, o := s.begin(ctx, "GetStatement", partyAttrs(party)...)
	defer func() { o.end(ctx, err) }()

	docs, sums, err := s.readParty(ctx, party)
	if err != nil {
		return nil, err
	}
	return ledger.BuildStatement(party, docs, sums), nil
}

// readParty loads the party's active documents and their allocation sums in
// one transaction so both reflect the same committed state
func (s *BalanceService) readParty(ctx context.Context, party ledger.Party) ([]ledger.LedgerDocument, ledger.AllocationSums, error) {
	if err := party.Validate(); err != nil {
		return nil, ledger.AllocationSums{}, err
	}

	var (
		docs []ledger.LedgerDocument
		sums = ledger.AllocationSums{
			ByTarget: map[int64]decimal.Decimal{},
			BySource: map[int64]decimal.Decimal{},
		}
	)
	err := s.scope.Execute(ctx, func(store ledger.Store) error {
		var err error
		docs, err = store.FindDocuments(ctx, ledger.DocumentFilter{
			Party:    &party,
			Statuses: []ledger.DocumentStatus{ledger.DocumentStatusActive},
		})
		if err != nil {
			return err
		}
		snapshot, err := snapshotOf(ctx, store, docs)
		if err != nil {
			return err
		}
		for id, total := range snapshot.allocated {
			if snapshot.docs[id].Kind.IsDebit() {
				sums.ByTarget[id] = total
			} else {
				sums.BySource[id] = total
			}
		}
		return nil
	})
	if err != nil {
		return nil, ledger.AllocationSums{}, err
	}
	return docs, sums, nil
}
