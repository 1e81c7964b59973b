package ledger

import (
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Split is the amount taken from one source
type Split struct {
	Source Source          `json:"source"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderedPlan is the outcome of a greedy credit application
type OrderedPlan struct {
	TargetID     int64           `json:"target_id"`
	Pending      decimal.Decimal `json:"pending"`
	AppliedTotal decimal.Decimal `json:"applied_total"`
	Remaining    decimal.Decimal `json:"remaining"`
	Splits       []Split         `json:"splits"`
}

// IsNoop reports whether nothing would be written
func (p *OrderedPlan) IsNoop() bool {
	return len(p.Splits) == 0
}

// PlanOrderedCredits applies the picks to the target in the given order, taking
// min(available, remaining) from each until the target is covered.
//
// sources must hold a position for every picked source, read once inside the
// caller's transaction. The positions are not modified; running balances live
// in a working copy local to this call. A source picked twice is drawn from its
// remaining balance the second time.
func PlanOrderedCredits(target *Position, picks []Source, sources map[Source]*Position) (*OrderedPlan, error) {
	party := target.Document.Party()
	if err := CheckDebit(party, target.Document); err != nil {
		return nil, err
	}

	plan := &OrderedPlan{
		TargetID:     target.Document.ID,
		Pending:      target.Open,
		AppliedTotal: decimal.Zero,
		Remaining:    target.Open,
		Splits:       make([]Split, 0),
	}
	if !target.Open.IsPositive() {
		plan.Remaining = decimal.Zero
		return plan, nil
	}

	available := make(map[Source]decimal.Decimal, len(picks))
	pool := decimal.Zero
	for _, src := range picks {
		if _, seen := available[src]; seen {
			continue
		}
		pos, ok := sources[src]
		if !ok || pos == nil || pos.Document == nil {
			return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Credit source %s not found", src))
		}
		if err := CheckSource(party, src, pos.Document); err != nil {
			return nil, err
		}
		available[src] = pos.Open
		pool = valueobject.Sum(pool, pos.Open)
	}

	if pool.LessThan(valueobject.Sub(target.Open, valueobject.Tolerance)) {
		return nil, shared.NewDomainError(shared.CodeInsufficientCoverage,
			fmt.Sprintf("Selected credits total %s but %s is pending on %s",
				pool.StringFixed(valueobject.MoneyScale),
				target.Open.StringFixed(valueobject.MoneyScale),
				target.Document.Label()))
	}

	remaining := target.Open
	for _, src := range picks {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(available[src], remaining)
		if !take.IsPositive() {
			continue
		}
		plan.Splits = append(plan.Splits, Split{Source: src, Amount: take})
		available[src] = valueobject.Sub(available[src], take)
		remaining = valueobject.Sub(remaining, take)
		plan.AppliedTotal = valueobject.Sum(plan.AppliedTotal, take)
	}
	plan.Remaining = remaining

	return plan, nil
}
