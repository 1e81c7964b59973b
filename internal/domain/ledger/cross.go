package ledger

import (
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CrossLine requests an amount from one receipt
type CrossLine struct {
	ReceiptID int64           `json:"receipt_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

// CrossPlan is a validated exact cover of one invoice by receipts
type CrossPlan struct {
	TargetID int64           `json:"target_id"`
	Pending  decimal.Decimal `json:"pending"`
	Lines    []Split         `json:"lines"`
}

// PlanCrossAllocation checks that the lines cover the invoice's pending amount
// exactly, with no tolerance, and that no receipt is drawn beyond its available
// amount. Lines keep the caller's order. Any violation returns an error and no plan.
func PlanCrossAllocation(target *Position, lines []CrossLine, receipts map[int64]*Position) (*CrossPlan, error) {
	doc := target.Document
	party := doc.Party()
	if err := CheckDebit(party, doc); err != nil {
		return nil, err
	}
	if doc.Kind != DocumentKindInvoice {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s is not an invoice", doc.Label()))
	}
	if !target.Open.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s has nothing pending", doc.Label()))
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one receipt line is required")
	}

	available := make(map[int64]decimal.Decimal, len(lines))
	requested := decimal.Zero
	split := make([]Split, 0, len(lines))

	for _, line := range lines {
		amount := valueobject.Round2(line.Amount)
		if !amount.IsPositive() {
			return nil, shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("Amount for receipt %d must be positive", line.ReceiptID))
		}
		pos, ok := receipts[line.ReceiptID]
		if !ok || pos == nil || pos.Document == nil {
			return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("Receipt %d not found", line.ReceiptID))
		}
		src := ReceiptSource(line.ReceiptID)
		if err := CheckSource(party, src, pos.Document); err != nil {
			return nil, err
		}
		left, seen := available[line.ReceiptID]
		if !seen {
			left = pos.Open
		}
		if amount.GreaterThan(left) {
			return nil, shared.NewDomainError(shared.CodeInsufficientCoverage,
				fmt.Sprintf("%s has %s available, %s requested",
					pos.Document.Label(), left.StringFixed(valueobject.MoneyScale), amount.StringFixed(valueobject.MoneyScale)))
		}
		available[line.ReceiptID] = valueobject.Sub(left, amount)
		requested = valueobject.Sum(requested, amount)
		split = append(split, Split{Source: src, Amount: amount})
	}

	if !requested.Equal(target.Open) {
		return nil, shared.NewDomainError(shared.CodeInsufficientCoverage,
			fmt.Sprintf("Lines total %s but %s is pending on %s",
				requested.StringFixed(valueobject.MoneyScale),
				target.Open.StringFixed(valueobject.MoneyScale),
				doc.Label()))
	}

	pending := target.Open
	for _, s := range split {
		pending = valueobject.Sub(pending, s.Amount)
	}
	if !pending.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("%s would keep %s pending after the batch", doc.Label(), pending.StringFixed(valueobject.MoneyScale)))
	}

	return &CrossPlan{
		TargetID: doc.ID,
		Pending:  target.Open,
		Lines:    split,
	}, nil
}
