package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CreditSuggestion is an open credit offered as a pick
type CreditSuggestion struct {
	Source    Source          `json:"source"`
	Number    string          `json:"number"`
	IssuedAt  string          `json:"issued_at"`
	Available decimal.Decimal `json:"available"`
}

// SuggestFIFOPicks orders the open credits oldest first: by issue date, then
// creation time, then id. Inactive credits and credits with nothing available
// are left out.
func SuggestFIFOPicks(credits []*Position) []CreditSuggestion {
	open := make([]*Position, 0, len(credits))
	for _, p := range credits {
		if p == nil || p.Document == nil {
			continue
		}
		if !p.Document.IsActive() || !p.Document.Kind.IsCredit() || !p.Open.IsPositive() {
			continue
		}
		open = append(open, p)
	}

	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i].Document, open[j].Document
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.Before(b.IssuedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	out := make([]CreditSuggestion, 0, len(open))
	for _, p := range open {
		src, err := SourceForDocument(p.Document)
		if err != nil {
			continue
		}
		out = append(out, CreditSuggestion{
			Source:    src,
			Number:    p.Document.Number,
			IssuedAt:  p.Document.IssuedAt.Format("2006-01-02"),
			Available: p.Open,
		})
	}
	return out
}

// Picks extracts the sources in suggestion order
func Picks(suggestions []CreditSuggestion) []Source {
	out := make([]Source, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Source
	}
	return out
}
