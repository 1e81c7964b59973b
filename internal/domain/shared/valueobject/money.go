package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	CNY Currency = "CNY" // Chinese Yuan
	ARS Currency = "ARS" // Argentine Peso
	GBP Currency = "GBP" // British Pound
)

// IsValid reports whether the code is a recognized ISO 4217 currency
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	_, err := currency.ParseISO(string(c))
	return err == nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// MoneyScale is the number of decimal places every stored amount carries
const MoneyScale int32 = 2

// Tolerance absorbs rounding drift when a proposed sum is compared to an exact target
var Tolerance = decimal.New(1, -MoneyScale)

// Round2 rounds half-to-even to two decimal places
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyScale)
}

// Sum adds the amounts, rounding after every step so long lists do not drift
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = Round2(total.Add(Round2(a)))
	}
	return total
}

// Sub returns round2(a - b)
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round2(Round2(a).Sub(Round2(b)))
}

// WithinTolerance reports whether |a - b| <= Tolerance after rounding both sides
func WithinTolerance(a, b decimal.Decimal) bool {
	return Sub(a, b).Abs().LessThanOrEqual(Tolerance)
}

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("invalid currency code: %q", currency)
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns a new Money with the sum of both amounts
// Returns error if currencies don't match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{
		amount:   m.amount.Add(other.amount),
		currency: m.currency,
	}, nil
}

// RoundBank returns a new Money with banker's rounding to the specified places
func (m Money) RoundBank(places int32) Money {
	return Money{
		amount:   m.amount.RoundBank(places),
		currency: m.currency,
	}
}

// ToBase converts the amount with the recorded exchange rate and rounds the
// result to two decimals. The rate must be positive.
func (m Money) ToBase(fxRate decimal.Decimal) (decimal.Decimal, error) {
	if !fxRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchange rate must be positive, got %s", fxRate.String())
	}
	return Round2(m.amount.Mul(fxRate)), nil
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(MoneyScale), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	parsed, err := NewMoney(amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
