package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(dec("100.50"), USD)
		require.NoError(t, err)
		assert.Equal(t, USD, m.Currency())
		assert.True(t, m.Amount().Equal(dec("100.50")))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(dec("100"), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})

	t.Run("returns error for malformed currency", func(t *testing.T) {
		_, err := NewMoney(dec("100"), "usd")
		assert.Error(t, err)
	})

	t.Run("returns error for unrecognized currency", func(t *testing.T) {
		_, err := NewMoney(dec("100"), "XYZ")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid currency code")
	})
}

func TestCurrency_IsValid(t *testing.T) {
	for _, c := range []Currency{USD, EUR, CNY, ARS, GBP, "JPY", "CHF"} {
		assert.True(t, c.IsValid(), c)
	}
	for _, c := range []Currency{"", "US", "usd", "USDT", "XYZ", "QQQ"} {
		assert.False(t, c.IsValid(), c)
	}
}

func TestNewMoneyFromString(t *testing.T) {
	t.Run("valid string", func(t *testing.T) {
		m, err := NewMoneyFromString("123.45", EUR)
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(dec("123.45")))
	})

	t.Run("invalid string", func(t *testing.T) {
		_, err := NewMoneyFromString("not-a-number", EUR)
		assert.Error(t, err)
	})
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.00"},
		{"1.015", "1.02"},
		{"1.025", "1.02"},
		{"2.675", "2.68"},
		{"-1.005", "-1.00"},
		{"10", "10"},
		{"33.3333", "33.33"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, Round2(dec(tt.in)).Equal(dec(tt.want)), "Round2(%s) = %s", tt.in, Round2(dec(tt.in)))
		})
	}
}

func TestSum(t *testing.T) {
	t.Run("thirds add up to the whole", func(t *testing.T) {
		total := Sum(dec("33.33"), dec("33.33"), dec("33.34"))
		assert.True(t, total.Equal(dec("100.00")))
	})

	t.Run("empty sum is zero", func(t *testing.T) {
		assert.True(t, Sum().IsZero())
	})

	t.Run("rounds each term", func(t *testing.T) {
		total := Sum(dec("0.005"), dec("0.015"))
		assert.True(t, total.Equal(dec("0.02")))
	})
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(dec("100.00"), dec("100.00")))
	assert.True(t, WithinTolerance(dec("100.01"), dec("100.00")))
	assert.True(t, WithinTolerance(dec("99.99"), dec("100.00")))
	assert.False(t, WithinTolerance(dec("99.98"), dec("100.00")))
	assert.False(t, WithinTolerance(dec("100.02"), dec("100.00")))
}

func TestMoney_ToBase(t *testing.T) {
	t.Run("converts with rate and rounds", func(t *testing.T) {
		m, err := NewMoney(dec("100.00"), USD)
		require.NoError(t, err)

		base, err := m.ToBase(dec("1.23456"))
		require.NoError(t, err)
		assert.True(t, base.Equal(dec("123.46")))
	})

	t.Run("rejects non-positive rate", func(t *testing.T) {
		m, _ := NewMoney(dec("100.00"), USD)
		_, err := m.ToBase(decimal.Zero)
		assert.Error(t, err)
	})
}

func TestMoney_Add(t *testing.T) {
	a, _ := NewMoney(dec("10.00"), USD)
	b, _ := NewMoney(dec("5.25"), USD)
	c, _ := NewMoney(dec("1.00"), EUR)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(dec("15.25")))

	_, err = a.Add(c)
	assert.Error(t, err)
}

func TestMoney_JSON(t *testing.T) {
	m, _ := NewMoney(dec("42.10"), GBP)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, m.Equals(back))
	assert.Equal(t, "42.10 GBP", back.String())

	var bad Money
	err = json.Unmarshal([]byte(`{"amount":"1.00","currency":"XYZ"}`), &bad)
	assert.Error(t, err)
	assert.Equal(t, Currency(""), bad.Currency())
}
