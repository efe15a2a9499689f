package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(t *testing.T, s string) Money {
	t.Helper()
	m, err := NewMoneyFromString(s, USD)
	require.NoError(t, err)
	return m
}

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("100.50"), USD)
		require.NoError(t, err)
		assert.Equal(t, USD, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.RequireFromString("100.50")))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})

	t.Run("rejects bad amount string", func(t *testing.T) {
		_, err := NewMoneyFromString("abc", USD)
		assert.Error(t, err)
	})
}

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    Currency
		wantErr bool
	}{
		{"", USD, false},
		{"EUR", EUR, false},
		{"usd", "", true},
		{"DOLLAR", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCurrency(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_ProRate(t *testing.T) {
	t.Run("rounds half up", func(t *testing.T) {
		got, err := usd(t, "1200").ProRate(180, 365)
		require.NoError(t, err)
		assert.Equal(t, "591.78", got.Amount().StringFixed(2))

		got, err = usd(t, "1800").ProRate(180, 365)
		require.NoError(t, err)
		assert.Equal(t, "887.67", got.Amount().StringFixed(2))
	})

	t.Run("exact half goes away from zero", func(t *testing.T) {
		got, err := usd(t, "0.05").ProRate(1, 2)
		require.NoError(t, err)
		assert.Equal(t, "0.03", got.Amount().StringFixed(2))
	})

	t.Run("zero denominator", func(t *testing.T) {
		_, err := usd(t, "10").ProRate(1, 0)
		assert.Error(t, err)
	})
}

func TestMoney_SplitRemainderLast(t *testing.T) {
	tests := []struct {
		name   string
		total  string
		parts  int
		expect []string
	}{
		{"thirds", "100.00", 3, []string{"33.33", "33.33", "33.34"}},
		{"even", "1200.00", 12, []string{"100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00", "100.00"}},
		{"single", "19.99", 1, []string{"19.99"}},
		{"sevenths", "10.00", 7, []string{"1.42", "1.42", "1.42", "1.42", "1.42", "1.42", "1.48"}},
		{"less than a cent each", "0.02", 3, []string{"0.00", "0.00", "0.02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := usd(t, tt.total)
			parts, err := total.SplitRemainderLast(tt.parts)
			require.NoError(t, err)
			require.Len(t, parts, len(tt.expect))

			sum := Zero(USD)
			for i, p := range parts {
				assert.Equal(t, tt.expect[i], p.Amount().StringFixed(2), "part %d", i)
				sum, err = sum.Add(p)
				require.NoError(t, err)
			}
			assert.True(t, sum.Amount().Equal(total.Amount()))
		})
	}

	t.Run("invalid parts", func(t *testing.T) {
		_, err := usd(t, "1").SplitRemainderLast(0)
		assert.Error(t, err)
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	a := usd(t, "10.50")
	b := usd(t, "0.25")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "10.75", sum.Amount().StringFixed(2))

	diff, err := b.Subtract(a)
	require.NoError(t, err)
	assert.True(t, diff.IsNegative())

	eur, _ := NewMoney(decimal.NewFromInt(1), EUR)
	_, err = a.Add(eur)
	assert.Error(t, err)

	assert.Equal(t, "52.50", a.MultiplyByInt(5).Amount().StringFixed(2))
	assert.Equal(t, "10.50 USD", a.String())
}

func TestMoney_JSONAndScan(t *testing.T) {
	m := usd(t, "42.1")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"42.10","currency":"USD"}`, string(data))

	var scanned Money
	require.NoError(t, scanned.Scan(data))
	assert.True(t, scanned.Equals(usd(t, "42.10")))

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())
	assert.Error(t, scanned.Scan(42))
}
