package currency_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/arena-ledger/currency"
)

func TestParse_Accepted(t *testing.T) {
	cases := map[string]int64{
		"0":        0,
		"5":        500,
		"5.":       500,
		"5.5":      550,
		"5.50":     550,
		"0.07":     7,
		"13.00":    1300,
		" 8.25 ":   825,
		"00012.30": 1230,
	}
	for in, want := range cases {
		got, err := currency.Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got.Cents(), "input %q", in)
	}
}

func TestParse_Rejected(t *testing.T) {
	for _, in := range []string{
		"", ".", ".5", "5.505", "-5", "+5", "5e2", "abc", "5.x", "1.2.3",
		"99999999999999999999",
	} {
		_, err := currency.Parse(in)
		assert.ErrorIs(t, err, currency.ErrInvalidAmount, "input %q", in)
	}
}

func TestString_TwoFractionalDigits(t *testing.T) {
	assert.Equal(t, "13.00", currency.FromCents(1300).String())
	assert.Equal(t, "0.07", currency.FromCents(7).String())
	assert.Equal(t, "0.00", currency.Zero.String())
	assert.Equal(t, "-1.50", currency.FromCents(-150).String())
	assert.Equal(t, "8.00", currency.FromUnits(8).String())
}

func TestArithmetic_IsExact(t *testing.T) {
	// 0.10 + 0.20 is the classic float trap.
	sum := currency.MustParse("0.10").Add(currency.MustParse("0.20"))
	assert.Equal(t, currency.MustParse("0.30"), sum)

	diff := currency.MustParse("5.00").Sub(currency.MustParse("6.00"))
	assert.True(t, diff.IsNegative())
	assert.Equal(t, -1, currency.MustParse("5.00").Cmp(currency.MustParse("6.00")))
	assert.Equal(t, 0, currency.MustParse("6").Cmp(currency.MustParse("6.00")))
}

func TestCheckedAdd_Overflow(t *testing.T) {
	// GIVEN: The largest representable amount
	// WHEN: One more cent is added
	// THEN: ErrOverflow, not a wrapped negative balance
	top := currency.FromCents(math.MaxInt64)

	_, err := top.CheckedAdd(currency.FromCents(1))
	assert.ErrorIs(t, err, currency.ErrOverflow)

	sum, err := top.Sub(currency.FromCents(1)).CheckedAdd(currency.FromCents(1))
	require.NoError(t, err)
	assert.Equal(t, top, sum)

	_, err = currency.FromCents(math.MinInt64).CheckedAdd(currency.FromCents(-1))
	assert.ErrorIs(t, err, currency.ErrOverflow)
}

func TestJSON_RoundTripAsString(t *testing.T) {
	type payload struct {
		Fee currency.Amount `json:"fee"`
	}

	out, err := json.Marshal(payload{Fee: currency.MustParse("5.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fee":"5.50"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"fee":"12.34"}`), &in))
	assert.Equal(t, int64(1234), in.Fee.Cents())

	require.NoError(t, json.Unmarshal([]byte(`{"fee":7}`), &in))
	assert.Equal(t, int64(700), in.Fee.Cents())

	assert.Error(t, json.Unmarshal([]byte(`{"fee":"1.234"}`), &in))
}
