package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.RequireFromString("1450.50"), AUD)
	require.NoError(t, err)
	assert.Equal(t, AUD, m.Currency())
	assert.True(t, m.Amount().Equal(decimal.RequireFromString("1450.5")))

	_, err = NewMoney(decimal.NewFromInt(100), "")
	assert.ErrorIs(t, err, ErrEmptyCurrency)

	_, err = NewMoney(decimal.NewFromInt(100), "XXX")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" aud ")
	require.NoError(t, err)
	assert.Equal(t, AUD, c)

	_, err = ParseCurrency("")
	assert.ErrorIs(t, err, ErrEmptyCurrency)
	assert.False(t, Currency("JPY").IsValid())
}

func TestMoney_Add(t *testing.T) {
	tuition := MustMoney("12000.25", AUD)
	fee := MustMoney("199.75", AUD)

	sum, err := tuition.Add(fee)
	require.NoError(t, err)
	assert.True(t, sum.Equals(MustMoney("12200", AUD)))

	_, err = tuition.Add(MustMoney("1", EUR))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_Sign(t *testing.T) {
	refund := MustMoney("250", GBP).Negate()
	assert.True(t, refund.IsNegative())
	assert.False(t, refund.IsPositive())
	assert.True(t, refund.Abs().Equals(MustMoney("250", GBP)))
	assert.True(t, Zero(GBP).IsZero())
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "1000.00 USD", MustMoney("1000", USD).String())
	assert.Equal(t, "-0.13 NZD", MustMoney("-0.125", NZD).String())
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("99.90", CAD))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"99.9","currency":"CAD"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.5","currency":"nzd"}`), &m))
	assert.Equal(t, NZD, m.Currency())

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"abc","currency":"USD"}`), &m))
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"amount":"1","currency":"ZZZ"}`), &m), ErrUnknownCurrency)
}

func TestMustMoneyPanics(t *testing.T) {
	assert.Panics(t, func() { MustMoney("ten", USD) })
	assert.Panics(t, func() { MustMoney("10", "") })
}
