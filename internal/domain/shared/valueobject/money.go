package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCurrency    = errors.New("currency is required")
	ErrUnknownCurrency  = errors.New("currency not supported")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// Currency is an ISO 4217 code the billing core settles in
type Currency string

const (
	USD Currency = "USD"
	AUD Currency = "AUD"
	CAD Currency = "CAD"
	GBP Currency = "GBP"
	EUR Currency = "EUR"
	NZD Currency = "NZD"
	INR Currency = "INR"
	CNY Currency = "CNY"
)

// minor units per currency; all settle to the cent today
var currencyExponent = map[Currency]int32{
	USD: 2, AUD: 2, CAD: 2, GBP: 2, EUR: 2, NZD: 2, INR: 2, CNY: 2,
}

func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	return c, c.check()
}

func (c Currency) check() error {
	if c == "" {
		return ErrEmptyCurrency
	}
	if _, ok := currencyExponent[c]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, string(c))
	}
	return nil
}

func (c Currency) IsValid() bool  { return c.check() == nil }
func (c Currency) String() string { return string(c) }

// Money is an immutable decimal amount in one currency. Amounts keep their
// full precision; only String rounds.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if err := currency.check(); err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney parses a decimal string and panics on any error. Fixtures only.
func MustMoney(amount string, currency Currency) Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(fmt.Sprintf("money %q: %v", amount, err))
	}
	m, err := NewMoney(d, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero(currency Currency) Money { return Money{amount: decimal.Zero, currency: currency} }

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }

func (m Money) Negate() Money { return Money{amount: m.amount.Neg(), currency: m.currency} }
func (m Money) Abs() Money    { return Money{amount: m.amount.Abs(), currency: m.currency} }

// Add sums two amounts of the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders the amount at the currency's minor-unit precision, e.g. "1000.00 USD"
func (m Money) String() string {
	exp, ok := currencyExponent[m.currency]
	if !ok {
		exp = 2
	}
	return m.amount.StringFixed(exp) + " " + string(m.currency)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.String(), Currency: string(m.currency)})
}

// UnmarshalJSON validates the currency. The sign is the owning aggregate's concern.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("money amount %q: %w", raw.Amount, err)
	}
	currency, err := ParseCurrency(raw.Currency)
	if err != nil {
		return err
	}
	*m = Money{amount: amount, currency: currency}
	return nil
}
