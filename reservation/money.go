package reservation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Money is a net amount with its VAT rate and currency. VAT and gross are
// always derived from net and rate, never stored.
type Money struct {
	net      decimal.Decimal
	vatRate  decimal.Decimal
	currency string
}

// NewMoney validates net >= 0, 0 <= vatRate <= 1 and a three letter currency code.
func NewMoney(net, vatRate decimal.Decimal, currency string) (Money, error) {
	if net.IsNegative() {
		return Money{}, &ValidationError{Field: "net amount", Reason: fmt.Sprintf("must not be negative, got %s", net)}
	}
	if vatRate.IsNegative() || vatRate.GreaterThan(one) {
		return Money{}, &ValidationError{Field: "vat rate", Reason: fmt.Sprintf("must be between 0 and 1, got %s", vatRate)}
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 || strings.IndexFunc(currency, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return Money{}, &ValidationError{Field: "currency", Reason: fmt.Sprintf("must be a three letter code, got %q", currency)}
	}

	return Money{net: net, vatRate: vatRate, currency: currency}, nil
}

// ParseMoney is NewMoney for decimal strings such as "49.90" and "0.19".
func ParseMoney(net, vatRate, currency string) (Money, error) {
	n, err := decimal.NewFromString(net)
	if err != nil {
		return Money{}, &ValidationError{Field: "net amount", Reason: err.Error()}
	}
	r, err := decimal.NewFromString(vatRate)
	if err != nil {
		return Money{}, &ValidationError{Field: "vat rate", Reason: err.Error()}
	}
	return NewMoney(n, r, currency)
}

func (m Money) Net() decimal.Decimal     { return m.net }
func (m Money) VATRate() decimal.Decimal { return m.vatRate }
func (m Money) Currency() string         { return m.currency }

// VAT is net * rate rounded half away from zero to cents.
func (m Money) VAT() decimal.Decimal {
	return m.net.Mul(m.vatRate).Round(2)
}

func (m Money) Gross() decimal.Decimal {
	return m.net.Add(m.VAT())
}

func (m Money) IsZero() bool {
	return m.currency == ""
}

// Add sums two amounts with the same currency and VAT rate.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &ValidationError{Field: "currency", Reason: fmt.Sprintf("cannot add %s to %s", other.currency, m.currency)}
	}
	if !m.vatRate.Equal(other.vatRate) {
		return Money{}, &ValidationError{Field: "vat rate", Reason: fmt.Sprintf("cannot add amounts taxed at %s and %s", m.vatRate, other.vatRate)}
	}
	return Money{net: m.net.Add(other.net), vatRate: m.vatRate, currency: m.currency}, nil
}

// Times multiplies the net amount by n.
func (m Money) Times(n int64) Money {
	return Money{net: m.net.Mul(decimal.NewFromInt(n)), vatRate: m.vatRate, currency: m.currency}
}

// Equal compares by value.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.net.Equal(other.net) && m.vatRate.Equal(other.vatRate)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s (net %s + VAT %s)", m.Gross().StringFixed(2), m.currency, m.net.StringFixed(2), m.VAT().StringFixed(2))
}

type moneyJSON struct {
	Net      decimal.Decimal  `json:"net"`
	VATRate  decimal.Decimal  `json:"vat_rate"`
	Currency string           `json:"currency"`
	VAT      *decimal.Decimal `json:"vat,omitempty"`
	Gross    *decimal.Decimal `json:"gross,omitempty"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	vat, gross := m.VAT(), m.Gross()
	return json.Marshal(moneyJSON{
		Net:      m.net,
		VATRate:  m.vatRate,
		Currency: m.currency,
		VAT:      &vat,
		Gross:    &gross,
	})
}

// UnmarshalJSON ignores the derived vat and gross fields.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Net, raw.VATRate, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
