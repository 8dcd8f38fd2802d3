package htlc

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Tickers are upper-case alphanumerics so that the same token always compares
// equal across peers. Wire values are normalised with ParseTicker first.
var tickerRegex = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

type Ticker string

// ParseTicker upper-cases s and trims surrounding spaces before validating it.
func ParseTicker(s string) (Ticker, error) {
	t := Ticker(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t Ticker) Validate() error {
	if !tickerRegex.MatchString(string(t)) {
		return Errorf(ErrInvalidTerms, "invalid ticker %q", t)
	}
	return nil
}

// Terms is what the proposer gives (From) in exchange for what it wants (To).
type Terms struct {
	FromToken  Ticker          `json:"fromToken"`
	FromAmount decimal.Decimal `json:"fromAmount"`
	ToToken    Ticker          `json:"toToken"`
	ToAmount   decimal.Decimal `json:"toAmount"`
}

func (t Terms) Validate() error {
	if err := t.FromToken.Validate(); err != nil {
		return err
	}
	if err := t.ToToken.Validate(); err != nil {
		return err
	}
	if t.FromToken == t.ToToken {
		return Errorf(ErrSameToken, "cannot swap %s for itself", t.FromToken)
	}
	if !t.FromAmount.IsPositive() {
		return Errorf(ErrNonPositiveAmount, "from amount must be positive, got %s", t.FromAmount)
	}
	if !t.ToAmount.IsPositive() {
		return Errorf(ErrNonPositiveAmount, "to amount must be positive, got %s", t.ToAmount)
	}
	return nil
}

// Mirror returns the terms as seen by the counterparty.
func (t Terms) Mirror() Terms {
	return Terms{
		FromToken:  t.ToToken,
		FromAmount: t.ToAmount,
		ToToken:    t.FromToken,
		ToAmount:   t.FromAmount,
	}
}
