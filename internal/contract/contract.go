// Package contract decodes equity option contract identifiers into
// their economic parameters. The identifier format is fixed:
//
//	<ROOT><YY><MM><DD><C|P><8-digit strike>
//
// where ROOT is the underlying ticker, the six digits are an
// expiration date in 20YY-MM-DD, one letter marks call/put, and the
// trailing eight digits encode the strike price multiplied by 1000.
// Example: AAPL211223C00148000 → AAPL, 2021-12-23, call, 148.00.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Option type letters. Any other letter decomposes fine but is treated
// as unsupported by callers.
const (
	TypeCall = "C"
	TypePut  = "P"
)

// symbolRegex splits the identifier into its four runs: root (leading
// non-digit run), six date digits, one non-digit type letter, and the
// trailing eight strike digits.
var symbolRegex = regexp.MustCompile(`^(\D+)(\d{6})(\D)(\d{8})$`)

// ErrInvalidFormat is returned when an identifier cannot be decomposed
// into root, date, type, and strike runs.
var ErrInvalidFormat = errors.New("contract: invalid contract format")

// Contract is a decoded option contract identifier.
type Contract struct {
	Symbol     string          `json:"symbol"`
	Ticker     string          `json:"ticker"`
	Expiration *time.Time      `json:"expiration"` // nil when the date digits form no real date
	Type       string          `json:"type"`       // single letter, passed through literally
	Strike     decimal.Decimal `json:"strike"`
}

// Parse decodes a contract identifier. It fails only when the string
// cannot be decomposed; a decomposable identifier always parses, with
// a nil Expiration for impossible calendar dates (callers must treat
// nil as "cannot validate expiration", never as the epoch) and the
// type letter passed through even when it is not C or P.
func Parse(symbol string) (*Contract, error) {
	m := symbolRegex.FindStringSubmatch(symbol)
	if m == nil {
		return nil, fmt.Errorf("%w: %q (expected <ROOT><YYMMDD><C|P><STRIKE*1000, 8 digits>)",
			ErrInvalidFormat, symbol)
	}

	c := &Contract{
		Symbol: symbol,
		Ticker: m[1],
		Type:   m[3],
	}

	// Two-digit years are anchored to the 2000s, matching the OCC
	// symbology this format derives from. time.Parse rejects
	// impossible dates such as month 13 or February 30.
	if exp, err := time.Parse("20060102", "20"+m[2]); err == nil {
		c.Expiration = &exp
	}

	// The run is all digits by construction, so ParseInt cannot fail.
	raw, _ := strconv.ParseInt(m[4], 10, 64)
	c.Strike = decimal.New(raw, -3)

	return c, nil
}

// IsOption reports whether symbol decomposes as an option contract
// identifier. Plain equity tickers never match.
func IsOption(symbol string) bool {
	return symbolRegex.MatchString(symbol)
}
