package pricing

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// ErrNoPrice reports that no currency-like token was found in the text.
var ErrNoPrice = errors.New("no parseable price in text")

var (
	currencyPattern = regexp.MustCompile(`\$\s*(\d+(?:\.\d{1,2})?)`)
	numberPattern   = regexp.MustCompile(`\d+(?:\.\d{1,2})?`)
)

// ParsePrice extracts the displayed price from a product card's text. The
// first $-prefixed token wins; if the text carries no currency symbol the
// last bare numeric token is used instead, since cards usually render the
// price after the description.
func ParsePrice(text string) (decimal.Decimal, error) {
	if m := currencyPattern.FindStringSubmatch(text); m != nil {
		d, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse price %q: %w", m[1], err)
		}
		return d, nil
	}
	matches := numberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	last := matches[len(matches)-1]
	d, err := decimal.NewFromString(last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", last, err)
	}
	return d, nil
}
