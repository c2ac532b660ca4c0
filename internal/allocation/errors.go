package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundingInvariantViolation signals that residual assignment failed to make
// the computed amounts add up to the total. It indicates a bug, not bad input.
type RoundingInvariantViolation struct {
	Total decimal.Decimal
	Sum   decimal.Decimal
}

func (e *RoundingInvariantViolation) Error() string {
	return fmt.Sprintf("allocation: computed amounts sum to %s, expected %s", e.Sum.StringFixed(2), e.Total.StringFixed(2))
}
