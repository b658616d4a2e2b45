package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// supplyKeywords mark inventory headlines worth trading.
var supplyKeywords = []string{"DRAW", "BUILD"}

// IsSupplyHeadline reports whether the headline announces an inventory draw
// or build.
func IsSupplyHeadline(headline string) bool {
	for _, kw := range supplyKeywords {
		if strings.Contains(headline, kw) {
			return true
		}
	}
	return false
}

// ParseSurprise extracts the inventory surprise from a headline such as
// "CRUDE DRAW 5000 BARRELS": the second-to-last whitespace-separated token,
// read as a base-10 integer. Anything else yields domain.ErrMalformedHeadline.
func ParseSurprise(headline string) (int64, error) {
	fields := strings.Fields(headline)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: %q has fewer than two tokens", domain.ErrMalformedHeadline, headline)
	}
	tok := fields[len(fields)-2]
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token %q in %q is not an integer", domain.ErrMalformedHeadline, tok, headline)
	}
	return n, nil
}
