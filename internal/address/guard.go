package address

import "github.com/acaidelivery/checkout/internal/domain"

// PostalCodeGuard decides when a postal code edit should trigger a lookup:
// once the code has 8 digits and differs from the last resolved one.
// It is not safe for concurrent use; callers hold their own lock.
type PostalCodeGuard struct {
	last string
}

// ShouldResolve returns the normalized code and whether it needs a lookup.
func (g *PostalCodeGuard) ShouldResolve(raw string) (string, bool) {
	digits := domain.Digits(raw)
	if len(digits) != 8 || digits == g.last {
		return digits, false
	}
	return digits, true
}

// MarkResolved records a successful lookup of digits.
func (g *PostalCodeGuard) MarkResolved(digits string) {
	g.last = digits
}

// Reset forgets the last resolved code.
func (g *PostalCodeGuard) Reset() {
	g.last = ""
}
