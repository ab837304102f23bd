package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostalCodeGuard(t *testing.T) {
	var g PostalCodeGuard

	_, ok := g.ShouldResolve("0100")
	assert.False(t, ok, "incomplete code")

	digits, ok := g.ShouldResolve("01001-000")
	assert.True(t, ok)
	assert.Equal(t, "01001000", digits)

	// Without a successful resolution the same code is tried again.
	_, ok = g.ShouldResolve("01001000")
	assert.True(t, ok)

	g.MarkResolved(digits)
	_, ok = g.ShouldResolve("01001-000")
	assert.False(t, ok, "same code as last resolved")

	_, ok = g.ShouldResolve("20040-020")
	assert.True(t, ok)

	g.Reset()
	_, ok = g.ShouldResolve("01001-000")
	assert.True(t, ok, "reset forgets the last resolved code")
}
