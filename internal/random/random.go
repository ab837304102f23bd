// Package random provides a goroutine-safe, injectable source of draws.
package random

import (
	"math/rand/v2"
	"sync"
)

// Source draws pseudo-random numbers.
type Source interface {
	Float64() float64
	IntN(n int) int
}

type locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New wraps r so it can be shared between goroutines.
func New(r *rand.Rand) Source {
	return &locked{r: r}
}

// NewSeeded returns a deterministic Source, for tests.
func NewSeeded(seed uint64) Source {
	return New(rand.New(rand.NewPCG(seed, seed)))
}

// Default returns a Source seeded from the runtime.
func Default() Source {
	return New(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))) // #nosec G404 -- simulated quotes
}

func (l *locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Fixed returns the given floats in order, cycling; IntN scales the
// current float into [0, n). For tests.
type Fixed struct {
	mu     sync.Mutex
	Values []float64
	next   int
}

func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.Values[f.next%len(f.Values)]
	f.next++
	return v
}

func (f *Fixed) IntN(n int) int {
	return int(f.Float64() * float64(n))
}

// Draws returns how many values have been consumed.
func (f *Fixed) Draws() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}
