package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Digits strips everything but ASCII digits from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPostalCode renders a CEP as NNNNN-NNN. Partial input is formatted
// as far as it goes and extra digits are dropped.
func FormatPostalCode(s string) string {
	d := truncate(Digits(s), 8)
	if len(d) <= 5 {
		return d
	}
	return d[:5] + "-" + d[5:]
}

// FormatCPF renders a CPF as NNN.NNN.NNN-NN.
func FormatCPF(s string) string {
	d := truncate(Digits(s), 11)
	var b strings.Builder
	for i, r := range d {
		switch i {
		case 3, 6:
			b.WriteByte('.')
		case 9:
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatPhone renders a phone as (NN) NNNN-NNNN or (NN) NNNNN-NNNN.
func FormatPhone(s string) string {
	d := truncate(Digits(s), 11)
	if len(d) <= 2 {
		return d
	}
	area, rest := d[:2], d[2:]
	if len(rest) <= 4 {
		return "(" + area + ") " + rest
	}
	split := len(rest) - 4
	return "(" + area + ") " + rest[:split] + "-" + rest[split:]
}

// FormatMoney renders an amount in reais, e.g. "R$ 5,43".
func FormatMoney(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// FormatClock renders d as MM:SS, e.g. "35:00".
func FormatClock(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
