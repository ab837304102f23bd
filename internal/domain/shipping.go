package domain

import "github.com/shopspring/decimal"

// ShippingQuote is a delivery estimate for one address.
type ShippingQuote struct {
	Cost          decimal.Decimal `json:"cost"`
	Distance      string          `json:"distance"`
	EstimatedTime string          `json:"estimatedTime"`
}

// IsZero reports whether no quote has been calculated.
func (q ShippingQuote) IsZero() bool {
	return q.Cost.IsZero() && q.Distance == "" && q.EstimatedTime == ""
}
