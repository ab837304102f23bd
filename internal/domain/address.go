package domain

import (
	"fmt"
	"strings"
)

// Address is a delivery address. Number and Complement are always typed by
// the customer; the rest may come from a postal code lookup.
type Address struct {
	PostalCode   string `json:"zipCode"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Phone        string `json:"phone,omitempty"`
}

// IsComplete reports whether every field needed for a shipping quote is set.
func (a Address) IsComplete() bool {
	for _, v := range []string{a.Street, a.Number, a.Neighborhood, a.City, a.State, a.PostalCode} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Lines renders the address the way the order confirmation shows it.
func (a Address) Lines() []string {
	first := a.Street + ", " + a.Number
	if a.Complement != "" {
		first += " - " + a.Complement
	}
	lines := []string{
		first,
		a.Neighborhood,
		fmt.Sprintf("%s - %s", a.City, a.State),
		"CEP: " + FormatPostalCode(a.PostalCode),
	}
	if a.Phone != "" {
		lines = append(lines, "Telefone: "+FormatPhone(a.Phone))
	}
	return lines
}

// Format joins Lines with newlines.
func (a Address) Format() string {
	return strings.Join(a.Lines(), "\n")
}

// GeoLocation is the customer's approximate location.
type GeoLocation struct {
	City      string  `json:"city"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
