package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a payment session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionConfirmed SessionStatus = "confirmed"
	SessionExpired   SessionStatus = "expired"
	SessionCancelled SessionStatus = "cancelled"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// Only an active session may change state.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s != SessionActive {
		return false
	}
	switch next {
	case SessionConfirmed, SessionExpired, SessionCancelled:
		return true
	default:
		return false
	}
}

// Customer is the payer as echoed back by the gateway.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	CPF   string `json:"cpf"`
}

// PixCharge is what the payment gateway issues for a PIX payment.
type PixCharge struct {
	PixCode          string   `json:"pixCode"`
	QRCodeURL        string   `json:"qrCodeUrl"`
	TransactionID    string   `json:"transactionId"`
	Amount           string   `json:"amount"`
	Product          string   `json:"product"`
	Customer         Customer `json:"customer"`
	TransactionToken string   `json:"transactionToken"`
}

// PaymentSession is an issued PIX charge with its payment window.
type PaymentSession struct {
	PixCharge
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Status    SessionStatus `json:"status"`
}

// DeliveryWindow is the delivery time promised once an order is confirmed.
const DeliveryWindow = 35 * time.Minute

// DeliverySnapshot is persisted when a session opens and read back by the
// order confirmation.
type DeliverySnapshot struct {
	Address
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	ShippingDistance string          `json:"shippingDistance"`
	EstimatedTime    string          `json:"estimatedTime"`
	PixData          PixCharge       `json:"pixData"`
	Status           SessionStatus   `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	ConfirmedAt      *time.Time      `json:"confirmedAt,omitempty"`
}

// DeliveryETA is when a confirmed order should arrive. ok is false until the
// order is confirmed.
func (s DeliverySnapshot) DeliveryETA() (eta time.Time, ok bool) {
	if s.ConfirmedAt == nil {
		return time.Time{}, false
	}
	return s.ConfirmedAt.Add(DeliveryWindow), true
}

// DeliveryRemaining is the time left until DeliveryETA at now, never below
// zero and truncated to whole seconds.
func (s DeliverySnapshot) DeliveryRemaining(now time.Time) time.Duration {
	eta, ok := s.DeliveryETA()
	if !ok || !now.Before(eta) {
		return 0
	}
	return eta.Sub(now).Truncate(time.Second)
}
