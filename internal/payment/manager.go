// Package payment validates a composed order, opens a PIX payment session
// with the gateway and tracks its payment window.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/acaidelivery/checkout/internal/client/pixgateway"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/store"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/httpclient"
)

const (
	// DefaultSessionTTL is the payment window shown to the customer.
	DefaultSessionTTL = 900 * time.Second
	// DefaultProduct labels every charge.
	DefaultProduct = "Rei do Açai Delivery"
	// MsgGatewayFailed is shown when the gateway gives no message of its own.
	MsgGatewayFailed = "Erro ao gerar PIX"
)

var sessionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_payment_sessions_total",
		Help: "Payment session transitions by outcome",
	},
	[]string{"outcome"},
)

// Gateway issues PIX charges.
type Gateway interface {
	GeneratePix(ctx context.Context, req pixgateway.Request) (*domain.PixCharge, error)
}

// EventPublisher is told about session transitions. Failures are logged.
type EventPublisher interface {
	PublishSessionOpened(ctx context.Context, deviceID string, s domain.PaymentSession) error
	PublishSessionConfirmed(ctx context.Context, deviceID string, s domain.PaymentSession) error
	PublishSessionCancelled(ctx context.Context, deviceID string, s domain.PaymentSession) error
	PublishSessionExpired(ctx context.Context, deviceID string, s domain.PaymentSession) error
}

// Config tunes a Manager.
type Config struct {
	SessionTTL time.Duration
	Product    string
	NewTicker  TickerFactory
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.Product == "" {
		c.Product = DefaultProduct
	}
	if c.NewTicker == nil {
		c.NewTicker = NewRealTicker
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Order is everything a session is opened for.
type Order struct {
	Form     CheckoutForm
	Subtotal decimal.Decimal
	Shipping domain.ShippingQuote
}

// SessionView is a session as the customer sees it, with the clock.
type SessionView struct {
	Session          domain.PaymentSession `json:"session"`
	RemainingSeconds int                   `json:"remainingSeconds"`
	Clock            string                `json:"clock"`
	Display          string                `json:"display"`
}

// Manager owns at most one payment session and its countdown. It belongs to
// one checkout view; Close tears it down with the view.
type Manager struct {
	mu        sync.Mutex
	kv        store.Store
	gateway   Gateway
	events    EventPublisher
	logger    *slog.Logger
	cfg       Config
	deviceID  string
	session   *domain.PaymentSession
	snapshot  *domain.DeliverySnapshot
	countdown *Countdown
	pending   bool
	closed    bool
}

// NewManager creates a Manager. events may be nil.
func NewManager(kv store.Store, gateway Gateway, events EventPublisher, deviceID string, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		kv:       kv,
		gateway:  gateway,
		events:   events,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		deviceID: deviceID,
	}
}

// Submit validates order and asks the gateway for a PIX charge. On success
// the session becomes active, its countdown starts and the delivery
// snapshot is persisted. Any failure leaves the manager ready for another
// submission; nothing is retried.
func (m *Manager) Submit(ctx context.Context, order Order) (*SessionView, error) {
	if err := Validate(order.Form, order.Shipping.Cost); err != nil {
		return nil, err
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, apperrors.Gone("checkout was closed")
	case m.pending:
		m.mu.Unlock()
		return nil, apperrors.Conflict("a payment request is already in progress")
	case m.session != nil && m.session.Status == domain.SessionActive:
		m.mu.Unlock()
		return nil, apperrors.Conflict("a payment session is already active")
	}
	m.pending = true
	m.mu.Unlock()

	charge, err := m.gateway.GeneratePix(ctx, pixgateway.Request{
		Name:    order.Form.Name,
		CPF:     domain.Digits(order.Form.CPF),
		Email:   order.Form.Email,
		Phone:   domain.Digits(order.Form.Phone),
		Product: m.cfg.Product,
		Amount:  AmountInCentavos(order.Subtotal, order.Shipping.Cost),
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false

	if err != nil {
		sessionsTotal.WithLabelValues("failed").Inc()
		return nil, m.gatewayError(ctx, err)
	}
	if m.closed {
		// The view went away while the gateway answered.
		m.logger.WarnContext(ctx, "discarding payment session for closed checkout",
			slog.String("transaction_id", charge.TransactionID))
		return nil, apperrors.Gone("checkout was closed")
	}

	now := m.cfg.Now()
	session := &domain.PaymentSession{
		PixCharge: *charge,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL),
		Status:    domain.SessionActive,
	}

	if err := m.saveSnapshot(ctx, order, session); err != nil {
		return nil, err
	}

	m.stopCountdown()
	m.session = session
	m.countdown = StartCountdown(int(m.cfg.SessionTTL/time.Second), m.cfg.NewTicker, m.expireFunc(session))

	sessionsTotal.WithLabelValues("opened").Inc()
	m.logger.InfoContext(ctx, "payment session opened",
		slog.String("transaction_id", session.TransactionID),
		slog.String("amount", session.Amount),
	)
	m.publish(ctx, eventOpened, *session)

	return m.viewLocked(), nil
}

func (m *Manager) gatewayError(ctx context.Context, err error) error {
	m.logger.ErrorContext(ctx, "payment gateway request failed", slog.String("error", err.Error()))

	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		msg := statusErr.Message
		if msg == "" {
			msg = MsgGatewayFailed
		}
		return apperrors.PaymentFailed(msg)
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return apperrors.ServiceUnavailable(MsgGatewayFailed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.Upstream(MsgGatewayFailed, err)
	}
}

func (m *Manager) saveSnapshot(ctx context.Context, order Order, session *domain.PaymentSession) error {
	snapshot := &domain.DeliverySnapshot{
		Address:          order.Form.Address(),
		ShippingCost:     order.Shipping.Cost,
		ShippingDistance: order.Shipping.Distance,
		EstimatedTime:    order.Shipping.EstimatedTime,
		PixData:          session.PixCharge,
		Status:           session.Status,
		CreatedAt:        session.CreatedAt,
		ExpiresAt:        session.ExpiresAt,
	}
	if err := store.Save(ctx, m.kv, store.KeyDeliveryAddress, snapshot); err != nil {
		return fmt.Errorf("persist delivery snapshot: %w", err)
	}
	m.snapshot = snapshot
	return nil
}

func (m *Manager) expireFunc(session *domain.PaymentSession) func() {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.session != session || !session.Status.CanTransitionTo(domain.SessionExpired) {
			return
		}
		session.Status = domain.SessionExpired
		sessionsTotal.WithLabelValues("expired").Inc()

		ctx := context.Background()
		m.logger.InfoContext(ctx, "payment session expired", slog.String("transaction_id", session.TransactionID))
		m.publish(ctx, eventExpired, *session)
	}
}

// Session returns the current session, or a not-found error.
func (m *Manager) Session() (*SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, apperrors.NotFound("payment session", m.deviceID)
	}
	return m.viewLocked(), nil
}

// Active reports whether an active session exists.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.Status == domain.SessionActive
}

// Confirm marks the active session as confirmed. settle, if not nil, runs
// first while the manager is locked, so the countdown cannot expire the
// session underneath it. The confirmed delivery snapshot is persisted before
// the status changes; if settle or the write fails the session stays active.
func (m *Manager) Confirm(ctx context.Context, settle func(context.Context) error) (*SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTransitionLocked(domain.SessionConfirmed); err != nil {
		return nil, err
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return nil, err
		}
	}

	// Written back even if settle removed it.
	if m.snapshot != nil && m.snapshot.PixData.TransactionID == m.session.TransactionID {
		confirmed := *m.snapshot
		confirmed.Status = domain.SessionConfirmed
		at := m.cfg.Now()
		confirmed.ConfirmedAt = &at
		if err := store.Save(ctx, m.kv, store.KeyDeliveryAddress, &confirmed); err != nil {
			return nil, fmt.Errorf("persist delivery snapshot: %w", err)
		}
		m.snapshot = &confirmed
	}
	m.commitLocked(domain.SessionConfirmed)

	sessionsTotal.WithLabelValues("confirmed").Inc()
	m.logger.InfoContext(ctx, "payment session confirmed", slog.String("transaction_id", m.session.TransactionID))
	m.publish(ctx, eventConfirmed, *m.session)
	return m.viewLocked(), nil
}

// Cancel drops the active session locally. The gateway is not told; the
// customer may submit again for a new session.
func (m *Manager) Cancel(ctx context.Context) (*SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTransitionLocked(domain.SessionCancelled); err != nil {
		return nil, err
	}
	m.commitLocked(domain.SessionCancelled)

	sessionsTotal.WithLabelValues("cancelled").Inc()
	m.logger.InfoContext(ctx, "payment session cancelled", slog.String("transaction_id", m.session.TransactionID))
	m.publish(ctx, eventCancelled, *m.session)
	return m.viewLocked(), nil
}

func (m *Manager) checkTransitionLocked(next domain.SessionStatus) error {
	if m.session == nil {
		return apperrors.NotFound("payment session", m.deviceID)
	}
	if !m.session.Status.CanTransitionTo(next) {
		return apperrors.Conflict(fmt.Sprintf("payment session is %s", m.session.Status))
	}
	return nil
}

func (m *Manager) commitLocked(next domain.SessionStatus) {
	m.stopCountdown()
	m.session.Status = next
}

// Close stops the countdown. Gateway answers that arrive afterwards are
// discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopCountdown()
}

func (m *Manager) stopCountdown() {
	if m.countdown != nil {
		m.countdown.Stop()
	}
}

func (m *Manager) viewLocked() *SessionView {
	v := &SessionView{Session: *m.session}
	if m.countdown != nil {
		v.RemainingSeconds = m.countdown.Remaining()
		v.Clock = m.countdown.Clock()
		v.Display = m.countdown.Display()
	}
	return v
}

type sessionEvent int

const (
	eventOpened sessionEvent = iota
	eventConfirmed
	eventCancelled
	eventExpired
)

func (m *Manager) publish(ctx context.Context, kind sessionEvent, s domain.PaymentSession) {
	if m.events == nil {
		return
	}
	var err error
	switch kind {
	case eventOpened:
		err = m.events.PublishSessionOpened(ctx, m.deviceID, s)
	case eventConfirmed:
		err = m.events.PublishSessionConfirmed(ctx, m.deviceID, s)
	case eventCancelled:
		err = m.events.PublishSessionCancelled(ctx, m.deviceID, s)
	case eventExpired:
		err = m.events.PublishSessionExpired(ctx, m.deviceID, s)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish payment session event",
			slog.String("transaction_id", s.TransactionID),
			slog.String("error", err.Error()),
		)
	}
}

// LoadConfirmation reads the delivery snapshot of the last order.
func LoadConfirmation(ctx context.Context, kv store.Store) (*domain.DeliverySnapshot, error) {
	var snapshot domain.DeliverySnapshot
	found, err := store.Load(ctx, kv, store.KeyDeliveryAddress, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("load delivery snapshot: %w", err)
	}
	if !found {
		return nil, apperrors.NotFound("delivery", "snapshot")
	}
	return &snapshot, nil
}
