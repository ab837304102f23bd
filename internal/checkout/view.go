// Package checkout holds the checkout page state of each device and the
// registry of per-device workspaces.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/acaidelivery/checkout/internal/address"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/internal/shipping"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
)

// MsgEmptyCart is returned when submitting with nothing in the cart.
const MsgEmptyCart = "Seu carrinho está vazio"

// Cart is the part of the cart store the checkout needs.
type Cart interface {
	Get(ctx context.Context) (domain.Cart, error)
	Clear(ctx context.Context) error
}

// PostalResolver fills an address from its postal code.
type PostalResolver interface {
	LookupPostalCode(ctx context.Context, raw string) (domain.Address, error)
}

// ShippingEstimator quotes shipping for a complete address.
type ShippingEstimator interface {
	Estimate(ctx context.Context, a domain.Address) (shipping.Estimate, error)
}

// Payments owns the payment session of one view.
type Payments interface {
	Submit(ctx context.Context, order payment.Order) (*payment.SessionView, error)
	Session() (*payment.SessionView, error)
	Active() bool
	Confirm(ctx context.Context, settle func(context.Context) error) (*payment.SessionView, error)
	Cancel(ctx context.Context) (*payment.SessionView, error)
	Close()
}

// FormPatch carries the fields a customer edited. Nil fields are untouched.
type FormPatch struct {
	Name         *string `json:"name"`
	CPF          *string `json:"cpf"`
	Email        *string `json:"email"`
	ZipCode      *string `json:"zipCode"`
	Street       *string `json:"street"`
	Number       *string `json:"number"`
	Complement   *string `json:"complement"`
	Neighborhood *string `json:"neighborhood"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	Phone        *string `json:"phone"`
}

// State is a snapshot of the checkout page.
type State struct {
	Form          payment.CheckoutForm  `json:"form"`
	AddressFilled bool                  `json:"addressFilled"`
	PostalError   string                `json:"postalError,omitempty"`
	Shipping      *domain.ShippingQuote `json:"shipping,omitempty"`
	ItemCount     int                   `json:"itemCount"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	Total         decimal.Decimal       `json:"total"`
	Session       *payment.SessionView  `json:"session,omitempty"`
}

// View is the checkout page of one device. Slow calls run without the lock;
// their results are applied only if the view has not moved on meanwhile.
type View struct {
	mu        sync.Mutex
	cart      Cart
	postal    PostalResolver
	estimator ShippingEstimator
	payments  Payments
	logger    *slog.Logger

	form          payment.CheckoutForm
	guard         address.PostalCodeGuard
	addressFilled bool
	postalError   string
	quote         *domain.ShippingQuote
	quoteKey      string
	// generation changes with every postal code edit.
	generation uint64
	closed     bool
}

// NewView creates a View with an empty form.
func NewView(cart Cart, postal PostalResolver, estimator ShippingEstimator, payments Payments, logger *slog.Logger) *View {
	return &View{
		cart:      cart,
		postal:    postal,
		estimator: estimator,
		payments:  payments,
		logger:    logger,
	}
}

// UpdateForm applies patch. A postal code edit drops the shipping quote and
// the auto-filled flag; once the code is complete and new, it is looked up
// and the address fields are filled from the answer. Lookup failures are
// reported in State.PostalError.
func (v *View) UpdateForm(ctx context.Context, patch FormPatch) (State, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return State{}, errClosed()
	}

	lookup, gen := false, v.generation
	if patch.ZipCode != nil && domain.Digits(*patch.ZipCode) != domain.Digits(v.form.ZipCode) {
		v.generation++
		gen = v.generation
		v.addressFilled = false
		v.postalError = ""
		v.dropQuoteLocked()
		_, lookup = v.guard.ShouldResolve(*patch.ZipCode)
	}
	if err := v.checkLockedFields(patch); err != nil {
		v.mu.Unlock()
		return State{}, err
	}
	patch.applyTo(&v.form)
	if v.quote != nil && shipping.CacheKey(v.form.Address()) != v.quoteKey {
		v.dropQuoteLocked()
	}
	zip := v.form.ZipCode
	v.mu.Unlock()

	if lookup {
		addr, err := v.postal.LookupPostalCode(ctx, zip)
		v.applyLookup(ctx, gen, addr, err)
	}
	return v.State(ctx)
}

func (v *View) applyLookup(ctx context.Context, gen uint64, addr domain.Address, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || gen != v.generation {
		v.logger.DebugContext(ctx, "ignoring stale postal code lookup")
		return
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Fields["zipCode"] != "" {
			v.postalError = appErr.Fields["zipCode"]
		} else {
			v.postalError = address.MsgLookupFailed
		}
		return
	}

	v.guard.MarkResolved(domain.Digits(addr.PostalCode))
	v.form.ZipCode = addr.PostalCode
	v.form.Street = addr.Street
	v.form.Neighborhood = addr.Neighborhood
	v.form.City = addr.City
	v.form.State = addr.State
	v.addressFilled = true
	v.postalError = ""
}

// checkLockedFields rejects edits of fields filled from the postal code.
func (v *View) checkLockedFields(p FormPatch) error {
	if !v.addressFilled {
		return nil
	}
	edited := func(next *string, cur string) bool { return next != nil && *next != cur }
	switch {
	case edited(p.Street, v.form.Street),
		edited(p.Neighborhood, v.form.Neighborhood),
		edited(p.City, v.form.City),
		edited(p.State, v.form.State):
		return apperrors.InvalidInput("address fields are filled from the postal code")
	}
	return nil
}

func (p FormPatch) applyTo(f *payment.CheckoutForm) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.Name, p.Name)
	set(&f.CPF, p.CPF)
	set(&f.Email, p.Email)
	set(&f.ZipCode, p.ZipCode)
	set(&f.Street, p.Street)
	set(&f.Number, p.Number)
	set(&f.Complement, p.Complement)
	set(&f.Neighborhood, p.Neighborhood)
	set(&f.City, p.City)
	set(&f.State, p.State)
	set(&f.Phone, p.Phone)
}

func (v *View) dropQuoteLocked() {
	v.quote = nil
	v.quoteKey = ""
}

// CalculateShipping quotes the current address. The quote is kept only if
// the address is still the one it was computed for.
func (v *View) CalculateShipping(ctx context.Context) (State, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return State{}, errClosed()
	}
	addr := v.form.Address()
	v.mu.Unlock()

	est, err := v.estimator.Estimate(ctx, addr)
	if err != nil {
		return State{}, err
	}

	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return State{}, errClosed()
	case shipping.CacheKey(v.form.Address()) == est.CacheKey:
		quote := est.Quote
		v.quote = &quote
		v.quoteKey = est.CacheKey
	default:
		v.logger.DebugContext(ctx, "address changed while quoting, dropping quote",
			slog.String("cache_key", est.CacheKey))
	}
	v.mu.Unlock()

	return v.State(ctx)
}

// Submit opens a payment session for the cart and the current form.
func (v *View) Submit(ctx context.Context) (*payment.SessionView, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, errClosed()
	}
	form := v.form
	var quote domain.ShippingQuote
	if v.quote != nil {
		quote = *v.quote
	}
	v.mu.Unlock()

	c, err := v.cart.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, apperrors.InvalidInput(MsgEmptyCart)
	}

	return v.payments.Submit(ctx, payment.Order{
		Form:     form,
		Subtotal: c.Subtotal(),
		Shipping: quote,
	})
}

// Confirm marks the session paid and empties the cart. The cart is cleared
// only once the session is known to be confirmable, and a failed clear
// leaves the session active.
func (v *View) Confirm(ctx context.Context) (*payment.SessionView, error) {
	if err := v.ensureOpen(); err != nil {
		return nil, err
	}
	if !v.payments.Active() {
		return nil, apperrors.Conflict("no active payment session")
	}
	return v.payments.Confirm(ctx, v.cart.Clear)
}

// Cancel drops the active session; the form stays as it was.
func (v *View) Cancel(ctx context.Context) (*payment.SessionView, error) {
	if err := v.ensureOpen(); err != nil {
		return nil, err
	}
	return v.payments.Cancel(ctx)
}

// Close tears the view down. Lookups, quotes and gateway answers still in
// flight are ignored when they arrive.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.guard.Reset()
	v.mu.Unlock()

	v.payments.Close()
}

// Closed reports whether Close was called.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// State returns the current page state with cart totals.
func (v *View) State(ctx context.Context) (State, error) {
	c, err := v.cart.Get(ctx)
	if err != nil {
		return State{}, err
	}

	v.mu.Lock()
	s := State{
		Form:          v.form,
		AddressFilled: v.addressFilled,
		PostalError:   v.postalError,
		ItemCount:     c.ItemCount(),
		Subtotal:      c.Subtotal(),
		Total:         c.Subtotal(),
	}
	if v.quote != nil {
		quote := *v.quote
		s.Shipping = &quote
		s.Total = s.Total.Add(quote.Cost)
	}
	v.mu.Unlock()

	if session, err := v.payments.Session(); err == nil {
		s.Session = session
	}
	return s, nil
}

func (v *View) ensureOpen() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errClosed()
	}
	return nil
}

func errClosed() error {
	return apperrors.Gone("checkout was closed")
}
