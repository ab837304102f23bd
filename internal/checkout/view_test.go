package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acaidelivery/checkout/internal/address"
	"github.com/acaidelivery/checkout/internal/cart"
	"github.com/acaidelivery/checkout/internal/client/pixgateway"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/internal/random"
	"github.com/acaidelivery/checkout/internal/shipping"
	"github.com/acaidelivery/checkout/internal/store"
	"github.com/acaidelivery/checkout/internal/store/memory"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
)

// --- Mocks ---

type mockPostal struct {
	mock.Mock
}

func (m *mockPostal) LookupPostalCode(ctx context.Context, raw string) (domain.Address, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(domain.Address), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GeneratePix(ctx context.Context, req pixgateway.Request) (*domain.PixCharge, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PixCharge), args.Error(1)
}

// idleTicker never fires; sessions stay active for the whole test.
type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}

// --- Helpers ---

type fixture struct {
	kv      store.Store
	cart    *cart.Store
	postal  *mockPostal
	gateway *mockGateway
	view    *View
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger()
	kv := memory.New()
	f := &fixture{
		kv:      kv,
		cart:    cart.New(kv, nil, "dev-1", logger),
		postal:  new(mockPostal),
		gateway: new(mockGateway),
	}
	estimator := shipping.NewEstimator(kv, &random.Fixed{Values: []float64{0.5}}, 0, logger)
	payments := payment.NewManager(kv, f.gateway, nil, "dev-1", payment.Config{
		NewTicker: func(time.Duration) payment.Ticker { return idleTicker{} },
	}, logger)
	f.view = NewView(f.cart, f.postal, estimator, payments, logger)
	t.Cleanup(f.view.Close)
	return f
}

var se = domain.Address{
	PostalCode:   "01001-000",
	Street:       "Praça da Sé",
	Neighborhood: "Sé",
	City:         "São Paulo",
	State:        "SP",
}

func ptr(s string) *string { return &s }

func customerPatch() FormPatch {
	return FormPatch{
		Name:   ptr("Maria Silva"),
		CPF:    ptr("123.456.789-09"),
		Email:  ptr("maria@exemplo.com.br"),
		Number: ptr("100"),
		Phone:  ptr("(11) 98765-4321"),
	}
}

// fillAddress types a resolvable postal code and the customer fields.
func (f *fixture) fillAddress(t *testing.T) State {
	t.Helper()
	f.postal.On("LookupPostalCode", mock.Anything, "01001-000").Return(se, nil).Once()
	_, err := f.view.UpdateForm(context.Background(), FormPatch{ZipCode: ptr("01001-000")})
	require.NoError(t, err)
	s, err := f.view.UpdateForm(context.Background(), customerPatch())
	require.NoError(t, err)
	return s
}

// --- Tests ---

func TestUpdateForm_PostalCodeFillsAddressOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.view.UpdateForm(ctx, FormPatch{ZipCode: ptr("0100")})
	require.NoError(t, err)
	assert.False(t, s.AddressFilled)
	f.postal.AssertNotCalled(t, "LookupPostalCode", mock.Anything, mock.Anything)

	s = f.fillAddress(t)
	assert.True(t, s.AddressFilled)
	assert.Equal(t, "Praça da Sé", s.Form.Street)
	assert.Equal(t, "SP", s.Form.State)
	assert.Equal(t, "100", s.Form.Number)

	// Same code typed differently: no second lookup.
	_, err = f.view.UpdateForm(ctx, FormPatch{ZipCode: ptr("01001000")})
	require.NoError(t, err)
	f.postal.AssertNumberOfCalls(t, "LookupPostalCode", 1)
}

func TestUpdateForm_LookupErrorShownOnField(t *testing.T) {
	f := newFixture(t)
	notFound := apperrors.FieldError("POSTAL_CODE_NOT_FOUND", "zipCode", address.MsgPostalCodeNotFound, 404, apperrors.ErrNotFound)
	f.postal.On("LookupPostalCode", mock.Anything, "99999-999").Return(domain.Address{}, notFound).Once()

	s, err := f.view.UpdateForm(context.Background(), FormPatch{ZipCode: ptr("99999-999")})
	require.NoError(t, err)
	assert.Equal(t, "CEP não encontrado", s.PostalError)
	assert.False(t, s.AddressFilled)
}

func TestUpdateForm_StaleLookupIgnored(t *testing.T) {
	f := newFixture(t)
	started, release := make(chan struct{}), make(chan struct{})
	f.postal.On("LookupPostalCode", mock.Anything, "01001-000").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(se, nil).Once()
	rio := domain.Address{PostalCode: "20040-002", Street: "Rua da Assembleia", Neighborhood: "Centro", City: "Rio de Janeiro", State: "RJ"}
	f.postal.On("LookupPostalCode", mock.Anything, "20040-002").Return(rio, nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.view.UpdateForm(context.Background(), FormPatch{ZipCode: ptr("01001-000")})
	}()
	<-started

	s, err := f.view.UpdateForm(context.Background(), FormPatch{ZipCode: ptr("20040-002")})
	require.NoError(t, err)
	assert.Equal(t, "RJ", s.Form.State)

	close(release)
	<-done

	s, err = f.view.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rio de Janeiro", s.Form.City)
	assert.Equal(t, "20040-002", s.Form.ZipCode)
}

func TestUpdateForm_FilledFieldsAreReadOnly(t *testing.T) {
	f := newFixture(t)
	f.fillAddress(t)

	_, err := f.view.UpdateForm(context.Background(), FormPatch{City: ptr("Campinas")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// Re-sending the same value is fine.
	_, err = f.view.UpdateForm(context.Background(), FormPatch{City: ptr("São Paulo"), Complement: ptr("apto 2")})
	assert.NoError(t, err)
}

func TestCalculateShipping_PostalEditResetsQuote(t *testing.T) {
	f := newFixture(t)
	f.fillAddress(t)
	ctx := context.Background()

	s, err := f.view.CalculateShipping(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Shipping)
	assert.Equal(t, "6.00", s.Shipping.Cost.StringFixed(2))
	assert.Equal(t, "5.0km", s.Shipping.Distance)
	assert.Equal(t, "30-40 min", s.Shipping.EstimatedTime)

	s, err = f.view.UpdateForm(ctx, FormPatch{ZipCode: ptr("0100")})
	require.NoError(t, err)
	assert.Nil(t, s.Shipping)
	assert.False(t, s.AddressFilled)
}

func TestCalculateShipping_NumberEditDropsQuote(t *testing.T) {
	f := newFixture(t)
	f.fillAddress(t)
	ctx := context.Background()

	_, err := f.view.CalculateShipping(ctx)
	require.NoError(t, err)

	s, err := f.view.UpdateForm(ctx, FormPatch{Number: ptr("200")})
	require.NoError(t, err)
	assert.Nil(t, s.Shipping)
}

func TestCalculateShipping_IncompleteAddress(t *testing.T) {
	f := newFixture(t)

	_, err := f.view.CalculateShipping(context.Background())
	var ae *apperrors.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "ADDRESS_INCOMPLETE", ae.Code)
	assert.Equal(t, shipping.MsgAddressIncomplete, ae.Message)
}

func TestSubmit_EmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.view.Submit(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.gateway.AssertNotCalled(t, "GeneratePix", mock.Anything, mock.Anything)
}

func TestSubmitWithoutShipping_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cart.AddItem(ctx, domain.CartItem{ID: 1, Name: "Açaí", UnitPrice: decimal.RequireFromString("19.90")}, 1)
	require.NoError(t, err)
	f.fillAddress(t)

	_, err = f.view.Submit(ctx)
	var ae *apperrors.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Calcule o frete antes de finalizar", ae.Fields["shipping"])
}

func TestCheckoutFlow_SubmitConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.AddItem(ctx, domain.CartItem{ID: 1, Name: "Açaí 500ml", UnitPrice: decimal.RequireFromString("19.90")}, 2)
	require.NoError(t, err)
	f.fillAddress(t)
	s, err := f.view.CalculateShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "45.80", s.Total.StringFixed(2))

	f.gateway.On("GeneratePix", mock.Anything, mock.MatchedBy(func(r pixgateway.Request) bool {
		return r.Amount == "4580" && r.CPF == "12345678909"
	})).Return(&domain.PixCharge{TransactionID: "tx-1", Amount: "45.80", PixCode: "000201"}, nil).Once()

	view, err := f.view.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, view.Session.Status)

	s, err = f.view.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Session)
	assert.Equal(t, "15:00", s.Session.Clock)

	view, err = f.view.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConfirmed, view.Session.Status)

	c, err := f.cart.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	snap, err := payment.LoadConfirmation(ctx, f.kv)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConfirmed, snap.Status)
	assert.Equal(t, "Praça da Sé", snap.Street)

	_, err = f.view.Confirm(ctx)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCancel_KeepsForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cart.AddItem(ctx, domain.CartItem{ID: 1, Name: "Açaí", UnitPrice: decimal.RequireFromString("10")}, 1)
	require.NoError(t, err)
	f.fillAddress(t)
	_, err = f.view.CalculateShipping(ctx)
	require.NoError(t, err)
	f.gateway.On("GeneratePix", mock.Anything, mock.Anything).Return(&domain.PixCharge{TransactionID: "tx-1"}, nil)

	_, err = f.view.Submit(ctx)
	require.NoError(t, err)
	view, err := f.view.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, view.Session.Status)

	s, err := f.view.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", s.Form.Name)
	assert.NotNil(t, s.Shipping)
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	f := newFixture(t)
	f.view.Close()
	f.view.Close()
	assert.True(t, f.view.Closed())

	ctx := context.Background()
	_, err := f.view.UpdateForm(ctx, FormPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, apperrors.ErrGone)
	_, err = f.view.CalculateShipping(ctx)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	_, err = f.view.Submit(ctx)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	_, err = f.view.Confirm(ctx)
	assert.ErrorIs(t, err, apperrors.ErrGone)
}

// hookedCart runs beforeClear ahead of clearing the underlying cart.
type hookedCart struct {
	*cart.Store
	beforeClear func(ctx context.Context) error
}

func (c *hookedCart) Clear(ctx context.Context) error {
	if err := c.beforeClear(ctx); err != nil {
		return err
	}
	return c.Store.Clear(ctx)
}

// stepTicker delivers ticks only when the test sends them.
type stepTicker struct{ ch chan time.Time }

func (s stepTicker) C() <-chan time.Time { return s.ch }
func (s stepTicker) Stop()               {}

// submittedView opens a one-second session over a filled cart and form.
func submittedView(t *testing.T, beforeClear func(ctx context.Context) error) (*View, *hookedCart, store.Store, stepTicker) {
	t.Helper()
	logger := newTestLogger()
	kv := memory.New()
	ctx := context.Background()

	c := &hookedCart{Store: cart.New(kv, nil, "dev-1", logger), beforeClear: beforeClear}
	_, err := c.AddItem(ctx, domain.CartItem{ID: 1, Name: "Açaí 500ml", UnitPrice: decimal.RequireFromString("19.90")}, 1)
	require.NoError(t, err)

	postal := new(mockPostal)
	postal.On("LookupPostalCode", mock.Anything, "01001-000").Return(se, nil).Once()
	gateway := new(mockGateway)
	gateway.On("GeneratePix", mock.Anything, mock.Anything).Return(&domain.PixCharge{TransactionID: "tx-1"}, nil).Once()

	ticker := stepTicker{ch: make(chan time.Time)}
	payments := payment.NewManager(kv, gateway, nil, "dev-1", payment.Config{
		SessionTTL: time.Second,
		NewTicker:  func(time.Duration) payment.Ticker { return ticker },
	}, logger)
	estimator := shipping.NewEstimator(kv, &random.Fixed{Values: []float64{0.5}}, 0, logger)
	v := NewView(c, postal, estimator, payments, logger)
	t.Cleanup(v.Close)

	_, err = v.UpdateForm(ctx, FormPatch{ZipCode: ptr("01001-000")})
	require.NoError(t, err)
	_, err = v.UpdateForm(ctx, customerPatch())
	require.NoError(t, err)
	_, err = v.CalculateShipping(ctx)
	require.NoError(t, err)
	_, err = v.Submit(ctx)
	require.NoError(t, err)
	return v, c, kv, ticker
}

func TestConfirm_CountdownEndingDuringCartClear(t *testing.T) {
	var ticker stepTicker
	v, c, kv, ticker := submittedView(t, func(context.Context) error {
		ticker.ch <- time.Time{}
		return nil
	})
	ctx := context.Background()

	view, err := v.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConfirmed, view.Session.Status)

	items, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items.Items)

	snap, err := payment.LoadConfirmation(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConfirmed, snap.Status)
	assert.Equal(t, "tx-1", snap.PixData.TransactionID)

	s, err := v.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Session)
	assert.Equal(t, domain.SessionConfirmed, s.Session.Session.Status)
}

func TestConfirm_FailedCartClearKeepsOrder(t *testing.T) {
	v, c, kv, _ := submittedView(t, func(context.Context) error {
		return errors.New("store unavailable")
	})
	ctx := context.Background()

	_, err := v.Confirm(ctx)
	assert.EqualError(t, err, "store unavailable")

	items, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, items.Items, 1)

	snap, err := payment.LoadConfirmation(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, snap.Status)

	s, err := v.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.Session)
	assert.Equal(t, domain.SessionActive, s.Session.Session.Status)
}
