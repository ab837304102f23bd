package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acaidelivery/checkout/internal/checkout"
	"github.com/acaidelivery/checkout/internal/client/nominatim"
	"github.com/acaidelivery/checkout/internal/client/pixgateway"
	"github.com/acaidelivery/checkout/internal/client/viacep"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/internal/random"
	"github.com/acaidelivery/checkout/internal/store/memory"
	"github.com/acaidelivery/checkout/pkg/health"
	"github.com/acaidelivery/checkout/pkg/httputil"
	"github.com/acaidelivery/checkout/pkg/middleware"
)

// ============================================================================
// Mocks
// ============================================================================

type mockPostal struct {
	mock.Mock
}

func (m *mockPostal) Lookup(ctx context.Context, cep string) (domain.Address, error) {
	args := m.Called(ctx, cep)
	return args.Get(0).(domain.Address), args.Error(1)
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lon float64) (*nominatim.Place, error) {
	args := m.Called(ctx, lat, lon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nominatim.Place), args.Error(1)
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

type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}

// ============================================================================
// Test helpers
// ============================================================================

type testServer struct {
	router   http.Handler
	postal   *mockPostal
	geocoder *mockGeocoder
	gateway  *mockGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		postal:   new(mockPostal),
		geocoder: new(mockGeocoder),
		gateway:  new(mockGateway),
	}
	registry := checkout.NewRegistry(checkout.Dependencies{
		Store:    memory.New(),
		Postal:   ts.postal,
		Geocoder: ts.geocoder,
		Gateway:  ts.gateway,
		Random:   &random.Fixed{Values: []float64{0.5}},
		Payment: payment.Config{
			NewTicker: func(time.Duration) payment.Ticker { return idleTicker{} },
		},
		Logger: logger,
	}, checkout.Eviction{})
	t.Cleanup(registry.Close)

	ts.router = NewRouter(registry, health.NewHandler(), middleware.DefaultCORSConfig(), logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, deviceID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if deviceID != "" {
		req.Header.Set(middleware.HeaderDeviceID, deviceID)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&env), rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp), rec.Body.String())
	require.NotNil(t, resp.Error, rec.Body.String())
	return *resp.Error
}

const acaiJSON = `{"id":1,"name":"Açaí 500ml","price":"19.90","image":"/acai.png","quantity":2}`

// ============================================================================
// Cart
// ============================================================================

func TestCart_AddMergeUpdateRemove(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-1", acaiJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-1", `{"id":1,"name":"Outro nome","price":"1.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeData[CartResponse](t, rec)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "Açaí 500ml", c.Items[0].Name)
	assert.Equal(t, "59.7", c.Subtotal.String())

	rec = ts.do(t, http.MethodPut, "/api/v1/cart/items/1", "dev-1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeData[CartResponse](t, rec).ItemCount)

	rec = ts.do(t, http.MethodPut, "/api/v1/cart/items/1", "dev-1", `{"quantity":5}`)
	assert.Equal(t, 5, decodeData[CartResponse](t, rec).ItemCount)

	rec = ts.do(t, http.MethodDelete, "/api/v1/cart/items/1", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[CartResponse](t, rec).Items)

	rec = ts.do(t, http.MethodDelete, "/api/v1/cart", "dev-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCart_AddItemValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-1", `{"id":0,"name":" ","price":"-1"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	assert.Contains(t, e.Fields, "id")
	assert.Contains(t, e.Fields, "name")
	assert.Contains(t, e.Fields, "price")
}

func TestCart_InvalidItemID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/api/v1/cart/items/abc", "dev-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_IsolatedPerDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-a", acaiJSON)

	rec := ts.do(t, http.MethodGet, "/api/v1/cart", "dev-b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[CartResponse](t, rec).Items)
}

func TestDeviceID_AssignedWhenMissing(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/cart", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderDeviceID))
}

func TestContentType_Rejected(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(acaiJSON))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// Location, postal codes and shipping
// ============================================================================

func TestPostalCode_Lookup(t *testing.T) {
	ts := newTestServer(t)
	ts.postal.On("Lookup", mock.Anything, "01001000").
		Return(domain.Address{Street: "Praça da Sé", Neighborhood: "Sé", City: "São Paulo", State: "SP"}, nil)
	ts.postal.On("Lookup", mock.Anything, "99999999").Return(domain.Address{}, viacep.ErrNotFound)

	rec := ts.do(t, http.MethodGet, "/api/v1/postal-codes/01001-000", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	addr := decodeData[domain.Address](t, rec)
	assert.Equal(t, "01001-000", addr.PostalCode)
	assert.Equal(t, "Praça da Sé", addr.Street)

	rec = ts.do(t, http.MethodGet, "/api/v1/postal-codes/99999999", "dev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "POSTAL_CODE_NOT_FOUND", e.Code)
	assert.Equal(t, "CEP não encontrado", e.Fields["zipCode"])

	rec = ts.do(t, http.MethodGet, "/api/v1/postal-codes/123", "dev-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_POSTAL_CODE", decodeError(t, rec).Code)
}

func TestLocation_FallbackCachedAndReset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/location", "dev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/location", "dev-1", `{"error":"permission_denied"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeData[struct {
		Location domain.GeoLocation `json:"location"`
		Outcome  string             `json:"outcome"`
	}](t, rec)
	assert.Equal(t, "resolved_via_fallback", res.Outcome)
	assert.NotEmpty(t, res.Location.City)
	ts.geocoder.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything, mock.Anything)

	rec = ts.do(t, http.MethodPost, "/api/v1/location", "dev-1", `{"latitude":-23.5,"longitude":-46.6}`)
	assert.Contains(t, rec.Body.String(), `"outcome":"cached"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/location", "dev-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/location", "dev-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/location", "dev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocation_UnknownDeviceError(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/location", "dev-1", `{"error":"blocked"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShippingQuote(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/shipping/quotes", "dev-1", `{"street":"Praça da Sé"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ADDRESS_INCOMPLETE", decodeError(t, rec).Code)

	body := `{"zipCode":"01001-000","street":"Praça da Sé","number":"100","neighborhood":"Sé","city":"São Paulo","state":"SP"}`
	rec = ts.do(t, http.MethodPost, "/api/v1/shipping/quotes", "dev-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	est := decodeData[struct {
		Quote  domain.ShippingQuote `json:"quote"`
		Cached bool                 `json:"cached"`
	}](t, rec)
	assert.Equal(t, "6.00", est.Quote.Cost.StringFixed(2))
	assert.False(t, est.Cached)

	rec = ts.do(t, http.MethodPost, "/api/v1/shipping/quotes", "dev-1", body)
	assert.Contains(t, rec.Body.String(), `"cached":true`)
}

// ============================================================================
// Checkout
// ============================================================================

func TestCheckout_NotOpen(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/checkout", "dev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.postal.On("Lookup", mock.Anything, "01001000").
		Return(domain.Address{Street: "Praça da Sé", Neighborhood: "Sé", City: "São Paulo", State: "SP"}, nil).Once()
	ts.gateway.On("GeneratePix", mock.Anything, mock.MatchedBy(func(r pixgateway.Request) bool {
		return r.Amount == "4580" && r.Phone == "11987654321"
	})).Return(&domain.PixCharge{
		TransactionID: "tx-1",
		Amount:        "45.80",
		PixCode:       "000201",
		Customer:      domain.Customer{Name: "Maria Silva", CPF: "12345678909"},
	}, nil).Once()

	ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-1", acaiJSON)

	rec := ts.do(t, http.MethodPost, "/api/v1/checkout", "dev-1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeData[checkout.State](t, rec).ItemCount)

	rec = ts.do(t, http.MethodPatch, "/api/v1/checkout/form", "dev-1", `{"zipCode":"01001-000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decodeData[checkout.State](t, rec)
	assert.True(t, state.AddressFilled)
	assert.Equal(t, "Praça da Sé", state.Form.Street)

	rec = ts.do(t, http.MethodPatch, "/api/v1/checkout/form", "dev-1",
		`{"name":"Maria Silva","cpf":"123.456.789-09","email":"maria@exemplo.com.br","number":"100","phone":"(11) 98765-4321"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/submit", "dev-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Calcule o frete antes de finalizar", decodeError(t, rec).Fields["shipping"])

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/shipping", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = decodeData[checkout.State](t, rec)
	require.NotNil(t, state.Shipping)
	assert.Equal(t, "45.80", state.Total.StringFixed(2))

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/submit", "dev-1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeData[payment.SessionView](t, rec)
	assert.Equal(t, domain.SessionActive, session.Session.Status)
	assert.Equal(t, "15:00", session.Display)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/submit", "dev-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/confirm", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.SessionConfirmed, decodeData[payment.SessionView](t, rec).Session.Status)

	rec = ts.do(t, http.MethodGet, "/api/v1/checkout/confirmation", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	conf := decodeData[ConfirmationResponse](t, rec)
	assert.Equal(t, domain.SessionConfirmed, conf.Delivery.Status)
	assert.Equal(t, "R$ 6,00", conf.Shipping)
	assert.Equal(t, "123.456.789-09", conf.CPF)
	assert.Contains(t, conf.AddressLines, "Praça da Sé, 100")
	require.NotNil(t, conf.Delivery.ConfirmedAt)
	require.NotNil(t, conf.DeliveryETA)
	assert.True(t, conf.DeliveryETA.Equal(conf.Delivery.ConfirmedAt.Add(35*time.Minute)))
	assert.Regexp(t, `^3[45]:\d\d$`, conf.DeliveryRemaining)

	rec = ts.do(t, http.MethodGet, "/api/v1/cart", "dev-1", "")
	assert.Empty(t, decodeData[CartResponse](t, rec).Items)

	rec = ts.do(t, http.MethodDelete, "/api/v1/checkout", "dev-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/checkout", "dev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_CancelThenResubmit(t *testing.T) {
	ts := newTestServer(t)
	ts.postal.On("Lookup", mock.Anything, "01001000").
		Return(domain.Address{Street: "Praça da Sé", Neighborhood: "Sé", City: "São Paulo", State: "SP"}, nil)
	ts.gateway.On("GeneratePix", mock.Anything, mock.Anything).Return(&domain.PixCharge{TransactionID: "tx-1"}, nil).Once()
	ts.gateway.On("GeneratePix", mock.Anything, mock.Anything).Return(&domain.PixCharge{TransactionID: "tx-2"}, nil).Once()

	ts.do(t, http.MethodPost, "/api/v1/cart/items", "dev-1", acaiJSON)
	ts.do(t, http.MethodPost, "/api/v1/checkout", "dev-1", "")
	ts.do(t, http.MethodPatch, "/api/v1/checkout/form", "dev-1",
		`{"zipCode":"01001000","name":"Maria","cpf":"12345678909","email":"m@x.com","number":"1","phone":"11987654321"}`)
	ts.do(t, http.MethodPost, "/api/v1/checkout/shipping", "dev-1", "")

	rec := ts.do(t, http.MethodPost, "/api/v1/checkout/submit", "dev-1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/cancel", "dev-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionCancelled, decodeData[payment.SessionView](t, rec).Session.Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/submit", "dev-1", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tx-2", decodeData[payment.SessionView](t, rec).Session.TransactionID)

	rec = ts.do(t, http.MethodGet, "/api/v1/checkout/confirmation", "dev-1", "")
	conf := decodeData[ConfirmationResponse](t, rec)
	assert.Equal(t, "tx-2", conf.Delivery.PixData.TransactionID)
	assert.Nil(t, conf.DeliveryETA, "no delivery countdown before confirmation")
	assert.Empty(t, conf.DeliveryRemaining)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
