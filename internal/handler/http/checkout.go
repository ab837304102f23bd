package http

import (
	"context"
	"net/http"
	"time"

	"github.com/acaidelivery/checkout/internal/checkout"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/pkg/httputil"
)

// ConfirmationResponse is the delivery snapshot with display formatting.
// The delivery countdown is present once the order is confirmed.
type ConfirmationResponse struct {
	Delivery          domain.DeliverySnapshot `json:"delivery"`
	AddressLines      []string                `json:"addressLines"`
	Shipping          string                  `json:"shipping"`
	CPF               string                  `json:"cpf,omitempty"`
	DeliveryETA       *time.Time              `json:"deliveryEta,omitempty"`
	DeliveryRemaining string                  `json:"deliveryRemaining,omitempty"`
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*checkout.View, bool) {
	v, err := h.workspace(r).View()
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return v, true
}

// OpenCheckout handles POST /api/v1/checkout. Any previous checkout of the
// device is torn down.
func (h *Handler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	v := h.workspace(r).OpenView()
	state, err := v.State(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, state)
}

// GetCheckout handles GET /api/v1/checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	state, err := v.State(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, state)
}

// UpdateForm handles PATCH /api/v1/checkout/form
func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var patch checkout.FormPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := v.UpdateForm(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, state)
}

// CalculateShipping handles POST /api/v1/checkout/shipping
func (h *Handler) CalculateShipping(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	state, err := v.CalculateShipping(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, state)
}

// Submit handles POST /api/v1/checkout/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, http.StatusCreated, (*checkout.View).Submit)
}

// Confirm handles POST /api/v1/checkout/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, http.StatusOK, (*checkout.View).Confirm)
}

// Cancel handles POST /api/v1/checkout/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, http.StatusOK, (*checkout.View).Cancel)
}

func (h *Handler) sessionAction(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	action func(*checkout.View, context.Context) (*payment.SessionView, error),
) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	session, err := action(v, r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, status, session)
}

// CloseCheckout handles DELETE /api/v1/checkout
func (h *Handler) CloseCheckout(w http.ResponseWriter, r *http.Request) {
	h.workspace(r).CloseView()
	w.WriteHeader(http.StatusNoContent)
}

// GetConfirmation handles GET /api/v1/checkout/confirmation
func (h *Handler) GetConfirmation(w http.ResponseWriter, r *http.Request) {
	snap, err := payment.LoadConfirmation(r.Context(), h.workspace(r).Store)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ConfirmationResponse{
		Delivery:     *snap,
		AddressLines: snap.Lines(),
		Shipping:     domain.FormatMoney(snap.ShippingCost),
	}
	if cpf := snap.PixData.Customer.CPF; cpf != "" {
		resp.CPF = domain.FormatCPF(cpf)
	}
	if eta, ok := snap.DeliveryETA(); ok {
		resp.DeliveryETA = &eta
		resp.DeliveryRemaining = domain.FormatClock(snap.DeliveryRemaining(time.Now()))
	}
	httputil.WriteData(w, http.StatusOK, resp)
}
