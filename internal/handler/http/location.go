package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acaidelivery/checkout/internal/address"
	"github.com/acaidelivery/checkout/internal/domain"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/httputil"
)

// GetLocation handles GET /api/v1/location
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	loc, ok, err := ws.Resolver.CurrentLocation(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, apperrors.NotFound("location", ws.DeviceID))
		return
	}
	httputil.WriteData(w, http.StatusOK, loc)
}

// ResolveLocation handles POST /api/v1/location. The body is what the
// device's geolocation reported: coordinates or an error.
func (h *Handler) ResolveLocation(w http.ResponseWriter, r *http.Request) {
	var pos address.Position
	if err := httputil.DecodeJSON(r, &pos); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !pos.Error.Valid() {
		h.writeError(w, r, apperrors.InvalidInput("error must be one of permission_denied, position_unavailable, timeout"))
		return
	}
	if pos.Error == "" && (pos.Latitude < -90 || pos.Latitude > 90 || pos.Longitude < -180 || pos.Longitude > 180) {
		h.writeError(w, r, apperrors.InvalidInput("coordinates out of range"))
		return
	}

	result, err := h.workspace(r).Resolver.ResolveLocation(r.Context(), pos)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// ResetLocation handles DELETE /api/v1/location
func (h *Handler) ResetLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace(r).Resolver.ResetLocation(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LookupPostalCode handles GET /api/v1/postal-codes/{code}
func (h *Handler) LookupPostalCode(w http.ResponseWriter, r *http.Request) {
	addr, err := h.workspace(r).Resolver.LookupPostalCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, addr)
}

// QuoteShipping handles POST /api/v1/shipping/quotes
func (h *Handler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var addr domain.Address
	if err := httputil.DecodeJSON(r, &addr); err != nil {
		h.writeError(w, r, err)
		return
	}

	est, err := h.workspace(r).Estimator.Estimate(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, est)
}
