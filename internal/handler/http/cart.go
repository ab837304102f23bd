package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/pkg/httputil"
	"github.com/acaidelivery/checkout/pkg/validator"
)

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Quantity defaults to 1.
type AddItemRequest struct {
	ID       int             `json:"id" validate:"gte=1"`
	Name     string          `json:"name" validate:"notblank,max=200"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Image    string          `json:"image"`
	Quantity *int            `json:"quantity"`
}

// UpdateQuantityRequest is the JSON request body for changing a quantity.
// Values below 1 leave the item untouched.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// --- Response DTOs ---

// CartResponse is a cart with its derived totals.
type CartResponse struct {
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
}

func cartResponse(c domain.Cart) CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{Items: items, ItemCount: c.ItemCount(), Subtotal: c.Subtotal()}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.workspace(r).Cart.Get(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, cartResponse(c))
}

// AddItem handles POST /api/v1/cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	item := domain.CartItem{ID: req.ID, Name: req.Name, UnitPrice: req.Price, Image: req.Image}

	c, err := h.workspace(r).Cart.AddItem(r.Context(), item, quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, cartResponse(c))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{id}
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req UpdateQuantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.workspace(r).Cart.UpdateQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, cartResponse(c))
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.workspace(r).Cart.RemoveItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, cartResponse(c))
}

// ClearCart handles DELETE /api/v1/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.workspace(r).Cart.Clear(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
