package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acaidelivery/checkout/internal/checkout"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/httputil"
	"github.com/acaidelivery/checkout/pkg/logger"
)

// Handler serves the checkout API. Every request works on the workspace of
// the device named by the X-Device-ID header.
type Handler struct {
	registry *checkout.Registry
	logger   *slog.Logger
}

// NewHandler creates a Handler over registry.
func NewHandler(registry *checkout.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

func (h *Handler) workspace(r *http.Request) *checkout.Workspace {
	return h.registry.Workspace(logger.DeviceIDFromContext(r.Context()))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}

func itemIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, apperrors.InvalidInput("item id must be a positive integer")
	}
	return id, nil
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
