package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acaidelivery/checkout/internal/checkout"
	"github.com/acaidelivery/checkout/pkg/health"
	"github.com/acaidelivery/checkout/pkg/middleware"
)

// serviceName labels metrics and spans.
const serviceName = "checkout"

// NewRouter creates a chi router with all checkout service routes registered.
func NewRouter(
	registry *checkout.Registry,
	healthHandler *health.Handler,
	cors middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cors))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewHandler(registry, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)
		r.Use(middleware.DeviceID)
		r.Use(middleware.RequestLogger(logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{id}", h.UpdateItemQuantity)
			r.Delete("/items/{id}", h.RemoveItem)
		})

		r.Get("/location", h.GetLocation)
		r.Post("/location", h.ResolveLocation)
		r.Delete("/location", h.ResetLocation)

		r.Get("/postal-codes/{code}", h.LookupPostalCode)
		r.Post("/shipping/quotes", h.QuoteShipping)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.OpenCheckout)
			r.Get("/", h.GetCheckout)
			r.Delete("/", h.CloseCheckout)
			r.Patch("/form", h.UpdateForm)
			r.Post("/shipping", h.CalculateShipping)
			r.Post("/submit", h.Submit)
			r.Post("/confirm", h.Confirm)
			r.Post("/cancel", h.Cancel)
			r.Get("/confirmation", h.GetConfirmation)
		})
	})

	return r
}
