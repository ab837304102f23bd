package middleware

import (
	"log/slog"
	"net/http"

	"github.com/acaidelivery/checkout/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context carrying the
// correlation, device and trace IDs found there. Mount it after
// RequestLogging, Tracing and DeviceID.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, logger.WithContext(ctx, base))))
		})
	}
}
