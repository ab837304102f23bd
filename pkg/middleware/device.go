package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/httputil"
	"github.com/acaidelivery/checkout/pkg/logger"
)

// deviceIDPattern bounds client-chosen device IDs; they end up in store keys.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DeviceID reads X-Device-ID and stores it in the request context. A device
// without an ID is assigned a new UUID, returned in the response header so
// the client can keep using it. Malformed IDs are rejected.
func DeviceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderDeviceID)
		switch {
		case id == "":
			id = uuid.NewString()
		case !deviceIDPattern.MatchString(id):
			httputil.WriteError(w, r, apperrors.InvalidInput("X-Device-ID must be 1-64 letters, digits, '-' or '_'"), nil)
			return
		}

		w.Header().Set(HeaderDeviceID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithDeviceID(r.Context(), id)))
	})
}

// NoStore marks responses as uncacheable. Checkout state changes with every
// request and is private to one device.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
