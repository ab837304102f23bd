// Package address resolves delivery addresses from postal codes and the
// customer's approximate location from device coordinates.
package address

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/acaidelivery/checkout/internal/client/nominatim"
	"github.com/acaidelivery/checkout/internal/client/viacep"
	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/random"
	"github.com/acaidelivery/checkout/internal/store"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
	"github.com/acaidelivery/checkout/pkg/httpclient"
)

// Field-level messages shown next to the postal code input.
const (
	MsgInvalidPostalCode  = "CEP deve ter 8 dígitos"
	MsgPostalCodeNotFound = "CEP não encontrado"
	MsgLookupFailed       = "Erro ao consultar CEP. Tente novamente."
)

// PostalLookup resolves an 8-digit postal code. It returns an error
// wrapping viacep.ErrNotFound when the code is unknown.
type PostalLookup interface {
	Lookup(ctx context.Context, cep string) (domain.Address, error)
}

// ReverseGeocoder turns coordinates into place names.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*nominatim.Place, error)
}

// PositionError is a failure reported by the device instead of coordinates.
type PositionError string

const (
	PermissionDenied    PositionError = "permission_denied"
	PositionUnavailable PositionError = "position_unavailable"
	PositionTimeout     PositionError = "timeout"
)

// Valid reports whether e is empty or a known failure.
func (e PositionError) Valid() bool {
	switch e {
	case "", PermissionDenied, PositionUnavailable, PositionTimeout:
		return true
	default:
		return false
	}
}

// Position is what the device reported: coordinates, or an error.
type Position struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Error     PositionError `json:"error,omitempty"`
}

// Outcome tells how a location was obtained.
type Outcome string

const (
	OutcomeResolved            Outcome = "resolved"
	OutcomeResolvedViaFallback Outcome = "resolved_via_fallback"
	OutcomeCached              Outcome = "cached"
)

// LocationResult is a resolved location and how it was obtained.
// FallbackReason is set only for OutcomeResolvedViaFallback.
type LocationResult struct {
	Location       domain.GeoLocation `json:"location"`
	Outcome        Outcome            `json:"outcome"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
}

// Resolver resolves postal codes and device locations for one device.
type Resolver struct {
	kv       store.Store
	postal   PostalLookup
	geocoder ReverseGeocoder
	rnd      random.Source
	logger   *slog.Logger
}

// NewResolver creates a Resolver. rnd picks fallback cities.
func NewResolver(kv store.Store, postal PostalLookup, geocoder ReverseGeocoder, rnd random.Source, logger *slog.Logger) *Resolver {
	return &Resolver{
		kv:       kv,
		postal:   postal,
		geocoder: geocoder,
		rnd:      rnd,
		logger:   logger,
	}
}

// LookupPostalCode normalizes raw to its digits and resolves it. The result
// has the street, neighborhood, city and state filled; number and complement
// are left for the customer.
func (r *Resolver) LookupPostalCode(ctx context.Context, raw string) (domain.Address, error) {
	cep := domain.Digits(raw)
	if len(cep) != 8 {
		postalLookups.WithLabelValues("invalid").Inc()
		return domain.Address{}, apperrors.FieldError("INVALID_POSTAL_CODE", "zipCode", MsgInvalidPostalCode,
			http.StatusBadRequest, apperrors.ErrInvalidInput)
	}

	addr, err := r.postal.Lookup(ctx, cep)
	switch {
	case err == nil:
		postalLookups.WithLabelValues("found").Inc()
		addr.PostalCode = domain.FormatPostalCode(cep)
		return addr, nil
	case errors.Is(err, viacep.ErrNotFound):
		postalLookups.WithLabelValues("not_found").Inc()
		return domain.Address{}, apperrors.FieldError("POSTAL_CODE_NOT_FOUND", "zipCode", MsgPostalCodeNotFound,
			http.StatusNotFound, apperrors.ErrNotFound)
	case errors.Is(err, httpclient.ErrCircuitOpen):
		postalLookups.WithLabelValues("error").Inc()
		return domain.Address{}, apperrors.ServiceUnavailable(MsgLookupFailed)
	default:
		postalLookups.WithLabelValues("error").Inc()
		r.logger.ErrorContext(ctx, "postal code lookup failed",
			slog.String("postal_code", cep),
			slog.String("error", err.Error()),
		)
		return domain.Address{}, apperrors.Upstream(MsgLookupFailed, err)
	}
}

// CurrentLocation returns the cached location, if any.
func (r *Resolver) CurrentLocation(ctx context.Context) (domain.GeoLocation, bool, error) {
	var loc domain.GeoLocation
	found, err := store.Load(ctx, r.kv, store.KeyUserLocation, &loc)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			r.logger.WarnContext(ctx, "dropping unreadable location", slog.String("error", err.Error()))
			if delErr := r.kv.Delete(ctx, store.KeyUserLocation); delErr != nil {
				return domain.GeoLocation{}, false, fmt.Errorf("delete location: %w", delErr)
			}
			return domain.GeoLocation{}, false, nil
		}
		return domain.GeoLocation{}, false, fmt.Errorf("load location: %w", err)
	}
	if !found || loc.City == "" || loc.State == "" {
		return domain.GeoLocation{}, false, nil
	}
	return loc, true, nil
}

// ResolveLocation turns a device report into a city and state. A cached
// location wins until ResetLocation is called. Device errors, reverse
// geocoding failures and unusable answers all resolve to a city drawn from
// a fixed reference table; the outcome says so.
func (r *Resolver) ResolveLocation(ctx context.Context, pos Position) (LocationResult, error) {
	if cached, ok, err := r.CurrentLocation(ctx); err != nil {
		return LocationResult{}, err
	} else if ok {
		locationResolutions.WithLabelValues(string(OutcomeCached)).Inc()
		return LocationResult{Location: cached, Outcome: OutcomeCached}, nil
	}

	result := r.resolve(ctx, pos)
	locationResolutions.WithLabelValues(string(result.Outcome)).Inc()

	if err := store.Save(ctx, r.kv, store.KeyUserLocation, result.Location); err != nil {
		return LocationResult{}, fmt.Errorf("save location: %w", err)
	}
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, pos Position) LocationResult {
	if pos.Error != "" {
		return r.fallback(ctx, 0, 0, "device: "+string(pos.Error))
	}

	place, err := r.geocoder.Reverse(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		return r.fallback(ctx, pos.Latitude, pos.Longitude, "reverse geocoding failed: "+err.Error())
	}

	city, state := place.Address.EffectiveCity(), place.Address.State
	if city == "" || state == "" {
		return r.fallback(ctx, pos.Latitude, pos.Longitude, "reverse geocoding returned no city or state")
	}

	return LocationResult{
		Location: domain.GeoLocation{
			City:      city,
			State:     StateCode(state),
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
		},
		Outcome: OutcomeResolved,
	}
}

func (r *Resolver) fallback(ctx context.Context, lat, lon float64, reason string) LocationResult {
	pick := fallbackCities[r.rnd.IntN(len(fallbackCities))]
	r.logger.WarnContext(ctx, "using fallback location",
		slog.String("reason", reason),
		slog.String("city", pick.City),
		slog.String("state", pick.State),
	)
	return LocationResult{
		Location: domain.GeoLocation{
			City:      pick.City,
			State:     pick.State,
			Latitude:  lat,
			Longitude: lon,
		},
		Outcome:        OutcomeResolvedViaFallback,
		FallbackReason: reason,
	}
}

// ResetLocation forgets the cached location and every memoized shipping
// quote, since quotes were computed for the old location.
func (r *Resolver) ResetLocation(ctx context.Context) error {
	if err := r.kv.Delete(ctx, store.KeyUserLocation); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if err := r.kv.DeletePrefix(ctx, store.ShippingPrefix); err != nil {
		return fmt.Errorf("delete shipping quotes: %w", err)
	}
	r.logger.InfoContext(ctx, "location reset")
	return nil
}
