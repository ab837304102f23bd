// Package shipping estimates delivery cost and time for an address. Quotes
// are simulated and memoized per address forever.
package shipping

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/random"
	"github.com/acaidelivery/checkout/internal/store"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
)

// DefaultLatency is how long a simulated computation takes.
const DefaultLatency = 2 * time.Second

// MsgAddressIncomplete is shown instead of a quote for a partial address.
const MsgAddressIncomplete = "Preencha o endereço completo para calcular o frete"

var quotesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_shipping_quotes_total",
		Help: "Shipping quote requests by result (hit or computed)",
	},
	[]string{"result"},
)

// ErrAddressIncomplete returns the refusal for an address missing a field.
func ErrAddressIncomplete() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "ADDRESS_INCOMPLETE",
		Message: MsgAddressIncomplete,
		Status:  http.StatusUnprocessableEntity,
		Err:     apperrors.ErrValidation,
	}
}

// CacheKey normalizes an address into the key its quote is memoized under:
// "street, number, neighborhood, postal code-city-state", case-folded with
// all whitespace removed. The postal code is reduced to its digits so
// "01001-000" and "01001000" share a quote.
func CacheKey(a domain.Address) string {
	raw := fmt.Sprintf("%s, %s, %s, %s-%s-%s",
		a.Street, a.Number, a.Neighborhood, domain.Digits(a.PostalCode), a.City, a.State)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, raw)
}

// Estimate is a quote and whether it came from the memo.
type Estimate struct {
	Quote    domain.ShippingQuote `json:"quote"`
	CacheKey string               `json:"cacheKey"`
	Cached   bool                 `json:"cached"`
}

// Estimator produces quotes for one device's store.
type Estimator struct {
	kv      store.Store
	group   *singleflight.Group
	rnd     random.Source
	latency time.Duration
	logger  *slog.Logger
}

// NewEstimator creates an Estimator over kv.
func NewEstimator(kv store.Store, rnd random.Source, latency time.Duration, logger *slog.Logger) *Estimator {
	return &Estimator{
		kv:      kv,
		group:   &singleflight.Group{},
		rnd:     rnd,
		latency: latency,
		logger:  logger,
	}
}

// Lookup returns the memoized quote for a, if any, without computing.
func (e *Estimator) Lookup(ctx context.Context, a domain.Address) (domain.ShippingQuote, bool, error) {
	var q domain.ShippingQuote
	found, err := store.Load(ctx, e.kv, store.ShippingKey(CacheKey(a)), &q)
	if err != nil {
		return domain.ShippingQuote{}, false, err
	}
	return q, found, nil
}

// Estimate returns the quote for a, computing and memoizing it on first use.
// Concurrent requests for the same address share one computation, which
// runs to completion and is persisted even if every caller gives up.
func (e *Estimator) Estimate(ctx context.Context, a domain.Address) (Estimate, error) {
	if !a.IsComplete() {
		return Estimate{}, ErrAddressIncomplete()
	}
	key := CacheKey(a)

	if q, found, err := e.Lookup(ctx, a); err != nil {
		e.logger.WarnContext(ctx, "ignoring unreadable shipping quote",
			slog.String("cache_key", key), slog.String("error", err.Error()))
	} else if found {
		quotesTotal.WithLabelValues("hit").Inc()
		return Estimate{Quote: q, CacheKey: key, Cached: true}, nil
	}

	ch := e.group.DoChan(key, func() (any, error) {
		return e.compute(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return Estimate{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Estimate{}, res.Err
		}
		return Estimate{Quote: res.Val.(domain.ShippingQuote), CacheKey: key}, nil
	}
}

func (e *Estimator) compute(ctx context.Context, key string) (domain.ShippingQuote, error) {
	if e.latency > 0 {
		timer := time.NewTimer(e.latency)
		<-timer.C
	}

	// Another instance sharing the store may have memoized it meanwhile.
	var existing domain.ShippingQuote
	if found, err := store.Load(ctx, e.kv, store.ShippingKey(key), &existing); err == nil && found {
		quotesTotal.WithLabelValues("hit").Inc()
		return existing, nil
	}

	q := e.draw()
	if err := store.Save(ctx, e.kv, store.ShippingKey(key), q); err != nil {
		return domain.ShippingQuote{}, fmt.Errorf("memoize shipping quote: %w", err)
	}
	quotesTotal.WithLabelValues("computed").Inc()
	e.logger.InfoContext(ctx, "shipping quote computed",
		slog.String("cache_key", key),
		slog.String("cost", q.Cost.StringFixed(2)),
		slog.String("distance", q.Distance),
	)
	return q, nil
}

// draw simulates a quote: cost in [2, 10) reais, distance in [1, 9) km and a
// ten-minute delivery window starting between 20 and 40 minutes.
func (e *Estimator) draw() domain.ShippingQuote {
	cost := 2 + e.rnd.Float64()*8
	distance := 1 + e.rnd.Float64()*8
	base := 20 + e.rnd.Float64()*20

	return domain.ShippingQuote{
		Cost:          decimal.NewFromFloat(cost).Round(2),
		Distance:      fmt.Sprintf("%.1fkm", distance),
		EstimatedTime: fmt.Sprintf("%d-%d min", int(math.Round(base)), int(math.Round(base+10))),
	}
}
