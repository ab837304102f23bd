package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/acaidelivery/checkout/internal/address"
	"github.com/acaidelivery/checkout/internal/cart"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/internal/random"
	"github.com/acaidelivery/checkout/internal/shipping"
	"github.com/acaidelivery/checkout/internal/store"
	apperrors "github.com/acaidelivery/checkout/pkg/errors"
)

var activeWorkspaces = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "checkout_active_workspaces",
	Help: "Number of devices with a live workspace",
})

// EventPublisher receives cart and payment session events.
type EventPublisher interface {
	cart.EventPublisher
	payment.EventPublisher
}

// Dependencies are shared by every workspace.
type Dependencies struct {
	Store           store.Store
	Postal          address.PostalLookup
	Geocoder        address.ReverseGeocoder
	Gateway         payment.Gateway
	Events          EventPublisher
	Random          random.Source
	ShippingLatency time.Duration
	Payment         payment.Config
	Logger          *slog.Logger
}

// Workspace is everything one device works with: its own key space, cart,
// location, shipping memo and at most one open checkout view.
type Workspace struct {
	DeviceID  string
	Store     store.Store
	Cart      *cart.Store
	Resolver  *address.Resolver
	Estimator *shipping.Estimator

	deps     *Dependencies
	logger   *slog.Logger
	mu       sync.Mutex
	view     *View
	lastUsed time.Time
}

// OpenView starts a fresh checkout view, tearing down the previous one.
func (w *Workspace) OpenView() *View {
	payments := payment.NewManager(w.Store, w.deps.Gateway, w.deps.Events, w.DeviceID, w.deps.Payment, w.logger)
	v := NewView(w.Cart, w.Resolver, w.Estimator, payments, w.logger)

	w.mu.Lock()
	prev := w.view
	w.view = v
	w.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return v
}

// View returns the open checkout view.
func (w *Workspace) View() (*View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view == nil {
		return nil, apperrors.NotFound("checkout", w.DeviceID)
	}
	return w.view, nil
}

// CloseView tears down the open view, if any.
func (w *Workspace) CloseView() {
	w.mu.Lock()
	v := w.view
	w.view = nil
	w.mu.Unlock()

	if v != nil {
		v.Close()
	}
}

// Eviction bounds how long Sweep keeps unused workspaces.
type Eviction struct {
	// Idle applies to workspaces with an open checkout view. Zero keeps them.
	Idle time.Duration
	// Viewless applies to workspaces without one, such as those of devices
	// that never got past a single anonymous request. Everything they hold
	// is persisted, so they can go sooner. Zero means Idle.
	Viewless time.Duration
}

func (e Eviction) limit(hasView bool) time.Duration {
	if !hasView && e.Viewless > 0 {
		return e.Viewless
	}
	return e.Idle
}

// Registry hands out one Workspace per device and evicts idle ones.
type Registry struct {
	mu         sync.Mutex
	deps       Dependencies
	eviction   Eviction
	now        func() time.Time
	workspaces map[string]*Workspace
}

// NewRegistry creates a Registry whose Sweep follows eviction.
func NewRegistry(deps Dependencies, eviction Eviction) *Registry {
	if deps.Random == nil {
		deps.Random = random.Default()
	}
	return &Registry{
		deps:       deps,
		eviction:   eviction,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Workspace returns the workspace of deviceID, creating it on first use.
func (r *Registry) Workspace(deviceID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workspaces[deviceID]
	if !ok {
		w = r.newWorkspace(deviceID)
		r.workspaces[deviceID] = w
		activeWorkspaces.Inc()
	}
	w.mu.Lock()
	w.lastUsed = r.now()
	w.mu.Unlock()
	return w
}

func (r *Registry) newWorkspace(deviceID string) *Workspace {
	kv := store.Namespace(r.deps.Store, "device:"+deviceID)
	logger := r.deps.Logger.With(slog.String("device_id", deviceID))

	return &Workspace{
		DeviceID:  deviceID,
		Store:     kv,
		Cart:      cart.New(kv, r.deps.Events, deviceID, logger),
		Resolver:  address.NewResolver(kv, r.deps.Postal, r.deps.Geocoder, r.deps.Random, logger),
		Estimator: shipping.NewEstimator(kv, r.deps.Random, r.deps.ShippingLatency, logger),
		deps:      &r.deps,
		logger:    logger,
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep evicts idle workspaces and closes their views. Persisted state is
// kept; the device gets a new workspace over it on its next request.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	var evicted []*Workspace
	for id, w := range r.workspaces {
		if r.expired(w, now) {
			evicted = append(evicted, w)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, w := range evicted {
		w.CloseView()
		activeWorkspaces.Dec()
	}
	if len(evicted) > 0 {
		r.deps.Logger.Info("evicted idle workspaces", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

func (r *Registry) expired(w *Workspace, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	limit := r.eviction.limit(w.view != nil)
	return limit > 0 && now.Sub(w.lastUsed) > limit
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every open view.
func (r *Registry) Close() {
	r.mu.Lock()
	workspaces := make([]*Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		workspaces = append(workspaces, w)
	}
	r.mu.Unlock()

	for _, w := range workspaces {
		w.CloseView()
	}
}
