// Package cart owns the selected line items of one device.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/store"
)

// EventPublisher is notified after the cart changes. Failures are logged,
// never returned to the caller.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, deviceID string, cart domain.Cart) error
	PublishCartCleared(ctx context.Context, deviceID string) error
}

// Store holds one device's cart. The persisted snapshot is the only copy:
// every call reads it afresh and every mutation is written through before it
// returns, so a failed write leaves the cart as it was. Mutations through one
// Store are serialized; writers on other instances of the same device are
// last-writer-wins.
type Store struct {
	mu       sync.Mutex
	kv       store.Store
	events   EventPublisher
	logger   *slog.Logger
	deviceID string
}

// New creates a cart for deviceID. events may be nil.
func New(kv store.Store, events EventPublisher, deviceID string, logger *slog.Logger) *Store {
	return &Store{
		kv:       kv,
		events:   events,
		logger:   logger,
		deviceID: deviceID,
	}
}

// Get returns the persisted cart.
func (s *Store) Get(ctx context.Context) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// AddItem merges quantity into the entry with item.ID, or appends a new
// entry. An existing entry keeps its name and price. Quantities below 1
// leave the cart untouched.
func (s *Store) AddItem(ctx context.Context, item domain.CartItem, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) bool {
		if quantity < 1 {
			return false
		}
		if idx := c.FindItemIndex(item.ID); idx >= 0 {
			c.Items[idx].Quantity += quantity
			return true
		}
		item.Quantity = quantity
		c.Items = append(c.Items, item)
		return true
	})
}

// RemoveItem deletes the entry with id. Removing an absent id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id int) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) bool {
		idx := c.FindItemIndex(id)
		if idx < 0 {
			return false
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return true
	})
}

// UpdateQuantity replaces the quantity of the entry with id. Quantities
// below 1 and unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, id, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) bool {
		if quantity < 1 {
			return false
		}
		idx := c.FindItemIndex(id)
		if idx < 0 {
			return false
		}
		c.Items[idx].Quantity = quantity
		return true
	})
}

// Clear empties the cart and drops the delivery snapshot of the last order.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.Save(ctx, s.kv, store.KeyCart, []domain.CartItem{}); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	if err := s.kv.Delete(ctx, store.KeyDeliveryAddress); err != nil {
		return fmt.Errorf("delete delivery snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "cart cleared")
	if s.events != nil {
		if err := s.events.PublishCartCleared(ctx, s.deviceID); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart cleared event", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, apply func(*domain.Cart) bool) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	next := cur.Clone()
	if !apply(&next) {
		return cur, nil
	}

	if err := store.Save(ctx, s.kv, store.KeyCart, next.Items); err != nil {
		return domain.Cart{}, fmt.Errorf("persist cart: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishCartUpdated(ctx, s.deviceID, next.Clone()); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart updated event", slog.String("error", err.Error()))
		}
	}
	return next, nil
}

// load reads the persisted cart. A missing or unreadable snapshot is an
// empty cart.
func (s *Store) load(ctx context.Context) (domain.Cart, error) {
	var items []domain.CartItem
	found, err := store.Load(ctx, s.kv, store.KeyCart, &items)
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return domain.Cart{}, fmt.Errorf("load cart: %w", err)
		}
		s.logger.WarnContext(ctx, "discarding unreadable cart snapshot", slog.String("error", err.Error()))
		items, found = nil, false
	}
	if !found || items == nil {
		items = []domain.CartItem{}
	}
	return domain.Cart{Items: items}, nil
}
