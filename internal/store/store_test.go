package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/internal/store"
	"github.com/acaidelivery/checkout/internal/store/memory"
)

func TestLoadSave_RoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var loc domain.GeoLocation
	found, err := store.Load(ctx, s, store.KeyUserLocation, &loc)
	require.NoError(t, err)
	assert.False(t, found)

	want := domain.GeoLocation{City: "Recife", State: "PE", Latitude: -8.05, Longitude: -34.9}
	require.NoError(t, store.Save(ctx, s, store.KeyUserLocation, want))

	found, err = store.Load(ctx, s, store.KeyUserLocation, &loc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, loc)
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Set(ctx, store.KeyCart, []byte("{not json")))

	var items []domain.CartItem
	_, err := store.Load(ctx, s, store.KeyCart, &items)
	assert.ErrorContains(t, err, "decode cart")
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestNamespace_IsolatesDevices(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	a := store.Namespace(backend, "device-a")
	b := store.Namespace(backend, "device-b")

	require.NoError(t, a.Set(ctx, store.ShippingKey("x"), []byte("1")))
	require.NoError(t, b.Set(ctx, store.ShippingKey("x"), []byte("2")))
	require.NoError(t, b.Set(ctx, store.KeyCart, []byte("[]")))

	require.NoError(t, a.DeletePrefix(ctx, store.ShippingPrefix))

	_, err := a.Get(ctx, store.ShippingKey("x"))
	assert.True(t, store.IsNotFound(err))
	got, err := b.Get(ctx, store.ShippingKey("x"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	require.NoError(t, b.Delete(ctx, store.KeyCart))
	_, err = backend.Get(ctx, "device-b:cart")
	assert.True(t, store.IsNotFound(err))
}

func TestShippingKey(t *testing.T) {
	assert.Equal(t, "shipping-rua1", store.ShippingKey("rua1"))
}
