package store

// Recognized keys and the snapshot each one holds.
const (
	// KeyCart holds []domain.CartItem.
	KeyCart = "cart"
	// KeyUserLocation holds domain.GeoLocation.
	KeyUserLocation = "userLocation"
	// KeyDeliveryAddress holds domain.DeliverySnapshot.
	KeyDeliveryAddress = "deliveryAddress"
	// ShippingPrefix starts every memoized domain.ShippingQuote key.
	ShippingPrefix = "shipping-"
)

// ShippingKey returns the key of the quote memoized for cacheKey.
func ShippingKey(cacheKey string) string {
	return ShippingPrefix + cacheKey
}
