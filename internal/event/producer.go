// Package event publishes checkout domain events.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acaidelivery/checkout/internal/domain"
	pkgkafka "github.com/acaidelivery/checkout/pkg/kafka"
	"github.com/acaidelivery/checkout/pkg/logger"
)

// Kafka topics for checkout events.
var (
	TopicCartUpdated             = pkgkafka.Topic("cart", "updated")
	TopicCartCleared             = pkgkafka.Topic("cart", "cleared")
	TopicPaymentSessionOpened    = pkgkafka.Topic("payment", "session_opened")
	TopicPaymentSessionConfirmed = pkgkafka.Topic("payment", "session_confirmed")
	TopicPaymentSessionCancelled = pkgkafka.Topic("payment", "session_cancelled")
	TopicPaymentSessionExpired   = pkgkafka.Topic("payment", "session_expired")
)

// Aggregate types.
const (
	AggregateTypeCart           = "cart"
	AggregateTypePaymentSession = "payment_session"
)

// SourceCheckout identifies events originating from this service.
const SourceCheckout = "checkout-service"

// MetadataDeviceID is the metadata key, and message header, naming the
// device an event belongs to.
const MetadataDeviceID = "device_id"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	DeviceID  string         `json:"device_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  string         `json:"subtotal"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	DeviceID string `json:"device_id"`
}

// PaymentSessionData is the payload for every payment session event.
type PaymentSessionData struct {
	DeviceID      string    `json:"device_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Product       string    `json:"product"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Producer turns cart and payment transitions into events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a Producer. Pass pkgkafka.NoopPublisher{} when Kafka
// is disabled.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, deviceID string, cart domain.Cart) error {
	items := make([]CartItemData, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemData{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.UnitPrice.StringFixed(2),
			Quantity: item.Quantity,
		}
	}

	data := CartUpdatedData{
		DeviceID:  deviceID,
		Items:     items,
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.Subtotal().StringFixed(2),
	}
	return p.publish(ctx, TopicCartUpdated, deviceID, deviceID, AggregateTypeCart, data)
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, deviceID string) error {
	return p.publish(ctx, TopicCartCleared, deviceID, deviceID, AggregateTypeCart, CartClearedData{DeviceID: deviceID})
}

// PublishSessionOpened publishes a payment.session_opened event.
func (p *Producer) PublishSessionOpened(ctx context.Context, deviceID string, s domain.PaymentSession) error {
	return p.publishSession(ctx, TopicPaymentSessionOpened, deviceID, s)
}

// PublishSessionConfirmed publishes a payment.session_confirmed event.
func (p *Producer) PublishSessionConfirmed(ctx context.Context, deviceID string, s domain.PaymentSession) error {
	return p.publishSession(ctx, TopicPaymentSessionConfirmed, deviceID, s)
}

// PublishSessionCancelled publishes a payment.session_cancelled event.
func (p *Producer) PublishSessionCancelled(ctx context.Context, deviceID string, s domain.PaymentSession) error {
	return p.publishSession(ctx, TopicPaymentSessionCancelled, deviceID, s)
}

// PublishSessionExpired publishes a payment.session_expired event.
func (p *Producer) PublishSessionExpired(ctx context.Context, deviceID string, s domain.PaymentSession) error {
	return p.publishSession(ctx, TopicPaymentSessionExpired, deviceID, s)
}

func (p *Producer) publishSession(ctx context.Context, topic, deviceID string, s domain.PaymentSession) error {
	data := PaymentSessionData{
		DeviceID:      deviceID,
		TransactionID: s.TransactionID,
		Amount:        s.Amount,
		Product:       s.Product,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
	return p.publish(ctx, topic, deviceID, s.TransactionID, AggregateTypePaymentSession, data)
}

// publish tags every event with the device it belongs to, whatever its
// aggregate.
func (p *Producer) publish(ctx context.Context, topic, deviceID, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceCheckout, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	event.WithMetadata(MetadataDeviceID, deviceID)

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
