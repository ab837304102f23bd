package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acaidelivery/checkout/internal/domain"
	pkgkafka "github.com/acaidelivery/checkout/pkg/kafka"
	"github.com/acaidelivery/checkout/pkg/logger"
)

type published struct {
	topic string
	event *pkgkafka.Event
}

type recordingPublisher struct {
	sent []published
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, published{topic: topic, event: event})
	return nil
}

func newTestProducer(pub pkgkafka.Publisher) *Producer {
	return NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishCartUpdated(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)

	cart := domain.Cart{Items: []domain.CartItem{
		{ID: 1, Name: "Açaí 500ml", UnitPrice: decimal.RequireFromString("19.9"), Quantity: 2},
		{ID: 4, Name: "Granola", UnitPrice: decimal.RequireFromString("3"), Quantity: 1},
	}}
	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	require.NoError(t, p.PublishCartUpdated(ctx, "dev-1", cart))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "acai.cart.updated", pub.sent[0].topic)

	ev := pub.sent[0].event
	assert.Equal(t, "dev-1", ev.AggregateID)
	assert.Equal(t, AggregateTypeCart, ev.AggregateType)
	assert.Equal(t, SourceCheckout, ev.Source)
	assert.Equal(t, "corr-9", ev.CorrelationID)
	assert.Equal(t, "dev-1", ev.Metadata[MetadataDeviceID])

	var data CartUpdatedData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, 3, data.ItemCount)
	assert.Equal(t, "42.80", data.Subtotal)
	assert.Equal(t, "19.90", data.Items[0].Price)
}

func TestPublishCartCleared(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, newTestProducer(pub).PublishCartCleared(context.Background(), "dev-2"))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, TopicCartCleared, pub.sent[0].topic)
	assert.JSONEq(t, `{"device_id":"dev-2"}`, string(pub.sent[0].event.Data))
}

func TestPublishSessionEvents_TopicsAndPayload(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := domain.PaymentSession{
		PixCharge: domain.PixCharge{TransactionID: "tx-1", Amount: "45.33", Product: "Rei do Açai Delivery"},
		CreatedAt: created,
		ExpiresAt: created.Add(15 * time.Minute),
		Status:    domain.SessionActive,
	}

	require.NoError(t, p.PublishSessionOpened(ctx, "dev-1", s))
	require.NoError(t, p.PublishSessionConfirmed(ctx, "dev-1", s))
	require.NoError(t, p.PublishSessionCancelled(ctx, "dev-1", s))
	require.NoError(t, p.PublishSessionExpired(ctx, "dev-1", s))

	require.Len(t, pub.sent, 4)
	assert.Equal(t, []string{
		"acai.payment.session_opened",
		"acai.payment.session_confirmed",
		"acai.payment.session_cancelled",
		"acai.payment.session_expired",
	}, []string{pub.sent[0].topic, pub.sent[1].topic, pub.sent[2].topic, pub.sent[3].topic})

	ev := pub.sent[0].event
	assert.Equal(t, "tx-1", ev.AggregateID)
	assert.Equal(t, AggregateTypePaymentSession, ev.AggregateType)
	assert.Equal(t, "dev-1", ev.Metadata[MetadataDeviceID], "session events are keyed by transaction but tagged with the device")

	var data PaymentSessionData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "dev-1", data.DeviceID)
	assert.Equal(t, "45.33", data.Amount)
	assert.Equal(t, "active", data.Status)
	assert.True(t, data.ExpiresAt.Equal(created.Add(15*time.Minute)))
}

func TestPublish_WrapsPublisherError(t *testing.T) {
	p := newTestProducer(&recordingPublisher{err: errors.New("broker down")})

	err := p.PublishCartCleared(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish acai.cart.cleared event")
	assert.Contains(t, err.Error(), "broker down")
}

func TestNoopPublisher(t *testing.T) {
	p := newTestProducer(pkgkafka.NoopPublisher{})
	assert.NoError(t, p.PublishCartCleared(context.Background(), "dev-1"))
}
