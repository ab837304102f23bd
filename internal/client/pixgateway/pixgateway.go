// Package pixgateway requests PIX charges from the payment gateway.
package pixgateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/acaidelivery/checkout/internal/domain"
	"github.com/acaidelivery/checkout/pkg/httpclient"
	"github.com/acaidelivery/checkout/pkg/tracing"
)

// DefaultURL is the gateway endpoint used in local development.
const DefaultURL = "http://localhost/api/generate-pix.php"

const (
	upstreamName = "pix-gateway"
	tracerName   = "github.com/acaidelivery/checkout/internal/client/pixgateway"
)

// Request is the charge request. CPF and Phone carry digits only; Amount is
// the total in centavos as a decimal string.
type Request struct {
	Name    string `json:"name"`
	CPF     string `json:"cpf"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Product string `json:"product"`
	Amount  string `json:"amount"`
}

// Client posts charge requests. It never retries: a repeated POST could
// issue a second charge.
type Client struct {
	doer httpclient.Doer
	url  string
}

// New creates a Client. An empty url uses DefaultURL.
func New(doer httpclient.Doer, url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{doer: doer, url: url}
}

// GeneratePix asks the gateway for a new PIX charge. Rejections come back
// as *httpclient.StatusError carrying the gateway's message.
func (c *Client) GeneratePix(ctx context.Context, req Request) (_ *domain.PixCharge, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pixgateway.GeneratePix",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pix.product", req.Product),
			attribute.String("pix.amount", req.Amount),
		),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	var charge domain.PixCharge
	if err = httpclient.PostJSON(ctx, c.doer, c.url, upstreamName, req, &charge); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("pix.transaction_id", charge.TransactionID))
	return &charge, nil
}
