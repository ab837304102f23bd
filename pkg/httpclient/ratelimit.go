package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedClient spaces outgoing requests to stay within an upstream's
// usage policy. Callers wait for a token; a request whose context ends
// while waiting is never sent.
type RateLimitedClient struct {
	client  Doer
	limiter *rate.Limiter
}

// NewRateLimitedClient allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimitedClient(client Doer, rps float64, burst int) *RateLimitedClient {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{client: client, limiter: rate.NewLimiter(limit, burst)}
}

// Do waits for the limiter, then executes req.
func (c *RateLimitedClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.client.Do(ctx, req)
}
