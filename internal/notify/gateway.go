// Package notify delivers bill and stock notifications to customers and staff
// over a WhatsApp-style messaging gateway. Deliveries run asynchronously via
// the task queue so HTTP handlers never wait on the gateway.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-billing/internal/resilience"
)

// Sender delivers a single text message to a phone number.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// GatewayConfig holds the settings for the messaging gateway client.
type GatewayConfig struct {
	BaseURL string
	Token   string
	Sender  string
	Timeout time.Duration
}

// Gateway is a resty-backed Sender guarded by a circuit breaker.
type Gateway struct {
	client  *resty.Client
	sender  string
	breaker *resilience.Breaker
}

// NewGateway builds a gateway client. A nil breaker disables circuit breaking.
func NewGateway(cfg GatewayConfig, breaker *resilience.Breaker) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Authorization", "Bearer "+cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetRetryCount(2).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			return resilience.Backoff(200*time.Millisecond, r.Request.Attempt, 0.2), nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport failures and gateway-side errors only; 4xx
			// responses are the caller's problem.
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Gateway{client: client, sender: cfg.Sender, breaker: breaker}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type gatewayError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText posts one text message through the gateway.
func (g *Gateway) SendText(ctx context.Context, to, body string) error {
	if g.breaker != nil && !g.breaker.Allow(ctx) {
		return resilience.ErrOpenCircuit
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}

	result := new(sendResponse)
	apiErr := new(gatewayError)
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post(fmt.Sprintf("/%s/messages", g.sender))

	success := err == nil && resp.StatusCode() < http.StatusBadRequest
	if g.breaker != nil {
		g.breaker.Report(ctx, success)
	}
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !success {
		code := resp.StatusCode()
		message := apiErr.Error.Message
		if apiErr.Error.Code != 0 {
			code = apiErr.Error.Code
		}
		return fmt.Errorf("gateway error: code=%d, message=%s", code, message)
	}
	return nil
}

// NopSender drops every message. Used when the gateway is disabled.
type NopSender struct{}

func (NopSender) SendText(context.Context, string, string) error { return nil }
