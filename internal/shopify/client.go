// Package shopify is the platform adapter: authoritative checkout totals,
// order submission after capture, OAuth token exchange, and webhook
// verification.
package shopify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/splitpay/server/internal/circuitbreaker"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/money"
)

// Checkout is the subset of the platform checkout used at init time. The
// total is the trusted amount; client-supplied totals are never persisted.
type Checkout struct {
	Token      string
	TotalCents int64
	Currency   string
	Email      string
}

// Order is the platform's acknowledgement of a submitted order.
type Order struct {
	ID     int64
	Number string
}

// OrderRequest carries everything needed to submit the paid order.
type OrderRequest struct {
	CheckoutToken string
	Email         string
	TotalCents    int64
	Currency      string
	TransactionID string
	CardCount     int
}

// Client talks to the Shopify Admin API for a given shop using its access
// token. One Client is shared across shops; the per-shop domain and token
// are passed per call.
type Client struct {
	cfg      config.ShopifyConfig
	http     *resty.Client
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
}

// NewClient builds the shared Admin API client.
func NewClient(cfg config.ShopifyConfig, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{})
	}
	httpClient := resty.New().
		SetTimeout(cfg.Timeout.Duration).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Client{cfg: cfg, http: httpClient, breakers: breakers, metrics: metricsCollector}
}

func (c *Client) adminURL(shopDomain, path string) string {
	return fmt.Sprintf("https://%s/admin/api/%s%s", shopDomain, c.cfg.APIVersion, path)
}

func (c *Client) execute(ctx context.Context, operation string, fn func() (*resty.Response, error)) (*resty.Response, error) {
	start := time.Now()
	res, err := c.breakers.Execute(circuitbreaker.ServiceShopify, func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("shopify: %s returned %d: %s", operation, resp.StatusCode(), resp.String())
		}
		return resp, nil
	})
	if c.metrics != nil {
		c.metrics.ObserveProviderCall(string(circuitbreaker.ServiceShopify), operation, start, err)
	}
	if err != nil {
		return nil, err
	}
	return res.(*resty.Response), nil
}

type checkoutEnvelope struct {
	Checkout struct {
		Token      string `json:"token"`
		TotalPrice string `json:"total_price"`
		Currency   string `json:"currency"`
		Email      string `json:"email"`
	} `json:"checkout"`
}

// GetCheckout fetches the checkout and its authoritative total.
func (c *Client) GetCheckout(ctx context.Context, shopDomain, accessToken, checkoutToken string) (Checkout, error) {
	var envelope checkoutEnvelope
	_, err := c.execute(ctx, "get_checkout", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("X-Shopify-Access-Token", accessToken).
			SetResult(&envelope).
			Get(c.adminURL(shopDomain, "/checkouts/"+checkoutToken+".json"))
	})
	if err != nil {
		return Checkout{}, err
	}

	total, err := money.ParseDecimal(envelope.Checkout.TotalPrice)
	if err != nil {
		return Checkout{}, fmt.Errorf("shopify: parse checkout total %q: %w", envelope.Checkout.TotalPrice, err)
	}
	return Checkout{
		Token:      envelope.Checkout.Token,
		TotalCents: total,
		Currency:   envelope.Checkout.Currency,
		Email:      envelope.Checkout.Email,
	}, nil
}

type orderEnvelope struct {
	Order struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"order"`
}

// orderPayload builds the Admin API order body: marked paid, tagged for
// discovery, and annotated with metafields so support can trace the order
// back to the split transaction.
func orderPayload(req OrderRequest) map[string]any {
	return map[string]any{
		"order": map[string]any{
			"email":               req.Email,
			"financial_status":    "paid",
			"send_receipt":        true,
			"tags":                "split-payment",
			"note":                fmt.Sprintf("Paid with %d cards via split payment", req.CardCount),
			"checkout_token":      req.CheckoutToken,
			"inventory_behaviour": "decrement_obeying_policy",
			"suppress_webhooks":   false,
			"line_items": []map[string]any{
				{
					"title":    "Split payment order",
					"price":    money.FormatCents(req.TotalCents),
					"quantity": 1,
				},
			},
			"transactions": []map[string]any{
				{
					"kind":     "sale",
					"status":   "success",
					"amount":   money.FormatCents(req.TotalCents),
					"currency": req.Currency,
					"gateway":  "split-payment",
				},
			},
			"metafields": []map[string]any{
				{
					"namespace": "splitpay",
					"key":       "split_payment",
					"type":      "boolean",
					"value":     "true",
				},
				{
					"namespace": "splitpay",
					"key":       "transaction_id",
					"type":      "single_line_text_field",
					"value":     req.TransactionID,
				},
				{
					"namespace": "splitpay",
					"key":       "payment_count",
					"type":      "number_integer",
					"value":     strconv.Itoa(req.CardCount),
				},
			},
		},
	}
}

// CreateOrder submits the paid order for a settled transaction.
func (c *Client) CreateOrder(ctx context.Context, shopDomain, accessToken string, req OrderRequest) (Order, error) {
	payload := orderPayload(req)

	var envelope orderEnvelope
	_, err := c.execute(ctx, "create_order", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("X-Shopify-Access-Token", accessToken).
			SetBody(payload).
			SetResult(&envelope).
			Post(c.adminURL(shopDomain, "/orders.json"))
	})
	if err != nil {
		return Order{}, err
	}
	if envelope.Order.ID == 0 {
		return Order{}, fmt.Errorf("shopify: order create returned no order id")
	}
	return Order{ID: envelope.Order.ID, Number: envelope.Order.Name}, nil
}

type tokenEnvelope struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeOAuthCode swaps an OAuth authorization code for a permanent
// access token during app install.
func (c *Client) ExchangeOAuthCode(ctx context.Context, shopDomain, code string) (string, error) {
	var envelope tokenEnvelope
	_, err := c.execute(ctx, "oauth_token_exchange", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"client_id":     c.cfg.APIKey,
				"client_secret": c.cfg.APISecret,
				"code":          code,
			}).
			SetResult(&envelope).
			Post(fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain))
	})
	if err != nil {
		return "", err
	}
	if envelope.AccessToken == "" {
		return "", fmt.Errorf("shopify: token exchange returned empty token")
	}
	return envelope.AccessToken, nil
}

// InstallURL builds the OAuth grant URL a merchant is redirected to.
func (c *Client) InstallURL(shopDomain, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.APIKey)
	q.Set("scope", c.cfg.Scopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return fmt.Sprintf("https://%s/admin/oauth/authorize?%s", shopDomain, q.Encode())
}
