package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"

	"github.com/xenking/storefront/internal/domain/payment"
)

var _ payment.Gateway = (*Gateway)(nil)

// Config holds gateway credentials and client settings.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Gateway creates orders through the gateway REST API. Calls go through a
// circuit breaker so a failing gateway is not hammered by every checkout.
type Gateway struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*payment.GatewayOrder]
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker[*payment.GatewayOrder](gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// CreateOrder implements payment.Gateway. amount is in minor units.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*payment.GatewayOrder, error) {
	return g.cb.Execute(func() (*payment.GatewayOrder, error) {
		return g.createOrder(ctx, amount, currency, receipt)
	})
}

func (g *Gateway) createOrder(ctx context.Context, amount int64, currency, receipt string) (*payment.GatewayOrder, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(amount)
	e.FieldStart("currency")
	e.Str(currency)
	e.FieldStart("receipt")
	e.Str(receipt)
	e.ObjEnd()

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, gatewayError(body))
	}

	order, err := decodeOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if order.ID == "" {
		return nil, errors.New("gateway returned an order without id")
	}
	return order, nil
}

func decodeOrder(body []byte) (*payment.GatewayOrder, error) {
	var o payment.GatewayOrder
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		case "receipt":
			o.Receipt, err = d.Str()
		case "status":
			o.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// gatewayError extracts error.description from an error body, falling back
// to the raw body.
func gatewayError(body []byte) string {
	var desc string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "description" {
				return d.Skip()
			}
			v, err := d.Str()
			desc = v
			return err
		})
	})
	if err != nil || desc == "" {
		return strings.TrimSpace(string(body))
	}
	return desc
}
