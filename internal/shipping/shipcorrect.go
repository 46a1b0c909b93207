// Package shipping is the ShipCorrect forward-order client.
package shipping

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

	"github.com/xenking/storefront/internal/domain/shipping"
)

const createForwardOrderPath = "/api/createForwardOrder.php"

var _ shipping.Carrier = (*Client)(nil)

// Config holds ShipCorrect credentials.
type Config struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// Client books forward shipments with ShipCorrect.
type Client struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*shipping.Result]
}

// NewClient creates a ShipCorrect client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker[*shipping.Result](gobreaker.Settings{
			Name:        "shipcorrect",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

// CreateShipment implements shipping.Carrier.
func (c *Client) CreateShipment(ctx context.Context, s shipping.Shipment) (*shipping.Result, error) {
	return c.cb.Execute(func() (*shipping.Result, error) {
		return c.createShipment(ctx, s)
	})
}

func (c *Client) createShipment(ctx context.Context, s shipping.Shipment) (*shipping.Result, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + createForwardOrderPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(c.encode(s)))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("username", c.cfg.Username)
	req.Header.Set("password", c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("shipcorrect returned %d", resp.StatusCode)
	}
	return decodeResult(body)
}

// encode builds the forward-order payload. Per-item fields are sent as
// comma separated lists.
func (c *Client) encode(s shipping.Shipment) []byte {
	join := func(f func(it shipping.Item) string) string {
		parts := make([]string, len(s.Items))
		for i, it := range s.Items {
			parts[i] = f(it)
		}
		return strings.Join(parts, ", ")
	}
	str := func(e *jx.Encoder, k, v string) {
		e.FieldStart(k)
		e.Str(v)
	}

	var e jx.Encoder
	e.ObjStart()
	str(&e, "api_key", c.cfg.APIKey)
	str(&e, "customer_name", s.CustomerName)
	str(&e, "customer_email", s.CustomerEmail)
	str(&e, "customer_address1", s.Address)
	str(&e, "customer_address2", "")
	str(&e, "customer_address_landmark", s.Landmark)
	str(&e, "customer_address_state", s.State)
	str(&e, "customer_address_city", s.City)
	str(&e, "customer_address_pincode", s.Pincode)
	str(&e, "customer_contact_number1", s.Contact)
	str(&e, "customer_contact_number2", s.SecondaryContact)
	str(&e, "product_id", join(func(it shipping.Item) string { return it.ProductID }))
	str(&e, "product_name", join(func(it shipping.Item) string { return it.Name }))
	str(&e, "sku", join(func(it shipping.Item) string { return it.SKU }))
	str(&e, "mrp", join(func(it shipping.Item) string { return it.Price.StringFixed(2) }))
	str(&e, "product_size", join(func(it shipping.Item) string { return it.Size }))
	str(&e, "product_weight", s.WeightKg.StringFixed(2)+"kg")
	str(&e, "pay_mode", s.PayMode)
	e.FieldStart("quantity")
	e.Int(len(s.Items))
	str(&e, "total_amount", s.TotalAmount.StringFixed(2))
	str(&e, "client_order_no", s.ClientOrderNo)
	e.ObjEnd()
	return e.Bytes()
}

func decodeResult(body []byte) (*shipping.Result, error) {
	var (
		res     shipping.Result
		success bool
		message string
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "success":
			return decodeFlag(d, &success)
		case "message":
			v, err := d.Str()
			message = v
			return err
		case "awb_number", "awb":
			v, err := decodeScalar(d)
			res.AWB = v
			return err
		case "tracking_url":
			v, err := d.Str()
			res.TrackingLink = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if !success {
		return nil, fmt.Errorf("shipcorrect rejected the order: %s", message)
	}
	if res.AWB == "" {
		return nil, errors.New("shipcorrect returned no awb")
	}
	return &res, nil
}

// decodeFlag accepts booleans as well as 0/1 and "true"/"false".
func decodeFlag(d *jx.Decoder, out *bool) error {
	switch d.Next() {
	case jx.Bool:
		v, err := d.Bool()
		*out = v
		return err
	case jx.Number:
		v, err := d.Int()
		*out = v != 0
		return err
	default:
		v, err := decodeScalar(d)
		*out = v == "true" || v == "1"
		return err
	}
}

func decodeScalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected value type %s", d.Next())
	}
}
