// Package source talks to the restaurant backend over HTTP: it fetches view
// snapshots and forwards the owner's commands.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ownerdash/internal/model"
	"ownerdash/internal/views"
)

// Snapshot fetches the full current state of a view.
type Snapshot[T any] interface {
	Fetch(ctx context.Context) ([]T, error)
}

// Func adapts a function to Snapshot.
type Func[T any] func(ctx context.Context) ([]T, error)

func (f Func[T]) Fetch(ctx context.Context) ([]T, error) { return f(ctx) }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client is a backend client.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient parses baseURL and builds a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: scheme and host required", baseURL)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// FetchDashboard returns the orders of the dashboard endpoint.
func (c *Client) FetchDashboard(ctx context.Context) ([]model.Order, error) {
	var body struct {
		Orders []model.Order `json:"orders"`
	}
	if err := c.getJSON(ctx, views.EndpointDashboard, &body); err != nil {
		return nil, err
	}
	return body.Orders, nil
}

// FetchTransactions returns the payment transactions.
func (c *Client) FetchTransactions(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	if err := c.getJSON(ctx, views.EndpointTransactions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchOrders returns every order of the restaurant.
func (c *Client) FetchOrders(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	if err := c.getJSON(ctx, views.EndpointOrders, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchMenu returns the menu catalog.
func (c *Client) FetchMenu(ctx context.Context) ([]model.MenuItem, error) {
	var out []model.MenuItem
	if err := c.getJSON(ctx, views.EndpointMenu, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderSnapshot returns the snapshot source for an order view endpoint.
func (c *Client) OrderSnapshot(endpoint string) (Snapshot[model.Order], error) {
	switch endpoint {
	case views.EndpointDashboard:
		return Func[model.Order](c.FetchDashboard), nil
	case views.EndpointTransactions:
		return Func[model.Order](c.FetchTransactions), nil
	case views.EndpointOrders:
		return Func[model.Order](c.FetchOrders), nil
	default:
		return nil, fmt.Errorf("no snapshot for endpoint %q", endpoint)
	}
}

// UpdateOrderStatus asks the backend to move an order to status. The backend
// broadcasts the change on the feed; callers do not patch views themselves.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("update order status: empty id")
	}
	p := "/api/orders/" + url.PathEscape(id) + "/order-status"
	q := url.Values{"status": {status}}
	_, err := c.do(ctx, http.MethodPut, p, q)
	return err
}

// RestaurantStatus reports whether the restaurant accepts orders.
func (c *Client) RestaurantStatus(ctx context.Context) (bool, error) {
	var open bool
	if err := c.getJSON(ctx, "/restaurant/status", &open); err != nil {
		return false, err
	}
	return open, nil
}

// SetRestaurantOpen opens or closes the restaurant for new orders.
func (c *Client) SetRestaurantOpen(ctx context.Context, open bool) error {
	q := url.Values{"open": {strconv.FormatBool(open)}}
	_, err := c.do(ctx, http.MethodPost, "/restaurant/toggle", q)
	return err
}

// ToggleMenuItem flips the availability of a menu item.
func (c *Client) ToggleMenuItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("toggle menu item: empty id")
	}
	_, err := c.do(ctx, http.MethodPatch, views.EndpointMenu+"/"+url.PathEscape(id)+"/toggle", nil)
	return err
}

// CreateMenuItem adds an item to the catalog and returns it as stored.
func (c *Client) CreateMenuItem(ctx context.Context, item model.MenuItem) (model.MenuItem, error) {
	var out model.MenuItem
	if err := c.sendJSON(ctx, http.MethodPost, views.EndpointMenu, item, &out); err != nil {
		return model.MenuItem{}, err
	}
	return out, nil
}

// UpdateMenuItem replaces name, description, price and availability of an item.
func (c *Client) UpdateMenuItem(ctx context.Context, id string, item model.MenuItem) (model.MenuItem, error) {
	if strings.TrimSpace(id) == "" {
		return model.MenuItem{}, fmt.Errorf("update menu item: empty id")
	}
	var out model.MenuItem
	if err := c.sendJSON(ctx, http.MethodPut, views.EndpointMenu+"/"+url.PathEscape(id), item, &out); err != nil {
		return model.MenuItem{}, err
	}
	return out, nil
}

// DeleteMenuItem removes an item from the catalog.
func (c *Client) DeleteMenuItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete menu item: empty id")
	}
	_, err := c.do(ctx, http.MethodDelete, views.EndpointMenu+"/"+url.PathEscape(id), nil)
	return err
}

// Analytics returns the revenue analytics document for a range (week, month
// or all). The document is passed through untouched.
func (c *Client) Analytics(ctx context.Context, rng string) (json.RawMessage, error) {
	var q url.Values
	if rng != "" {
		q = url.Values{"range": {rng}}
	}
	return c.rawJSON(ctx, "/api/orders/analytics", q)
}

// MonthlySummary returns one row per month.
func (c *Client) MonthlySummary(ctx context.Context) (json.RawMessage, error) {
	return c.rawJSON(ctx, "/api/orders/monthly-summary", nil)
}

// PaymentSummary returns revenue totals split by payment mode.
func (c *Client) PaymentSummary(ctx context.Context) (model.PaymentSummary, error) {
	var out model.PaymentSummary
	if err := c.getJSON(ctx, "/api/orders/payment-summary", &out); err != nil {
		return model.PaymentSummary{}, err
	}
	return out, nil
}

// AIInsights returns the backend's plain-text business insights.
func (c *Client) AIInsights(ctx context.Context) (string, error) {
	b, err := c.do(ctx, http.MethodGet, "/api/orders/ai-insights", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Client) rawJSON(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	b, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("decode %s: invalid json", path)
	}
	return json.RawMessage(b), nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	b, err := c.doBody(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	b, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	return c.doBody(ctx, method, path, q, nil)
}

func (c *Client) doBody(ctx context.Context, method, path string, q url.Values, body []byte) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
