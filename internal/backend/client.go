package backend

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

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

// Client talks to the fuel station REST API. A Client without a TokenSource
// can only use the Auth methods that take the token explicitly.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	log     logger.ILogger
}

func NewClient(baseURL string, log logger.ILogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// WithTokens returns a copy of c that authenticates requests with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*Token, error) {
	var t Token
	if err := c.do(ctx, "sign up", http.MethodPost, "/api/auth/signup", "", credentials{email, password}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Token, error) {
	var t Token
	if err := c.do(ctx, "sign in", http.MethodPost, "/api/auth/signin", "", credentials{email, password}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Refresh(ctx context.Context, token string) (*Token, error) {
	var t Token
	if err := c.do(ctx, "refresh session", http.MethodPost, "/api/auth/refresh", token, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, "sign out", http.MethodPost, "/api/auth/signout", token, nil, nil)
}

func (c *Client) CreateOrder(ctx context.Context, o model.Order) (*model.Order, error) {
	body := map[string]any{
		"location":                  o.Location,
		"fuel_type":                 o.FuelType,
		"amount":                    o.Amount,
		"company":                   o.Company,
		"price_per_liter":           o.PricePerLiter,
		"estimated_completion_time": o.EstimatedCompletionTime,
	}
	var created model.Order
	if err := c.authed(ctx, "create order", http.MethodPost, "/api/orders", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) ListOrders(ctx context.Context, q OrderQuery) ([]model.Order, error) {
	params := url.Values{}
	if q.All {
		params.Set("scope", "all")
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	path := "/api/orders"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var orders []model.Order
	if err := c.authed(ctx, "list orders", http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) ActiveOrder(ctx context.Context) (*model.Order, error) {
	var o *model.Order
	if err := c.authed(ctx, "fetch active order", http.MethodGet, "/api/orders/active", nil, &o); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *Client) CompleteOrder(ctx context.Context, id int64) (*model.Order, bool, error) {
	var res struct {
		Order   *model.Order `json:"order"`
		Changed bool         `json:"changed"`
	}
	if err := c.authed(ctx, "complete order", http.MethodPost, orderPath(id, "/complete"), nil, &res); err != nil {
		return nil, false, err
	}
	return res.Order, res.Changed, nil
}

func (c *Client) ApproveOrder(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	if err := c.authed(ctx, "approve order", http.MethodPost, orderPath(id, "/approve"), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.authed(ctx, "delete order", http.MethodDelete, orderPath(id, ""), nil, nil)
}

type profileBody struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	OnboardingSeen bool   `json:"onboarding_seen"`
}

func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	if err := c.authed(ctx, "fetch profile", http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateProfile(ctx context.Context, p model.Profile) error {
	return c.authed(ctx, "create profile", http.MethodPost, "/api/profile",
		profileBody{p.FirstName, p.LastName, p.OnboardingSeen}, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, p model.Profile) (*model.Profile, error) {
	var out model.Profile
	if err := c.authed(ctx, "save profile", http.MethodPut, "/api/profile",
		profileBody{p.FirstName, p.LastName, p.OnboardingSeen}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProfile(ctx context.Context) error {
	return c.authed(ctx, "delete profile", http.MethodDelete, "/api/profile", nil, nil)
}

func (c *Client) UploadAvatar(ctx context.Context, r io.Reader, contentType string) (string, error) {
	token, err := c.token()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/profile/avatar", r)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	var res struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.send(req, "upload avatar", &res); err != nil {
		return "", err
	}
	return res.AvatarURL, nil
}

func (c *Client) Probe(ctx context.Context) error {
	return c.do(ctx, "probe", http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", ErrAuthRequired
	}
	t := c.tokens.AccessToken()
	if t == "" {
		return "", ErrAuthRequired
	}
	return t, nil
}

func (c *Client) authed(ctx context.Context, op, method, path string, body, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}
	return c.do(ctx, op, method, path, token, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &PersistenceError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized && req.Header.Get("Authorization") != "":
		return ErrAuthRequired
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		c.log.Debug("backend rejected request", logger.String("op", op), logger.Int("status", resp.StatusCode))
		return &PersistenceError{Op: op, Status: resp.StatusCode, Message: text}
	}
}

func orderPath(id int64, suffix string) string {
	return "/api/orders/" + strconv.FormatInt(id, 10) + suffix
}

var (
	_ Auth       = (*Client)(nil)
	_ Orders     = (*Client)(nil)
	_ Profiles   = (*Client)(nil)
	_ Subscriber = (*Client)(nil)
	_ Prober     = (*Client)(nil)
)
