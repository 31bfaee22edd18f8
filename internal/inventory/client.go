package inventory

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

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// Client talks to the flight service, which owns the seat counters.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind        string   `json:"kind"`
		Explanation []string `json:"explanation"`
	} `json:"error"`
}

type seatsRequest struct {
	Seats int  `json:"seats"`
	Dec   bool `json:"dec"`
}

func (c *Client) GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	status, env, err := c.do(ctx, http.MethodGet, c.flightURL(flightID), nil)
	if err != nil {
		return nil, domain.Internal(err, "flight service is unavailable")
	}
	switch {
	case status == http.StatusNotFound:
		return nil, domain.ErrFlightNotFound
	case status != http.StatusOK:
		return nil, domain.Internal(remoteError(status, env), "flight service is unavailable")
	}

	var flight domain.Flight
	if err := json.Unmarshal(env.Data, &flight); err != nil {
		return nil, domain.Internal(err, "unexpected flight payload")
	}
	return &flight, nil
}

func (c *Client) ListFlights(ctx context.Context, query url.Values) ([]domain.Flight, error) {
	u := c.baseURL + "/api/v1/flights"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	status, env, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.Internal(err, "flight search is unavailable")
	}
	if status == http.StatusBadRequest {
		return nil, domain.Validation(explanation(env, "invalid flight search")...)
	}
	if status != http.StatusOK {
		return nil, domain.Internal(remoteError(status, env), "flight search is unavailable")
	}

	flights := make([]domain.Flight, 0)
	if err := json.Unmarshal(env.Data, &flights); err != nil {
		return nil, domain.Internal(err, "unexpected flights payload")
	}
	return flights, nil
}

// ReserveSeats takes seats out of the flight's available pool. A failure means
// nothing was reserved.
func (c *Client) ReserveSeats(ctx context.Context, flightID int64, seats int) error {
	return c.updateSeats(ctx, flightID, seats, true, "could not reserve seats")
}

// ReleaseSeats puts seats back. It is not idempotent on the remote side.
func (c *Client) ReleaseSeats(ctx context.Context, flightID int64, seats int) error {
	return c.updateSeats(ctx, flightID, seats, false, "could not release seats")
}

func (c *Client) updateSeats(ctx context.Context, flightID int64, seats int, dec bool, what string) error {
	body, err := json.Marshal(seatsRequest{Seats: seats, Dec: dec})
	if err != nil {
		return domain.Inventory(err, what)
	}
	status, env, err := c.do(ctx, http.MethodPatch, c.flightURL(flightID)+"/seats", body)
	if err != nil {
		return domain.Inventory(err, what)
	}
	if status != http.StatusOK {
		return domain.Inventory(remoteError(status, env), append([]string{what}, explanation(env)...)...)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (int, *envelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return resp.StatusCode, nil, fmt.Errorf("decode flight service response: %w", err)
	}
	return resp.StatusCode, &env, nil
}

func (c *Client) flightURL(flightID int64) string {
	return c.baseURL + "/api/v1/flights/" + strconv.FormatInt(flightID, 10)
}

func remoteError(status int, env *envelope) error {
	return fmt.Errorf("flight service responded %d: %s", status, strings.Join(explanation(env), "; "))
}

func explanation(env *envelope, fallback ...string) []string {
	if env != nil && env.Error != nil && len(env.Error.Explanation) > 0 {
		return env.Error.Explanation
	}
	if env != nil && env.Message != "" {
		return []string{env.Message}
	}
	return fallback
}
