package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/infra/server/http/interceptors"
	"github.com/webitel/im-private-chat/internal/domain/model"
	httphandler "github.com/webitel/im-private-chat/internal/handler/http"
	"github.com/webitel/im-private-chat/internal/service"
)

// ErrUnavailable is returned while the breaker is open or half-open and saturated.
var ErrUnavailable = errors.New("api: service unavailable")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Code, e.Message)
}

// Client is the request/response half of the chat client. Calls go through a circuit breaker
// so a dead server fails fast instead of stacking timeouts behind the UI.
type Client struct {
	base   *url.URL
	userID string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBreaker(settings gobreaker.Settings) Option {
	return func(c *Client) { c.cb = gobreaker.NewCircuitBreaker(settings) }
}

func New(baseURL, userID string, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}

	c := &Client{
		base:   base,
		userID: userID,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	c.cb = gobreaker.NewCircuitBreaker(c.defaultSettings())

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig builds a client for the configured server and identity.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	return New(cfg.Client.ServerURL, cfg.Client.UserID, logger,
		WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}))
}

func (c *Client) defaultSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "im-api",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is the server working correctly.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Code < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("API_BREAKER_STATE", "name", name, "from", from.String(), "to", to.String())
		},
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Friends(ctx context.Context) ([]*service.Friend, error) {
	var res httphandler.FriendsResponse
	if err := c.do(ctx, http.MethodGet, "/api/friends", &res); err != nil {
		return nil, err
	}
	return res.Friends, nil
}

func (c *Client) GetUnread(ctx context.Context) ([]*service.BacklogEntry, error) {
	var res httphandler.UnreadResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages/unread", &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) GetUnreadForPair(ctx context.Context, friendID string) ([]*service.BacklogEntry, error) {
	var res httphandler.UnreadResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages/unread/"+url.PathEscape(friendID), &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/read", nil)
}

func (c *Client) MarkReadForPair(ctx context.Context, friendID string) (int64, error) {
	var res httphandler.MarkReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/friends/"+url.PathEscape(friendID)+"/read", &res); err != nil {
		return 0, err
	}
	return res.Marked, nil
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/users/heartbeat", nil)
}

func (c *Client) Online(ctx context.Context) (*model.HubStats, error) {
	var res model.HubStats
	if err := c.do(ctx, http.MethodGet, "/api/users/online", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(interceptors.HeaderUserID, c.userID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var body httphandler.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}
