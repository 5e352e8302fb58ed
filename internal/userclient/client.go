// Package userclient looks up account holders in the external user service.
package userclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"go.uber.org/zap"
)

// ErrUserNotFound is returned when the user service answers 404.
var ErrUserNotFound = errors.New("user not found")

// Provider resolves user details for a wallet owner.
type Provider interface {
	FindUser(ctx context.Context, userID int64) (*model.User, error)
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	Retries         int
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	AuthHeader      string
}

// Client implements Provider over HTTP.
type Client struct {
	base string
	auth string
	http *retryablehttp.Client
}

func New(opts Options, log *zap.SugaredLogger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.Logger = leveled{log}
	rc.HTTPClient.Timeout = opts.Timeout
	if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
		t.MaxIdleConns = opts.MaxIdleConns
		t.MaxIdleConnsPerHost = opts.MaxIdleConns
		t.IdleConnTimeout = opts.IdleConnTimeout
	}
	return &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		auth: opts.AuthHeader,
		http: rc,
	}
}

// envelope is the user service's response wrapper. Bare user objects are
// accepted too.
type envelope struct {
	TraceID string          `json:"trace_id"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) FindUser(ctx context.Context, userID int64) (*model.User, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d", c.base, userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("user service: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("user service: read body: %w", err)
	}
	return decodeUser(body)
}

func decodeUser(body []byte) (*model.User, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		body = env.Data
	}
	var u model.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("user service: decode user: %w", err)
	}
	return &u, nil
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ log *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.log.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
