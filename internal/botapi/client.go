// Package botapi is an HTTP client for the Telegram Bot API. It implements
// command.API so the sender can execute commands against it.
package botapi

import (
	"bytes"
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

	"github.com/tidwall/gjson"

	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/log"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

var (
	ErrMissingToken = errors.New("bot token is required")
	ErrEmptyMethod  = errors.New("method is required")
	ErrInvalidReply = errors.New("invalid Bot API response")
)

// APIError is a response with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set when the API asks the caller to back off.
	RetryAfter time.Duration
	// MigrateToChatID is set when a group was upgraded to a supergroup.
	MigrateToChatID int64
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: telegram error %d: %s", e.Method, e.Code, e.Description)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// Client calls Bot API methods over HTTP. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the proxy settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client from cfg. The HTTP transport honors cfg.Proxy.
func New(cfg config.BotAPIConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	c := &Client{
		base:   base,
		token:  cfg.Token,
		logger: log.WithComponent("botapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport, err := NewTransport(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Transport: transport, Timeout: cfg.Timeout}
		if cfg.Proxy.Enabled() {
			c.logger.Info("using proxy", "type", cfg.Proxy.Type, "host", cfg.Proxy.Host, "port", cfg.Proxy.Port)
		}
	}
	return c, nil
}

// Call invokes method with params encoded as the JSON request body and
// returns the raw "result" field.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, ErrEmptyMethod
	}

	body := []byte("{}")
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal params: %w", method, err)
		}
		body = b
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", method, stripURL(err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, stripURL(err))
	}
	c.logger.Debug("bot api call", "method", method, "status", res.StatusCode, "duration", time.Since(start))

	return decode(method, res.StatusCode, raw)
}

func (c *Client) methodURL(method string) string {
	u := *c.base
	u.Path = u.Path + "/bot" + c.token + "/" + method
	return u.String()
}

func decode(method string, status int, raw []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("%s: %w: status %d: %s", method, ErrInvalidReply, status, snippet)
	}

	reply := gjson.ParseBytes(raw)
	if reply.Get("ok").Bool() {
		result := reply.Get("result")
		if !result.Exists() {
			return nil, fmt.Errorf("%s: %w: missing result", method, ErrInvalidReply)
		}
		return json.RawMessage(result.Raw), nil
	}

	apiErr := &APIError{
		Method:          method,
		Code:            int(reply.Get("error_code").Int()),
		Description:     reply.Get("description").String(),
		RetryAfter:      time.Duration(reply.Get("parameters.retry_after").Int()) * time.Second,
		MigrateToChatID: reply.Get("parameters.migrate_to_chat_id").Int(),
	}
	if apiErr.Code == 0 {
		apiErr.Code = status
	}
	return nil, apiErr
}

// stripURL drops the request URL from transport errors; it carries the token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
