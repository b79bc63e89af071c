package irisfast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// HeaderProvider returns headers added to every request and handshake.
type HeaderProvider func() map[string]string

// StatusError is a non-2xx answer from iris.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("iris %s: status=%d body=%s", e.Path, e.Status, e.Body)
}

// Temporary reports whether the server asked us to come back later.
func (e *StatusError) Temporary() bool {
	switch e.Status {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

const maxErrorBody = 512

// Client talks to the iris HTTP API. Reads are retried; replies are sent
// once so a slow server never produces duplicate chat messages.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	timeout  time.Duration
	attempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func WithMaxConnsPerHost(n int) Option { return func(c *Client) { c.http.MaxConnsPerHost = n } }

func WithHeaderProvider(h HeaderProvider) Option { return func(c *Client) { c.headers = h } }

// WithRetry sets the attempts for idempotent calls.
func WithRetry(attempts int) Option { return func(c *Client) { c.attempts = attempts } }

// WithDial replaces the TCP dialer; tests use an in-memory listener.
func WithDial(d fasthttp.DialFunc) Option { return func(c *Client) { c.http.Dial = d } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 64,
		},
		timeout:  10 * time.Second,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type call struct {
	method string
	path   string
	body   any
	out    any
	retry  bool
}

func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.do(ctx, call{method: fasthttp.MethodGet, path: "/config", out: &cfg, retry: true}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) Decrypt(ctx context.Context, data string) (string, error) {
	var resp DecryptResponse
	err := c.do(ctx, call{method: fasthttp.MethodPost, path: "/decrypt", body: DecryptRequest{Data: data}, out: &resp, retry: true})
	if err != nil {
		return "", err
	}
	return resp.Decrypted, nil
}

func (c *Client) SendText(ctx context.Context, room, message string) error {
	return c.reply(ctx, ReplyRequest{Type: "text", Room: room, Data: message})
}

func (c *Client) SendImage(ctx context.Context, room, imageBase64 string) error {
	return c.reply(ctx, ReplyRequest{Type: "image", Room: room, Data: imageBase64})
}

func (c *Client) reply(ctx context.Context, r ReplyRequest) error {
	return c.do(ctx, call{method: fasthttp.MethodPost, path: "/reply", body: r})
}

func (c *Client) do(ctx context.Context, cl call) error {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return fmt.Errorf("marshal %s request: %w", cl.path, err)
		}
	}

	attempts := 1
	if cl.retry && c.attempts > 1 {
		attempts = c.attempts
	}
	var err error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			obslog.L().Warn("iris_request_retry", zap.String("path", cl.path), zap.Int("attempt", n), zap.Error(err))
			if serr := sleepWithContext(ctx, backoffDuration(n-1)); serr != nil {
				return err
			}
		}
		err = c.once(ctx, cl, payload)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) once(ctx context.Context, cl call, payload []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(cl.method)
	req.SetRequestURI(c.baseURL + cl.path)
	req.Header.SetContentType("application/json")
	c.applyHeaders(&req.Header)
	if payload != nil {
		req.SetBody(payload)
	}

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return fmt.Errorf("iris %s: %w", cl.path, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Path: cl.path, Status: code, Body: string(body)}
	}
	if cl.out != nil {
		if err := json.Unmarshal(resp.Body(), cl.out); err != nil {
			return &decodeError{err: err}
		}
	}
	return nil
}

func (c *Client) applyHeaders(h *fasthttp.RequestHeader) {
	if c.headers == nil {
		return
	}
	for k, v := range c.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		h.Set(k, v)
	}
}

// deadline is the earlier of ctx's deadline and the client timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and stops growing after the sixth step.
func backoffDuration(step int) time.Duration {
	step = min(max(step, 1), 6)
	return 100 * time.Millisecond << (step - 1)
}
