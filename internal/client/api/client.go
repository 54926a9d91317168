// Package api is the client-side transport for the card search backend.
// Outgoing bodies are wrapped into envelopes, incoming envelopes are
// unwrapped, and anything else passes through untouched.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/codec"
	"github.com/atinyakov/veil/internal/envelope"
)

const (
	// DefaultClientVersion is sent in X-Client-Version unless overridden.
	DefaultClientVersion = "1.0.0"

	headerClientVersion = "X-Client-Version"
	headerRequestID     = "X-Request-Id"
)

// ErrNoKey is returned when an envelope arrives at a client without a codec.
var ErrNoKey = errors.New("received an envelope but no key is configured")

// HTTPError is a non-2xx answer from the server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server error: %s (http status %d)", e.Body, e.StatusCode)
	}
	return fmt.Sprintf("server error: http status %d", e.StatusCode)
}

// Is matches HTTP errors by status code.
func (e *HTTPError) Is(target error) bool {
	if t, ok := target.(*HTTPError); ok {
		return e.StatusCode == t.StatusCode
	}
	return false
}

// Client sends JSON requests to one base URL.
type Client struct {
	http     *http.Client
	baseURL  string
	builder  *envelope.Builder
	sign     bool
	fallback bool
	version  string
	log      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBuilder turns on envelopes for request bodies and lets the client
// open enveloped responses.
func WithBuilder(b *envelope.Builder) Option {
	return func(c *Client) { c.builder = b }
}

// WithSignature attaches X-Veil-Signature and X-Veil-Timestamp to enveloped requests.
func WithSignature() Option {
	return func(c *Client) { c.sign = true }
}

// WithFallback resends a request as plain JSON once when the server refuses
// its envelope with 400 or 415.
func WithFallback() Option {
	return func(c *Client) { c.fallback = true }
}

// WithClientVersion overrides the X-Client-Version header.
func WithClientVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for baseURL.
func New(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: DefaultClientVersion,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address requests go to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// outgoing is a prepared request body.
type outgoing struct {
	plain     []byte
	body      []byte
	enveloped bool
	signature string
	timestamp int64
}

// Do sends send (nil for no body) to path and decodes the answer into recv
// (nil to discard it).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, send, recv any) error {
	out, err := c.prepare(send)
	if err != nil {
		return err
	}

	err = c.roundTrip(ctx, method, path, query, out, recv)
	if err == nil || !c.fallback || !out.enveloped {
		return err
	}

	var herr *HTTPError
	if errors.As(err, &herr) && (herr.StatusCode == http.StatusBadRequest || herr.StatusCode == http.StatusUnsupportedMediaType) {
		c.log.Warn("server refused envelope, retrying in plaintext",
			zap.String("path", path), zap.Int("status", herr.StatusCode))
		plain := outgoing{plain: out.plain, body: out.plain}
		return c.roundTrip(ctx, method, path, query, plain, recv)
	}
	return err
}

func (c *Client) prepare(send any) (outgoing, error) {
	if send == nil {
		return outgoing{}, nil
	}
	raw, err := codec.Marshal(send)
	if err != nil {
		return outgoing{}, fmt.Errorf("encode request: %w", err)
	}
	if c.builder == nil {
		return outgoing{plain: raw, body: raw}, nil
	}

	env, err := c.builder.WrapJSON(raw)
	if err != nil {
		return outgoing{}, fmt.Errorf("wrap request: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return outgoing{}, fmt.Errorf("encode envelope: %w", err)
	}

	out := outgoing{plain: raw, body: body, enveloped: true, timestamp: env.Timestamp}
	if c.sign {
		out.signature = c.builder.Codec().SignJSON(raw, env.Timestamp)
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, out outgoing, recv any) (err error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if out.body != nil {
		body = bytes.NewReader(out.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if out.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerClientVersion, c.version)
	req.Header.Set(headerRequestID, uuid.NewString())
	if out.signature != "" {
		req.Header.Set(envelope.HeaderSignature, out.signature)
		req.Header.Set(envelope.HeaderTimestamp, strconv.FormatInt(out.timestamp, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return c.decode(data, recv)
}

// decode unwraps data when it is an envelope and stores the payload in recv.
func (c *Client) decode(data []byte, recv any) error {
	if recv == nil {
		return nil
	}
	if env, ok := envelope.Detect(data); ok {
		if c.builder == nil {
			return ErrNoKey
		}
		raw, err := c.builder.UnwrapJSON(env)
		if err != nil {
			return fmt.Errorf("unwrap response: %w", err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, recv); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
