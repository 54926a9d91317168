package api

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/veil/internal/codec"
	"github.com/atinyakov/veil/internal/envelope"
)

// roundTripperFunc lets a plain function stand in for the HTTP transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *http.Client {
	return &http.Client{Transport: fn, Timeout: time.Second}
}

func testBuilder(t *testing.T) *envelope.Builder {
	t.Helper()
	c, err := codec.NewFromString(codec.DefaultKey)
	require.NoError(t, err)
	return envelope.NewBuilder(c, envelope.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
}

type echo struct {
	Query string `json:"query"`
}

func TestDo_EnvelopeRoundTrip(t *testing.T) {
	b := testBuilder(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, DefaultClientVersion, r.Header.Get("X-Client-Version"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Empty(t, r.Header.Get(envelope.HeaderSignature))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		env, ok := envelope.Detect(raw)
		require.True(t, ok, "request body must be an envelope: %s", raw)
		assert.Equal(t, envelope.Version, env.Version)
		assert.Equal(t, int64(1700000000000), env.Timestamp)

		in, err := envelope.UnwrapAs[echo](b, env)
		require.NoError(t, err)

		out, err := b.Wrap(echo{Query: strings.ToUpper(in.Query)})
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL+"/", WithBuilder(b))
	var got echo
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/echo", nil, echo{Query: "red creatures"}, &got))
	assert.Equal(t, "RED CREATURES", got.Query)
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestDo_PlainResponsePassesThrough(t *testing.T) {
	b := testBuilder(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "provider=openai", r.URL.RawQuery)
		assert.Empty(t, r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"query":"plain"}`)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, WithBuilder(b))
	var got echo
	err := c.Do(context.Background(), http.MethodGet, "/models", map[string][]string{"provider": {"openai"}}, nil, &got)
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Query)
}

func TestDo_Signature(t *testing.T) {
	b := testBuilder(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		env, ok := envelope.Detect(raw)
		require.True(t, ok)

		plain, err := b.UnwrapJSON(env)
		require.NoError(t, err)

		ts, err := strconv.ParseInt(r.Header.Get(envelope.HeaderTimestamp), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, env.Timestamp, ts)
		assert.True(t, b.Codec().VerifyJSON(plain, ts, r.Header.Get(envelope.HeaderSignature)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, WithBuilder(b), WithSignature(), WithClientVersion("2.0.0"))
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/x", nil, echo{Query: "q"}, nil))
}

func TestDo_PlainClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"clear"}`, string(raw))
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL)
	var got echo
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/x", nil, echo{Query: "clear"}, &got))
	assert.Equal(t, "clear", got.Query)
}

func TestDo_EnvelopeWithoutKey(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"encrypted_data":"FlYGD1tYUA=="}`)),
		}, nil
	})
	var got any
	err := New(client, "http://example.com").Do(context.Background(), http.MethodGet, "/x", nil, nil, &got)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDo_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rt      roundTripperFunc
		send    any
		wantSub string
		wantErr error
	}{
		{
			name: "network",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("network down")
			},
			wantSub: "POST /x failed",
		},
		{
			name: "server error",
			rt: func(*http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader("internal error\n"))}, nil
			},
			wantSub: "server error: internal error",
			wantErr: &HTTPError{StatusCode: http.StatusInternalServerError},
		},
		{
			name: "invalid json",
			rt: func(*http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("not-json"))}, nil
			},
			wantSub: "decode response",
		},
		{
			name: "corrupted envelope",
			rt: func(*http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"encrypted_data":"%%%"}`))}, nil
			},
			wantErr: codec.ErrDecode,
		},
		{
			name:    "unserializable body",
			rt:      func(*http.Request) (*http.Response, error) { t.Fatal("must not send"); return nil, nil },
			send:    map[string]any{"fn": func() {}},
			wantErr: codec.ErrSerialization,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(newTestClient(tt.rt), "http://example.com", WithBuilder(testBuilder(t)))
			var got any
			err := c.Do(context.Background(), http.MethodPost, "/x", nil, tt.send, &got)
			require.Error(t, err)
			if tt.wantSub != "" {
				assert.Contains(t, err.Error(), tt.wantSub)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDo_Fallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		if envelope.IsEnvelope(raw) {
			http.Error(w, "envelopes not supported", http.StatusUnsupportedMediaType)
			return
		}
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	t.Run("enabled", func(t *testing.T) {
		calls.Store(0)
		c := New(srv.Client(), srv.URL, WithBuilder(testBuilder(t)), WithFallback())
		var got echo
		require.NoError(t, c.Do(context.Background(), http.MethodPost, "/x", nil, echo{Query: "q"}, &got))
		assert.Equal(t, "q", got.Query)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("disabled", func(t *testing.T) {
		calls.Store(0)
		c := New(srv.Client(), srv.URL, WithBuilder(testBuilder(t)))
		var got echo
		err := c.Do(context.Background(), http.MethodPost, "/x", nil, echo{Query: "q"}, &got)
		assert.ErrorIs(t, err, &HTTPError{StatusCode: http.StatusUnsupportedMediaType})
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestHTTPError(t *testing.T) {
	assert.Equal(t, "server error: http status 502", (&HTTPError{StatusCode: 502}).Error())
	assert.False(t, errors.Is(&HTTPError{StatusCode: 502}, errors.New("x")))
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.Timeout)

	_, err = NewHTTPClient(filepath.Join(t.TempDir(), "missing.crt"), time.Second)
	assert.ErrorContains(t, err, "failed to read CA cert")

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a pem"), 0o600))
	_, err = NewHTTPClient(bad, time.Second)
	assert.ErrorContains(t, err, "failed to parse CA cert")
}

func TestNewHTTPClient_CustomCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"query":"tls"}`)
	}))
	defer srv.Close()

	caPath := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(caPath, pemCert(srv), 0o600))

	hc, err := NewHTTPClient(caPath, 5*time.Second)
	require.NoError(t, err)

	var got echo
	require.NoError(t, New(hc, srv.URL).Do(context.Background(), http.MethodGet, "/", nil, nil, &got))
	assert.Equal(t, "tls", got.Query)
}

func pemCert(srv *httptest.Server) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
}
