package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/codec"
	"github.com/atinyakov/veil/internal/envelope"
)

// maxBodyBytes caps request bodies read by Veil.
const maxBodyBytes = 1 << 20

// EnvelopeInfo describes how the current request body arrived.
type EnvelopeInfo struct {
	// Enveloped is true when the body was an envelope and has been replaced
	// by its plaintext.
	Enveloped bool
	// Signed is true when a valid X-Veil-Signature accompanied the envelope.
	Signed    bool
	Version   string
	Timestamp int64
}

// VeilOptions tunes Veil.
type VeilOptions struct {
	// MaxAge rejects envelopes whose timestamp differs from now by more than
	// this. Zero disables the check.
	MaxAge time.Duration
	// Now is the clock used for MaxAge; time.Now when nil.
	Now func() time.Time
}

// EnvelopeInfoFromContext returns what Veil recorded for the request.
// The zero value is returned for requests Veil has not seen.
func EnvelopeInfoFromContext(ctx context.Context) EnvelopeInfo {
	if p, ok := ctx.Value(envelopeKey).(*EnvelopeInfo); ok && p != nil {
		return *p
	}
	return EnvelopeInfo{}
}

// withEnvelopeSlot makes sure ctx carries a writable EnvelopeInfo so that
// middlewares running outside Veil can read what it recorded.
func withEnvelopeSlot(ctx context.Context) (context.Context, *EnvelopeInfo) {
	if p, ok := ctx.Value(envelopeKey).(*EnvelopeInfo); ok && p != nil {
		return ctx, p
	}
	p := &EnvelopeInfo{}
	return context.WithValue(ctx, envelopeKey, p), p
}

// Veil terminates envelopes. An enveloped request body is replaced by its
// plaintext JSON before the next handler runs, and a successful JSON answer
// to such a request is wrapped into an envelope on the way out. Requests in
// plain JSON pass through untouched in both directions.
//
// Bodies that look like envelopes but cannot be opened are refused with 400.
// A signature header that does not match, or an envelope outside MaxAge,
// is refused with 401.
func Veil(b *envelope.Builder, logger *zap.Logger, opts VeilOptions) func(http.Handler) http.Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, slot := withEnvelopeSlot(r.Context())
			r = r.WithContext(ctx)

			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				logger.Warn("cannot read request body", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			env, ok := envelope.Detect(data)
			if !ok {
				r.Body = io.NopCloser(bytes.NewReader(data))
				next.ServeHTTP(w, r)
				return
			}

			plain, err := b.UnwrapJSON(env)
			if err != nil {
				logger.Warn("cannot open envelope",
					zap.String("path", r.URL.Path),
					zap.String("version", env.Version),
					zap.Bool("decode", errors.Is(err, codec.ErrDecode)),
					zap.Error(err),
				)
				http.Error(w, "invalid envelope", http.StatusBadRequest)
				return
			}

			if opts.MaxAge > 0 {
				age := now().Sub(env.Time())
				if age > opts.MaxAge || age < -opts.MaxAge {
					logger.Warn("envelope outside max age",
						zap.String("path", r.URL.Path), zap.Duration("age", age))
					http.Error(w, "stale envelope", http.StatusUnauthorized)
					return
				}
			}

			signed := false
			if tag := r.Header.Get(envelope.HeaderSignature); tag != "" {
				ts, err := strconv.ParseInt(r.Header.Get(envelope.HeaderTimestamp), 10, 64)
				if err != nil || ts != env.Timestamp || !b.Codec().VerifyJSON(plain, ts, tag) {
					logger.Warn("payload signature mismatch", zap.String("path", r.URL.Path))
					http.Error(w, "signature mismatch", http.StatusUnauthorized)
					return
				}
				signed = true
			}

			*slot = EnvelopeInfo{
				Enveloped: true,
				Signed:    signed,
				Version:   env.Version,
				Timestamp: env.Timestamp,
			}

			r.Body = io.NopCloser(bytes.NewReader(plain))
			r.ContentLength = int64(len(plain))
			r.Header.Set("Content-Length", strconv.Itoa(len(plain)))

			bw := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(bw, r)
			bw.flushTo(w, b, logger)
		})
	}
}

// bufferedWriter holds a response so Veil can wrap it before it leaves.
type bufferedWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (bw *bufferedWriter) Header() http.Header { return bw.header }

func (bw *bufferedWriter) WriteHeader(status int) {
	if bw.status == 0 {
		bw.status = status
	}
}

func (bw *bufferedWriter) Write(p []byte) (int, error) {
	if bw.status == 0 {
		bw.status = http.StatusOK
	}
	return bw.buf.Write(p)
}

// flushTo writes the buffered response to w, wrapped into an envelope when it
// is a successful JSON answer.
func (bw *bufferedWriter) flushTo(w http.ResponseWriter, b *envelope.Builder, logger *zap.Logger) {
	if bw.status == 0 {
		bw.status = http.StatusOK
	}
	for k, v := range bw.header {
		w.Header()[k] = v
	}

	body := bw.buf.Bytes()
	if bw.status >= 200 && bw.status < 300 && isJSON(bw.header.Get("Content-Type")) && len(body) > 0 {
		wrapped, err := wrapBody(b, body)
		if err != nil {
			logger.Error("cannot wrap response, sending plaintext", zap.Error(err))
		} else {
			body = wrapped
		}
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(bw.status)
	_, _ = w.Write(body)
}

func wrapBody(b *envelope.Builder, body []byte) ([]byte, error) {
	env, err := b.WrapJSON(bytes.TrimSpace(body))
	if err != nil {
		return nil, err
	}
	return codec.Marshal(env)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
