// Package envelope wraps obfuscated payloads into the versioned transport
// object and recognises that object on inbound data.
package envelope

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/atinyakov/veil/internal/codec"
)

// Version is written into every envelope this package builds.
// Receivers ignore the value; it is carried for forward compatibility.
const Version = "1.0"

// FieldEncryptedData is the member whose presence marks an envelope.
const FieldEncryptedData = "encrypted_data"

// Envelope is the wire object placed on the transport in place of a plain body.
type Envelope struct {
	// EncryptedData is the codec output for the payload.
	EncryptedData string `json:"encrypted_data"`
	// Timestamp is the build time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
	// Version identifies the envelope format.
	Version string `json:"version"`
}

// Time returns the envelope timestamp as a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Builder creates and opens envelopes with a fixed codec.
type Builder struct {
	codec *codec.Codec
	now   func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder returns a Builder that obfuscates with c.
func NewBuilder(c *codec.Codec, opts ...Option) *Builder {
	b := &Builder{codec: c, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Codec returns the codec the builder uses.
func (b *Builder) Codec() *codec.Codec {
	return b.codec
}

// Wrap obfuscates v and stamps it with the current time.
func (b *Builder) Wrap(v any) (Envelope, error) {
	text, err := b.codec.Encode(v)
	if err != nil {
		return Envelope{}, err
	}
	return b.seal(text), nil
}

// WrapJSON is Wrap for an already serialized body.
func (b *Builder) WrapJSON(raw []byte) (Envelope, error) {
	text, err := b.codec.EncodeJSON(raw)
	if err != nil {
		return Envelope{}, err
	}
	return b.seal(text), nil
}

func (b *Builder) seal(text string) Envelope {
	return Envelope{
		EncryptedData: text,
		Timestamp:     b.now().UnixMilli(),
		Version:       Version,
	}
}

// Unwrap recovers the payload of e into dst. Timestamp and version are not checked.
func (b *Builder) Unwrap(e Envelope, dst any) error {
	return b.codec.Decode(e.EncryptedData, dst)
}

// UnwrapJSON recovers the raw JSON payload of e.
func (b *Builder) UnwrapJSON(e Envelope) ([]byte, error) {
	return b.codec.DecodeJSON(e.EncryptedData)
}

// UnwrapAs is the typed form of Unwrap.
func UnwrapAs[T any](b *Builder, e Envelope) (T, error) {
	return codec.DecodeAs[T](b.codec, e.EncryptedData)
}

// Sign returns the signature of v bound to the timestamp of e.
func (b *Builder) Sign(v any, e Envelope) (string, error) {
	return b.codec.Sign(v, e.Timestamp)
}

// Verify checks a signature produced by Sign.
func (b *Builder) Verify(v any, e Envelope, tag string) (bool, error) {
	return b.codec.Verify(v, e.Timestamp, tag)
}

// IsEnvelope reports whether candidate is an object carrying an
// encrypted_data member. It checks shape only and never panics. Other maps
// and structs are judged by their JSON form; a Go string is a scalar.
func IsEnvelope(candidate any) bool {
	switch v := candidate.(type) {
	case Envelope:
		return true
	case *Envelope:
		return v != nil
	case map[string]any:
		_, ok := v[FieldEncryptedData]
		return ok
	case map[string]json.RawMessage:
		_, ok := v[FieldEncryptedData]
		return ok
	case json.RawMessage:
		_, ok := objectFields(v)
		return ok
	case []byte:
		_, ok := objectFields(v)
		return ok
	case string:
		return false
	default:
		raw, err := codec.Marshal(v)
		if err != nil {
			return false
		}
		_, ok := objectFields(raw)
		return ok
	}
}

// Detect extracts an envelope from a raw JSON body. The second result is
// false when the body is not an object with an encrypted_data member.
// A present but non-string encrypted_data still counts as an envelope and
// fails later in Unwrap.
func Detect(raw []byte) (Envelope, bool) {
	fields, ok := objectFields(raw)
	if !ok {
		return Envelope{}, false
	}

	var e Envelope
	if err := json.Unmarshal(fields[FieldEncryptedData], &e.EncryptedData); err != nil {
		e.EncryptedData = string(fields[FieldEncryptedData])
	}
	if ts, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(ts, &e.Timestamp)
	}
	if ver, ok := fields["version"]; ok {
		_ = json.Unmarshal(ver, &e.Version)
	}
	return e, true
}

func objectFields(raw []byte) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}
	_, ok := fields[FieldEncryptedData]
	return fields, ok
}
