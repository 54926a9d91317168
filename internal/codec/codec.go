// Package codec implements the payload obfuscation transform: canonical JSON,
// a repeating-key XOR stream and standard base64 for transport.
//
// The XOR stream hides payloads from casual inspection only. It is trivially
// reversible by anyone holding a sample of plaintext and provides no
// confidentiality; substitute an authenticated cipher behind the same Encode
// and Decode methods if real secrecy is needed.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultKey is the shared secret the web client ships with.
const DefaultKey = "mtg-ai-2024-secret-key-12345"

// ErrEmptyKey is returned by New when no key material is given.
var ErrEmptyKey = errors.New("codec: empty key")

// Codec turns structured values into obfuscated text and back.
// It is immutable and safe for concurrent use.
type Codec struct {
	key []byte
}

// New creates a Codec using a private copy of key.
func New(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// NewFromString creates a Codec keyed with the UTF-8 bytes of secret.
func NewFromString(secret string) (*Codec, error) {
	return New([]byte(secret))
}

// XOR applies key cyclically over data and returns a new slice of the same length.
// Applying it twice with the same key yields the original bytes.
func XOR(data, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// Marshal serializes v to compact JSON without HTML escaping and without
// a trailing newline. Struct fields keep declaration order, map keys are sorted.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, newError(KindSerialization, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode serializes v and returns its obfuscated base64 form.
func (c *Codec) Encode(v any) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return c.encodeBytes(raw)
}

// EncodeJSON obfuscates an already serialized JSON document.
func (c *Codec) EncodeJSON(raw []byte) (string, error) {
	if !json.Valid(raw) {
		return "", newError(KindSerialization, errors.New("invalid JSON document"))
	}
	return c.encodeBytes(raw)
}

func (c *Codec) encodeBytes(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", newError(KindEncoding, errors.New("payload is not valid UTF-8"))
	}
	return base64.StdEncoding.EncodeToString(XOR(raw, c.key)), nil
}

// DecodeJSON reverses EncodeJSON and returns the recovered JSON bytes.
func (c *Codec) DecodeJSON(text string) ([]byte, error) {
	obfuscated, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, newError(KindDecode, err)
	}
	raw := XOR(obfuscated, c.key)
	if !utf8.Valid(raw) {
		return nil, newError(KindParse, errors.New("recovered payload is not valid UTF-8"))
	}
	if !json.Valid(raw) {
		return nil, newError(KindParse, errors.New("recovered payload is not valid JSON"))
	}
	return raw, nil
}

// Decode recovers the value encoded in text and stores it in dst.
func (c *Codec) Decode(text string, dst any) error {
	raw, err := c.DecodeJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newError(KindParse, fmt.Errorf("unmarshal payload: %w", err))
	}
	return nil
}

// DecodeAs is the typed form of Decode.
func DecodeAs[T any](c *Codec, text string) (T, error) {
	var v T
	err := c.Decode(text, &v)
	return v, err
}
