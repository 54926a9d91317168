package codec

import (
	"crypto/subtle"
	"encoding/base64"
	"strconv"

	"github.com/zeebo/blake3"
)

// SignatureLength is the number of base64 characters kept in a signature.
const SignatureLength = 16

// Sign derives a short tag binding v to ts. It detects accidental mismatch
// (different payload, timestamp or key) and is not a MAC.
func (c *Codec) Sign(v any, ts int64) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return c.SignJSON(raw, ts), nil
}

// SignJSON signs an already serialized payload. Receivers should use it with
// the exact bytes they recovered so that key order does not matter.
//
// The obfuscated message is digested before truncation: a plain prefix of the
// base64 text would only cover the first 12 bytes and never the timestamp.
func (c *Codec) SignJSON(raw []byte, ts int64) string {
	msg := make([]byte, 0, len(raw)+20)
	msg = append(msg, raw...)
	msg = strconv.AppendInt(msg, ts, 10)

	sum := blake3.Sum256(XOR(msg, c.key))
	return base64.StdEncoding.EncodeToString(sum[:])[:SignatureLength]
}

// Verify reports whether tag is the signature of v at ts.
func (c *Codec) Verify(v any, ts int64, tag string) (bool, error) {
	raw, err := Marshal(v)
	if err != nil {
		return false, err
	}
	return c.VerifyJSON(raw, ts, tag), nil
}

// VerifyJSON reports whether tag is the signature of raw at ts.
func (c *Codec) VerifyJSON(raw []byte, ts int64, tag string) bool {
	want := c.SignJSON(raw, ts)
	return subtle.ConstantTimeCompare([]byte(want), []byte(tag)) == 1
}
