package codec

import "fmt"

// Kind classifies a codec failure.
type Kind int

const (
	// KindSerialization means the value could not be represented as JSON.
	KindSerialization Kind = iota + 1
	// KindEncoding is an internal encoder fault.
	KindEncoding
	// KindDecode means the transport text was not valid base64.
	KindDecode
	// KindParse means the recovered bytes were not valid UTF-8 JSON.
	// A wrong key and corrupted data both end up here.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindSerialization:
		return "serialization"
	case KindEncoding:
		return "encoding"
	case KindDecode:
		return "decode"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

var (
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrEncoding      = &Error{Kind: KindEncoding}
	ErrDecode        = &Error{Kind: KindDecode}
	ErrParse         = &Error{Kind: KindParse}
)

// Error is returned by every failing codec operation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec %s error: %s", e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("codec %s error", e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches codec errors by kind, so errors.Is(err, ErrParse) works
// regardless of the underlying cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
