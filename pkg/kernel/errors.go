package kernel

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel failure so callers can decide whether a retry
// with different parameters makes sense.
type Kind int

const (
	// KindInternal is an unexpected failure inside the kernel or host.
	KindInternal Kind = iota
	// KindInvalidInput covers malformed parameters, out-of-range edge
	// indices and unknown geometry IDs. Retrying the same call never helps.
	KindInvalidInput
	// KindDegenerate covers non-manifold, open, inside-out or zero-volume
	// geometry and features too large for the faces they touch.
	KindDegenerate
	// KindResourceExhausted is reported when a cache cannot hold a result.
	KindResourceExhausted
	// KindProtocol is a malformed or unknown worker request.
	KindProtocol
	// KindTimeout is reported by the host when an operation misses its deadline.
	KindTimeout
)

var kindNames = [...]string{
	KindInternal:          "internal error",
	KindInvalidInput:      "invalid input",
	KindDegenerate:        "degenerate geometry",
	KindResourceExhausted: "resource exhausted",
	KindProtocol:          "protocol error",
	KindTimeout:           "timeout",
}

var kindCodes = [...]string{
	KindInternal:          "INTERNAL_ERROR",
	KindInvalidInput:      "INVALID_INPUT",
	KindDegenerate:        "DEGENERATE_GEOMETRY",
	KindResourceExhausted: "RESOURCE_EXHAUSTED",
	KindProtocol:          "PROTOCOL_ERROR",
	KindTimeout:           "TIMEOUT",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Code returns the stable wire code for the kind, e.g. "INVALID_INPUT".
func (k Kind) Code() string {
	if k < 0 || int(k) >= len(kindCodes) {
		return kindCodes[KindInternal]
	}
	return kindCodes[k]
}

// Error is the error type returned by geometry operations.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "csg.union"
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + e.Kind.String()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind, so that
// errors.Is(err, kernel.ErrDegenerate) works through any wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInternal          = &Error{Kind: KindInternal}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrDegenerate        = &Error{Kind: KindDegenerate}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

// Errorf builds an *Error of the given kind. The format supports %w.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
