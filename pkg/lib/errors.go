package lib

import (
	"errors"
	"fmt"
)

// Kind classifies every failure surfaced by the engines.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlreadyRunning
	KindNotRunning
	KindNotFound
	KindPermissionDenied
	KindCaptureInit
	KindTransientParse
	KindQuery
	KindTransport
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindAlreadyRunning:   "already_running",
	KindNotRunning:       "not_running",
	KindNotFound:         "not_found",
	KindPermissionDenied: "permission_denied",
	KindCaptureInit:      "capture_init_error",
	KindTransientParse:   "transient_parse_error",
	KindQuery:            "query_error",
	KindTransport:        "transport_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrAlreadyRunning   = &Error{Kind: KindAlreadyRunning, Detail: "already running"}
	ErrNotRunning       = &Error{Kind: KindNotRunning, Detail: "not running"}
	ErrNotFound         = &Error{Kind: KindNotFound, Detail: "not found"}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Detail: "permission denied"}
	ErrCaptureInit      = &Error{Kind: KindCaptureInit, Detail: "capture initialization failed"}
	ErrTransientParse   = &Error{Kind: KindTransientParse, Detail: "packet could not be parsed"}
	ErrQuery            = &Error{Kind: KindQuery, Detail: "query failed"}
	ErrTransport        = &Error{Kind: KindTransport, Detail: "transport failed"}
)

// Error is a classified failure with a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Errorf builds an *Error of the given kind with a formatted detail.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, ErrNotRunning) works for any detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DetailOf returns the human-readable detail of err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Detail, e.Err)
		}
		return e.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
