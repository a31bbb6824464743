// Package apperr classifies failures so that callers at the edges (HTTP,
// scheduler, retry loop) can decide what to do with them without string
// matching.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Unknown Kind = iota
	Validation
	Conflict
	NotFound
	NoAvailability
	Timeout
	Interaction
	Challenge
	Store
)

var kindNames = map[Kind]string{
	Unknown:        "unknown",
	Validation:     "validation",
	Conflict:       "conflict",
	NotFound:       "not_found",
	NoAvailability: "no_availability",
	Timeout:        "automation_timeout",
	Interaction:    "automation_interaction",
	Challenge:      "challenge_solve",
	Store:          "store",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Automation reports whether k is one of the failure kinds raised while
// driving the remote site.
func (k Kind) Automation() bool {
	switch k {
	case NoAvailability, Timeout, Interaction, Challenge:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the status code returned by the API.
// NoAvailability is an ordinary answer, not a transport failure.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, Conflict:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case NoAvailability:
		return http.StatusOK
	case Timeout, Interaction, Challenge:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
