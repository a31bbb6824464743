// Package automation is the narrow browser capability the booking flow
// drives: open a session, find elements, click, type, press keys, read
// text, capture an element image and switch into an embedded frame.
package automation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when an element or condition did not appear
	// within the caller's deadline.
	ErrTimeout = errors.New("automation: timed out")
	// ErrInteraction wraps failures to act on an element that was found.
	ErrInteraction = errors.New("automation: interaction failed")
)

type By int

const (
	ByCSS By = iota
	ByID
	ByXPath
)

type Selector struct {
	Query string
	By    By
}

func CSS(q string) Selector   { return Selector{Query: q, By: ByCSS} }
func ID(q string) Selector    { return Selector{Query: q, By: ByID} }
func XPath(q string) Selector { return Selector{Query: q, By: ByXPath} }

func (s Selector) String() string { return s.Query }

type Key string

const (
	Enter      Key = "Enter"
	Tab        Key = "Tab"
	ArrowDown  Key = "ArrowDown"
	ArrowLeft  Key = "ArrowLeft"
	ArrowRight Key = "ArrowRight"
)

type Driver interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one browser tab. Every method honours ctx's deadline; Close
// releases the browser and must be called exactly once.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, sel Selector) error
	SendKeys(ctx context.Context, sel Selector, text string) error
	// Press sends key to the focused element times times.
	Press(ctx context.Context, key Key, times int) error
	WaitVisible(ctx context.Context, sel Selector) error
	// Exists reports whether sel becomes visible within d. Not finding it
	// is not an error.
	Exists(ctx context.Context, sel Selector, d time.Duration) (bool, error)
	Text(ctx context.Context, sel Selector) (string, error)
	Screenshot(ctx context.Context, sel Selector) ([]byte, error)
	EnterFrame(ctx context.Context, sel Selector) error
	LeaveFrame(ctx context.Context) error
	Close() error
}
