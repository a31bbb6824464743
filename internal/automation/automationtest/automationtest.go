// Package automationtest provides a scriptable in-memory automation.Driver.
package automationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/automation"
)

type Call struct {
	Op     string
	Target string
	Arg    string
	Times  int
	Frame  string
}

func (c Call) String() string {
	switch {
	case c.Times > 0:
		return fmt.Sprintf("%s %s x%d", c.Op, c.Target, c.Times)
	case c.Arg != "":
		return fmt.Sprintf("%s %s %q", c.Op, c.Target, c.Arg)
	case c.Target == "":
		return c.Op
	default:
		return c.Op + " " + c.Target
	}
}

type Driver struct {
	mu       sync.Mutex
	OpenErr  error
	Setup    func(s *Session)
	sessions []*Session
}

func (d *Driver) Open(ctx context.Context) (automation.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Session{}
	if d.Setup != nil {
		d.Setup(s)
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

func (d *Driver) Opened() int { return len(d.Sessions()) }

// Released counts Close calls across sessions.
func (d *Driver) Released() int {
	n := 0
	for _, s := range d.Sessions() {
		n += s.Closed()
	}
	return n
}

// Session records every call. Hook, when set, may fail any call; Present,
// Texts and Image feed Exists, Text and Screenshot.
type Session struct {
	mu      sync.Mutex
	Hook    func(c Call) error
	Present map[string]bool
	Texts   map[string]string
	Image   []byte

	calls  []Call
	frame  string
	closed int
}

func (s *Session) record(c Call) error {
	s.mu.Lock()
	c.Frame = s.frame
	s.calls = append(s.calls, c)
	hook := s.Hook
	s.mu.Unlock()
	if hook != nil {
		return hook(c)
	}
	return nil
}

func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Trace renders the calls as strings, handy for comparing sequences.
func (s *Session) Trace() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.String())
	}
	return out
}

func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.frame = ""
	s.mu.Unlock()
	return s.record(Call{Op: "navigate", Target: url})
}

func (s *Session) Click(ctx context.Context, sel automation.Selector) error {
	return s.record(Call{Op: "click", Target: sel.Query})
}

func (s *Session) SendKeys(ctx context.Context, sel automation.Selector, text string) error {
	return s.record(Call{Op: "type", Target: sel.Query, Arg: text})
}

func (s *Session) Press(ctx context.Context, key automation.Key, times int) error {
	if times <= 0 {
		return nil
	}
	return s.record(Call{Op: "press", Target: string(key), Times: times})
}

func (s *Session) WaitVisible(ctx context.Context, sel automation.Selector) error {
	return s.record(Call{Op: "wait", Target: sel.Query})
}

func (s *Session) Exists(ctx context.Context, sel automation.Selector, d time.Duration) (bool, error) {
	if err := s.record(Call{Op: "exists", Target: sel.Query}); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Present[sel.Query], nil
}

func (s *Session) Text(ctx context.Context, sel automation.Selector) (string, error) {
	if err := s.record(Call{Op: "text", Target: sel.Query}); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Texts[sel.Query]
	if !ok {
		return "", fmt.Errorf("%w: no text for %s", automation.ErrTimeout, sel.Query)
	}
	return t, nil
}

func (s *Session) Screenshot(ctx context.Context, sel automation.Selector) ([]byte, error) {
	if err := s.record(Call{Op: "screenshot", Target: sel.Query}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Image, nil
}

func (s *Session) EnterFrame(ctx context.Context, sel automation.Selector) error {
	if err := s.record(Call{Op: "enter", Target: sel.Query}); err != nil {
		return err
	}
	s.mu.Lock()
	s.frame = sel.Query
	s.mu.Unlock()
	return nil
}

func (s *Session) LeaveFrame(ctx context.Context) error {
	s.mu.Lock()
	s.frame = ""
	s.mu.Unlock()
	return s.record(Call{Op: "leave"})
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}
