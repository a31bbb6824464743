// Package chrome implements automation.Driver on a local Chrome through the
// DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/MoneyMiii/tennis-booking/internal/automation"
)

type Options struct {
	ExecPath string
	Headless bool
}

type Driver struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, log *slog.Logger) *Driver {
	return &Driver{opts: opts, log: log}
}

func (d *Driver) Open(ctx context.Context) (automation.Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.WindowSize(1280, 1024),
	)
	if d.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.ExecPath))
	}

	// the browser outlives the caller's step deadline; Close ends it
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{tab: tab, log: d.log, cancel: func() {
		cancelTab()
		cancelAlloc()
	}}
	// the first Run allocates the browser and must use the tab context
	// itself, or cancelling a child would tear the browser down
	if err := chromedp.Run(tab); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	if err := ctx.Err(); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

type Session struct {
	tab    context.Context
	cancel func()
	frame  *cdp.Node
	log    *slog.Logger
}

// run executes actions on the tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		runCtx, cancelDL = context.WithDeadline(runCtx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", automation.ErrTimeout, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %v", automation.ErrInteraction, err)
	}
}

func (s *Session) query(sel automation.Selector) []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.NodeVisible}
	switch sel.By {
	case automation.ByID:
		opts = append(opts, chromedp.ByID)
	case automation.ByXPath:
		opts = append(opts, chromedp.BySearch)
	default:
		opts = append(opts, chromedp.ByQuery)
	}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}
	return opts
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.frame = nil
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) Click(ctx context.Context, sel automation.Selector) error {
	return s.run(ctx, chromedp.Click(sel.Query, s.query(sel)...))
}

func (s *Session) SendKeys(ctx context.Context, sel automation.Selector, text string) error {
	return s.run(ctx, chromedp.SendKeys(sel.Query, text, s.query(sel)...))
}

var keys = map[automation.Key]string{
	automation.Enter:      kb.Enter,
	automation.Tab:        kb.Tab,
	automation.ArrowDown:  kb.ArrowDown,
	automation.ArrowLeft:  kb.ArrowLeft,
	automation.ArrowRight: kb.ArrowRight,
}

func (s *Session) Press(ctx context.Context, key automation.Key, times int) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: unsupported key %q", automation.ErrInteraction, key)
	}
	actions := make([]chromedp.Action, 0, times)
	for i := 0; i < times; i++ {
		actions = append(actions, chromedp.KeyEvent(k))
	}
	if len(actions) == 0 {
		return nil
	}
	return s.run(ctx, actions...)
}

func (s *Session) WaitVisible(ctx context.Context, sel automation.Selector) error {
	return s.run(ctx, chromedp.WaitVisible(sel.Query, s.query(sel)...))
}

func (s *Session) Exists(ctx context.Context, sel automation.Selector, d time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := s.run(waitCtx, chromedp.WaitVisible(sel.Query, s.query(sel)...))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, automation.ErrTimeout) && ctx.Err() == nil:
		return false, nil
	default:
		return false, err
	}
}

func (s *Session) Text(ctx context.Context, sel automation.Selector) (string, error) {
	var out string
	err := s.run(ctx, chromedp.Text(sel.Query, &out, s.query(sel)...))
	return out, err
}

func (s *Session) Screenshot(ctx context.Context, sel automation.Selector) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.Screenshot(sel.Query, &buf, s.query(sel)...))
	return buf, err
}

func (s *Session) EnterFrame(ctx context.Context, sel automation.Selector) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, s.query(sel)...)); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: frame %s not found", automation.ErrInteraction, sel)
	}
	s.frame = nodes[0]
	return nil
}

func (s *Session) LeaveFrame(context.Context) error {
	s.frame = nil
	return nil
}

func (s *Session) Close() error {
	s.cancel()
	s.log.Debug("chrome session closed")
	return nil
}
