// Package booking runs the site flow with the retry policy and reduces
// every result to an Outcome.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/automation"
	"github.com/MoneyMiii/tennis-booking/internal/backoff"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/site"
)

const (
	SuccessMessage   = "booking completed up to the payment form"
	CancelledMessage = "booking cancelled"
	ExhaustedMessage = "all booking attempts failed"
)

// Mode decides what a classified failure does to the retry loop.
type Mode string

const (
	// EdgeFailFast ends the loop on a classified failure in the first or
	// last attempt and retries it in between.
	EdgeFailFast Mode = "edge"
	// AlwaysRetry retries classified failures until the last attempt.
	AlwaysRetry Mode = "always"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case EdgeFailFast, AlwaysRetry:
		return m, nil
	case "":
		return EdgeFailFast, nil
	}
	return "", fmt.Errorf("unknown retry mode %q (want edge or always)", s)
}

type RetryPolicy struct {
	MaxAttempts int
	Backoff     backoff.Strategy
	Mode        Mode
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     backoff.NewConstant(120 * time.Second),
		Mode:        EdgeFailFast,
	}
}

type Outcome struct {
	Success bool
	Message string
	Kind    apperr.Kind
}

// Err turns a failed outcome back into a classified error.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return apperr.E(o.Kind, o.Message)
}

// Flow is the ordered sequence of site stages for one attempt.
type Flow interface {
	Book(ctx context.Context, s automation.Session, b site.Booking, p credentials.Pair) error
}

type Pipeline struct {
	driver automation.Driver
	flow   Flow
	policy RetryPolicy
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	// one booking in flight per process
	sem chan struct{}
}

type Option func(*Pipeline)

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func NewPipeline(driver automation.Driver, flow Flow, policy RetryPolicy, opts ...Option) *Pipeline {
	p := &Pipeline{
		driver: driver,
		flow:   flow,
		policy: policy,
		log:    slog.Default(),
		sleep:  backoff.Sleep,
		sem:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	if p.policy.Backoff == nil {
		p.policy.Backoff = backoff.NewConstant(0)
	}
	return p
}

func fail(kind apperr.Kind, msg string) Outcome {
	return Outcome{Message: msg, Kind: kind}
}

// Attempt books b with the given credentials, retrying according to the
// policy. It never returns a Go error; everything ends up in the Outcome.
func (p *Pipeline) Attempt(ctx context.Context, b site.Booking, creds credentials.Pair) Outcome {
	if err := b.Validate(); err != nil {
		return fail(apperr.Validation, err.Error())
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return fail(apperr.Unknown, CancelledMessage)
	}

	log := p.log.With(slog.String("date", b.Date.Format("2006-01-02")), slog.Int("start", b.StartTime), slog.Int("end", b.EndTime), slog.String("court", string(b.Court)))
	last := p.policy.MaxAttempts

	for attempt := 1; attempt <= last; attempt++ {
		err := p.once(ctx, b, creds)
		if err == nil {
			log.Info("booking succeeded", slog.Int("attempt", attempt))
			return Outcome{Success: true, Message: SuccessMessage}
		}
		if ctx.Err() != nil {
			log.Warn("booking cancelled", slog.Int("attempt", attempt))
			return fail(apperr.Unknown, CancelledMessage)
		}

		kind := apperr.KindOf(err)
		log.Warn("booking attempt failed", slog.Int("attempt", attempt), slog.String("kind", kind.String()), slog.Any("err", err))

		switch {
		case kind == apperr.NoAvailability || kind == apperr.Validation:
			return fail(kind, err.Error())
		case kind == apperr.Unknown:
			if attempt == last {
				return fail(kind, "unknown error: "+err.Error())
			}
		case attempt == last:
			return fail(kind, err.Error())
		case attempt == 1 && p.policy.Mode != AlwaysRetry:
			return fail(kind, err.Error())
		}

		d := p.policy.Backoff.Delay(attempt)
		log.Info("retrying booking", slog.Int("next_attempt", attempt+1), slog.Duration("wait", d))
		if err := p.sleep(ctx, d); err != nil {
			return fail(apperr.Unknown, CancelledMessage)
		}
	}
	return fail(apperr.Unknown, ExhaustedMessage)
}

// once runs a single attempt on its own session.
func (p *Pipeline) once(ctx context.Context, b site.Booking, creds credentials.Pair) error {
	s, err := p.driver.Open(ctx)
	if err != nil {
		if errors.Is(err, automation.ErrTimeout) {
			return apperr.Wrap(apperr.Timeout, err, "open browser")
		}
		return fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			p.log.Warn("close browser", slog.Any("err", cerr))
		}
	}()
	return p.flow.Book(ctx, s, b, creds)
}
