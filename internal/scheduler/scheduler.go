// Package scheduler runs the daily job that books slots entering the
// booking window and removes past ones.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/MoneyMiii/tennis-booking/internal/booking"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/events"
	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/site"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

const (
	DefaultSchedule = "0 8 * * *"
	// DefaultLeadDays targets the date that enters the 7-day window today.
	DefaultLeadDays = 6
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type Booker interface {
	Attempt(ctx context.Context, b site.Booking, creds credentials.Pair) booking.Outcome
}

type Credentials interface {
	Active(ctx context.Context) (credentials.Pair, error)
}

// Scheduler fires RunOnce on Schedule in Loc.
type Scheduler struct {
	Slots    slots.Store
	Creds    Credentials
	Booker   Booker
	Locks    lock.Locker
	Events   events.Publisher
	Log      *slog.Logger
	Loc      *time.Location
	Schedule string
	LeadDays int
	Now      func() time.Time

	// a manual run and the cron entry never overlap
	mu sync.Mutex
}

// Report summarises one run.
type Report struct {
	Target    time.Time
	Skipped   bool
	Attempted int
	BookedID  string
	NotBooked int
	Purged    int
}

func (s *Scheduler) location() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.Local
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run blocks until ctx is done, firing the daily job on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	expr := s.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	logger := cronLogger{s.Log}
	c := cronlib.New(
		cronlib.WithLocation(s.location()),
		cronlib.WithParser(cronParser),
		cronlib.WithLogger(logger),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(expr, func() {
		rep := s.RunOnce(ctx, s.now())
		s.Log.Info("daily run finished",
			slog.String("target", rep.Target.Format(slots.DateLayout)),
			slog.Bool("skipped", rep.Skipped),
			slog.Int("attempted", rep.Attempted),
			slog.String("booked_id", rep.BookedID),
			slog.Int("not_booked", rep.NotBooked),
			slog.Int("purged", rep.Purged),
		)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}

	c.Start()
	s.Log.Info("scheduler started", slog.String("schedule", expr), slog.String("tz", s.location().String()))
	<-ctx.Done()
	<-c.Stop().Done()
	s.Log.Info("scheduler stopped")
	return nil
}

// RunOnce books the waiting slots of today+LeadDays, then deletes every
// slot dated before today. Errors are logged; the run always reaches the
// purge.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead := s.LeadDays
	if lead <= 0 {
		lead = DefaultLeadDays
	}
	today := slots.DayOf(now.In(s.location()))
	rep := Report{Target: today.AddDate(0, 0, lead)}

	s.bookTarget(ctx, &rep)

	// purge even when shutting down
	purgeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	n, err := s.Slots.DeleteBefore(purgeCtx, today)
	if err != nil {
		s.Log.Error("purge past slots", slog.Any("err", err))
		return rep
	}
	rep.Purged = n
	if n > 0 {
		s.Log.Info("purged past slots", slog.Int("count", n))
		s.publish(purgeCtx, events.Event{Type: events.SlotsPurged, Date: today.Format(slots.DateLayout), Count: n})
	}
	return rep
}

func (s *Scheduler) bookTarget(ctx context.Context, rep *Report) {
	target := rep.Target
	log := s.Log.With(slog.String("target", target.Format(slots.DateLayout)))

	unlock, err := s.Locks.Lock(ctx, slots.LockKey(target))
	if err != nil {
		log.Error("lock target date", slog.Any("err", err))
		return
	}
	defer unlock()

	booked, err := s.Slots.HasBooked(ctx, target)
	if err != nil {
		log.Error("check booked slots", slog.Any("err", err))
		return
	}
	if booked {
		log.Info("target already booked")
		rep.Skipped = true
		return
	}

	waiting, err := s.Slots.ListByDate(ctx, target, slots.Waiting)
	if err != nil {
		log.Error("list waiting slots", slog.Any("err", err))
		return
	}
	if len(waiting) == 0 {
		log.Info("no waiting slots")
		return
	}

	creds, err := s.Creds.Active(ctx)
	if err != nil {
		log.Error("no credentials, giving up on target", slog.Any("err", err))
		for _, sl := range waiting {
			s.setStatus(ctx, rep, sl, slots.NotBooked, err.Error())
		}
		return
	}

	for _, sl := range waiting {
		if ctx.Err() != nil {
			return
		}
		rep.Attempted++
		out := s.Booker.Attempt(ctx, site.FromSlot(sl), creds)
		if ctx.Err() != nil {
			log.Warn("run cancelled, slot left waiting", slog.String("slot_id", sl.ID))
			return
		}
		status := slots.NotBooked
		if out.Success && rep.BookedID == "" {
			status = slots.Booked
		}
		s.setStatus(ctx, rep, sl, status, out.Message)
	}
}

func (s *Scheduler) setStatus(ctx context.Context, rep *Report, sl slots.Slot, status slots.Status, msg string) {
	log := s.Log.With(slog.String("slot_id", sl.ID))
	err := s.Slots.SetStatus(ctx, sl.ID, status)
	if errors.Is(err, slots.ErrBookedConflict) {
		log.Error("booking discrepancy: date already has a booked slot")
		s.publish(ctx, events.Event{Type: events.SlotDiscrepancy, SlotID: sl.ID, Date: sl.Date.Format(slots.DateLayout), Status: string(slots.NotBooked), Message: msg})
		status = slots.NotBooked
		err = s.Slots.SetStatus(ctx, sl.ID, status)
	}
	if err != nil {
		log.Error("update slot status", slog.String("status", string(status)), slog.Any("err", err))
		return
	}

	typ := events.SlotNotBooked
	if status == slots.Booked {
		typ = events.SlotBooked
		rep.BookedID = sl.ID
	} else {
		rep.NotBooked++
	}
	log.Info("slot updated", slog.String("status", string(status)), slog.String("message", msg))
	s.publish(ctx, events.Event{Type: typ, SlotID: sl.ID, Date: sl.Date.Format(slots.DateLayout), Status: string(status), Message: msg})
}

func (s *Scheduler) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.Log.Warn("publish event", slog.String("type", e.Type), slog.Any("err", err))
	}
}

// cronLogger routes robfig/cron's logging to slog.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
