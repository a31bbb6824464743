// Package lifecycle decides what happens to a requested slot: stored for
// later, booked now, or refused.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/booking"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/events"
	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/site"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

// DefaultWindowDays is how far ahead the site accepts reservations.
const DefaultWindowDays = 7

const (
	WaitingMessage = "slot saved; booking will be attempted when the date enters the booking window"
	BookedConflict = "a court is already booked for this date"
)

type Booker interface {
	Attempt(ctx context.Context, b site.Booking, creds credentials.Pair) booking.Outcome
}

type Credentials interface {
	Active(ctx context.Context) (credentials.Pair, error)
}

type Controller struct {
	Slots  slots.Store
	Creds  Credentials
	Booker Booker
	Locks  lock.Locker
	Events events.Publisher
	Log    *slog.Logger
	Now    func() time.Time
	Loc    *time.Location
	// WindowDays defaults to DefaultWindowDays.
	WindowDays int
}

type Request struct {
	Date      string
	StartTime int
	EndTime   int
	Type      string
}

type Result struct {
	Success bool
	Message string
	Slot    *slots.Slot
}

func (c *Controller) today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Loc
	if loc == nil {
		loc = time.Local
	}
	return slots.DayOf(now().In(loc))
}

func (c *Controller) window() int {
	if c.WindowDays > 0 {
		return c.WindowDays
	}
	return DefaultWindowDays
}

func parse(req Request) (slots.Slot, error) {
	date, err := slots.ParseDate(req.Date)
	if err != nil {
		return slots.Slot{}, err
	}
	court, err := slots.ParseCourtType(req.Type)
	if err != nil {
		return slots.Slot{}, err
	}
	s := slots.Slot{Date: date, StartTime: req.StartTime, EndTime: req.EndTime, Type: court}
	return s, s.Validate()
}

// Create registers a slot. Dates inside the booking window are booked right
// away while holding the date's lock; later dates are stored as waiting for
// the daily run.
func (c *Controller) Create(ctx context.Context, req Request) (Result, error) {
	slot, err := parse(req)
	if err != nil {
		return Result{}, err
	}
	today := c.today()
	if slot.Date.Before(today) {
		return Result{}, apperr.E(apperr.Validation, "date is in the past")
	}
	log := c.Log.With(slog.String("date", slot.Date.Format(slots.DateLayout)))

	if !slot.Date.Before(today.AddDate(0, 0, c.window())) {
		slot.Status = slots.Waiting
		saved, err := c.Slots.Insert(ctx, slot)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.Store, err, "save slot")
		}
		log.Info("slot waiting for booking window", slog.String("slot_id", saved.ID))
		c.publish(ctx, events.SlotWaiting, saved, "")
		return Result{Success: true, Message: WaitingMessage, Slot: &saved}, nil
	}

	unlock, err := c.Locks.Lock(ctx, slots.LockKey(slot.Date))
	if err != nil {
		return Result{}, fmt.Errorf("lock %s: %w", slot.Date.Format(slots.DateLayout), err)
	}
	defer unlock()

	booked, err := c.Slots.HasBooked(ctx, slot.Date)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Store, err, "check booked slots")
	}
	if booked {
		return Result{}, apperr.E(apperr.Conflict, BookedConflict)
	}

	creds, err := c.Creds.Active(ctx)
	if err != nil {
		return Result{}, err
	}

	out := c.Booker.Attempt(ctx, site.FromSlot(slot), creds)
	if !out.Success && out.Kind == apperr.NoAvailability {
		log.Info("no court available", slog.String("message", out.Message))
		return Result{Success: false, Message: out.Message}, nil
	}

	slot.Status = slots.NotBooked
	if out.Success {
		slot.Status = slots.Booked
	}
	saved, err := c.Slots.Insert(ctx, slot)
	if errors.Is(err, slots.ErrBookedConflict) {
		return c.discrepancy(ctx, slot)
	}
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Store, err, "save slot")
	}

	typ := events.SlotNotBooked
	if out.Success {
		typ = events.SlotBooked
	}
	log.Info("slot recorded", slog.String("slot_id", saved.ID), slog.String("status", string(saved.Status)), slog.String("message", out.Message))
	c.publish(ctx, typ, saved, out.Message)
	return Result{Success: out.Success, Message: out.Message, Slot: &saved}, nil
}

// discrepancy records a slot the site accepted while another booked slot
// landed for the same date through a writer outside the lock.
func (c *Controller) discrepancy(ctx context.Context, slot slots.Slot) (Result, error) {
	msg := fmt.Sprintf("the site accepted a booking for %s but another booked slot already exists; recorded as not_book", slot.Date.Format(slots.DateLayout))
	c.Log.Error("booking discrepancy", slog.String("date", slot.Date.Format(slots.DateLayout)))

	slot.Status = slots.NotBooked
	saved, err := c.Slots.Insert(ctx, slot)
	if err != nil {
		c.Log.Error("record discrepancy slot", slog.Any("err", err))
		saved = slot
	}
	c.publish(ctx, events.SlotDiscrepancy, saved, msg)
	return Result{}, apperr.E(apperr.Conflict, msg)
}

// Delete removes a slot that is not booked. It holds the date's lock so a
// daily run booking the same date finishes first; the store refuses booked
// slots on its own as well.
func (c *Controller) Delete(ctx context.Context, id string) error {
	s, err := c.Slots.Get(ctx, id)
	if err != nil {
		return storeErr(err, "get slot")
	}
	if s.Status == slots.Booked {
		return slots.ErrBooked
	}

	unlock, err := c.Locks.Lock(ctx, slots.LockKey(s.Date))
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.Date.Format(slots.DateLayout), err)
	}
	defer unlock()

	if err := c.Slots.Delete(ctx, id); err != nil {
		return storeErr(err, "delete slot")
	}
	c.Log.Info("slot deleted", slog.String("slot_id", id), slog.String("date", s.Date.Format(slots.DateLayout)))
	return nil
}

// storeErr keeps classified store errors and marks the rest as store
// failures.
func storeErr(err error, msg string) error {
	if apperr.KindOf(err) != apperr.Unknown {
		return err
	}
	return apperr.Wrap(apperr.Store, err, msg)
}

func (c *Controller) List(ctx context.Context) ([]slots.Slot, error) {
	out, err := c.Slots.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, err, "list slots")
	}
	return out, nil
}

func (c *Controller) publish(ctx context.Context, typ string, s slots.Slot, msg string) {
	if c.Events == nil {
		return
	}
	e := events.Event{
		Type:    typ,
		SlotID:  s.ID,
		Date:    s.Date.Format(slots.DateLayout),
		Status:  string(s.Status),
		Message: msg,
	}
	if err := c.Events.Publish(ctx, e); err != nil {
		c.Log.Warn("publish event", slog.String("type", typ), slog.Any("err", err))
	}
}
