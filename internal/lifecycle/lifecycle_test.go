package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/booking"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/events"
	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/logging"
	"github.com/MoneyMiii/tennis-booking/internal/site"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

var paris = mustLoad("Europe/Paris")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 2026-10-17, late evening in Paris.
var now = time.Date(2026, 10, 17, 23, 30, 0, 0, paris)

func date(offset int) string {
	return time.Date(2026, 10, 17+offset, 0, 0, 0, 0, time.UTC).Format(slots.DateLayout)
}

type stubBooker struct {
	mu     sync.Mutex
	out    booking.Outcome
	calls  []site.Booking
	onCall func()
}

func (b *stubBooker) Attempt(ctx context.Context, bk site.Booking, _ credentials.Pair) booking.Outcome {
	b.mu.Lock()
	b.calls = append(b.calls, bk)
	hook := b.onCall
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return b.out
}

func (b *stubBooker) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type stubCreds struct{ err error }

func (c stubCreds) Active(context.Context) (credentials.Pair, error) {
	return credentials.Pair{}, c.err
}

func newController(b *stubBooker) (*lifecycle.Controller, *slots.MemoryStore, *events.Recorder) {
	store := slots.NewMemoryStore()
	rec := &events.Recorder{}
	return &lifecycle.Controller{
		Slots:  store,
		Creds:  stubCreds{},
		Booker: b,
		Locks:  lock.NewLocal(),
		Events: rec,
		Log:    logging.Discard(),
		Now:    func() time.Time { return now },
		Loc:    paris,
	}, store, rec
}

func req(offset int) lifecycle.Request {
	return lifecycle.Request{Date: date(offset), StartTime: 10, EndTime: 12, Type: "both"}
}

func TestCreate_OutsideWindowWaits(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true}}
	c, _, rec := newController(b)

	res, err := c.Create(context.Background(), req(10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Success || res.Slot == nil || res.Slot.Status != slots.Waiting {
		t.Fatalf("result = %+v", res)
	}
	if b.Calls() != 0 {
		t.Fatal("pipeline invoked for a waiting slot")
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.SlotWaiting {
		t.Errorf("events = %v", got)
	}
}

func TestCreate_WindowBoundary(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true, Message: booking.SuccessMessage}}
	c, _, _ := newController(b)

	res, err := c.Create(context.Background(), req(7))
	if err != nil || res.Slot.Status != slots.Waiting {
		t.Fatalf("today+7: %+v, %v", res, err)
	}
	res, err = c.Create(context.Background(), req(6))
	if err != nil || res.Slot.Status != slots.Booked {
		t.Fatalf("today+6: %+v, %v", res, err)
	}
	// today is inside the window too
	res, err = c.Create(context.Background(), req(0))
	if err != nil || res.Slot.Status != slots.Booked {
		t.Fatalf("today: %+v, %v", res, err)
	}
}

func TestCreate_InsideWindowBooks(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true, Message: booking.SuccessMessage}}
	c, store, rec := newController(b)

	res, err := c.Create(context.Background(), req(3))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Success || res.Slot.Status != slots.Booked {
		t.Fatalf("result = %+v", res)
	}
	if b.Calls() != 1 || b.calls[0].StartTime != 10 || b.calls[0].Court != slots.Both {
		t.Fatalf("pipeline calls = %+v", b.calls)
	}
	booked, _ := store.HasBooked(context.Background(), res.Slot.Date)
	if !booked {
		t.Fatal("booked slot not stored")
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.SlotBooked {
		t.Errorf("events = %v", got)
	}
}

func TestCreate_FailureStoredAsNotBooked(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Message: "search timed out", Kind: apperr.Timeout}}
	c, _, _ := newController(b)

	res, err := c.Create(context.Background(), req(3))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Success || res.Slot == nil || res.Slot.Status != slots.NotBooked || res.Message != "search timed out" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCreate_ConflictWhenAlreadyBooked(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true}}
	c, store, _ := newController(b)
	d, _ := slots.ParseDate(date(3))
	if _, err := store.Insert(context.Background(), slots.Slot{Date: d, StartTime: 8, EndTime: 9, Type: slots.Both, Status: slots.Booked}); err != nil {
		t.Fatal(err)
	}

	_, err := c.Create(context.Background(), req(3))
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if apperr.KindOf(err).HTTPStatus() != 400 {
		t.Errorf("status = %d", apperr.KindOf(err).HTTPStatus())
	}
	if b.Calls() != 0 {
		t.Fatal("pipeline invoked despite existing booking")
	}
}

func TestCreate_NoAvailabilityPersistsNothing(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Message: site.NoAvailabilityMessage, Kind: apperr.NoAvailability}}
	c, store, _ := newController(b)

	res, err := c.Create(context.Background(), req(2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Success || res.Message != site.NoAvailabilityMessage || res.Slot != nil {
		t.Fatalf("result = %+v", res)
	}
	all, _ := store.List(context.Background())
	if len(all) != 0 {
		t.Fatalf("stored %d slots", len(all))
	}
}

func TestCreate_MissingCredentials(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true}}
	c, _, _ := newController(b)
	c.Creds = stubCreds{err: apperr.E(apperr.Validation, "no active account configured")}

	_, err := c.Create(context.Background(), req(2))
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("err = %v", err)
	}
	if b.Calls() != 0 {
		t.Fatal("pipeline invoked without credentials")
	}
}

func TestCreate_Validation(t *testing.T) {
	c, _, _ := newController(&stubBooker{})
	cases := map[string]lifecycle.Request{
		"past date":   req(-1),
		"bad date":    {Date: "24/10/2026", StartTime: 10, EndTime: 12, Type: "both"},
		"bad court":   {Date: date(3), StartTime: 10, EndTime: 12, Type: "clay"},
		"inverted":    {Date: date(3), StartTime: 12, EndTime: 10, Type: "both"},
		"too early":   {Date: date(3), StartTime: 7, EndTime: 10, Type: "both"},
		"too late":    {Date: date(3), StartTime: 20, EndTime: 23, Type: "both"},
		"missing all": {},
	}
	for name, r := range cases {
		if _, err := c.Create(context.Background(), r); !apperr.Is(err, apperr.Validation) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestCreate_ConcurrentSameDateBooksOnce(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true}}
	b.onCall = func() { time.Sleep(5 * time.Millisecond) }
	c, store, _ := newController(b)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Create(context.Background(), req(4))
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if apperr.Is(err, apperr.Conflict) {
			conflicts++
		} else if err != nil {
			t.Errorf("unexpected err: %v", err)
		}
	}
	if conflicts != 4 || b.Calls() != 1 {
		t.Fatalf("conflicts = %d, pipeline calls = %d", conflicts, b.Calls())
	}
	all, _ := store.List(context.Background())
	if len(all) != 1 || all[0].Status != slots.Booked {
		t.Fatalf("slots = %+v", all)
	}
}

func TestCreate_WriteConflictIsDiscrepancy(t *testing.T) {
	b := &stubBooker{out: booking.Outcome{Success: true}}
	c, store, rec := newController(b)
	d, _ := slots.ParseDate(date(3))
	// another process books the same date while the site run is in progress
	b.onCall = func() {
		_, _ = store.Insert(context.Background(), slots.Slot{Date: d, StartTime: 18, EndTime: 19, Type: slots.Both, Status: slots.Booked})
	}

	_, err := c.Create(context.Background(), req(3))
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	all, _ := store.ListByDate(context.Background(), d, slots.NotBooked)
	if len(all) != 1 || all[0].StartTime != 10 {
		t.Fatalf("not_book slots = %+v", all)
	}
	booked, _ := store.ListByDate(context.Background(), d, slots.Booked)
	if len(booked) != 1 {
		t.Fatalf("booked slots = %d", len(booked))
	}
	types := rec.Types()
	if len(types) != 1 || types[0] != events.SlotDiscrepancy {
		t.Fatalf("events = %v", types)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newController(&stubBooker{})
	d, _ := slots.ParseDate(date(3))
	booked, _ := store.Insert(ctx, slots.Slot{Date: d, StartTime: 8, EndTime: 9, Type: slots.Both, Status: slots.Booked})
	waiting, _ := store.Insert(ctx, slots.Slot{Date: d, StartTime: 9, EndTime: 10, Type: slots.Both, Status: slots.Waiting})
	missed, _ := store.Insert(ctx, slots.Slot{Date: d, StartTime: 10, EndTime: 11, Type: slots.Both, Status: slots.NotBooked})

	if err := c.Delete(ctx, booked.ID); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("delete booked: %v", err)
	}
	if err := c.Delete(ctx, "nope"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("delete unknown: %v", err)
	}
	for _, s := range []slots.Slot{waiting, missed} {
		if err := c.Delete(ctx, s.ID); err != nil {
			t.Errorf("delete %s: %v", s.Status, err)
		}
	}
	all, _ := c.List(ctx)
	if len(all) != 1 || all[0].ID != booked.ID {
		t.Fatalf("left = %+v", all)
	}
}

// bookingStore books the slot right after the controller has read it, as
// a daily run finishing in between would.
type bookingStore struct {
	*slots.MemoryStore
}

func (s bookingStore) Get(ctx context.Context, id string) (slots.Slot, error) {
	sl, err := s.MemoryStore.Get(ctx, id)
	if err == nil {
		_ = s.MemoryStore.SetStatus(ctx, id, slots.Booked)
	}
	return sl, err
}

func TestDelete_SlotBookedAfterRead(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newController(&stubBooker{})
	c.Slots = bookingStore{store}
	d, _ := slots.ParseDate(date(3))
	w, _ := store.Insert(ctx, slots.Slot{Date: d, StartTime: 9, EndTime: 10, Type: slots.Both, Status: slots.Waiting})

	if err := c.Delete(ctx, w.ID); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, err := store.Get(ctx, w.ID)
	if err != nil || got.Status != slots.Booked {
		t.Fatalf("slot = %+v, %v", got, err)
	}
}

func TestDelete_WaitsForDateLock(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newController(&stubBooker{})
	d, _ := slots.ParseDate(date(3))
	w, _ := store.Insert(ctx, slots.Slot{Date: d, StartTime: 9, EndTime: 10, Type: slots.Both, Status: slots.Waiting})

	unlock, err := c.Locks.Lock(ctx, slots.LockKey(d))
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Delete(ctx, w.ID) }()

	select {
	case err := <-done:
		t.Fatalf("delete returned while the date was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	// the holder books the slot before releasing the date
	if err := store.SetStatus(ctx, w.ID, slots.Booked); err != nil {
		t.Fatal(err)
	}
	unlock()

	if err := <-done; !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if _, err := store.Get(ctx, w.ID); err != nil {
		t.Fatalf("booked slot deleted: %v", err)
	}
}
