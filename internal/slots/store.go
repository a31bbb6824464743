package slots

import (
	"context"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
)

var (
	ErrNotFound       = apperr.E(apperr.NotFound, "slot not found")
	ErrBookedConflict = apperr.E(apperr.Conflict, "a booked slot already exists for this date")
	ErrBooked         = apperr.E(apperr.Conflict, "a booked slot cannot be deleted")
)

// Store persists slots. Implementations must refuse a second booked slot
// on the same date with ErrBookedConflict.
type Store interface {
	Insert(ctx context.Context, s Slot) (Slot, error)
	Get(ctx context.Context, id string) (Slot, error)
	// List returns every slot ordered by date, then start time.
	List(ctx context.Context) ([]Slot, error)
	// ListByDate returns the slots of one date with the given status, in
	// insertion order.
	ListByDate(ctx context.Context, date time.Time, status Status) ([]Slot, error)
	HasBooked(ctx context.Context, date time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, status Status) error
	// Delete removes a slot unless it is booked, checked in the same write
	// so a concurrent booking is never erased.
	Delete(ctx context.Context, id string) error
	// DeleteBefore removes every slot dated strictly before date.
	DeleteBefore(ctx context.Context, date time.Time) (int, error)
}
