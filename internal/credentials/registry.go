package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
)

type entry[T any] interface {
	key() string
	active() bool
	withID(id string) T
	withActive(v bool) T
	validate(now time.Time) error
}

// Store persists one credential kind. Activate must deactivate the current
// active record and activate id atomically, leaving state unchanged when
// id does not exist.
type Store[T any] interface {
	Insert(ctx context.Context, v T) error
	Get(ctx context.Context, id string) (T, error)
	List(ctx context.Context) ([]T, error)
	Update(ctx context.Context, v T) error
	// Delete refuses the active record with ErrActive, checked in the same
	// write as the removal.
	Delete(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	Active(ctx context.Context) (T, error)
}

type Registry[T entry[T]] struct {
	store    Store[T]
	noun     string
	fallback *T
	now      func() time.Time
}

func NewRegistry[T entry[T]](store Store[T], noun string) *Registry[T] {
	return &Registry[T]{store: store, noun: noun, now: time.Now}
}

// WithFallback sets the credential returned by Active when none is stored.
func (r *Registry[T]) WithFallback(v T) *Registry[T] {
	r.fallback = &v
	return r
}

func (r *Registry[T]) WithClock(now func() time.Time) *Registry[T] {
	r.now = now
	return r
}

func (r *Registry[T]) classify(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, fmt.Sprintf("%s %s", r.noun, id))
	case errors.Is(err, ErrActive):
		return apperr.E(apperr.Conflict, fmt.Sprintf("cannot delete the active %s", r.noun))
	default:
		return apperr.Wrap(apperr.Store, err, r.noun+" store")
	}
}

func (r *Registry[T]) Get(ctx context.Context, id string) (T, error) {
	v, err := r.store.Get(ctx, id)
	return v, r.classify(id, err)
}

func (r *Registry[T]) List(ctx context.Context) ([]T, error) {
	vs, err := r.store.List(ctx)
	return vs, r.classify("", err)
}

func (r *Registry[T]) Create(ctx context.Context, v T, activate bool) (T, error) {
	var zero T
	if err := v.validate(r.now()); err != nil {
		return zero, err
	}
	v = v.withID(uuid.NewString()).withActive(false)
	if err := r.store.Insert(ctx, v); err != nil {
		return zero, r.classify(v.key(), err)
	}
	if activate {
		if err := r.store.Activate(ctx, v.key()); err != nil {
			return zero, r.classify(v.key(), err)
		}
	}
	return r.Get(ctx, v.key())
}

// Update replaces the fields of an existing credential. activate nil keeps
// the current flag; false on the active credential is a conflict since it
// would leave the kind without an active record.
func (r *Registry[T]) Update(ctx context.Context, v T, activate *bool) (T, error) {
	var zero T
	cur, err := r.Get(ctx, v.key())
	if err != nil {
		return zero, err
	}
	if err := v.validate(r.now()); err != nil {
		return zero, err
	}
	want := cur.active()
	if activate != nil {
		want = *activate
	}
	if cur.active() && !want {
		return zero, apperr.E(apperr.Conflict, fmt.Sprintf("%s %s is active; activate another %s instead", r.noun, v.key(), r.noun))
	}

	if err := r.store.Update(ctx, v.withActive(cur.active())); err != nil {
		return zero, r.classify(v.key(), err)
	}
	if want && !cur.active() {
		if err := r.store.Activate(ctx, v.key()); err != nil {
			return zero, r.classify(v.key(), err)
		}
	}
	return r.Get(ctx, v.key())
}

func (r *Registry[T]) Delete(ctx context.Context, id string) error {
	return r.classify(id, r.store.Delete(ctx, id))
}

func (r *Registry[T]) Activate(ctx context.Context, id string) (T, error) {
	if err := r.store.Activate(ctx, id); err != nil {
		var zero T
		return zero, r.classify(id, err)
	}
	return r.Get(ctx, id)
}

func (r *Registry[T]) Active(ctx context.Context) (T, error) {
	v, err := r.store.Active(ctx)
	if errors.Is(err, ErrNoneActive) {
		if r.fallback != nil {
			return *r.fallback, nil
		}
		return v, apperr.E(apperr.Validation, fmt.Sprintf("no active %s configured", r.noun))
	}
	return v, r.classify("", err)
}

// Set resolves the active account and card together.
type Set struct {
	Accounts *Registry[Account]
	Cards    *Registry[Card]
}

func (s Set) Active(ctx context.Context) (Pair, error) {
	acc, err := s.Accounts.Active(ctx)
	if err != nil {
		return Pair{}, err
	}
	card, err := s.Cards.Active(ctx)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Account: acc, Card: card}, nil
}
