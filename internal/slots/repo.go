package slots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MoneyMiii/tennis-booking/internal/db"
)

const bookedIndex = "slots_one_book_per_date"

// Repo is the Postgres Store.
type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const slotColumns = `id::text, date, start_time, end_time, type, status`

func scanSlot(row db.Row) (Slot, error) {
	var s Slot
	var ct, st string
	if err := row.Scan(&s.ID, &s.Date, &s.StartTime, &s.EndTime, &ct, &st); err != nil {
		return Slot{}, err
	}
	s.Date = DayOf(s.Date)
	s.Type = CourtType(ct)
	s.Status = Status(st)
	return s, nil
}

func (r *Repo) Insert(ctx context.Context, s Slot) (Slot, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	out, err := scanSlot(r.db.QueryRow(ctx, `
INSERT INTO slots(id, date, start_time, end_time, type, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+slotColumns,
		s.ID, DayOf(s.Date), s.StartTime, s.EndTime, string(s.Type), string(s.Status)))
	if err != nil {
		if db.IsUniqueViolation(err, bookedIndex) {
			return Slot{}, ErrBookedConflict
		}
		return Slot{}, db.WrapNotFound(err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Slot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Slot{}, ErrNotFound
	}
	s, err := scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id=$1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return Slot{}, ErrNotFound
		}
		return Slot{}, db.WrapNotFound(err)
	}
	return s, nil
}

func (r *Repo) List(ctx context.Context) ([]Slot, error) {
	return r.query(ctx, `SELECT `+slotColumns+` FROM slots ORDER BY date, start_time, seq`)
}

func (r *Repo) ListByDate(ctx context.Context, date time.Time, status Status) ([]Slot, error) {
	return r.query(ctx, `SELECT `+slotColumns+` FROM slots WHERE date=$1 AND status=$2 ORDER BY seq`,
		DayOf(date), string(status))
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Slot, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) HasBooked(ctx context.Context, date time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE date=$1 AND status='book')`, DayOf(date)).Scan(&ok)
	return ok, err
}

func (r *Repo) SetStatus(ctx context.Context, id string, status Status) error {
	var got string
	err := r.db.QueryRow(ctx, `UPDATE slots SET status=$2, updated_at=now() WHERE id=$1 RETURNING id::text`, id, string(status)).Scan(&got)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, bookedIndex):
		return ErrBookedConflict
	case db.IsNotFound(err):
		return ErrNotFound
	default:
		return db.WrapNotFound(err)
	}
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var got string
	err := r.db.QueryRow(ctx, `DELETE FROM slots WHERE id=$1 AND status<>'book' RETURNING id::text`, id).Scan(&got)
	if !errors.Is(db.WrapNotFound(err), db.ErrNotFound) {
		return db.WrapNotFound(err)
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE id=$1)`, id).Scan(&exists); err != nil {
		return db.WrapNotFound(err)
	}
	if exists {
		return ErrBooked
	}
	return ErrNotFound
}

func (r *Repo) DeleteBefore(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `WITH gone AS (DELETE FROM slots WHERE date < $1 RETURNING 1) SELECT count(*) FROM gone`, DayOf(date)).Scan(&n)
	return n, err
}
