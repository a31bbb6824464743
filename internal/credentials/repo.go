package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MoneyMiii/tennis-booking/internal/crypto"
	"github.com/MoneyMiii/tennis-booking/internal/db"
)

// AccountRepo stores accounts in Postgres. Passwords are sealed when a Box
// is configured.
type AccountRepo struct {
	db  *db.DB
	box *crypto.Box
}

func NewAccountRepo(d *db.DB, box *crypto.Box) *AccountRepo {
	return &AccountRepo{db: d, box: box}
}

func (r *AccountRepo) scan(row db.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Email, &a.Password, &a.IsActive); err != nil {
		return Account{}, err
	}
	pw, err := r.box.Open(a.Password)
	if err != nil {
		return Account{}, fmt.Errorf("open account %s: %w", a.ID, err)
	}
	a.Password = pw
	return a, nil
}

const accountColumns = `id::text, email, password, is_active`

func (r *AccountRepo) Insert(ctx context.Context, a Account) error {
	pw, err := r.box.Seal(a.Password)
	if err != nil {
		return err
	}
	return r.db.Exec(ctx, `INSERT INTO accounts(id, email, password, is_active) VALUES ($1,$2,$3,false)`,
		a.ID, a.Email, pw)
}

func (r *AccountRepo) Get(ctx context.Context, id string) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrNotFound
	}
	a, err := r.scan(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	return a, notFound(err)
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepo) Update(ctx context.Context, a Account) error {
	pw, err := r.box.Seal(a.Password)
	if err != nil {
		return err
	}
	var id string
	err = r.db.QueryRow(ctx, `UPDATE accounts SET email=$2, password=$3 WHERE id=$1 RETURNING id::text`,
		a.ID, a.Email, pw).Scan(&id)
	return notFound(err)
}

func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, "accounts", id)
}

func (r *AccountRepo) Activate(ctx context.Context, id string) error {
	return activate(ctx, r.db, "accounts", id)
}

func (r *AccountRepo) Active(ctx context.Context) (Account, error) {
	a, err := r.scan(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_active LIMIT 1`))
	if db.IsNotFound(err) {
		return Account{}, ErrNoneActive
	}
	return a, err
}

// CardRepo stores payment cards in Postgres. Number and CVC are sealed
// when a Box is configured.
type CardRepo struct {
	db  *db.DB
	box *crypto.Box
}

func NewCardRepo(d *db.DB, box *crypto.Box) *CardRepo {
	return &CardRepo{db: d, box: box}
}

const cardColumns = `id::text, name, number, cvc, expiry_month, expiry_year, is_active`

func (r *CardRepo) scan(row db.Row) (Card, error) {
	var c Card
	if err := row.Scan(&c.ID, &c.Name, &c.Number, &c.CVC, &c.ExpiryMonth, &c.ExpiryYear, &c.IsActive); err != nil {
		return Card{}, err
	}
	var err error
	if c.Number, err = r.box.Open(c.Number); err != nil {
		return Card{}, fmt.Errorf("open card %s: %w", c.ID, err)
	}
	if c.CVC, err = r.box.Open(c.CVC); err != nil {
		return Card{}, fmt.Errorf("open card %s: %w", c.ID, err)
	}
	return c, nil
}

func (r *CardRepo) seal(c Card) (number, cvc string, err error) {
	if number, err = r.box.Seal(NormalizeNumber(c.Number)); err != nil {
		return "", "", err
	}
	if cvc, err = r.box.Seal(c.CVC); err != nil {
		return "", "", err
	}
	return number, cvc, nil
}

func (r *CardRepo) Insert(ctx context.Context, c Card) error {
	number, cvc, err := r.seal(c)
	if err != nil {
		return err
	}
	return r.db.Exec(ctx, `
INSERT INTO credit_cards(id, name, number, cvc, expiry_month, expiry_year, is_active)
VALUES ($1,$2,$3,$4,$5,$6,false)`,
		c.ID, c.Name, number, cvc, c.ExpiryMonth, c.ExpiryYear)
}

func (r *CardRepo) Get(ctx context.Context, id string) (Card, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Card{}, ErrNotFound
	}
	c, err := r.scan(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id=$1`, id))
	return c, notFound(err)
}

func (r *CardRepo) List(ctx context.Context) ([]Card, error) {
	rows, err := r.db.Query(ctx, `SELECT `+cardColumns+` FROM credit_cards ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Card
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CardRepo) Update(ctx context.Context, c Card) error {
	number, cvc, err := r.seal(c)
	if err != nil {
		return err
	}
	var id string
	err = r.db.QueryRow(ctx, `
UPDATE credit_cards SET name=$2, number=$3, cvc=$4, expiry_month=$5, expiry_year=$6
WHERE id=$1 RETURNING id::text`,
		c.ID, c.Name, number, cvc, c.ExpiryMonth, c.ExpiryYear).Scan(&id)
	return notFound(err)
}

func (r *CardRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, "credit_cards", id)
}

func (r *CardRepo) Activate(ctx context.Context, id string) error {
	return activate(ctx, r.db, "credit_cards", id)
}

func (r *CardRepo) Active(ctx context.Context) (Card, error) {
	c, err := r.scan(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE is_active LIMIT 1`))
	if db.IsNotFound(err) {
		return Card{}, ErrNoneActive
	}
	return c, err
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}

// table names below are package constants, never user input.

func deleteRow(ctx context.Context, d *db.DB, table, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var got string
	err := d.QueryRow(ctx, `DELETE FROM `+table+` WHERE id=$1 AND NOT is_active RETURNING id::text`, id).Scan(&got)
	if !db.IsNotFound(err) {
		return err
	}
	var exists bool
	if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrActive
	}
	return ErrNotFound
}

func activate(ctx context.Context, d *db.DB, table, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return d.WithTx(ctx, func(q db.Querier) error {
		if err := q.Exec(ctx, `UPDATE `+table+` SET is_active=false WHERE is_active AND id<>$1`, id); err != nil {
			return err
		}
		var got string
		err := q.QueryRow(ctx, `UPDATE `+table+` SET is_active=true WHERE id=$1 RETURNING id::text`, id).Scan(&got)
		return notFound(err)
	})
}
