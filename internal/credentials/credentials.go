// Package credentials keeps the site login accounts and payment cards. At
// most one of each kind is active at any time; the active pair is what the
// booking pipeline uses.
package credentials

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
)

// Store-level sentinels. The Registry turns them into classified errors.
var (
	ErrNotFound   = errors.New("not found")
	ErrNoneActive = errors.New("none active")
	ErrActive     = errors.New("record is active")
)

type Account struct {
	ID       string
	Email    string
	Password string
	IsActive bool
}

func (a Account) key() string { return a.ID }
func (a Account) active() bool { return a.IsActive }
func (a Account) withID(id string) Account {
	a.ID = id
	return a
}

func (a Account) withActive(v bool) Account {
	a.IsActive = v
	return a
}

func (a Account) validate(_ time.Time) error {
	if strings.TrimSpace(a.Email) == "" {
		return apperr.E(apperr.Validation, "email is required")
	}
	if a.Password == "" {
		return apperr.E(apperr.Validation, "password is required")
	}
	return nil
}

type Card struct {
	ID          string
	Name        string
	Number      string
	CVC         string
	ExpiryMonth int
	ExpiryYear  int
	IsActive    bool
}

func (c Card) key() string { return c.ID }
func (c Card) active() bool { return c.IsActive }
func (c Card) withID(id string) Card {
	c.ID = id
	return c
}

func (c Card) withActive(v bool) Card {
	c.IsActive = v
	return c
}

var (
	cvcRe    = regexp.MustCompile(`^\d{3}$`)
	numberRe = regexp.MustCompile(`^\d{12,19}$`)
)

func (c Card) validate(now time.Time) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperr.E(apperr.Validation, "name is required")
	}
	if !numberRe.MatchString(NormalizeNumber(c.Number)) {
		return apperr.E(apperr.Validation, "number must be 12 to 19 digits")
	}
	if !cvcRe.MatchString(c.CVC) {
		return apperr.E(apperr.Validation, "cvc must be exactly 3 digits")
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return apperr.E(apperr.Validation, "expiry_month must be between 1 and 12")
	}
	if c.ExpiryYear < now.Year() || c.ExpiryYear > now.Year()+20 {
		return apperr.E(apperr.Validation, fmt.Sprintf("expiry_year must be between %d and %d", now.Year(), now.Year()+20))
	}
	return nil
}

// NormalizeNumber strips the spaces and dashes people type in card numbers.
func NormalizeNumber(n string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(n)
}

// Masked hides all but the last four digits.
func (c Card) Masked() string {
	n := NormalizeNumber(c.Number)
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

// Pair is what a booking attempt needs from the registries.
type Pair struct {
	Account Account
	Card    Card
}
