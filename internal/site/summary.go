package site

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/MoneyMiii/tennis-booking/internal/automation"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
)

const (
	OutdoorLabel = "Tarif plein - Court découvert :"
	IndoorLabel  = "Tarif plein - Court couvert :"
)

// Remaining is the prepaid hours left on the account, per court kind.
type Remaining struct {
	Outdoor int
	Indoor  int
}

var firstNumber = regexp.MustCompile(`\d+`)

func hoursCell(label string) automation.Selector {
	return automation.XPath(fmt.Sprintf("//h4[contains(normalize-space(.), '%s')]//span[contains(@class,'subtitle')]", label))
}

// Remaining logs in and reads the reservation booklet page. A label that is
// missing from the page counts as zero hours.
func (f *Flow) Remaining(ctx context.Context, s automation.Session, acc credentials.Account) (Remaining, error) {
	if err := f.Login(ctx, s, acc); err != nil {
		return Remaining{}, err
	}
	if err := f.step(ctx, "booklet", f.opts.StepTimeout, func(ctx context.Context) error {
		return s.Navigate(ctx, f.opts.SummaryURL)
	}); err != nil {
		return Remaining{}, err
	}

	var r Remaining
	var err error
	if r.Outdoor, err = f.hours(ctx, s, OutdoorLabel); err != nil {
		return Remaining{}, err
	}
	if r.Indoor, err = f.hours(ctx, s, IndoorLabel); err != nil {
		return Remaining{}, err
	}
	return r, nil
}

func (f *Flow) hours(ctx context.Context, s automation.Session, label string) (int, error) {
	var n int
	err := f.step(ctx, "read "+label, f.opts.StepTimeout+f.opts.ProbeWait, func(ctx context.Context) error {
		sel := hoursCell(label)
		ok, err := s.Exists(ctx, sel, f.opts.ProbeWait)
		if err != nil || !ok {
			return err
		}
		text, err := s.Text(ctx, sel)
		if err != nil {
			return err
		}
		n = ParseHours(text)
		return nil
	})
	return n, err
}

// ParseHours returns the first integer in s, or 0.
func ParseHours(s string) int {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
