package site

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/automation"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

var (
	selUsername = automation.ID("username")
	selPassword = automation.ID("password")
	selLogin    = automation.CSS(`[name="Submit"]`)

	selWhere        = automation.CSS("ul#whereToken input")
	selWhen         = automation.ID("when")
	selCourtMenu    = automation.ID("dropdownTerrain")
	selOutdoorBox   = automation.CSS(`label[for="chckDécouvert"]`)
	selIndoorBox    = automation.CSS(`label[for="chckCouvert"]`)
	selStartHandle  = automation.XPath("//*[contains(@class,'tooltip1')]/parent::span")
	selEndHandle    = automation.XPath("//*[contains(@class,'tooltip2')]/parent::span")
	selSearch       = automation.ID("rechercher")
	selNoResult     = automation.CSS(".no_result")
	selFirstResult  = automation.XPath("//div[contains(@class, 'search-result-block')]//div[contains(@class, 'row tennis-court')]//button[contains(@class, 'btn')]")
	selChallengeBox = automation.ID("li-antibot-iframe")
	selChallengeImg = automation.ID("li-antibot-questions-container")
	selChallengeIn  = automation.ID("li-antibot-answer")
	selChallengeOK  = automation.ID("li-antibot-validate")
	selChallengeYes = automation.ID("li-antibot-check-img")

	selConfirm      = automation.ID("submitControle")
	selPartnerLast  = automation.XPath("//div[@class='form-group has-feedback name']//input[@name='player1']")
	selPartnerFirst = automation.XPath("//div[@class='form-group has-feedback firstname']//input[@name='player1']")

	selTicket     = automation.CSS("table.price-item.text-center.option[paymentmode='ticket'][nbtickets='1']")
	selTicketNext = automation.ID("submit")
	selPayButton  = automation.ID("textBoutonPaiement")
	selCardNumber = automation.ID("cardNumberField")
	selCardCVC    = automation.ID("cvvfield")
	selPaySubmit  = automation.ID("form_submit")
)

var (
	frenchDays   = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frenchMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// DateLabel renders d the way the site's date picker labels it, e.g.
// "samedi 24 octobre".
func DateLabel(d time.Time) string {
	return fmt.Sprintf("%s %02d %s", frenchDays[d.Weekday()], d.Day(), frenchMonths[d.Month()-1])
}

func dateCell(d time.Time) automation.Selector {
	return automation.XPath(fmt.Sprintf("//div[@class='date' and normalize-space(text()) = '%s']", DateLabel(d)))
}

// Book runs every stage up to the final payment screen. The payment form
// is filled but never submitted.
func (f *Flow) Book(ctx context.Context, s automation.Session, b Booking, p credentials.Pair) error {
	if err := b.Validate(); err != nil {
		return err
	}
	log := f.log.With(slog.String("date", b.Date.Format(slots.DateLayout)), slog.Int("start", b.StartTime), slog.Int("end", b.EndTime))

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"login", func(ctx context.Context) error { return f.Login(ctx, s, p.Account) }},
		{"search", func(ctx context.Context) error { return f.Search(ctx, s, b) }},
		{"select", func(ctx context.Context) error { return f.SelectFirst(ctx, s) }},
		{"challenge", func(ctx context.Context) error { return f.SolveChallenge(ctx, s) }},
		{"partner", func(ctx context.Context) error { return f.AddPartner(ctx, s) }},
		{"payment", func(ctx context.Context) error { return f.Pay(ctx, s, p.Card) }},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("booking stage", slog.String("stage", st.name))
		if err := st.run(ctx); err != nil {
			log.Warn("booking stage failed", slog.String("stage", st.name), slog.String("kind", apperr.KindOf(err).String()), slog.Any("err", err))
			return err
		}
	}
	log.Info("booking reached payment form")
	return nil
}

func (f *Flow) Login(ctx context.Context, s automation.Session, acc credentials.Account) error {
	return f.step(ctx, "login", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Navigate(ctx, f.opts.LoginURL); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selUsername, acc.Email); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selPassword, acc.Password); err != nil {
			return err
		}
		return s.Click(ctx, selLogin)
	})
}

// Search fills in the search form and fails with NoAvailability when the
// site reports no matching court.
func (f *Flow) Search(ctx context.Context, s automation.Session, b Booking) error {
	err := f.step(ctx, "search form", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Navigate(ctx, f.opts.SearchURL); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selWhere, f.opts.Location); err != nil {
			return err
		}
		if err := f.settle(ctx); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.ArrowDown, 1); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.Enter, 1); err != nil {
			return err
		}
		if err := f.settle(ctx); err != nil {
			return err
		}
		if err := s.Click(ctx, selWhen); err != nil {
			return err
		}
		return s.Click(ctx, dateCell(b.Date))
	})
	if err != nil {
		return err
	}

	if err := f.step(ctx, "court filter", f.opts.StepTimeout, func(ctx context.Context) error {
		return f.filterCourts(ctx, s, b.Court)
	}); err != nil {
		return err
	}

	if err := f.step(ctx, "hours", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Click(ctx, selStartHandle); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.ArrowRight, b.StartTime-slots.MinStart); err != nil {
			return err
		}
		if err := s.Click(ctx, selEndHandle); err != nil {
			return err
		}
		return s.Press(ctx, automation.ArrowLeft, slots.MaxEnd-b.EndTime)
	}); err != nil {
		return err
	}

	return f.step(ctx, "search", f.opts.StepTimeout+f.opts.ProbeWait, func(ctx context.Context) error {
		if err := s.Click(ctx, selSearch); err != nil {
			return err
		}
		none, err := s.Exists(ctx, selNoResult, f.opts.ProbeWait)
		if err != nil {
			return err
		}
		if none {
			return apperr.E(apperr.NoAvailability, NoAvailabilityMessage)
		}
		return nil
	})
}

// filterCourts unticks the court kind that was not asked for.
func (f *Flow) filterCourts(ctx context.Context, s automation.Session, court slots.CourtType) error {
	var box automation.Selector
	switch court {
	case slots.Indoor:
		box = selOutdoorBox
	case slots.Outdoor:
		box = selIndoorBox
	default:
		return nil
	}
	if err := s.Click(ctx, selCourtMenu); err != nil {
		return err
	}
	if err := s.Click(ctx, box); err != nil {
		return err
	}
	return s.Click(ctx, selCourtMenu)
}

func (f *Flow) SelectFirst(ctx context.Context, s automation.Session) error {
	return f.step(ctx, "select result", f.opts.StepTimeout, func(ctx context.Context) error {
		return s.Click(ctx, selFirstResult)
	})
}

// SolveChallenge reads the anti-bot picture and submits the answer, trying
// again with a fresh read when the site rejects it.
func (f *Flow) SolveChallenge(ctx context.Context, s automation.Session) error {
	var last error
	for i := 1; i <= f.opts.ChallengeAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = f.challengeAttempt(ctx, s)
		if err := s.LeaveFrame(ctx); err != nil && last == nil {
			last = err
		}
		if last == nil {
			f.log.Info("challenge passed", slog.Int("attempt", i))
			return nil
		}
		f.log.Warn("challenge attempt failed", slog.Int("attempt", i), slog.Any("err", last))
	}
	return apperr.Wrap(apperr.Challenge, last, fmt.Sprintf("anti-bot challenge not passed after %d attempts", f.opts.ChallengeAttempts))
}

func (f *Flow) challengeAttempt(ctx context.Context, s automation.Session) error {
	var image []byte
	if err := f.step(ctx, "challenge capture", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.EnterFrame(ctx, selChallengeBox); err != nil {
			return err
		}
		var err error
		image, err = s.Screenshot(ctx, selChallengeImg)
		return err
	}); err != nil {
		return err
	}

	solveCtx, cancel := context.WithTimeout(ctx, f.opts.ChallengeTimeout)
	answer, err := f.solver.Solve(solveCtx, image)
	cancel()
	if err != nil {
		return fmt.Errorf("solve challenge: %w", err)
	}

	return f.step(ctx, "challenge answer", f.opts.StepTimeout+f.opts.ChallengeWait, func(ctx context.Context) error {
		if err := s.SendKeys(ctx, selChallengeIn, answer); err != nil {
			return err
		}
		if err := s.Click(ctx, selChallengeOK); err != nil {
			return err
		}
		ok, err := s.Exists(ctx, selChallengeYes, f.opts.ChallengeWait)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("answer %q rejected", answer)
		}
		return nil
	})
}

func (f *Flow) AddPartner(ctx context.Context, s automation.Session) error {
	return f.step(ctx, "partner", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Click(ctx, selConfirm); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selPartnerLast, f.opts.PartnerLastName); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selPartnerFirst, f.opts.PartnerFirstName); err != nil {
			return err
		}
		return s.Press(ctx, automation.Enter, 1)
	})
}

// Pay picks the one-ticket option and fills in the card form. It stops on
// the visible submit button.
func (f *Flow) Pay(ctx context.Context, s automation.Session, c credentials.Card) error {
	yearSteps := c.ExpiryYear - f.opts.Now().Year()
	if yearSteps < 0 {
		return apperr.E(apperr.Interaction, fmt.Sprintf("card expired in %d", c.ExpiryYear))
	}
	if err := f.step(ctx, "ticket", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Click(ctx, selTicket); err != nil {
			return err
		}
		return s.Click(ctx, selTicketNext)
	}); err != nil {
		return err
	}
	return f.step(ctx, "payment", f.opts.StepTimeout, func(ctx context.Context) error {
		if err := s.Click(ctx, selPayButton); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selCardNumber, credentials.NormalizeNumber(c.Number)); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.Tab, 1); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.ArrowDown, c.ExpiryMonth-1); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.Tab, 1); err != nil {
			return err
		}
		if err := s.Press(ctx, automation.ArrowDown, yearSteps); err != nil {
			return err
		}
		if err := s.SendKeys(ctx, selCardCVC, c.CVC); err != nil {
			return err
		}
		return s.WaitVisible(ctx, selPaySubmit)
	})
}
