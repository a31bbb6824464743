// Package site drives the Paris municipal tennis reservation website
// through an automation.Session: login, slot search, anti-bot challenge,
// partner and payment forms, and the remaining-hours summary.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/automation"
	"github.com/MoneyMiii/tennis-booking/internal/challenge"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

const (
	LoginURL = "https://v70-auth.paris.fr/auth/realms/paris/protocol/openid-connect/auth" +
		"?client_id=moncompte_modal&response_type=code" +
		"&redirect_uri=https%3A%2F%2Fmoncompte.paris.fr%2Fmoncompte%2Fjsp%2Fsite%2FPortal.jsp%3Fpage%3Dmyluteceusergu%26view%3DcreateAccountModal%26close_modal%3Dtrue%26data_client%3DauthData%26handler_name%3DbannerLoginHandler" +
		"&scope=openid&app_code=" +
		"&back_url=https%3A%2F%2Ftennis.paris.fr%2Ftennis%2Fjsp%2Fsite%2FPortal.jsp%3Fpage%3Dtennis%26view%3DstartDefault%26full%3D1"
	SearchURL  = "https://tennis.paris.fr/tennis/jsp/site/Portal.jsp?page=recherche&view=recherche_creneau"
	SummaryURL = "https://tennis.paris.fr/tennis/jsp/site/Portal.jsp?page=profil&view=carnet_reservation"

	// NoAvailabilityMessage is the site's own wording, surfaced to users as is.
	NoAvailabilityMessage = "Aucun créneau disponible avec les filtres choisis."
)

type Options struct {
	LoginURL   string
	SearchURL  string
	SummaryURL string

	Location         string
	PartnerLastName  string
	PartnerFirstName string

	// StepTimeout bounds each interaction with the page.
	StepTimeout time.Duration
	// ProbeWait bounds checks for elements that may legitimately be absent.
	ProbeWait time.Duration
	// SettleDelay lets autocomplete and slider widgets react to input.
	SettleDelay time.Duration

	ChallengeAttempts int
	ChallengeWait     time.Duration
	ChallengeTimeout  time.Duration

	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		LoginURL:          LoginURL,
		SearchURL:         SearchURL,
		SummaryURL:        SummaryURL,
		Location:          "Elisabeth",
		PartnerLastName:   "Dupont",
		PartnerFirstName:  "Jean",
		StepTimeout:       10 * time.Second,
		ProbeWait:         3 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		ChallengeAttempts: 3,
		ChallengeWait:     5 * time.Second,
		ChallengeTimeout:  45 * time.Second,
		Now:               time.Now,
	}
}

// Booking is what to look for on the site.
type Booking struct {
	Date      time.Time
	StartTime int
	EndTime   int
	Court     slots.CourtType
}

func FromSlot(s slots.Slot) Booking {
	return Booking{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime, Court: s.Type}
}

func (b Booking) Validate() error {
	return slots.Slot{Date: b.Date, StartTime: b.StartTime, EndTime: b.EndTime, Type: b.Court}.Validate()
}

type Flow struct {
	opts   Options
	solver challenge.Solver
	log    *slog.Logger
}

func NewFlow(opts Options, solver challenge.Solver, log *slog.Logger) *Flow {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ChallengeAttempts < 1 {
		opts.ChallengeAttempts = 1
	}
	return &Flow{opts: opts, solver: solver, log: log}
}

// step runs fn under the per-step deadline and classifies what it returns.
func (f *Flow) step(ctx context.Context, name string, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	f.log.Debug("site step", slog.String("step", name), slog.Duration("took", time.Since(start)), slog.Any("err", err))
	return classify(name, err)
}

func classify(step string, err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.Unknown:
		return err
	case errors.Is(err, automation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.Timeout, err, step+" timed out")
	case errors.Is(err, automation.ErrInteraction):
		return apperr.Wrap(apperr.Interaction, err, step+" failed")
	default:
		return fmt.Errorf("%s: %w", step, err)
	}
}

func (f *Flow) settle(ctx context.Context) error {
	if f.opts.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(f.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
