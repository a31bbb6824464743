// Package allowance reports the prepaid court hours left on the active
// account.
package allowance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MoneyMiii/tennis-booking/internal/automation"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/site"
)

const SuccessMessage = "Récupération des heures réussie."

type Reader interface {
	Remaining(ctx context.Context, s automation.Session, acc credentials.Account) (site.Remaining, error)
}

type Accounts interface {
	Active(ctx context.Context) (credentials.Account, error)
}

type Result struct {
	CourtDecouvertHours int `json:"court_decouvert_hours"`
	CourtCouvertHours   int `json:"court_couvert_hours"`
}

type Service struct {
	Driver   automation.Driver
	Reader   Reader
	Accounts Accounts
	Log      *slog.Logger
}

// Query opens one browser session, reads the booklet page and closes the
// session whatever happens.
func (s *Service) Query(ctx context.Context) (Result, error) {
	acc, err := s.Accounts.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	sess, err := s.Driver.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.Log.Warn("close browser", slog.Any("err", err))
		}
	}()

	r, err := s.Reader.Remaining(ctx, sess, acc)
	if err != nil {
		s.Log.Warn("read remaining hours", slog.Any("err", err))
		return Result{}, err
	}
	s.Log.Info("remaining hours", slog.Int("outdoor", r.Outdoor), slog.Int("indoor", r.Indoor))
	return Result{CourtDecouvertHours: r.Outdoor, CourtCouvertHours: r.Indoor}, nil
}
