package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MoneyMiii/tennis-booking/internal/allowance"
	"github.com/MoneyMiii/tennis-booking/internal/auth"
	"github.com/MoneyMiii/tennis-booking/internal/automation/chrome"
	"github.com/MoneyMiii/tennis-booking/internal/backoff"
	"github.com/MoneyMiii/tennis-booking/internal/booking"
	"github.com/MoneyMiii/tennis-booking/internal/challenge"
	"github.com/MoneyMiii/tennis-booking/internal/config"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/crypto"
	"github.com/MoneyMiii/tennis-booking/internal/db"
	"github.com/MoneyMiii/tennis-booking/internal/events"
	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/logging"
	"github.com/MoneyMiii/tennis-booking/internal/migrate"
	"github.com/MoneyMiii/tennis-booking/internal/scheduler"
	"github.com/MoneyMiii/tennis-booking/internal/site"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	return cfg, log, nil
}

// app holds everything a command may need, built from one Config.
type app struct {
	cfg config.Config
	log *slog.Logger
	db  *db.DB

	slots    slots.Store
	accounts *credentials.Registry[credentials.Account]
	cards    *credentials.Registry[credentials.Card]
	admins   auth.Admins
	locks    lock.Locker
	events   events.Publisher

	pipeline   *booking.Pipeline
	controller *lifecycle.Controller
	scheduler  *scheduler.Scheduler
	allowance  *allowance.Service

	closers []func()
}

type appOptions struct {
	migrate bool
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx, opts); err != nil {
		return nil, err
	}
	if err := a.openCoordination(ctx); err != nil {
		return nil, err
	}

	policy := booking.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     backoff.NewConstant(cfg.RetryDelay),
	}
	if policy.Mode, err = booking.ParseMode(cfg.RetryMode); err != nil {
		return nil, err
	}

	siteOpts := site.DefaultOptions()
	siteOpts.Location = cfg.SiteLocation
	siteOpts.PartnerLastName = cfg.PartnerLastName
	siteOpts.PartnerFirstName = cfg.PartnerFirstName
	siteOpts.StepTimeout = cfg.StepTimeout
	siteOpts.ProbeWait = cfg.NoResultWait
	siteOpts.ChallengeAttempts = cfg.ChallengeAttempts
	siteOpts.Now = func() time.Time { return time.Now().In(cfg.Location) }

	solver := challenge.New(challenge.Options{
		BaseURL: cfg.ChallengeBaseURL,
		APIKey:  cfg.ChallengeAPIKey,
		Model:   cfg.ChallengeModel,
	})
	flow := site.NewFlow(siteOpts, solver, log.With(slog.String("component", "site")))
	driver := chrome.New(chrome.Options{ExecPath: cfg.ChromePath, Headless: cfg.ChromeHeadless}, log.With(slog.String("component", "chrome")))

	a.pipeline = booking.NewPipeline(driver, flow, policy, booking.WithLogger(log.With(slog.String("component", "booking"))))
	creds := credentials.Set{Accounts: a.accounts, Cards: a.cards}

	a.controller = &lifecycle.Controller{
		Slots:      a.slots,
		Creds:      creds,
		Booker:     a.pipeline,
		Locks:      a.locks,
		Events:     a.events,
		Log:        log.With(slog.String("component", "slots")),
		Loc:        cfg.Location,
		WindowDays: cfg.WindowDays,
	}
	a.scheduler = &scheduler.Scheduler{
		Slots:    a.slots,
		Creds:    creds,
		Booker:   a.pipeline,
		Locks:    a.locks,
		Events:   a.events,
		Log:      log.With(slog.String("component", "scheduler")),
		Loc:      cfg.Location,
		Schedule: cfg.DailySchedule,
		LeadDays: cfg.WindowDays - 1,
	}
	a.allowance = &allowance.Service{
		Driver:   driver,
		Reader:   flow,
		Accounts: a.accounts,
		Log:      log.With(slog.String("component", "allowance")),
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, opts appOptions) error {
	now := func() time.Time { return time.Now().In(a.cfg.Location) }

	if a.cfg.StoreDriver == "memory" {
		a.log.Warn("using in-memory store; data is lost on exit")
		a.slots = slots.NewMemoryStore()
		a.accounts = credentials.NewRegistry[credentials.Account](credentials.NewMemoryStore[credentials.Account](), "account")
		a.cards = credentials.NewRegistry[credentials.Card](credentials.NewMemoryStore[credentials.Card](), "credit card")
		a.admins = auth.NewMemoryAdmins()
	} else {
		d, err := db.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.db = d
		a.closers = append(a.closers, d.Close)
		if err := d.Ping(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		if opts.migrate {
			if err := migrate.Up(ctx, d, a.log); err != nil {
				return err
			}
		}

		var box *crypto.Box
		if len(a.cfg.CredEncKey) > 0 {
			if box, err = crypto.New(a.cfg.CredEncKey); err != nil {
				return fmt.Errorf("CRED_ENC_KEY: %w", err)
			}
		} else {
			a.log.Warn("CRED_ENC_KEY not set; credentials are stored in plaintext")
		}
		a.slots = slots.NewRepo(d)
		a.accounts = credentials.NewRegistry[credentials.Account](credentials.NewAccountRepo(d, box), "account")
		a.cards = credentials.NewRegistry[credentials.Card](credentials.NewCardRepo(d, box), "credit card")
		a.admins = auth.NewAdminRepo(d)
	}

	a.accounts.WithClock(now)
	a.cards.WithClock(now)
	if a.cfg.LegacyEmail != "" {
		a.accounts.WithFallback(credentials.Account{Email: a.cfg.LegacyEmail, Password: a.cfg.LegacyPassword, IsActive: true})
	}
	return nil
}

func (a *app) openCoordination(ctx context.Context) error {
	if a.cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.locks = lock.NewRedis(rdb, a.cfg.LockTTL, a.log)
	} else {
		a.locks = lock.NewLocal()
	}

	if a.cfg.RabbitMQURL != "" {
		pub, err := events.NewAMQP(a.cfg.RabbitMQURL, a.cfg.EventsExchange)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		a.events = pub
	} else {
		a.events = events.Nop{}
	}
	return nil
}

// authService returns nil when admin auth is off.
func (a *app) authService() *auth.Service {
	if !a.cfg.AdminAuth {
		return nil
	}
	return auth.NewService(a.admins, a.cfg.CookieHashKey, a.cfg.CookieBlockKey)
}

func (a *app) ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
