// Package web exposes the booking engine as a JSON API. Every response is
// an envelope {isSuccess, message, data}.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/MoneyMiii/tennis-booking/internal/allowance"
	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/auth"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
)

type SlotService interface {
	Create(ctx context.Context, req lifecycle.Request) (lifecycle.Result, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]slots.Slot, error)
}

type AllowanceService interface {
	Query(ctx context.Context) (allowance.Result, error)
}

type Server struct {
	Slots     SlotService
	Accounts  *credentials.Registry[credentials.Account]
	Cards     *credentials.Registry[credentials.Card]
	Allowance AllowanceService
	// Auth, when set, puts credential and allowance routes behind an admin
	// session.
	Auth *auth.Service
	// Ping checks the store for /healthz.
	Ping func(ctx context.Context) error
	Log  *slog.Logger
}

type envelope struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
}

func ok(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{IsSuccess: true, Message: msg, Data: data})
}

func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.Any("err", v.Error))
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			s.Log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))

	s.routes(e)
	return e
}

func (s *Server) routes(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		return ok(c, http.StatusOK, "tennis booking service is running", nil)
	})
	e.GET("/healthz", s.health)

	e.POST("/slots", s.createSlot)
	e.GET("/slots", s.listSlots)
	e.DELETE("/slots/:id", s.deleteSlot)

	var guarded []echo.MiddlewareFunc
	if s.Auth != nil {
		e.POST("/login", s.login)
		e.POST("/logout", s.logout)
		guarded = append(guarded, s.Auth.RequireAdmin)
	}
	add := func(method, path string, h echo.HandlerFunc) {
		e.Add(method, path, h, guarded...)
	}

	for _, p := range []string{"/account", "/accounts"} {
		add(http.MethodPost, p, s.createAccount)
		add(http.MethodGet, p, s.listAccounts)
	}
	add(http.MethodPut, "/accounts/:id", s.updateAccount)
	add(http.MethodDelete, "/accounts/:id", s.deleteAccount)
	add(http.MethodPut, "/accounts/:id/activate", s.activateAccount)

	add(http.MethodPost, "/credit_cards", s.createCard)
	add(http.MethodGet, "/credit_cards", s.listCards)
	add(http.MethodPut, "/credit_cards/:id", s.updateCard)
	add(http.MethodDelete, "/credit_cards/:id", s.deleteCard)
	add(http.MethodPut, "/credit_cards/:id/activate", s.activateCard)

	add(http.MethodGet, "/remaining_hours", s.remainingHours)
}

func (s *Server) health(c echo.Context) error {
	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			return apperr.Wrap(apperr.Store, err, "database unreachable")
		}
	}
	return ok(c, http.StatusOK, "ok", nil)
}

// handleError renders every error as an envelope with the status of its
// kind.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var status int
	msg := "internal server error"

	var he *echo.HTTPError
	kind := apperr.KindOf(err)
	switch {
	case kind == apperr.Unknown && errors.As(err, &he):
		status = he.Code
		msg = fmt.Sprint(he.Message)
	default:
		status = kind.HTTPStatus()
		if status < http.StatusInternalServerError {
			msg = err.Error()
		} else {
			s.Log.Error("request failed", slog.String("uri", c.Request().RequestURI), slog.String("kind", kind.String()), slog.Any("err", err))
			if kind != apperr.Unknown {
				msg = err.Error()
			}
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, envelope{IsSuccess: false, Message: msg})
	}
	if err != nil {
		s.Log.Warn("write error response", slog.Any("err", err))
	}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Wrap(apperr.Validation, err, "invalid request body")
	}
	return nil
}

func missing(field string) error {
	return apperr.E(apperr.Validation, "missing field: "+field)
}

// Start serves e on addr until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, e *echo.Echo, addr string, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("http server stopped")
	return nil
}
