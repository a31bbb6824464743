package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MoneyMiii/tennis-booking/internal/allowance"
	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/auth"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
)

const passwordMask = "********"

// is_used is what older clients send for is_active.
type activeFlags struct {
	IsActive *bool `json:"is_active"`
	IsUsed   *bool `json:"is_used"`
}

func (f activeFlags) flag() *bool {
	if f.IsActive != nil {
		return f.IsActive
	}
	return f.IsUsed
}

type accountRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	activeFlags
}

type accountView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsActive bool   `json:"is_active"`
	IsUsed   bool   `json:"is_used"`
}

func viewAccount(a credentials.Account) accountView {
	return accountView{ID: a.ID, Email: a.Email, Password: passwordMask, IsActive: a.IsActive, IsUsed: a.IsActive}
}

func (s *Server) createAccount(c echo.Context) error {
	var body accountRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	if body.Email == nil {
		return missing("email")
	}
	if body.Password == nil {
		return missing("password")
	}
	activate := body.flag() != nil && *body.flag()
	a, err := s.Accounts.Create(c.Request().Context(), credentials.Account{Email: *body.Email, Password: *body.Password}, activate)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "account created", viewAccount(a))
}

func (s *Server) listAccounts(c echo.Context) error {
	all, err := s.Accounts.List(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]accountView, 0, len(all))
	for _, a := range all {
		out = append(out, viewAccount(a))
	}
	return ok(c, http.StatusOK, "accounts", out)
}

func (s *Server) updateAccount(c echo.Context) error {
	var body accountRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cur, err := s.Accounts.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if body.Email != nil {
		cur.Email = *body.Email
	}
	// clients editing a listed account send the mask back
	if body.Password != nil && *body.Password != passwordMask {
		cur.Password = *body.Password
	}
	a, err := s.Accounts.Update(ctx, cur, body.flag())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "account updated", viewAccount(a))
}

func (s *Server) deleteAccount(c echo.Context) error {
	if err := s.Accounts.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "account deleted", nil)
}

func (s *Server) activateAccount(c echo.Context) error {
	a, err := s.Accounts.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "account activated", viewAccount(a))
}

type cardRequest struct {
	Name        *string `json:"name"`
	Number      *string `json:"number"`
	CVC         *string `json:"cvc"`
	ExpiryMonth *int    `json:"expiry_month"`
	ExpiryYear  *int    `json:"expiry_year"`
	activeFlags
}

type cardView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	IsActive    bool   `json:"is_active"`
	IsUsed      bool   `json:"is_used"`
}

func viewCard(cd credentials.Card) cardView {
	return cardView{
		ID:          cd.ID,
		Name:        cd.Name,
		Number:      cd.Masked(),
		ExpiryMonth: cd.ExpiryMonth,
		ExpiryYear:  cd.ExpiryYear,
		IsActive:    cd.IsActive,
		IsUsed:      cd.IsActive,
	}
}

func (r cardRequest) apply(cd *credentials.Card) {
	if r.Name != nil {
		cd.Name = *r.Name
	}
	if r.Number != nil {
		cd.Number = *r.Number
	}
	if r.CVC != nil {
		cd.CVC = *r.CVC
	}
	if r.ExpiryMonth != nil {
		cd.ExpiryMonth = *r.ExpiryMonth
	}
	if r.ExpiryYear != nil {
		cd.ExpiryYear = *r.ExpiryYear
	}
}

func (s *Server) createCard(c echo.Context) error {
	var body cardRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	switch {
	case body.Name == nil:
		return missing("name")
	case body.Number == nil:
		return missing("number")
	case body.CVC == nil:
		return missing("cvc")
	case body.ExpiryMonth == nil:
		return missing("expiry_month")
	case body.ExpiryYear == nil:
		return missing("expiry_year")
	}
	var cd credentials.Card
	body.apply(&cd)
	activate := body.flag() != nil && *body.flag()
	created, err := s.Cards.Create(c.Request().Context(), cd, activate)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "credit card created", viewCard(created))
}

func (s *Server) listCards(c echo.Context) error {
	all, err := s.Cards.List(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]cardView, 0, len(all))
	for _, cd := range all {
		out = append(out, viewCard(cd))
	}
	return ok(c, http.StatusOK, "credit cards", out)
}

func (s *Server) updateCard(c echo.Context) error {
	var body cardRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cur, err := s.Cards.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	// the listed number is masked; sending it back keeps the stored one
	if body.Number != nil && *body.Number == cur.Masked() {
		body.Number = nil
	}
	body.apply(&cur)
	cd, err := s.Cards.Update(ctx, cur, body.flag())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "credit card updated", viewCard(cd))
}

func (s *Server) deleteCard(c echo.Context) error {
	if err := s.Cards.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "credit card deleted", nil)
}

func (s *Server) activateCard(c echo.Context) error {
	cd, err := s.Cards.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "credit card activated", viewCard(cd))
}

func (s *Server) remainingHours(c echo.Context) error {
	res, err := s.Allowance.Query(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, allowance.SuccessMessage, res)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var body loginRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	sess, err := s.Auth.Authenticate(c.Request().Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return apperr.Wrap(apperr.Store, err, "authenticate")
	}
	if err := s.Auth.SetSession(c.Response(), c.Request(), sess); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "logged in", map[string]string{"username": sess.Username})
}

func (s *Server) logout(c echo.Context) error {
	s.Auth.ClearSession(c.Response())
	return ok(c, http.StatusOK, "logged out", nil)
}
