package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/MoneyMiii/tennis-booking/internal/allowance"
	"github.com/MoneyMiii/tennis-booking/internal/apperr"
	"github.com/MoneyMiii/tennis-booking/internal/auth"
	"github.com/MoneyMiii/tennis-booking/internal/booking"
	"github.com/MoneyMiii/tennis-booking/internal/credentials"
	"github.com/MoneyMiii/tennis-booking/internal/events"
	"github.com/MoneyMiii/tennis-booking/internal/lifecycle"
	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/logging"
	"github.com/MoneyMiii/tennis-booking/internal/site"
	"github.com/MoneyMiii/tennis-booking/internal/slots"
	"github.com/MoneyMiii/tennis-booking/internal/web"
)

var today = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type booker struct{ out booking.Outcome }

func (b *booker) Attempt(context.Context, site.Booking, credentials.Pair) booking.Outcome { return b.out }

type hours struct {
	res allowance.Result
	err error
}

func (h hours) Query(context.Context) (allowance.Result, error) { return h.res, h.err }

type fixture struct {
	srv    *web.Server
	store  *slots.MemoryStore
	booker *booker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := slots.NewMemoryStore()
	accounts := credentials.NewRegistry[credentials.Account](credentials.NewMemoryStore[credentials.Account](), "account")
	cards := credentials.NewRegistry[credentials.Card](credentials.NewMemoryStore[credentials.Card](), "credit card")
	b := &booker{out: booking.Outcome{Success: true, Message: booking.SuccessMessage}}
	ctrl := &lifecycle.Controller{
		Slots:  store,
		Creds:  credentials.Set{Accounts: accounts, Cards: cards},
		Booker: b,
		Locks:  lock.NewLocal(),
		Events: events.Nop{},
		Log:    logging.Discard(),
		Now:    func() time.Time { return today },
		Loc:    time.UTC,
	}
	return &fixture{
		srv: &web.Server{
			Slots:     ctrl,
			Accounts:  accounts,
			Cards:     cards,
			Allowance: hours{res: allowance.Result{CourtDecouvertHours: 5, CourtCouvertHours: 1}},
			Log:       logging.Discard(),
		},
		store:  store,
		booker: b,
	}
}

type response struct {
	IsSuccess bool            `json:"isSuccess"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) (int, response, *httptest.ResponseRecorder) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var r response
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, r, rec
}

func (f *fixture) activeCredentials(t *testing.T, h http.Handler) {
	t.Helper()
	if code, r, _ := do(t, h, http.MethodPost, "/account", `{"email":"me@example.com","password":"pw","is_used":true}`); code != http.StatusCreated {
		t.Fatalf("create account: %d %s", code, r.Message)
	}
	card := `{"name":"Me","number":"4111 1111 1111 1111","cvc":"123","expiry_month":3,"expiry_year":` + strconv.Itoa(time.Now().Year()+2) + `,"is_active":true}`
	if code, r, _ := do(t, h, http.MethodPost, "/credit_cards", card); code != http.StatusCreated {
		t.Fatalf("create card: %d %s", code, r.Message)
	}
}

func TestRoot(t *testing.T) {
	h := newFixture(t).srv.Echo()
	code, r, _ := do(t, h, http.MethodGet, "/", "")
	if code != http.StatusOK || !r.IsSuccess {
		t.Fatalf("GET / = %d %+v", code, r)
	}
}

func TestHealthz_PingFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Ping = func(context.Context) error { return errors.New("connection refused") }
	code, r, _ := do(t, f.srv.Echo(), http.MethodGet, "/healthz", "")
	if code != http.StatusInternalServerError || r.IsSuccess {
		t.Fatalf("healthz = %d %+v", code, r)
	}
}

func TestSlots_WaitingOutsideWindow(t *testing.T) {
	h := newFixture(t).srv.Echo()
	code, r, _ := do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-27","start_time":10,"end_time":12,"type":"indoor"}`)
	if code != http.StatusCreated || !r.IsSuccess {
		t.Fatalf("create = %d %+v", code, r)
	}
	var s struct {
		ID     string `json:"id"`
		Date   string `json:"date"`
		Status string `json:"status"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal(r.Data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Status != "waiting" || s.Date != "2026-10-27" || s.Type != "indoor" || s.ID == "" {
		t.Fatalf("slot = %+v", s)
	}

	code, r, _ = do(t, h, http.MethodGet, "/slots", "")
	if code != http.StatusOK || !strings.Contains(string(r.Data), s.ID) {
		t.Fatalf("list = %d %s", code, r.Data)
	}
}

func TestSlots_BookInsideWindow(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	f.activeCredentials(t, h)

	code, r, _ := do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-20","start_time":18,"end_time":20,"type":"both"}`)
	if code != http.StatusCreated || !r.IsSuccess || !strings.Contains(string(r.Data), `"status":"book"`) {
		t.Fatalf("create = %d %+v %s", code, r, r.Data)
	}

	code, r, _ = do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-20","start_time":10,"end_time":11,"type":"both"}`)
	if code != http.StatusBadRequest || r.IsSuccess || r.Message != lifecycle.BookedConflict {
		t.Fatalf("second = %d %+v", code, r)
	}

	all, _ := f.store.List(context.Background())
	code, _, _ = do(t, h, http.MethodDelete, "/slots/"+all[0].ID, "")
	if code != http.StatusBadRequest {
		t.Fatalf("delete booked = %d", code)
	}
}

func TestSlots_NoAvailability(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	f.activeCredentials(t, h)
	f.booker.out = booking.Outcome{Message: site.NoAvailabilityMessage, Kind: apperr.NoAvailability}

	code, r, _ := do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-19","start_time":10,"end_time":12,"type":"both"}`)
	if code != http.StatusOK || r.IsSuccess || r.Message != site.NoAvailabilityMessage {
		t.Fatalf("create = %d %+v", code, r)
	}
}

func TestSlots_BookingFailureIsNotSuccess(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	f.activeCredentials(t, h)
	f.booker.out = booking.Outcome{Message: "anti-bot challenge not passed after 3 attempts", Kind: apperr.Challenge}

	code, r, _ := do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-19","start_time":10,"end_time":12,"type":"both"}`)
	if code != http.StatusOK || r.IsSuccess || !strings.Contains(string(r.Data), `"status":"not_book"`) {
		t.Fatalf("create = %d %+v %s", code, r, r.Data)
	}
}

func TestSlots_Validation(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	cases := map[string]string{
		`{"start_time":10,"end_time":12,"type":"both"}`:                      "missing field: date",
		`{"date":"2026-10-19","end_time":12,"type":"both"}`:                  "missing field: start_time",
		`{"date":"2026-10-19","start_time":12,"end_time":10,"type":"both"}`:  "start_time must be before end_time",
		`{"date":"2026-10-10","start_time":10,"end_time":12,"type":"both"}`:  "date is in the past",
		`{"date":"2026-10-19","start_time":10,"end_time":12,"type":"grass"}`: `invalid court type "grass" (want outdoor, indoor or both)`,
		`{"date":`: "invalid request body",
	}
	for body, want := range cases {
		code, r, _ := do(t, h, http.MethodPost, "/slots", body)
		if code != http.StatusBadRequest || r.IsSuccess || !strings.HasPrefix(r.Message, want) {
			t.Errorf("%s => %d %q, want %q", body, code, r.Message, want)
		}
	}
	// creating inside the window without credentials
	code, r, _ := do(t, h, http.MethodPost, "/slots", `{"date":"2026-10-19","start_time":10,"end_time":12,"type":"both"}`)
	if code != http.StatusBadRequest || !strings.Contains(r.Message, "no active account") {
		t.Errorf("no credentials => %d %q", code, r.Message)
	}
}

func TestSlots_DeleteUnknown(t *testing.T) {
	h := newFixture(t).srv.Echo()
	code, r, _ := do(t, h, http.MethodDelete, "/slots/does-not-exist", "")
	if code != http.StatusNotFound || r.IsSuccess {
		t.Fatalf("delete = %d %+v", code, r)
	}
}

func TestAccounts(t *testing.T) {
	h := newFixture(t).srv.Echo()

	code, r, _ := do(t, h, http.MethodPost, "/accounts", `{"email":"a@example.com","password":"secret","is_used":true}`)
	if code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, r)
	}
	var first struct {
		ID       string `json:"id"`
		Password string `json:"password"`
		IsActive bool   `json:"is_active"`
	}
	_ = json.Unmarshal(r.Data, &first)
	if !first.IsActive || first.Password == "secret" {
		t.Fatalf("first = %+v", first)
	}

	code, r, _ = do(t, h, http.MethodPost, "/account", `{"email":"b@example.com","password":"pw2"}`)
	if code != http.StatusCreated {
		t.Fatalf("create second = %d %+v", code, r)
	}
	var second struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(r.Data, &second)

	if code, _, _ := do(t, h, http.MethodDelete, "/accounts/"+first.ID, ""); code != http.StatusBadRequest {
		t.Errorf("delete active = %d", code)
	}
	if code, _, _ := do(t, h, http.MethodPut, "/accounts/"+first.ID, `{"is_active":false}`); code != http.StatusBadRequest {
		t.Errorf("deactivate active = %d", code)
	}
	if code, _, _ := do(t, h, http.MethodPut, "/accounts/"+second.ID+"/activate", ""); code != http.StatusOK {
		t.Errorf("activate second = %d", code)
	}
	if code, _, _ := do(t, h, http.MethodDelete, "/accounts/"+first.ID, ""); code != http.StatusOK {
		t.Errorf("delete former active = %d", code)
	}

	code, r, _ = do(t, h, http.MethodGet, "/account", "")
	if code != http.StatusOK || strings.Contains(string(r.Data), "pw2") || !strings.Contains(string(r.Data), `"is_active":true`) {
		t.Fatalf("list = %d %s", code, r.Data)
	}
	if code, _, _ := do(t, h, http.MethodPut, "/accounts/"+first.ID+"/activate", ""); code != http.StatusNotFound {
		t.Errorf("activate deleted = %d", code)
	}
}

func TestCards(t *testing.T) {
	h := newFixture(t).srv.Echo()
	year := strconv.Itoa(time.Now().Year() + 1)

	code, r, _ := do(t, h, http.MethodPost, "/credit_cards", `{"name":"Me","number":"4111111111111111","cvc":"12","expiry_month":1,"expiry_year":`+year+`}`)
	if code != http.StatusBadRequest || !strings.Contains(r.Message, "cvc") {
		t.Fatalf("bad cvc = %d %q", code, r.Message)
	}
	code, r, _ = do(t, h, http.MethodPost, "/credit_cards", `{"name":"Me","number":"4111111111111111","cvc":"123","expiry_month":1}`)
	if code != http.StatusBadRequest || r.Message != "missing field: expiry_year" {
		t.Fatalf("missing year = %d %q", code, r.Message)
	}

	code, r, _ = do(t, h, http.MethodPost, "/credit_cards", `{"name":"Me","number":"4111111111111111","cvc":"123","expiry_month":1,"expiry_year":`+year+`}`)
	if code != http.StatusCreated {
		t.Fatalf("create = %d %q", code, r.Message)
	}
	if !strings.Contains(string(r.Data), `"number":"************1111"`) || strings.Contains(string(r.Data), "cvc") {
		t.Fatalf("card view = %s", r.Data)
	}
	var card struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(r.Data, &card)

	code, r, _ = do(t, h, http.MethodPut, "/credit_cards/"+card.ID, `{"expiry_month":13}`)
	if code != http.StatusBadRequest {
		t.Fatalf("update bad month = %d %q", code, r.Message)
	}
	code, r, _ = do(t, h, http.MethodPut, "/credit_cards/"+card.ID, `{"name":"Other","is_used":true}`)
	if code != http.StatusOK || !strings.Contains(string(r.Data), `"name":"Other"`) || !strings.Contains(string(r.Data), `"is_active":true`) {
		t.Fatalf("update = %d %s", code, r.Data)
	}
}

func TestAccounts_EditListedAccountKeepsPassword(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	if code, r, _ := do(t, h, http.MethodPost, "/accounts", `{"email":"a@example.com","password":"secret","is_used":true}`); code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, r)
	}

	_, r, _ := do(t, h, http.MethodGet, "/accounts", "")
	var listed []map[string]any
	if err := json.Unmarshal(r.Data, &listed); err != nil || len(listed) != 1 {
		t.Fatalf("list = %s, %v", r.Data, err)
	}
	row := listed[0]
	if row["is_used"] != true || row["is_active"] != true {
		t.Fatalf("row = %v", row)
	}

	row["email"] = "b@example.com"
	body, _ := json.Marshal(row)
	if code, r, _ := do(t, h, http.MethodPut, "/accounts/"+row["id"].(string), string(body)); code != http.StatusOK {
		t.Fatalf("update = %d %+v", code, r)
	}

	stored, err := f.srv.Accounts.Get(context.Background(), row["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if stored.Email != "b@example.com" || stored.Password != "secret" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCards_EditListedCardKeepsNumber(t *testing.T) {
	f := newFixture(t)
	h := f.srv.Echo()
	year := strconv.Itoa(time.Now().Year() + 1)
	if code, r, _ := do(t, h, http.MethodPost, "/credit_cards", `{"name":"Me","number":"4111111111111111","cvc":"123","expiry_month":1,"expiry_year":`+year+`}`); code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, r)
	}

	_, r, _ := do(t, h, http.MethodGet, "/credit_cards", "")
	var listed []map[string]any
	if err := json.Unmarshal(r.Data, &listed); err != nil || len(listed) != 1 {
		t.Fatalf("list = %s, %v", r.Data, err)
	}
	row := listed[0]
	if row["is_used"] != false {
		t.Fatalf("row = %v", row)
	}
	row["name"] = "Other"
	body, _ := json.Marshal(row)
	if code, r, _ := do(t, h, http.MethodPut, "/credit_cards/"+row["id"].(string), string(body)); code != http.StatusOK {
		t.Fatalf("update = %d %+v", code, r)
	}

	stored, err := f.srv.Cards.Get(context.Background(), row["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "Other" || stored.Number != "4111111111111111" || stored.CVC != "123" {
		t.Fatalf("stored = %+v", stored)
	}

	// a partial mask is neither the stored number nor a valid one
	code, r, _ := do(t, h, http.MethodPut, "/credit_cards/"+row["id"].(string), `{"number":"****1111"}`)
	if code != http.StatusBadRequest || !strings.Contains(r.Message, "number") {
		t.Fatalf("masked number = %d %q", code, r.Message)
	}
}

func TestRemainingHours(t *testing.T) {
	h := newFixture(t).srv.Echo()
	code, r, _ := do(t, h, http.MethodGet, "/remaining_hours", "")
	if code != http.StatusOK || r.Message != allowance.SuccessMessage {
		t.Fatalf("remaining = %d %+v", code, r)
	}
	if string(r.Data) != `{"court_decouvert_hours":5,"court_couvert_hours":1}` {
		t.Fatalf("data = %s", r.Data)
	}
}

func TestRemainingHours_AutomationFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Allowance = hours{err: apperr.E(apperr.Timeout, "login timed out")}
	code, r, _ := do(t, f.srv.Echo(), http.MethodGet, "/remaining_hours", "")
	if code != http.StatusBadGateway || r.IsSuccess {
		t.Fatalf("remaining = %d %+v", code, r)
	}
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)
	svc := auth.NewService(auth.NewMemoryAdmins(), securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	if _, err := svc.CreateAdmin(context.Background(), "admin", "s3cret"); err != nil {
		t.Fatal(err)
	}
	f.srv.Auth = svc
	h := f.srv.Echo()

	if code, _, _ := do(t, h, http.MethodGet, "/accounts", ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", code)
	}
	if code, _, _ := do(t, h, http.MethodGet, "/slots", ""); code != http.StatusOK {
		t.Fatalf("slots stay public = %d", code)
	}
	if code, _, _ := do(t, h, http.MethodPost, "/login", `{"username":"admin","password":"nope"}`); code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", code)
	}
	code, _, rec := do(t, h, http.MethodPost, "/login", `{"username":"admin","password":"s3cret"}`)
	if code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}
	cookies := rec.Result().Cookies()
	if code, _, _ := do(t, h, http.MethodGet, "/accounts", "", cookies...); code != http.StatusOK {
		t.Fatalf("authed = %d", code)
	}
}
