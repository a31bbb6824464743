// Package auth guards the credential endpoints with an admin login and a
// signed, encrypted session cookie.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/MoneyMiii/tennis-booking/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("admin already exists")
)

const (
	cookieName = "tennisbook_session"
	sessionTTL = 14 * 24 * time.Hour
	contextKey = "admin"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Admins stores admin users and their bcrypt hashes.
type Admins interface {
	Create(ctx context.Context, username, hash string) (int64, error)
	Lookup(ctx context.Context, username string) (id int64, hash string, err error)
}

type AdminRepo struct {
	db *db.DB
}

func NewAdminRepo(d *db.DB) *AdminRepo {
	return &AdminRepo{db: d}
}

func (r *AdminRepo) Create(ctx context.Context, username, hash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO admins(username, password_bcrypt) VALUES ($1,$2) RETURNING id`, username, hash).Scan(&id)
	if db.IsUniqueViolation(err, "admins_username_key") {
		return 0, ErrUserExists
	}
	return id, err
}

func (r *AdminRepo) Lookup(ctx context.Context, username string) (int64, string, error) {
	var id int64
	var hash string
	err := r.db.QueryRow(ctx, `SELECT id, password_bcrypt FROM admins WHERE username=$1`, username).Scan(&id, &hash)
	if err != nil {
		return 0, "", db.WrapNotFound(err)
	}
	return id, hash, nil
}

// MemoryAdmins keeps admins in process.
type MemoryAdmins struct {
	mu    sync.Mutex
	users map[string]memoryAdmin
}

type memoryAdmin struct {
	id   int64
	hash string
}

func NewMemoryAdmins() *MemoryAdmins {
	return &MemoryAdmins{users: make(map[string]memoryAdmin)}
}

func (m *MemoryAdmins) Create(_ context.Context, username, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return 0, ErrUserExists
	}
	id := int64(len(m.users) + 1)
	m.users[username] = memoryAdmin{id: id, hash: hash}
	return id, nil
}

func (m *MemoryAdmins) Lookup(_ context.Context, username string) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return 0, "", db.ErrNotFound
	}
	return u.id, u.hash, nil
}

// Session is what the cookie carries.
type Session struct {
	AdminID  int64
	Username string
	Expires  int64
}

type Service struct {
	admins Admins
	sc     *securecookie.SecureCookie
	now    func() time.Time
}

func NewService(admins Admins, hashKey, blockKey []byte) *Service {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Service{admins: admins, sc: sc, now: time.Now}
}

func (s *Service) CreateAdmin(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, errors.New("username and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.admins.Create(ctx, username, hash)
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (Session, error) {
	id, hash, err := s.admins.Lookup(ctx, strings.TrimSpace(username))
	if errors.Is(err, db.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(hash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return Session{AdminID: id, Username: strings.TrimSpace(username), Expires: s.now().Add(sessionTTL).Unix()}, nil
}

func (s *Service) SetSession(w http.ResponseWriter, r *http.Request, sess Session) error {
	encoded, err := s.sc.Encode(cookieName, sess)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Service) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Service) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return Session{}, false
	}
	if sess.AdminID <= 0 || s.now().Unix() > sess.Expires {
		return Session{}, false
	}
	return sess, true
}

// RequireAdmin rejects requests without a valid session cookie.
func (s *Service) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, ok := s.GetSession(c.Request())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		c.Set(contextKey, sess)
		return next(c)
	}
}

func FromContext(c echo.Context) (Session, bool) {
	sess, ok := c.Get(contextKey).(Session)
	return sess, ok
}
