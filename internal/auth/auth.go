// Package auth guards operator actions with a bcrypt password and a signed,
// encrypted session cookie.
package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/court-scheduler/internal/internaltypes"
)

const (
	cookieName = "courtsched_session"
	sessionTTL = 14 * 24 * time.Hour
)

// ErrInvalidCredentials is returned for a wrong or unconfigured password.
var ErrInvalidCredentials = internaltypes.New("invalid credentials")

type Store struct {
	sc           *securecookie.SecureCookie
	passwordHash string
	now          func() time.Time
}

// NewStore builds a session store. With nil keys, random ones are generated
// and sessions do not survive a restart. An empty passwordHash disables
// login.
func NewStore(hashKey, blockKey []byte, passwordHash string) *Store {
	if hashKey == nil || blockKey == nil {
		hashKey = securecookie.GenerateRandomKey(32)
		blockKey = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Store{sc: sc, passwordHash: passwordHash, now: time.Now}
}

func HashPassword(pw string) (string, error) {
	if pw == "" {
		return "", internaltypes.Configf("password", "", "required")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// LoginEnabled reports whether an operator password is configured.
func (s *Store) LoginEnabled() bool { return s.passwordHash != "" }

func (s *Store) Authenticate(password string) error {
	if !s.LoginEnabled() || !CheckPassword(s.passwordHash, password) {
		return ErrInvalidCredentials
	}
	return nil
}

type Session struct {
	IssuedAt time.Time
}

type sessionValue struct {
	Operator bool  `json:"op"`
	Issued   int64 `json:"iat"`
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request) error {
	encoded, err := s.sc.Encode(cookieName, sessionValue{Operator: true, Issued: s.now().Unix()})
	if err != nil {
		return internaltypes.Wrap(err, "encode session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var v sessionValue
	if err := s.sc.Decode(cookieName, c.Value, &v); err != nil || !v.Operator {
		return Session{}, false
	}
	return Session{IssuedAt: time.Unix(v.Issued, 0)}, true
}

// RequireAuth rejects requests without an operator session with 401.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.GetSession(r); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"login required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
