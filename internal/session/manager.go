package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	CookieName = "promptreel_session"
	DefaultTTL = 24 * time.Hour
)

// Manager ties the signed cookie to server-side session data.
type Manager struct {
	codec *securecookie.SecureCookie
	store Store
	ttl   time.Duration
}

// NewManager derives the cookie signing key from secret. An empty secret gets
// a random key, which invalidates every session on restart; generated reports
// whether that happened.
func NewManager(secret string, store Store, ttl time.Duration) (m *Manager, generated bool) {
	var hashKey []byte
	if secret == "" {
		hashKey = securecookie.GenerateRandomKey(32)
		generated = true
	} else {
		sum := sha256.Sum256([]byte(secret))
		hashKey = sum[:]
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	codec := securecookie.New(hashKey, nil)
	codec.MaxAge(int(ttl.Seconds()))

	return &Manager{codec: codec, store: store, ttl: ttl}, generated
}

// Login starts a fresh admin session and sets its cookie on w.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	// never reuse a session id that existed before authentication
	m.destroy(ctx, r)

	id := uuid.NewString()
	if err := m.store.Set(ctx, id, &Data{Admin: true, CreatedAt: time.Now().UTC()}, m.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	encoded, err := m.codec.Encode(CookieName, id)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the admin flag and expires the cookie.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	m.destroy(ctx, r)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// IsAdmin reports whether r carries a valid admin session.
func (m *Manager) IsAdmin(r *http.Request) bool {
	data, err := m.load(r.Context(), r)
	return err == nil && data.Admin
}

func (m *Manager) load(ctx context.Context, r *http.Request) (*Data, error) {
	id, err := m.sessionID(r)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, id)
}

func (m *Manager) destroy(ctx context.Context, r *http.Request) {
	if id, err := m.sessionID(r); err == nil {
		m.store.Delete(ctx, id)
	}
}

func (m *Manager) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrNotFound
	}

	var id string
	if err := m.codec.Decode(CookieName, cookie.Value, &id); err != nil {
		return "", errors.Join(ErrNotFound, err)
	}
	return id, nil
}
