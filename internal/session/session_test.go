package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "a", &Data{Admin: true}, time.Hour); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get(ctx, "a")
	if err != nil || !data.Admin {
		t.Fatalf("Get = %+v, %v", data, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session should be gone, got %v", err)
	}

	s.Set(ctx, "b", &Data{Admin: true}, time.Hour)
	s.Delete(ctx, "b")
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session should be gone, got %v", err)
	}
}

func login(t *testing.T, m *Manager) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
	if err := m.Login(req.Context(), rec, req); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected one session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	return cookies[0]
}

func requestWith(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	if c != nil {
		req.AddCookie(c)
	}
	return req
}

func TestManagerLoginLogout(t *testing.T) {
	m, generated := NewManager("secret", NewMemoryStore(), time.Hour)
	if generated {
		t.Error("key should not be generated when a secret is given")
	}

	if m.IsAdmin(requestWith(nil)) {
		t.Error("request without cookie must not be admin")
	}

	cookie := login(t, m)
	if !m.IsAdmin(requestWith(cookie)) {
		t.Fatal("request with login cookie should be admin")
	}

	rec := httptest.NewRecorder()
	req := requestWith(cookie)
	m.Logout(req.Context(), rec, req)

	if m.IsAdmin(requestWith(cookie)) {
		t.Error("old cookie must stop working after logout")
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("logout should expire the cookie, got %v", c)
	}
}

func TestManagerRejectsForgedCookie(t *testing.T) {
	store := NewMemoryStore()
	m, _ := NewManager("secret", store, time.Hour)
	store.Set(context.Background(), "known-id", &Data{Admin: true}, time.Hour)

	forged := &http.Cookie{Name: CookieName, Value: "known-id"}
	if m.IsAdmin(requestWith(forged)) {
		t.Error("unsigned cookie must be rejected")
	}

	other, _ := NewManager("another-secret", store, time.Hour)
	cookie := login(t, other)
	if m.IsAdmin(requestWith(cookie)) {
		t.Error("cookie signed with a different secret must be rejected")
	}
}

func TestManagerRandomKey(t *testing.T) {
	a, generated := NewManager("", NewMemoryStore(), 0)
	if !generated {
		t.Error("empty secret should generate a key")
	}
	if a.ttl != DefaultTTL {
		t.Errorf("expected default ttl, got %v", a.ttl)
	}

	b, _ := NewManager("", NewMemoryStore(), 0)
	if b.IsAdmin(requestWith(login(t, a))) {
		t.Error("two random keys must not accept each other's cookies")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	s, err := NewRedisStore(url)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	id := "test-" + time.Now().Format("150405.000000")

	if err := s.Set(ctx, id, &Data{Admin: true}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := s.Get(ctx, id)
	if err != nil || !data.Admin {
		t.Fatalf("Get = %+v, %v", data, err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
