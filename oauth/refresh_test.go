package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func tokenEndpoint(t *testing.T, access string, calls *int) oauth2.Endpoint {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + access + `","refresh_token":"refresh-2","expires_in":3600,"token_type":"bearer"}`))
	}))
	t.Cleanup(srv.Close)
	return oauth2.Endpoint{TokenURL: srv.URL}
}

func TestRefreshNowSwapsToken(t *testing.T) {
	calls := 0
	r := New(Options{
		ClientID:     "cid",
		ClientSecret: "sec",
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		Endpoint:     tokenEndpoint(t, "new", &calls),
	})

	if got := r.Token(); got != "old" {
		t.Fatalf("Token before refresh = %q", got)
	}
	if err := r.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if got := r.Token(); got != "new" {
		t.Fatalf("Token after refresh = %q", got)
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
	if exp := r.Expiry(); time.Until(exp) < 30*time.Minute {
		t.Errorf("expiry not updated: %v", exp)
	}
}

func TestRefreshNowWithoutRefreshToken(t *testing.T) {
	r := New(Options{AccessToken: "static"})
	if err := r.RefreshNow(context.Background()); err == nil {
		t.Fatal("expected error without refresh token")
	}
	if got := r.Token(); got != "static" {
		t.Fatalf("Token = %q, want static kept", got)
	}
}

func TestStartWithoutRefreshTokenIsNoop(t *testing.T) {
	r := New(Options{AccessToken: "static"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx) // must not panic or spin
	if got := r.Token(); got != "static" {
		t.Fatalf("Token = %q", got)
	}
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	r := New(Options{
		ClientID:     "cid",
		ClientSecret: "sec",
		AccessToken:  "old",
		RefreshToken: "keep-me",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
	})
	if err := r.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tok.RefreshToken != "keep-me" {
		t.Fatalf("refresh token = %q, want keep-me", r.tok.RefreshToken)
	}
}
