package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homeserve/backend/internal/domain"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := Sign("secret", "u1", domain.RoleClient, time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	ident, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ident.UserID != "u1" || ident.Role != domain.RoleClient {
		t.Fatalf("identity = %+v, want u1/client", ident)
	}
}

func TestVerifier_Rejections(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := Sign("secret", "u1", domain.RoleClient, -time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	wrongKey, err := Sign("other", "u1", domain.RoleClient, time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	badRole, err := Sign("secret", "u1", domain.Role("root"), time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	noSubject, err := Sign("secret", "", domain.RoleClient, time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"unknown role", badRole},
		{"missing subject", noSubject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestMiddleware_InjectsIdentity(t *testing.T) {
	v := NewVerifier("secret")
	token, err := Sign("secret", "u1", domain.RoleProvider, time.Minute)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	var got Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		got = ident
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != "u1" || got.Role != domain.RoleProvider {
		t.Fatalf("identity = %+v, want u1/provider", got)
	}
}

func TestMiddleware_MissingOrBadToken(t *testing.T) {
	v := NewVerifier("secret")
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"bad token", "Bearer nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestSchedulerAuth(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

	t.Run("valid token passes", func(t *testing.T) {
		handler := SchedulerAuth("s3cret")(http.HandlerFunc(ok))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(SchedulerHeader, "s3cret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		handler := SchedulerAuth("s3cret")(http.HandlerFunc(ok))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(SchedulerHeader, "guess")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("empty secret disables the routes", func(t *testing.T) {
		handler := SchedulerAuth("")(http.HandlerFunc(ok))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(SchedulerHeader, "")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}
