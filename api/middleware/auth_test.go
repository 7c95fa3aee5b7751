package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/coachcredits-backend/pkg/auth"
	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	"github.com/google/uuid"
)

func testTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	return tokens
}

func mintTestToken(t *testing.T, tokens *auth.Tokens, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := tokens.Mint(time.Now(), userID, role)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testTokens(t), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testTokens(t), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	tokens := testTokens(t)
	userID := uuid.New()
	token := mintTestToken(t, tokens, userID, enums.UserRoleCoach)

	var capturedUser uuid.UUID
	var capturedRole enums.UserRole
	handler := Auth(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUser, _ = UserUUIDFromContext(r.Context())
		capturedRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if capturedUser != userID {
		t.Fatalf("expected user %s got %s", userID, capturedUser)
	}
	if capturedRole != enums.UserRoleCoach {
		t.Fatalf("expected role coach got %s", capturedRole)
	}
}

func TestRequireStaff(t *testing.T) {
	tests := []struct {
		role enums.UserRole
		want int
	}{
		{enums.UserRoleOwner, http.StatusOK},
		{enums.UserRoleAdmin, http.StatusOK},
		{enums.UserRoleCoach, http.StatusForbidden},
		{enums.UserRoleClient, http.StatusForbidden},
		{"", http.StatusForbidden},
	}

	for _, tt := range tests {
		handler := RequireStaff(nil)(okHandler())
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(context.Background(), tt.role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tt.want {
			t.Fatalf("role %q: expected %d got %d", tt.role, tt.want, resp.Code)
		}
	}
}

func TestUserUUIDFromContextRejectsMalformed(t *testing.T) {
	if _, ok := UserUUIDFromContext(WithUserID(context.Background(), "not-a-uuid")); ok {
		t.Fatal("expected malformed id to be rejected")
	}
	if _, ok := UserUUIDFromContext(context.Background()); ok {
		t.Fatal("expected missing id to be rejected")
	}
}
