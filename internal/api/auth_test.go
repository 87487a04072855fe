package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndParseToken(t *testing.T) {
	raw, err := MintToken(testSecret, "operator", time.Minute)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	claims, err := ParseToken(testSecret, raw)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "operator" || claims.Issuer != tokenIssuer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestMintToken_EmptySecret(t *testing.T) {
	if _, err := MintToken("", "operator", time.Minute); err == nil {
		t.Error("MintToken() with empty secret should fail")
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := MintToken(testSecret, "operator", -time.Minute)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	otherSecret, err := MintToken("another-secret-key-at-least-32-characters", "operator", time.Minute)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: tokenIssuer,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"wrong issuer", wrongIssuer},
		{"no expiry", noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(testSecret, tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ParseToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, testSecret)

	valid, err := MintToken(testSecret, "operator", time.Minute)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	tests := []struct {
		name   string
		path   string
		token  string
		header string
		want   int
	}{
		{"health is public", "/api/v1/health", "", "", http.StatusOK},
		{"missing token", "/api/v1/node/args", "", "", http.StatusUnauthorized},
		{"bad token", "/api/v1/node/args", "nope", "", http.StatusUnauthorized},
		{"valid token", "/api/v1/node/args", valid, "", http.StatusOK},
		{"lowercase scheme", "/api/v1/node/args", "", "bearer " + valid, http.StatusOK},
		{"basic scheme", "/api/v1/node/args", "", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.header == "" {
				if w := env.do(t, http.MethodGet, tt.path, "", tt.token); w.Code != tt.want {
					t.Errorf("status = %d, want %d", w.Code, tt.want)
				}
				return
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_RestartRequiresToken(t *testing.T) {
	env := newTestEnv(t, testSecret)

	if w := env.do(t, http.MethodPost, "/api/v1/node/restart", restartBody, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(env.node.restarts) != 0 {
		t.Error("unauthenticated restart reached the node")
	}
}

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()

	ticket := ts.issue()
	if len(ticket) != ticketBytes*2 {
		t.Errorf("ticket length = %d, want %d", len(ticket), ticketBytes*2)
	}
	if !ts.redeem(ticket) {
		t.Error("fresh ticket should be valid")
	}
	if ts.redeem(ticket) {
		t.Error("ticket should be single-use")
	}
	if ts.redeem("unknown") {
		t.Error("unknown ticket should be invalid")
	}

	expired := ts.issue()
	ts.mu.Lock()
	ts.tickets[expired] = time.Now().Add(-time.Second)
	ts.mu.Unlock()

	ts.cleanExpired()
	ts.mu.Lock()
	_, stillThere := ts.tickets[expired]
	ts.mu.Unlock()
	if stillThere {
		t.Error("cleanExpired() left an expired ticket")
	}
}
