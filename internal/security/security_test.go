package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-32-bytes-long-enough"

func signToken(t *testing.T, secret, subject, issuer, audience string, expiresIn time.Duration) string {
	t.Helper()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
		Role: "reviewer",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	v := NewTokenVerifier(testSecret, "iqc", "iqc-api")

	subject, role, err := v.Verify(signToken(t, testSecret, "user-1", "iqc", "iqc-api", time.Hour))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "user-1" || role != "reviewer" {
		t.Errorf("got subject=%q role=%q", subject, role)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := NewTokenVerifier(testSecret, "iqc", "iqc-api")
	cases := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "another-secret-also-long-enough!", "user-1", "iqc", "iqc-api", time.Hour)},
		{"expired", signToken(t, testSecret, "user-1", "iqc", "iqc-api", -time.Hour)},
		{"wrong issuer", signToken(t, testSecret, "user-1", "other", "iqc-api", time.Hour)},
		{"wrong audience", signToken(t, testSecret, "user-1", "iqc", "other", time.Hour)},
		{"empty subject", signToken(t, testSecret, "", "iqc", "iqc-api", time.Hour)},
		{"garbage", "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := v.Verify(tc.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewTokenVerifier(testSecret, "", "")
	var gotActor string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(v, map[string]bool{"/health": true})(inner)

	// No token on a protected path.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	// Public path needs no token.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("public path: status = %d, want 200", rec.Code)
	}

	// Valid token sets the actor.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-7", "", "", time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	if gotActor != "user-7" {
		t.Errorf("actor = %q, want user-7", gotActor)
	}
}

func TestMiddleware_NilVerifierDisablesAuth(t *testing.T) {
	h := Middleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}
