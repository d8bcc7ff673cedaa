package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newInternalRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/internal/adjustment", InternalAuth(apiKey), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestInternalAuth(t *testing.T) {
	router := newInternalRouter("sekrit")

	cases := []struct {
		name   string
		key    string
		status int
	}{
		{"correct key", "sekrit", http.StatusOK},
		{"wrong key", "guess", http.StatusForbidden},
		{"missing key", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/internal/adjustment", nil)
		if tc.key != "" {
			req.Header.Set("X-Internal-Api-Key", tc.key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.status)
		}
	}
}

func TestInternalAuthRejectsUserToken(t *testing.T) {
	router := newInternalRouter("sekrit")

	req := httptest.NewRequest("POST", "/internal/adjustment", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("user token reached internal route: status %d", w.Code)
	}
}

func TestInternalAuthFailsClosedWithoutConfiguredKey(t *testing.T) {
	router := newInternalRouter("")

	req := httptest.NewRequest("POST", "/internal/adjustment", nil)
	req.Header.Set("X-Internal-Api-Key", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("empty configured key must reject everything: status %d", w.Code)
	}
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token rejected: status %d", w.Code)
	}
	if w.Body.String() != "user-1" {
		t.Fatalf("userID = %q, want user-1", w.Body.String())
	}

	req = httptest.NewRequest("GET", "/protected", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other-secret"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status = %d, want 401", w.Code)
	}
}
