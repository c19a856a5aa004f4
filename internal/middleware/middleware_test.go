package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "studyplan/backend/internal/errors"
)

type staticTokens map[string]string

func (s staticTokens) ParseToken(token string) (string, *apperrors.APIError) {
	if userID, ok := s[token]; ok {
		return userID, nil
	}
	return "", apperrors.Unauthorized("invalid token")
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Auth(staticTokens{"good": "u1"}))
	engine.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	cases := []struct {
		header string
		status int
		body   string
	}{
		{header: "Bearer good", status: http.StatusOK, body: "u1"},
		{header: "Bearer bad", status: http.StatusUnauthorized},
		{header: "Bearer ", status: http.StatusUnauthorized},
		{header: "good", status: http.StatusUnauthorized},
		{header: "", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Errorf("Authorization %q: status %d, want %d", tc.header, rec.Code, tc.status)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Errorf("Authorization %q: body %q, want %q", tc.header, rec.Body.String(), tc.body)
		}
	}
}

func TestCORSWildcard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS([]string{"*"}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != corsExposeHeaders {
		t.Fatalf("expose-headers = %q", got)
	}
}
