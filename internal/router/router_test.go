package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-catalog/internal/config"
	"github.com/javajoker/partner-catalog/internal/database/dbtest"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "router-test", AccessTokenTTL: 1},
		I18n:        config.I18nConfig{DefaultLocale: "en"},
		CORS:        config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func TestInitializeRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	cfg := testConfig()

	svc, err := NewServices(db, cfg)
	require.NoError(t, err)
	require.NotNil(t, svc.Partner)
	require.NotNil(t, svc.Admin)

	r := Initialize(db, cfg, svc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"update requires a token", "POST", "/v1/partner/update", `{"url":"https://acme.example/feed.yaml"}`, http.StatusUnauthorized},
		{"state requires a token", "GET", "/v1/partner/state", "", http.StatusUnauthorized},
		{"admin requires a token", "GET", "/v1/admin/dashboard/stats", "", http.StatusUnauthorized},
		{"profile requires a token", "GET", "/v1/auth/me", "", http.StatusUnauthorized},
		{"unknown route", "GET", "/v1/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	req, _ := http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
