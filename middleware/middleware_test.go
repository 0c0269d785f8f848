package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/logging"
	"storefront/api/models"
	"storefront/api/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func protectedRouter(t *testing.T, apiKey string) (*gin.Engine, *utils.TokenIssuer) {
	t.Helper()
	tokens, err := utils.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/private", AuthRequired(tokens, apiKey, logging.Discard()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"method":  c.GetString(ContextAuthMethod),
			"account": c.GetInt(ContextAccountID),
		})
	})
	return r, tokens
}

func doGet(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired_APIKey(t *testing.T) {
	r, _ := protectedRouter(t, "static-key")

	w := doGet(r, map[string]string{"X-API-KEY": "static-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), AuthMethodAPIKey)

	assert.Equal(t, http.StatusUnauthorized, doGet(r, map[string]string{"X-API-KEY": "wrong"}).Code)
}

func TestAuthRequired_EmptyKeyNeverMatches(t *testing.T) {
	r, _ := protectedRouter(t, "")

	assert.Equal(t, http.StatusUnauthorized, doGet(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, map[string]string{"X-API-KEY": ""}).Code)
}

func TestAuthRequired_BearerAndCookie(t *testing.T) {
	r, tokens := protectedRouter(t, "")
	token, err := tokens.Generate(&models.Account{ID: 7, Email: "ops@shop.example.com"})
	require.NoError(t, err)

	w := doGet(r, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"method":"jwt","account":7}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
	cw := httptest.NewRecorder()
	r.ServeHTTP(cw, req)
	assert.Equal(t, http.StatusOK, cw.Code)

	assert.Equal(t, http.StatusUnauthorized, doGet(r, map[string]string{"Authorization": "Bearer not-a-token"}).Code)
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example.com"}))
	r.POST("/api/track", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/track", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestLogger_LevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "warn", "text")

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Empty(t, buf.String())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Contains(t, buf.String(), "Request rejected")
	assert.Contains(t, buf.String(), "status=400")
}
