package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/pkg/auth"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
)

func newRouter(tokens *auth.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID(), ErrorHandler(logger.NewNop()))

	r.GET("/me", Auth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	r.GET("/admin", Auth(tokens), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Error(errors.NewOutOfStock(7, "Widget", 3, 1))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestAuth_MissingToken(t *testing.T) {
	r := newRouter(auth.NewTokenManager("s"))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidToken(t *testing.T) {
	tokens := auth.NewTokenManager("s")
	token, err := tokens.Issue(auth.Identity{UserID: 9, Name: "Ana"}, auth.PurposeAccess, time.Hour)
	require.NoError(t, err)
	r := newRouter(tokens)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":9}`, w.Body.String())
}

func TestRequireAdmin_RejectsRegularUser(t *testing.T) {
	tokens := auth.NewTokenManager("s")
	token, err := tokens.Issue(auth.Identity{UserID: 9, Name: "Ana"}, auth.PurposeAccess, time.Hour)
	require.NoError(t, err)
	r := newRouter(tokens)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	r := newRouter(auth.NewTokenManager("s"))
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(TraceIDHeader, "trace-1")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeOutOfStock, body.Error.Code)
	assert.Equal(t, "trace-1", body.TraceID)
	details, ok := body.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 7, details["product_id"])
}

func TestErrorHandler_RecoversPanic(t *testing.T) {
	r := newRouter(auth.NewTokenManager("s"))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeInternal)
}
