package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velsoria/argus/internal/storage"
)

const testAppSecret = "app-secret"

func newAuthTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.New(filepath.Join(t.TempDir(), "argus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := NewAuthHandler(testLogger(), store, testAppSecret, time.Hour)
	router := gin.New()
	router.POST("/api/auth/login", handler.Login)
	return router
}

func postLogin(t *testing.T, router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginCreatesAccountOnFirstUse(t *testing.T) {
	router := newAuthTestRouter(t)

	rec := postLogin(t, router, "operator", "hunter22")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "operator", resp.User.Username)

	token, err := jwt.Parse(resp.Token, func(*jwt.Token) (any, error) {
		return []byte(testAppSecret), nil
	})
	require.NoError(t, err)
	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, resp.User.ID, claims["sub"])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	router := newAuthTestRouter(t)

	require.Equal(t, http.StatusOK, postLogin(t, router, "operator", "hunter22").Code)

	rec := postLogin(t, router, "operator", "wrong-pass")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidatesCredentialShape(t *testing.T) {
	router := newAuthTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, postLogin(t, router, "ab", "hunter22").Code)
	assert.Equal(t, http.StatusBadRequest, postLogin(t, router, "operator", "short").Code)
}
