package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/velsoria/argus/internal/storage"
)

// UserStore is the slice of storage the auth handler needs.
type UserStore interface {
	UserByUsername(ctx context.Context, username string) (*storage.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*storage.User, error)
}

type AuthHandler struct {
	log      *slog.Logger
	store    UserStore
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthHandler(log *slog.Logger, store UserStore, appSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{log: log, store: store, secret: []byte(appSecret), tokenTTL: tokenTTL}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Login authenticates a dashboard account, creating it on first use, and
// issues a signed bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Password) < 6 {
		writeError(c, http.StatusBadRequest, "username must be at least 3 and password at least 6 characters")
		return
	}

	user, err := h.store.UserByUsername(c.Request.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if hashErr != nil {
			h.log.Error("password hash failed", slog.String("err", hashErr.Error()))
			writeError(c, http.StatusInternalServerError, "internal error")
			return
		}
		user, err = h.store.CreateUser(c.Request.Context(), req.Username, string(hash))
	}
	if err != nil {
		h.log.Error("login lookup failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		h.log.Error("token signing failed", slog.String("err", err.Error()))
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(c, http.StatusOK, map[string]any{
		"token": token,
		"user":  userResponse{ID: user.ID, Username: user.Username},
	})
}

func (h *AuthHandler) issueToken(user *storage.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(h.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}
