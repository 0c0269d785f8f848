package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"storefront/api/middleware"
	"storefront/api/models"
	"storefront/api/store"
	"storefront/api/utils"
)

// AccountStore is the account persistence the auth endpoints need.
type AccountStore interface {
	CreateAccount(ctx context.Context, email string, hashedPassword []byte) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

type AuthHandlers struct {
	accounts     AccountStore
	tokens       *utils.TokenIssuer
	allowSignup  bool
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandlers(accounts AccountStore, tokens *utils.TokenIssuer, allowSignup, secureCookie bool, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		accounts:     accounts,
		tokens:       tokens,
		allowSignup:  allowSignup,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	if !h.allowSignup {
		c.JSON(http.StatusForbidden, gin.H{"error": "Signup is disabled"})
		return
	}

	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("Failed to hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	account, err := h.accounts.CreateAccount(c.Request.Context(), req.Email, hashedPassword)
	if errors.Is(err, store.ErrAccountExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Account with this email already exists"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to create account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register account"})
		return
	}

	h.logger.Info("Account registered", "accountId", account.ID)
	c.JSON(http.StatusCreated, gin.H{"message": "Account registered successfully", "email": account.Email})
}

// Login checks credentials and issues a JWT as an HttpOnly cookie and in the
// response body.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	account, err := h.accounts.GetAccountByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to look up account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(account.HashedPassword, []byte(req.Password)); err != nil {
		h.logger.Info("Login failed: password mismatch", "accountId", account.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.tokens.Generate(account)
	if err != nil {
		h.logger.Error("Failed to generate JWT", "accountId", account.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, tokenString, int(h.tokens.TTL().Seconds()), "/", "", h.secureCookie, true)

	h.logger.Info("Account logged in", "accountId", account.ID)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"email":   account.Email,
		"token":   tokenString,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Profile reports who the current request is authenticated as.
func (h *AuthHandlers) Profile(c *gin.Context) {
	resp := gin.H{
		"authMethod": c.GetString(middleware.ContextAuthMethod),
		"ipAddress":  c.ClientIP(),
	}
	if c.GetString(middleware.ContextAuthMethod) == middleware.AuthMethodJWT {
		resp["accountId"] = c.GetInt(middleware.ContextAccountID)
		resp["email"] = c.GetString(middleware.ContextAccountEmail)
	}
	c.JSON(http.StatusOK, resp)
}
