package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/middleware"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/pkg/response"
)

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Register creates an account and signs the user in
// POST /users/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	session, err := h.authService.Register(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.ContextUserID, session.User.ID)
	c.Set(middleware.ContextEmail, session.User.Email)
	setTokenCookie(c, session.Token, session.ExpireAt)
	response.Created(c, gin.H{"user": session.User, "token": session.Token})
}

// Login handles user login
// POST /users/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	session, err := h.authService.Login(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.ContextUserID, session.User.ID)
	c.Set(middleware.ContextEmail, session.User.Email)
	setTokenCookie(c, session.Token, session.ExpireAt)
	response.Success(c, session)
}

// Refresh exchanges a refresh token for a new token pair
// POST /users/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	session, err := h.authService.Refresh(req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	setTokenCookie(c, session.Token, session.ExpireAt)
	response.Success(c, session)
}

// Logout revokes the refresh token, if given, and clears the token cookie
// POST /users/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.RevokeRefreshToken(req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}

	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", false, true)
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// Profile returns the current user
// GET /users/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.userService.GetByID(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"user": user})
}

// All lists every other user, for picking collaborators
// GET /users/all
func (h *AuthHandler) All(c *gin.Context) {
	users, err := h.userService.ListOthers(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"users": users})
}

// Config returns authentication configuration
// GET /users/config
func (h *AuthHandler) Config(c *gin.Context) {
	response.Success(c, gin.H{"ldap_enabled": h.authService.IsLDAPEnabled()})
}

func setTokenCookie(c *gin.Context, token string, expireAt time.Time) {
	maxAge := int(time.Until(expireAt).Seconds())
	if maxAge <= 0 {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", false, true)
}
