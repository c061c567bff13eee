package handlers

import (
	"net/http"
	"piiquante/internal/middleware"
	"piiquante/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth       *services.AuthService
	useSession bool
}

func NewAuthHandler(auth *services.AuthService, useSession bool) *AuthHandler {
	return &AuthHandler{auth: auth, useSession: useSession}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created"})
}

// Login handles POST /api/auth/login. With sessions enabled the token is
// also kept in the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.useSession {
		session := sessions.Default(c)
		session.Set(middleware.SessionTokenKey, token)
		if err := session.Save(); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "token": token})
}
