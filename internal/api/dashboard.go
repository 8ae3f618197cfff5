package api

import (
	"net/http"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/crm"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	CRM         *crm.Service
	Environment string
}

func NewDashboardHandler(svc *crm.Service, environment string) *DashboardHandler {
	return &DashboardHandler{CRM: svc, Environment: environment}
}

func (h *DashboardHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "environment": h.Environment})
}

func (h *DashboardHandler) AnalyticsToday(c *gin.Context) {
	data, err := h.CRM.Analytics(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

type AuthHandler struct {
	Auth   *auth.Service
	Secure bool
}

func NewAuthHandler(svc *auth.Service, secure bool) *AuthHandler {
	return &AuthHandler{Auth: svc, Secure: secure}
}

func (h *AuthHandler) maxAge() int {
	return int(h.Auth.TTL().Seconds())
}

func (h *AuthHandler) Bootstrap(c *gin.Context) {
	has, err := h.Auth.HasAccounts(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"hasAccounts": has}})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if !bindJSON(c, &req) {
		return
	}
	user, token, err := h.Auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "")
		return
	}
	auth.SetCookie(c, token, h.maxAge(), h.Secure)
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginInput
	if !bindJSON(c, &req) {
		return
	}
	user, token, err := h.Auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "")
		return
	}
	auth.SetCookie(c, token, h.maxAge(), h.Secure)
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context(), auth.SessionToken(c)); err != nil {
		respondError(c, err, "")
		return
	}
	auth.ClearCookie(c, h.Secure)
	c.Status(http.StatusNoContent)
}
