package api

import (
	"net/http"
	"strings"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/internal/webhook"
	"whatsapp-crm/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const leadTokenHeader = "X-Lead-Token"

type IntegrationHandler struct {
	CRM       *crm.Service
	Directory webhook.Directory
}

func NewIntegrationHandler(svc *crm.Service, directory webhook.Directory) *IntegrationHandler {
	return &IntegrationHandler{CRM: svc, Directory: directory}
}

// leadOwner resolves the workspace a website lead belongs to: the logged-in
// user, or the workspace whose verify token the form sends along.
func (h *IntegrationHandler) leadOwner(c *gin.Context) (string, error) {
	if id := auth.UserID(c); id != "" {
		return id, nil
	}
	token := strings.TrimSpace(c.GetHeader(leadTokenHeader))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return "", nil
	}
	return h.Directory.FindByVerifyToken(c.Request.Context(), token)
}

func (h *IntegrationHandler) WordPressLead(c *gin.Context) {
	userID, err := h.leadOwner(c)
	if err != nil {
		respondError(c, err, "")
		return
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required."})
		return
	}

	var req struct {
		Name      string `json:"name"`
		Phone     string `json:"phone"`
		Message   string `json:"message"`
		SourceURL string `json:"sourceUrl"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.IngestWordPressLead(c.Request.Context(), userID, crm.Lead{
		Name:      strings.TrimSpace(req.Name),
		Phone:     req.Phone,
		Message:   req.Message,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

func (h *IntegrationHandler) GetWhatsAppConfig(c *gin.Context) {
	data, err := h.CRM.WhatsAppSettings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *IntegrationHandler) UpdateWhatsAppConfig(c *gin.Context) {
	var patch crm.WhatsAppPatch
	if !bindJSON(c, &patch) {
		return
	}
	data, err := h.CRM.UpdateWhatsAppConfig(c.Request.Context(), auth.UserID(c), patch)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// SendTest sends a setup test message so the operator can confirm delivery.
func (h *IntegrationHandler) SendTest(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
		Text  string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.SendSetupTestMessage(c.Request.Context(), auth.UserID(c), req.Phone, req.Text)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// QRCode renders a click-to-chat QR code for the workspace's business phone,
// or for ?phone= when given. ?text= prefills the first message.
func (h *IntegrationHandler) QRCode(c *gin.Context) {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		cfg, err := h.CRM.WhatsAppConfig(c.Request.Context(), auth.UserID(c))
		if err != nil {
			respondError(c, err, "")
			return
		}
		phone = cfg.BusinessPhone
	}
	if strings.Trim(phone, "+ ") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Business phone is not configured."})
		return
	}

	png, err := qrcode.Encode(whatsapp.ChatLink(phone, c.Query("text")), qrcode.Medium, 256)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
