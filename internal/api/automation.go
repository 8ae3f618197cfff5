package api

import (
	"net/http"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/internal/ledger"

	"github.com/gin-gonic/gin"
)

type AutomationHandler struct {
	CRM *crm.Service
}

func NewAutomationHandler(svc *crm.Service) *AutomationHandler {
	return &AutomationHandler{CRM: svc}
}

func (h *AutomationHandler) GetConfig(c *gin.Context) {
	data, err := h.CRM.Automation(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *AutomationHandler) Safety(c *gin.Context) {
	data, err := h.CRM.AutomationSafety(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// UpdateConfig rejects the whole patch with {error, details} when any rule
// fails, leaving the stored config untouched.
func (h *AutomationHandler) UpdateConfig(c *gin.Context) {
	var patch automation.Patch
	if !bindJSON(c, &patch) {
		return
	}
	data, err := h.CRM.UpdateAutomation(c.Request.Context(), auth.UserID(c), patch)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

type TemplateHandler struct {
	CRM *crm.Service
}

func NewTemplateHandler(svc *crm.Service) *TemplateHandler {
	return &TemplateHandler{CRM: svc}
}

func (h *TemplateHandler) List(c *gin.Context) {
	data, err := h.CRM.Templates(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *TemplateHandler) Create(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Body     string `json:"body"`
		Category string `json:"category"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.CreateTemplate(c.Request.Context(), auth.UserID(c), req.Name, req.Body, req.Category)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

func (h *TemplateHandler) Update(c *gin.Context) {
	var patch ledger.TemplatePatch
	if !bindJSON(c, &patch) {
		return
	}
	data, err := h.CRM.UpdateTemplate(c.Request.Context(), auth.UserID(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err, "Template not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
