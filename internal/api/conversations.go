package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const conversationNotFound = "Conversation not found"

type ConversationHandler struct {
	CRM *crm.Service
}

func NewConversationHandler(svc *crm.Service) *ConversationHandler {
	return &ConversationHandler{CRM: svc}
}

func (h *ConversationHandler) List(c *gin.Context) {
	data, err := h.CRM.Conversations(c.Request.Context(), auth.UserID(c), c.Query("state"), c.Query("search"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *ConversationHandler) PendingFollowUps(c *gin.Context) {
	data, err := h.CRM.PendingFollowUps(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	data, err := h.CRM.ConversationDetails(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, conversationNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Update accepts {state, followUpAt}. A null or empty followUpAt clears the
// follow-up, an absent one leaves it alone.
func (h *ConversationHandler) Update(c *gin.Context) {
	var req struct {
		State      string          `json:"state"`
		FollowUpAt json.RawMessage `json:"followUpAt"`
	}
	if !bindJSON(c, &req) {
		return
	}

	patch := ledger.ConversationPatch{State: strings.TrimSpace(req.State)}
	if req.FollowUpAt != nil {
		var value *string
		if err := json.Unmarshal(req.FollowUpAt, &value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "followUpAt must be a valid ISO datetime."})
			return
		}
		if value == nil {
			value = new(string)
		}
		patch.FollowUpAt = value
	}

	data, err := h.CRM.UpdateConversation(c.Request.Context(), auth.UserID(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err, conversationNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *ConversationHandler) AddNote(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.AddNote(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err, conversationNotFound)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text       string `json:"text"`
		TemplateID string `json:"templateId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.SendManualMessage(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Text, req.TemplateID)
	if err != nil {
		respondError(c, err, conversationNotFound)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// IngestInbound records a hand-typed inbound message, used to try the
// automation rules without a live WhatsApp number.
func (h *ConversationHandler) IngestInbound(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
		Text  string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	data, err := h.CRM.ReceiveInboundMessage(c.Request.Context(), auth.UserID(c), crm.Inbound{
		Phone:  req.Phone,
		Name:   strings.TrimSpace(req.Name),
		Text:   req.Text,
		Source: models.SourceManualTest,
	})
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

var exportHeaders = []string{"Name", "Phone", "State", "Source", "Last Message", "Last Message At", "Follow Up At", "Inbound", "Outbound", "Notes", "Created At"}

func exportRecord(row crm.ExportRow) []string {
	conv := row.Conversation
	followUp := ""
	if conv.FollowUpAt != nil {
		followUp = conv.FollowUpAt.UTC().Format(time.RFC3339)
	}
	return []string{
		conv.Name,
		conv.Phone,
		conv.State,
		conv.Source,
		conv.LastMessageText,
		conv.LastMessageAt.UTC().Format(time.RFC3339),
		followUp,
		strconv.Itoa(row.Inbound),
		strconv.Itoa(row.Outbound),
		strconv.Itoa(len(conv.Notes)),
		conv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Export downloads every conversation as CSV, or as an Excel workbook with
// ?format=xlsx.
func (h *ConversationHandler) Export(c *gin.Context) {
	rows, err := h.CRM.ExportConversations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err, "")
		return
	}

	stamp := time.Now().UTC().Format("20060102")
	switch strings.ToLower(c.DefaultQuery("format", "csv")) {
	case "csv":
		body, err := exportCSV(rows)
		if err != nil {
			respondError(c, err, "")
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=conversations-%s.csv", stamp))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
	case "xlsx":
		body, err := exportXLSX(rows)
		if err != nil {
			respondError(c, err, "")
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=conversations-%s.xlsx", stamp))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", body)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
	}
}

func exportCSV(rows []crm.ExportRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(exportRecord(row)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportXLSX(rows []crm.ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Conversations"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for r, row := range rows {
		for i, value := range exportRecord(row) {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
