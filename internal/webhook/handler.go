package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/crm"
	"whatsapp-crm/pkg/models"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Hub-Signature-256"

// Receiver records an inbound message in a workspace
type Receiver interface {
	ReceiveInboundMessage(ctx context.Context, userID string, in crm.Inbound) (*crm.InboundResult, error)
}

// Directory resolves which workspace a webhook delivery belongs to
type Directory interface {
	FindByVerifyToken(ctx context.Context, token string) (string, error)
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (string, error)
	WorkspaceIDs(ctx context.Context) ([]string, error)
}

type Handler struct {
	Config    *config.Config
	Directory Directory
	Receiver  Receiver
	logger    *slog.Logger
}

func NewHandler(cfg *config.Config, directory Directory, receiver Receiver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Config:    cfg,
		Directory: directory,
		Receiver:  receiver,
		logger:    logger.With(slog.String("component", "webhook")),
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && h.tokenKnown(c.Request.Context(), token) {
		h.logger.Info("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "forbidden")
}

func (h *Handler) tokenKnown(ctx context.Context, token string) bool {
	if h.Config.VerifyToken != "" && hmac.Equal([]byte(token), []byte(h.Config.VerifyToken)) {
		return true
	}
	owner, err := h.Directory.FindByVerifyToken(ctx, token)
	if err != nil {
		h.logger.Error("verify token lookup failed", slog.Any("error", err))
		return false
	}
	return owner != ""
}

func (h *Handler) HandleMessage(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !VerifySignature(body, c.GetHeader(signatureHeader), h.Config.WhatsAppAppSecret) {
		h.logger.Warn("webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload models.WebhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		// Meta retries non-2xx deliveries, a malformed body would never succeed.
		h.logger.Warn("ignoring malformed webhook body", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	for _, msg := range ExtractInboundText(payload) {
		userID, err := h.route(ctx, msg.PhoneNumberID)
		if err != nil {
			h.logger.Error("webhook routing failed", slog.String("phone_number_id", msg.PhoneNumberID), slog.Any("error", err))
			continue
		}
		if userID == "" {
			h.logger.Warn("no workspace for webhook message", slog.String("phone_number_id", msg.PhoneNumberID))
			continue
		}
		_, err = h.Receiver.ReceiveInboundMessage(ctx, userID, crm.Inbound{
			Phone:  msg.Phone,
			Name:   msg.Name,
			Text:   msg.Text,
			Source: models.SourceWhatsAppWebhook,
		})
		if err != nil {
			h.logger.Error("failed to record webhook message", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// route picks the workspace bound to phoneNumberID. Deliveries for the
// environment's phone number fall back to the only account, if there is
// exactly one.
func (h *Handler) route(ctx context.Context, phoneNumberID string) (string, error) {
	owner, err := h.Directory.FindByPhoneNumberID(ctx, phoneNumberID)
	if err != nil || owner != "" {
		return owner, err
	}
	if phoneNumberID != "" && phoneNumberID != h.Config.PhoneNumberID {
		return "", nil
	}
	ids, err := h.Directory.WorkspaceIDs(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", nil
	}
	return ids[0], nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw body.
// With no app secret configured every delivery is accepted.
func VerifySignature(body []byte, header, appSecret string) bool {
	if appSecret == "" {
		return true
	}
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ExtractInboundText pulls every non-empty text message out of a delivery.
// Other message types and status updates are ignored.
func ExtractInboundText(payload models.WebhookPayload) []models.InboundText {
	var out []models.InboundText
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = strings.TrimSpace(contact.Profile.Name)
			}
			for _, message := range value.Messages {
				if message.Text == nil {
					continue
				}
				from := strings.TrimSpace(message.From)
				text := strings.TrimSpace(message.Text.Body)
				if from == "" || text == "" {
					continue
				}
				name := names[message.From]
				if name == "" {
					name = models.UnknownName
				}
				out = append(out, models.InboundText{
					PhoneNumberID: value.Metadata.PhoneNumberID,
					Phone:         from,
					Name:          name,
					Text:          text,
				})
			}
		}
	}
	return out
}
