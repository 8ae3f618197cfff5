package automation

import (
	"context"
	"log/slog"
	"time"

	"whatsapp-crm/internal/hours"
	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/internal/whatsapp"
	"whatsapp-crm/pkg/models"
)

// Sender delivers a text message using the workspace's WhatsApp settings.
type Sender interface {
	SendText(ctx context.Context, cfg models.WhatsAppConfig, to, text string) (*whatsapp.SendResult, error)
}

type Engine struct {
	sender Sender
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(sender Sender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sender: sender,
		logger: logger.With(slog.String("component", "automation")),
		now:    time.Now,
	}
}

// Now is the engine's clock.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Decide returns the templates to send for an inbound message on conversation
// at the given instant: at most one. An after-hours reply takes precedence
// and suppresses the first-inquiry reply for the same event.
func Decide(ws *models.Workspace, conversation *models.Conversation, at time.Time) []*models.Template {
	cfg := ws.Automation
	outbound := ws.OutboundCount(conversation.ID)
	inHours := hours.Within(cfg.Timezone, cfg.BusinessHoursStart, cfg.BusinessHoursEnd, at)

	if !inHours && cfg.BusinessHoursReplyEnabled {
		if tpl := ws.FindTemplate(cfg.AfterHoursTemplateID); tpl != nil {
			return []*models.Template{tpl}
		}
	}

	if cfg.AutoReplyOnFirstInquiry && outbound == 0 {
		if tpl := ws.FindTemplate(cfg.FirstInquiryTemplateID); tpl != nil {
			return []*models.Template{tpl}
		}
	}
	return nil
}

// HandleInbound sends whatever automatic reply the workspace rules call for
// after an inbound message was recorded on conversation.
func (e *Engine) HandleInbound(ctx context.Context, ws *models.Workspace, conversation *models.Conversation) []*models.Message {
	replies := []*models.Message{}
	for _, tpl := range Decide(ws, conversation, e.Now()) {
		msg := e.Deliver(ctx, ws, conversation, Outgoing{
			Text:       tpl.Body,
			Source:     models.SourceAutomation,
			TemplateID: tpl.ID,
		})
		ledger.AppendLog(ws, LogAutoReply, msg, e.Now())
		replies = append(replies, msg)
	}
	return replies
}

// Outgoing is an outbound message about to be delivered
type Outgoing struct {
	Text       string
	Source     string
	TemplateID string
}

// Deliver records an OUTBOUND message as PENDING, hands it to the sender and
// stores the outcome on the message. A failed send leaves the message FAILED
// with the error text; it never aborts the caller.
func (e *Engine) Deliver(ctx context.Context, ws *models.Workspace, conversation *models.Conversation, out Outgoing) *models.Message {
	msg := ledger.AppendMessage(ws, ledger.NewMessage{
		ConversationID: conversation.ID,
		Direction:      models.DirectionOutbound,
		Text:           out.Text,
		Source:         out.Source,
		TemplateID:     out.TemplateID,
		Status:         models.StatusPending,
	}, e.Now())

	result, err := e.sender.SendText(ctx, ws.WhatsAppConfig, conversation.Phone, out.Text)
	if err != nil {
		msg.Status = models.StatusFailed
		msg.Error = err.Error()
		e.logger.Warn("send failed",
			slog.String("conversation_id", conversation.ID),
			slog.String("source", out.Source),
			slog.Any("error", err))
		return msg
	}

	msg.Status = result.Status
	msg.ExternalID = result.ExternalID
	return msg
}
