// Package crm is the workspace-scoped entry point for everything the HTTP
// layer and the webhook do with conversations, templates and automation.
// Every call runs inside a single store transaction for the user's workspace.
package crm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/pkg/models"
)

// Dashboard event names
const (
	EventMessageInbound      = "message.inbound"
	EventMessageOutbound     = "message.outbound"
	EventConversationUpdated = "conversation.updated"
	EventTemplatesUpdated    = "templates.updated"
	EventAutomationUpdated   = "automation.updated"
	EventWhatsAppUpdated     = "whatsapp.updated"
)

const (
	SetupTestName = "WhatsApp Setup Test"
	SetupTestText = "WhatsApp setup test from your CRM. If you can read this, sending works."
)

type Service struct {
	store    *store.Store
	engine   *automation.Engine
	notifier automation.Notifier
	logger   *slog.Logger
}

func NewService(st *store.Store, engine *automation.Engine, notifier automation.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		engine:   engine,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "crm")),
	}
}

func (s *Service) publish(userID, event string, data interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(userID, event, data)
	}
}

// Inbound is a message arriving from any ingestion source
type Inbound struct {
	Phone  string
	Name   string
	Text   string
	Source string
}

// InboundResult is what an ingestion call recorded and sent
type InboundResult struct {
	Conversation     *models.Conversation `json:"conversation"`
	Inbound          *models.Message      `json:"inbound"`
	AutomaticReplies []*models.Message    `json:"automaticReplies"`
}

// ReceiveInboundMessage records an inbound message on the conversation for
// its phone and runs the automatic reply rules.
func (s *Service) ReceiveInboundMessage(ctx context.Context, userID string, in Inbound) (*InboundResult, error) {
	phone := strings.TrimSpace(in.Phone)
	text := strings.TrimSpace(in.Text)
	if phone == "" || text == "" {
		return nil, apperr.Validation("phone and text are required")
	}
	source := in.Source
	if source == "" {
		source = models.SourceWhatsAppWebhook
	}

	var result *InboundResult
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		now := s.engine.Now()
		conversation := ledger.UpsertConversationByPhone(ws, phone, in.Name, source, now)
		message := ledger.AppendMessage(ws, ledger.NewMessage{
			ConversationID: conversation.ID,
			Direction:      models.DirectionInbound,
			Text:           text,
			Source:         source,
			Status:         models.StatusReceived,
		}, now)
		replies := s.engine.HandleInbound(ctx, ws, conversation)
		result = &InboundResult{Conversation: conversation, Inbound: message, AutomaticReplies: replies}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inbound message recorded",
		slog.String("user_id", userID),
		slog.String("conversation_id", result.Conversation.ID),
		slog.String("source", source),
		slog.Int("automatic_replies", len(result.AutomaticReplies)))
	s.publish(userID, EventMessageInbound, result)
	return result, nil
}

// Lead is a website contact-form submission
type Lead struct {
	Name      string
	Phone     string
	Message   string
	SourceURL string
}

func (s *Service) IngestWordPressLead(ctx context.Context, userID string, lead Lead) (*InboundResult, error) {
	message := strings.TrimSpace(lead.Message)
	if strings.TrimSpace(lead.Phone) == "" || message == "" {
		return nil, apperr.Validation("phone and message are required")
	}
	sourceURL := strings.TrimSpace(lead.SourceURL)
	if sourceURL == "" {
		sourceURL = "unknown source"
	}
	return s.ReceiveInboundMessage(ctx, userID, Inbound{
		Phone:  lead.Phone,
		Name:   lead.Name,
		Text:   fmt.Sprintf("Website lead from %s: %s", sourceURL, message),
		Source: models.SourceWordPressForm,
	})
}

// SendManualMessage sends text typed by an agent on an existing conversation.
func (s *Service) SendManualMessage(ctx context.Context, userID, conversationID, text, templateID string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("Message text is required")
	}

	var message *models.Message
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		conversation := ws.FindConversation(conversationID)
		if conversation == nil {
			return fmt.Errorf("conversation %s: %w", conversationID, apperr.ErrNotFound)
		}
		message = s.engine.Deliver(ctx, ws, conversation, automation.Outgoing{
			Text:       text,
			Source:     models.SourceDashboard,
			TemplateID: strings.TrimSpace(templateID),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventMessageOutbound, message)
	return message, nil
}

// SetupTestResult is the conversation and message created by a setup test send
type SetupTestResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message"`
}

// SendSetupTestMessage sends a test message to phone so an operator can
// confirm the WhatsApp credentials work end to end.
func (s *Service) SendSetupTestMessage(ctx context.Context, userID, phone, text string) (*SetupTestResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, apperr.Validation("phone is required")
	}
	if text = strings.TrimSpace(text); text == "" {
		text = SetupTestText
	}

	var result *SetupTestResult
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		conversation := ledger.UpsertConversationByPhone(ws, phone, SetupTestName, models.SourceSetupTest, s.engine.Now())
		message := s.engine.Deliver(ctx, ws, conversation, automation.Outgoing{
			Text:   text,
			Source: models.SourceSetupTest,
		})
		result = &SetupTestResult{Conversation: conversation, Message: message}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventMessageOutbound, result.Message)
	return result, nil
}
