package models

import (
	"strings"
	"time"
)

// Conversation states
const (
	StateNew      = "NEW"
	StateFollowUp = "FOLLOW_UP"
	StateClosed   = "CLOSED"
)

// Message directions
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Message delivery statuses
const (
	StatusReceived = "RECEIVED"
	StatusPending  = "PENDING"
	StatusSent     = "SENT"
	StatusMocked   = "MOCKED"
	StatusFailed   = "FAILED"
)

// Message sources
const (
	SourceWhatsAppWebhook    = "WHATSAPP_WEBHOOK"
	SourceWordPressForm      = "WORDPRESS_FORM"
	SourceManualTest         = "MANUAL_TEST"
	SourceDashboard          = "DASHBOARD"
	SourceAutomation         = "AUTOMATION"
	SourceFollowUpAutomation = "FOLLOW_UP_AUTOMATION"
	SourceSetupTest          = "SETUP_TEST"
)

const (
	ChannelWhatsApp = "WHATSAPP"
	UnknownName     = "Unknown"
)

// Workspace is the per-account CRM document persisted as a single JSON value.
type Workspace struct {
	Conversations  []*Conversation  `json:"conversations"`
	Messages       []*Message       `json:"messages"`
	Templates      []*Template      `json:"templates"`
	Automation     AutomationConfig `json:"automation"`
	WhatsAppConfig WhatsAppConfig   `json:"whatsappConfig"`
	Logs           []*LogEntry      `json:"logs"`
}

// Conversation is a running thread with a single counterpart phone number
type Conversation struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Phone                  string     `json:"phone"`
	State                  string     `json:"state"`
	Source                 string     `json:"source"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	LastMessageAt          time.Time  `json:"lastMessageAt"`
	LastMessageText        string     `json:"lastMessageText"`
	FollowUpAt             *time.Time `json:"followUpAt"`
	FollowUpReminderSentAt *time.Time `json:"followUpReminderSentAt"`
	Notes                  []Note     `json:"notes"`
}

type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single inbound or outbound text on a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Direction      string    `json:"direction"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	Channel        string    `json:"channel"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	TemplateID     string    `json:"templateId,omitempty"`
	ExternalID     string    `json:"externalId,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Template is a reusable reply body referenced by automation and messages
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AutomationConfig holds the three automation toggles and the business hours window
type AutomationConfig struct {
	AutoReplyOnFirstInquiry    bool   `json:"autoReplyOnFirstInquiry"`
	FirstInquiryTemplateID     string `json:"firstInquiryTemplateId"`
	BusinessHoursReplyEnabled  bool   `json:"businessHoursReplyEnabled"`
	AfterHoursTemplateID       string `json:"afterHoursTemplateId"`
	FollowUpReminderEnabled    bool   `json:"followUpReminderEnabled"`
	FollowUpReminderTemplateID string `json:"followUpReminderTemplateId"`
	Timezone                   string `json:"timezone"`
	BusinessHoursStart         string `json:"businessHoursStart"`
	BusinessHoursEnd           string `json:"businessHoursEnd"`
}

// WhatsAppConfig stores the workspace's own Cloud API credentials
type WhatsAppConfig struct {
	BusinessPhone string `json:"businessPhone"`
	PhoneNumberID string `json:"phoneNumberId"`
	AccessToken   string `json:"accessToken"`
	VerifyToken   string `json:"verifyToken"`
}

// LogEntry records an automated send attempt
type LogEntry struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	TemplateID     string    `json:"templateId,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationDetails is a conversation together with its chronologically sorted messages
type ConversationDetails struct {
	*Conversation
	Messages []*Message `json:"messages"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp reads the ISO 8601 forms browsers produce: with or without
// seconds, fractional seconds and a zone offset (colon optional). Values
// without an offset are read as UTC. The result is always in UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizePhone strips every whitespace character from phone.
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

func (w *Workspace) FindConversation(id string) *Conversation {
	for _, c := range w.Conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (w *Workspace) FindConversationByPhone(phone string) *Conversation {
	normalized := NormalizePhone(phone)
	for _, c := range w.Conversations {
		if NormalizePhone(c.Phone) == normalized {
			return c
		}
	}
	return nil
}

func (w *Workspace) FindTemplate(id string) *Template {
	if id == "" {
		return nil
	}
	for _, t := range w.Templates {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TemplateIDs returns the set of template ids defined in the workspace.
func (w *Workspace) TemplateIDs() map[string]bool {
	ids := make(map[string]bool, len(w.Templates))
	for _, t := range w.Templates {
		ids[t.ID] = true
	}
	return ids
}

// OutboundCount counts OUTBOUND messages recorded for a conversation.
func (w *Workspace) OutboundCount(conversationID string) int {
	count := 0
	for _, m := range w.Messages {
		if m.ConversationID == conversationID && m.Direction == DirectionOutbound {
			count++
		}
	}
	return count
}
