package store

import (
	"time"

	"whatsapp-crm/pkg/models"
)

// Default template ids referenced by the seeded automation config.
const (
	TemplateFirstInquiry = "tpl_first_inquiry"
	TemplateAfterHours   = "tpl_after_hours"
	TemplateFollowUp     = "tpl_follow_up"
)

// Defaults are the business-hours settings a new workspace starts with.
type Defaults struct {
	Timezone           string
	BusinessHoursStart string
	BusinessHoursEnd   string
}

// Workspace builds a fresh workspace document with the stock templates and
// every automation rule switched on.
func (d Defaults) Workspace(now time.Time) *models.Workspace {
	return &models.Workspace{
		Conversations: []*models.Conversation{},
		Messages:      []*models.Message{},
		Templates: []*models.Template{
			{
				ID:        TemplateFirstInquiry,
				Name:      "First Inquiry Reply",
				Body:      "Thanks for reaching out. We received your message and will reply shortly.",
				Category:  "AUTO_REPLY",
				CreatedAt: now,
				UpdatedAt: now,
			},
			{
				ID:        TemplateAfterHours,
				Name:      "After Hours Reply",
				Body:      "Thanks for your message. We are offline now, but we will respond during business hours.",
				Category:  "AUTO_REPLY",
				CreatedAt: now,
				UpdatedAt: now,
			},
			{
				ID:        TemplateFollowUp,
				Name:      "Follow-up Reminder",
				Body:      "Quick follow-up on your request. Let us know if you need any help.",
				Category:  "FOLLOW_UP",
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		Automation: models.AutomationConfig{
			AutoReplyOnFirstInquiry:    true,
			FirstInquiryTemplateID:     TemplateFirstInquiry,
			BusinessHoursReplyEnabled:  true,
			AfterHoursTemplateID:       TemplateAfterHours,
			FollowUpReminderEnabled:    true,
			FollowUpReminderTemplateID: TemplateFollowUp,
			Timezone:                   d.Timezone,
			BusinessHoursStart:         d.BusinessHoursStart,
			BusinessHoursEnd:           d.BusinessHoursEnd,
		},
		WhatsAppConfig: models.WhatsAppConfig{},
		Logs:           []*models.LogEntry{},
	}
}
