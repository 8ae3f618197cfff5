// Package ledger implements the conversation and message operations that run
// against an in-memory workspace document. Callers own persistence.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/ids"
	"whatsapp-crm/pkg/models"
)

var validStates = map[string]bool{
	models.StateNew:      true,
	models.StateFollowUp: true,
	models.StateClosed:   true,
}

// UpsertConversationByPhone returns the conversation for the whitespace-normalized
// phone, creating it in state NEW when none exists. A placeholder "Unknown" name
// is replaced when a real name arrives.
func UpsertConversationByPhone(ws *models.Workspace, phone, name, source string, now time.Time) *models.Conversation {
	normalized := models.NormalizePhone(phone)
	name = strings.TrimSpace(name)

	if conversation := ws.FindConversationByPhone(normalized); conversation != nil {
		if name != "" && conversation.Name == models.UnknownName {
			conversation.Name = name
		}
		return conversation
	}

	if name == "" {
		name = models.UnknownName
	}
	conversation := &models.Conversation{
		ID:            ids.New("conv"),
		Name:          name,
		Phone:         normalized,
		State:         models.StateNew,
		Source:        source,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		Notes:         []models.Note{},
	}
	ws.Conversations = append(ws.Conversations, conversation)
	return conversation
}

// NewMessage describes a message to record
type NewMessage struct {
	ConversationID string
	Direction      string
	Text           string
	Source         string
	TemplateID     string
	Status         string
}

// AppendMessage records a message and bumps the owning conversation's
// last-message fields. A message whose conversation id is unknown is still
// recorded as an orphan; no conversation is touched.
func AppendMessage(ws *models.Workspace, in NewMessage, now time.Time) *models.Message {
	status := in.Status
	if status == "" {
		status = models.StatusReceived
	}
	message := &models.Message{
		ID:             ids.New("msg"),
		ConversationID: in.ConversationID,
		Direction:      in.Direction,
		Text:           in.Text,
		CreatedAt:      now,
		Channel:        models.ChannelWhatsApp,
		Source:         in.Source,
		Status:         status,
		TemplateID:     in.TemplateID,
	}
	ws.Messages = append(ws.Messages, message)

	if conversation := ws.FindConversation(in.ConversationID); conversation != nil {
		conversation.LastMessageAt = now
		conversation.LastMessageText = in.Text
		conversation.UpdatedAt = now
	}
	return message
}

// ConversationPatch is a partial conversation update. A nil FollowUpAt leaves
// the follow-up untouched; an empty string clears it.
type ConversationPatch struct {
	State      string
	FollowUpAt *string
}

// UpdateConversation validates the whole patch before applying any of it.
// Changing the follow-up always re-arms the reminder.
func UpdateConversation(ws *models.Workspace, id string, patch ConversationPatch, now time.Time) (*models.Conversation, error) {
	conversation := ws.FindConversation(id)
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
	}

	if patch.State != "" && !validStates[patch.State] {
		return nil, apperr.Validation("Invalid conversation state.")
	}

	var followUpAt *time.Time
	if patch.FollowUpAt != nil {
		parsed, err := ParseFollowUp(*patch.FollowUpAt)
		if err != nil {
			return nil, err
		}
		followUpAt = parsed
	}

	if patch.State != "" {
		conversation.State = patch.State
	}
	if patch.FollowUpAt != nil {
		conversation.FollowUpAt = followUpAt
		conversation.FollowUpReminderSentAt = nil
	}
	conversation.UpdatedAt = now
	return conversation, nil
}

// ParseFollowUp accepts an ISO datetime, returning nil for an empty value.
// Values without an offset are read as UTC.
func ParseFollowUp(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if parsed, ok := models.ParseTimestamp(value); ok {
		return &parsed, nil
	}
	return nil, apperr.Validation("followUpAt must be a valid ISO datetime.")
}

// AddNote appends a note to the conversation.
func AddNote(ws *models.Workspace, id, text string, now time.Time) (*models.Note, error) {
	conversation := ws.FindConversation(id)
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("Note text is required")
	}

	note := models.Note{ID: ids.New("note"), Text: text, CreatedAt: now}
	conversation.Notes = append(conversation.Notes, note)
	conversation.UpdatedAt = now
	return &note, nil
}

// ConversationDetails returns the conversation with its messages oldest first.
func ConversationDetails(ws *models.Workspace, id string) (*models.ConversationDetails, error) {
	conversation := ws.FindConversation(id)
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, apperr.ErrNotFound)
	}

	messages := []*models.Message{}
	for _, m := range ws.Messages {
		if m.ConversationID == id {
			messages = append(messages, m)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	return &models.ConversationDetails{Conversation: conversation, Messages: messages}, nil
}

// ListConversations returns conversations most recently active first,
// optionally filtered by exact state ("ALL" disables the filter) and a
// case-insensitive search over name, phone and last message text.
func ListConversations(ws *models.Workspace, state, search string) []*models.Conversation {
	term := strings.ToLower(strings.TrimSpace(search))
	result := []*models.Conversation{}
	for _, c := range ws.Conversations {
		if state != "" && state != "ALL" && c.State != state {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(c.Name), term) &&
			!strings.Contains(strings.ToLower(c.Phone), term) &&
			!strings.Contains(strings.ToLower(c.LastMessageText), term) {
			continue
		}
		result = append(result, c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result
}

// PendingFollowUps returns conversations whose follow-up is due, earliest first.
func PendingFollowUps(ws *models.Workspace, now time.Time) []*models.Conversation {
	result := []*models.Conversation{}
	for _, c := range ws.Conversations {
		if c.FollowUpAt != nil && !c.FollowUpAt.After(now) {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FollowUpAt.Before(*result[j].FollowUpAt)
	})
	return result
}
