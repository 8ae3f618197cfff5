package ledger

import (
	"time"

	"whatsapp-crm/internal/ids"
	"whatsapp-crm/pkg/models"
)

// MaxLogEntries bounds the automation log kept per workspace; oldest entries go first.
const MaxLogEntries = 500

// AppendLog records an automation send attempt.
func AppendLog(ws *models.Workspace, kind string, message *models.Message, now time.Time) *models.LogEntry {
	entry := &models.LogEntry{
		ID:             ids.New("log"),
		Type:           kind,
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		TemplateID:     message.TemplateID,
		Status:         message.Status,
		Error:          message.Error,
		CreatedAt:      now,
	}
	ws.Logs = append(ws.Logs, entry)
	if overflow := len(ws.Logs) - MaxLogEntries; overflow > 0 {
		ws.Logs = append([]*models.LogEntry(nil), ws.Logs[overflow:]...)
	}
	return entry
}
