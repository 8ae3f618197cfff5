package ledger

import (
	"time"

	"whatsapp-crm/pkg/models"
)

// Analytics is the dashboard's daily counter strip
type Analytics struct {
	NewInquiriesToday   int `json:"newInquiriesToday"`
	PendingFollowUps    int `json:"pendingFollowUps"`
	ClosedConversations int `json:"closedConversations"`
	TotalConversations  int `json:"totalConversations"`
}

// Snapshot counts against the calendar day of now in now's location.
func Snapshot(ws *models.Workspace, now time.Time) Analytics {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var a Analytics
	for _, m := range ws.Messages {
		if m.Direction == models.DirectionInbound && !m.CreatedAt.Before(dayStart) {
			a.NewInquiriesToday++
		}
	}
	for _, c := range ws.Conversations {
		switch {
		case c.State == models.StateFollowUp && c.FollowUpAt != nil:
			a.PendingFollowUps++
		case c.State == models.StateClosed:
			a.ClosedConversations++
		}
	}
	a.TotalConversations = len(ws.Conversations)
	return a
}
