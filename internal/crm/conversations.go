package crm

import (
	"context"
	"time"

	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/pkg/models"
)

func (s *Service) Conversations(ctx context.Context, userID, state, search string) ([]*models.Conversation, error) {
	var result []*models.Conversation
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		result = ledger.ListConversations(ws, state, search)
		return nil
	})
	return result, err
}

func (s *Service) ConversationDetails(ctx context.Context, userID, conversationID string) (*models.ConversationDetails, error) {
	var result *models.ConversationDetails
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		var err error
		result, err = ledger.ConversationDetails(ws, conversationID)
		return err
	})
	return result, err
}

func (s *Service) UpdateConversation(ctx context.Context, userID, conversationID string, patch ledger.ConversationPatch) (*models.Conversation, error) {
	var result *models.Conversation
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		var err error
		result, err = ledger.UpdateConversation(ws, conversationID, patch, s.engine.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventConversationUpdated, result)
	return result, nil
}

func (s *Service) AddNote(ctx context.Context, userID, conversationID, text string) (*models.Note, error) {
	var note *models.Note
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		var err error
		note, err = ledger.AddNote(ws, conversationID, text, s.engine.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventConversationUpdated, map[string]interface{}{"conversationId": conversationID, "note": note})
	return note, nil
}

func (s *Service) PendingFollowUps(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var result []*models.Conversation
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		result = ledger.PendingFollowUps(ws, s.engine.Now())
		return nil
	})
	return result, err
}

// ExportRow is one conversation flattened for spreadsheet export
type ExportRow struct {
	Conversation *models.Conversation
	Inbound      int
	Outbound     int
}

// ExportConversations returns every conversation, most recent first, with
// its message counts.
func (s *Service) ExportConversations(ctx context.Context, userID string) ([]ExportRow, error) {
	var rows []ExportRow
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		counts := map[string][2]int{}
		for _, m := range ws.Messages {
			c := counts[m.ConversationID]
			if m.Direction == models.DirectionInbound {
				c[0]++
			} else {
				c[1]++
			}
			counts[m.ConversationID] = c
		}
		for _, conversation := range ledger.ListConversations(ws, "", "") {
			c := counts[conversation.ID]
			rows = append(rows, ExportRow{Conversation: conversation, Inbound: c[0], Outbound: c[1]})
		}
		return nil
	})
	return rows, err
}

// Analytics counts today's activity, where today is the calendar day in the
// workspace's business timezone.
func (s *Service) Analytics(ctx context.Context, userID string) (ledger.Analytics, error) {
	var result ledger.Analytics
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		loc, err := time.LoadLocation(ws.Automation.Timezone)
		if err != nil || ws.Automation.Timezone == "" {
			loc = time.Local
		}
		result = ledger.Snapshot(ws, s.engine.Now().In(loc))
		return nil
	})
	return result, err
}
