package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/pkg/models"
)

// EventReminderSent is published for every follow-up reminder sent
const EventReminderSent = "reminder.sent"

// Notifier pushes live events to a user's dashboard sessions.
type Notifier interface {
	Publish(userID, event string, data interface{})
}

// DueForReminder reports whether conversation should get its follow-up
// reminder at now. A reminder already sent blocks re-sending until the
// follow-up time is changed.
func DueForReminder(c *models.Conversation, now time.Time) bool {
	return c.State == models.StateFollowUp &&
		c.FollowUpAt != nil &&
		!c.FollowUpAt.After(now) &&
		c.FollowUpReminderSentAt == nil
}

// SendDueReminders sends the reminder template once to every due conversation
// in ws. It does nothing while reminders are off or the template is gone.
func (e *Engine) SendDueReminders(ctx context.Context, ws *models.Workspace) []*models.Message {
	cfg := ws.Automation
	if !cfg.FollowUpReminderEnabled {
		return nil
	}
	tpl := ws.FindTemplate(cfg.FollowUpReminderTemplateID)
	if tpl == nil {
		return nil
	}

	var sent []*models.Message
	now := e.Now()
	for _, c := range ws.Conversations {
		if !DueForReminder(c, now) {
			continue
		}
		msg := e.Deliver(ctx, ws, c, Outgoing{
			Text:       tpl.Body,
			Source:     models.SourceFollowUpAutomation,
			TemplateID: tpl.ID,
		})
		stamp := e.Now()
		c.FollowUpReminderSentAt = &stamp
		c.UpdatedAt = stamp
		ledger.AppendLog(ws, LogFollowUpReminder, msg, stamp)
		sent = append(sent, msg)
	}
	return sent
}

// Sweeper runs the follow-up reminder pass across every workspace.
type Sweeper struct {
	store    *store.Store
	engine   *Engine
	notifier Notifier
	logger   *slog.Logger
}

func NewSweeper(st *store.Store, engine *Engine, notifier Notifier, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    st,
		engine:   engine,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "reminders")),
	}
}

// Sweep returns how many reminders were sent. A failing workspace is logged
// and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	userIDs, err := s.store.WorkspaceIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("automation: sweep: %w", err)
	}

	total := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var sent []*models.Message
		err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
			sent = s.engine.SendDueReminders(ctx, ws)
			if len(sent) == 0 {
				return store.ErrNoChange
			}
			return nil
		})
		if err != nil {
			s.logger.Error("reminder sweep failed", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}

		for _, msg := range sent {
			s.logger.Info("follow-up reminder sent",
				slog.String("user_id", userID),
				slog.String("conversation_id", msg.ConversationID),
				slog.String("status", msg.Status))
			if s.notifier != nil {
				s.notifier.Publish(userID, EventReminderSent, msg)
			}
		}
		total += len(sent)
	}
	return total, nil
}
