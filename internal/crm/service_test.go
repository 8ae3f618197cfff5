package crm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"
	crm "whatsapp-crm/pkg/models"
)

type fakeSender struct {
	mu   sync.Mutex
	to   []string
	err  error
	seen []crm.WhatsAppConfig
}

func (f *fakeSender) SendText(_ context.Context, cfg crm.WhatsAppConfig, to, text string) (*whatsapp.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.seen = append(f.seen, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return &whatsapp.SendResult{Provider: whatsapp.ProviderMock, Status: crm.StatusMocked}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) Publish(userID, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

type fixture struct {
	svc    *Service
	store  *store.Store
	sender *fakeSender
	events *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	st := store.New(db, store.Defaults{Timezone: "UTC", BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00"}, nil)
	sender := &fakeSender{}
	events := &eventLog{}
	svc := NewService(st, automation.NewEngine(sender, nil), events, nil)
	return &fixture{svc: svc, store: st, sender: sender, events: events}
}

func boolPatch(t *testing.T, body string) automation.Patch {
	t.Helper()
	var p automation.Patch
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	return p
}

// onlyFirstInquiry turns off the clock-dependent after-hours rule.
func (f *fixture) onlyFirstInquiry(t *testing.T, userID string) {
	t.Helper()
	_, err := f.svc.UpdateAutomation(context.Background(), userID, boolPatch(t, `{"businessHoursReplyEnabled": false}`))
	if err != nil {
		t.Fatalf("UpdateAutomation: %v", err)
	}
}

func TestReceiveInboundMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onlyFirstInquiry(t, "user_a")

	res, err := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "+91 98123 45678", Name: "Asha", Text: " Hi there ", Source: crm.SourceManualTest})
	if err != nil {
		t.Fatalf("ReceiveInboundMessage: %v", err)
	}
	if res.Conversation.Phone != "+919812345678" || res.Inbound.Text != "Hi there" {
		t.Errorf("result = %+v / %+v", res.Conversation, res.Inbound)
	}
	if len(res.AutomaticReplies) != 1 || res.AutomaticReplies[0].Status != crm.StatusMocked {
		t.Fatalf("AutomaticReplies = %+v", res.AutomaticReplies)
	}

	second, err := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "+919812345678", Text: "again"})
	if err != nil {
		t.Fatalf("second ReceiveInboundMessage: %v", err)
	}
	if second.Conversation.ID != res.Conversation.ID {
		t.Error("same phone should land on the same conversation")
	}
	if len(second.AutomaticReplies) != 0 {
		t.Errorf("second message got %d automatic replies", len(second.AutomaticReplies))
	}

	details, err := f.svc.ConversationDetails(ctx, "user_a", res.Conversation.ID)
	if err != nil {
		t.Fatalf("ConversationDetails: %v", err)
	}
	if len(details.Messages) != 3 {
		t.Errorf("len(Messages) = %d, want 3", len(details.Messages))
	}
}

func TestReceiveInboundMessageValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReceiveInboundMessage(context.Background(), "user_a", Inbound{Phone: " ", Text: "x"})
	if err == nil || err.Error() != "phone and text are required" {
		t.Fatalf("err = %v", err)
	}
}

func TestTransportFailureStillRecordsInbound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onlyFirstInquiry(t, "user_a")
	f.sender.err = errors.New("WhatsApp API error 400: invalid recipient")

	res, err := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hello"})
	if err != nil {
		t.Fatalf("ReceiveInboundMessage: %v", err)
	}
	if len(res.AutomaticReplies) != 1 || res.AutomaticReplies[0].Status != crm.StatusFailed {
		t.Fatalf("AutomaticReplies = %+v", res.AutomaticReplies)
	}

	list, _ := f.svc.Conversations(ctx, "user_a", "", "")
	if len(list) != 1 || list[0].LastMessageText == "" {
		t.Errorf("conversation not persisted: %+v", list)
	}
}

func TestIngestWordPressLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		lead Lead
		want string
	}{
		{"with url", Lead{Phone: "111", Message: "Need a quote", SourceURL: "https://example.com/contact"}, "Website lead from https://example.com/contact: Need a quote"},
		{"without url", Lead{Phone: "222", Message: "Call me"}, "Website lead from unknown source: Call me"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.IngestWordPressLead(ctx, "user_a", tt.lead)
			if err != nil {
				t.Fatalf("IngestWordPressLead: %v", err)
			}
			if res.Inbound.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Inbound.Text, tt.want)
			}
			if res.Inbound.Source != crm.SourceWordPressForm || res.Conversation.Source != crm.SourceWordPressForm {
				t.Errorf("source = %q / %q", res.Inbound.Source, res.Conversation.Source)
			}
		})
	}

	if _, err := f.svc.IngestWordPressLead(ctx, "user_a", Lead{Phone: "111"}); err == nil || err.Error() != "phone and message are required" {
		t.Errorf("err = %v", err)
	}
}

func TestSendManualMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hi"})

	msg, err := f.svc.SendManualMessage(ctx, "user_a", res.Conversation.ID, "On it!", "")
	if err != nil {
		t.Fatalf("SendManualMessage: %v", err)
	}
	if msg.Source != crm.SourceDashboard || msg.Direction != crm.DirectionOutbound || msg.Status != crm.StatusMocked {
		t.Errorf("msg = %+v", msg)
	}

	if _, err := f.svc.SendManualMessage(ctx, "user_a", "conv_missing", "x", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.SendManualMessage(ctx, "user_a", res.Conversation.ID, "  ", ""); err == nil {
		t.Error("blank text should be rejected")
	}
}

func TestSendSetupTestMessage(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.SendSetupTestMessage(context.Background(), "user_a", "+1 555 0100", "")
	if err != nil {
		t.Fatalf("SendSetupTestMessage: %v", err)
	}
	if res.Conversation.Name != SetupTestName || res.Conversation.Source != crm.SourceSetupTest {
		t.Errorf("conversation = %+v", res.Conversation)
	}
	if res.Message.Source != crm.SourceSetupTest || res.Message.Text != SetupTestText {
		t.Errorf("message = %+v", res.Message)
	}
	if len(f.sender.to) != 1 || f.sender.to[0] != "+15550100" {
		t.Errorf("sent to %v", f.sender.to)
	}
}

func TestUpdateConversationClearsReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hi"})

	sent := time.Now().UTC()
	_ = f.store.Update(ctx, "user_a", func(ws *crm.Workspace) error {
		ws.FindConversation(res.Conversation.ID).FollowUpReminderSentAt = &sent
		return nil
	})

	at := "2030-01-01T10:00:00Z"
	updated, err := f.svc.UpdateConversation(ctx, "user_a", res.Conversation.ID, ledger.ConversationPatch{State: crm.StateFollowUp, FollowUpAt: &at})
	if err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}
	if updated.FollowUpReminderSentAt != nil {
		t.Error("FollowUpReminderSentAt should be cleared")
	}

	if _, err := f.svc.UpdateConversation(ctx, "user_a", res.Conversation.ID, ledger.ConversationPatch{State: "ARCHIVED"}); apperr.StatusOf(err) != 400 {
		t.Errorf("bad state err = %v", err)
	}
}

func TestUpdateAutomationRejectionLeavesStoredConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, _ := f.svc.Automation(ctx, "user_a")

	_, err := f.svc.UpdateAutomation(ctx, "user_a", boolPatch(t, `{"followUpReminderTemplateId": "tpl_nope", "businessHoursStart": "08:00"}`))
	if err == nil || !strings.Contains(err.Error(), "Follow-up reminders are enabled") {
		t.Fatalf("err = %v", err)
	}

	after, _ := f.svc.Automation(ctx, "user_a")
	if after != before {
		t.Errorf("stored config changed: %+v", after)
	}
}

func TestAutomationSafety(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hi"})
	past := "2020-01-01T00:00:00Z"
	if _, err := f.svc.UpdateConversation(ctx, "user_a", res.Conversation.ID, ledger.ConversationPatch{State: crm.StateFollowUp, FollowUpAt: &past}); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	safety, err := f.svc.AutomationSafety(ctx, "user_a")
	if err != nil {
		t.Fatalf("AutomationSafety: %v", err)
	}
	if safety.EnabledFeatures != 3 || safety.FollowUpsDueNow != 1 || len(safety.Errors) != 0 || len(safety.Warnings) != 1 {
		t.Errorf("safety = %+v", safety)
	}
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.svc.CreateTemplate(ctx, "user_a", "Pricing", "Our plans start at 999", "")
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	name := "Pricing v2"
	if _, err := f.svc.UpdateTemplate(ctx, "user_a", tpl.ID, ledger.TemplatePatch{Name: &name}); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}

	list, _ := f.svc.Templates(ctx, "user_a")
	if len(list) != 4 || list[3].Name != "Pricing v2" {
		t.Errorf("templates = %+v", list)
	}
}

func TestWhatsAppConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"user_a", "user_b"} {
		f.store.DB().Create(&models.User{ID: id, Email: id + "@example.com"})
	}

	phoneID, token, verify := "pn-1", "EAAG-secret-9876", "my-verify"
	settings, err := f.svc.UpdateWhatsAppConfig(ctx, "user_a", WhatsAppPatch{PhoneNumberID: &phoneID, AccessToken: &token, VerifyToken: &verify})
	if err != nil {
		t.Fatalf("UpdateWhatsAppConfig: %v", err)
	}
	if settings.AccessTokenMasked != "****9876" || !settings.HasAccessToken {
		t.Errorf("settings = %+v", settings)
	}

	_, err = f.svc.UpdateWhatsAppConfig(ctx, "user_b", WhatsAppPatch{PhoneNumberID: &phoneID})
	if apperr.StatusOf(err) != 409 {
		t.Errorf("duplicate phone number id err = %v, want conflict", err)
	}

	if _, err := f.svc.SendSetupTestMessage(ctx, "user_a", "111", "ping"); err != nil {
		t.Fatalf("SendSetupTestMessage: %v", err)
	}
	if got := f.sender.seen[len(f.sender.seen)-1]; got.AccessToken != token {
		t.Errorf("sender got config %+v, want workspace credentials", got)
	}
}

func TestAnalyticsAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hi"})
	_, _ = f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "222", Text: "hello"})

	a, err := f.svc.Analytics(ctx, "user_a")
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.NewInquiriesToday != 2 || a.TotalConversations != 2 {
		t.Errorf("analytics = %+v", a)
	}

	inbound := 0
	for _, e := range f.events.events {
		if e == EventMessageInbound {
			inbound++
		}
	}
	if inbound != 2 {
		t.Errorf("inbound events = %d, want 2", inbound)
	}
}

func TestExportConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onlyFirstInquiry(t, "user_a")
	_, _ = f.svc.ReceiveInboundMessage(ctx, "user_a", Inbound{Phone: "111", Text: "hi"})

	rows, err := f.svc.ExportConversations(ctx, "user_a")
	if err != nil {
		t.Fatalf("ExportConversations: %v", err)
	}
	if len(rows) != 1 || rows[0].Inbound != 1 || rows[0].Outbound != 1 {
		t.Errorf("rows = %+v", rows)
	}
}
