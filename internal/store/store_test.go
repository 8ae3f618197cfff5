package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/models"
	crm "whatsapp-crm/pkg/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testDefaults = Defaults{Timezone: "Asia/Kolkata", BusinessHoursStart: "09:00", BusinessHoursEnd: "19:00"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	return New(db, testDefaults, nil)
}

func putDocument(t *testing.T, db *gorm.DB, userID, doc string) {
	t.Helper()
	if err := db.Create(&models.WorkspaceRecord{UserID: userID, Document: datatypes.JSON(doc)}).Error; err != nil {
		t.Fatalf("insert workspace: %v", err)
	}
}

func readDocument(t *testing.T, db *gorm.DB, userID string) map[string]json.RawMessage {
	t.Helper()
	var record models.WorkspaceRecord
	if err := db.Where("user_id = ?", userID).First(&record).Error; err != nil {
		t.Fatalf("read workspace %s: %v", userID, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(record.Document, &doc); err != nil {
		t.Fatalf("decode workspace: %v", err)
	}
	return doc
}

func TestViewSeedsNewWorkspace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, "user_a", func(ws *crm.Workspace) error {
		if len(ws.Templates) != 3 {
			t.Errorf("len(Templates) = %d, want 3", len(ws.Templates))
		}
		if ws.Automation.Timezone != "Asia/Kolkata" {
			t.Errorf("Timezone = %q", ws.Automation.Timezone)
		}
		if !ws.Automation.AutoReplyOnFirstInquiry || !ws.Automation.BusinessHoursReplyEnabled || !ws.Automation.FollowUpReminderEnabled {
			t.Errorf("seed automation toggles should all be on: %+v", ws.Automation)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	doc := readDocument(t, s.DB(), "user_a")
	for _, key := range []string{"conversations", "messages", "templates", "automation", "whatsappConfig", "logs"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("persisted document missing %q", key)
		}
	}
}

func TestUpdatePersistsAndErrorsDiscard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "user_a", func(ws *crm.Workspace) error {
		ws.WhatsAppConfig.BusinessPhone = "+911234"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	boom := errors.New("boom")
	err = s.Update(ctx, "user_a", func(ws *crm.Workspace) error {
		ws.WhatsAppConfig.BusinessPhone = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want boom", err)
	}

	_ = s.View(ctx, "user_a", func(ws *crm.Workspace) error {
		if ws.WhatsAppConfig.BusinessPhone != "+911234" {
			t.Errorf("BusinessPhone = %q, want %q", ws.WhatsAppConfig.BusinessPhone, "+911234")
		}
		return nil
	})
}

func TestUpdateNoChangeSkipsWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "user_a", func(ws *crm.Workspace) error {
		ws.WhatsAppConfig.BusinessPhone = "ignored"
		return ErrNoChange
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var count int64
	s.DB().Model(&models.WorkspaceRecord{}).Where("user_id = ?", "user_a").Count(&count)
	if count != 0 {
		t.Errorf("workspace rows = %d, want 0", count)
	}
}

func TestUpdateSerializesWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "user_a", func(ws *crm.Workspace) error {
				ws.Logs = append(ws.Logs, &crm.LogEntry{ID: "log", CreatedAt: time.Now()})
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	_ = s.View(ctx, "user_a", func(ws *crm.Workspace) error {
		if len(ws.Logs) != writers {
			t.Errorf("len(Logs) = %d, want %d (lost update)", len(ws.Logs), writers)
		}
		return nil
	})
}

func TestNormalize(t *testing.T) {
	seed := testDefaults.Workspace(time.Now())

	tests := []struct {
		name        string
		doc         string
		wantChanged bool
		check       func(t *testing.T, ws *crm.Workspace)
	}{
		{
			name:        "not an object",
			doc:         `[1,2]`,
			wantChanged: true,
			check: func(t *testing.T, ws *crm.Workspace) {
				if len(ws.Templates) != 3 {
					t.Errorf("len(Templates) = %d, want seed", len(ws.Templates))
				}
			},
		},
		{
			name:        "missing and mistyped arrays",
			doc:         `{"conversations":{},"messages":null,"automation":{},"whatsappConfig":{}}`,
			wantChanged: true,
			check: func(t *testing.T, ws *crm.Workspace) {
				if ws.Conversations == nil || ws.Messages == nil || ws.Logs == nil {
					t.Error("arrays should be repaired to empty lists")
				}
				if len(ws.Templates) != 3 {
					t.Errorf("len(Templates) = %d, want 3", len(ws.Templates))
				}
			},
		},
		{
			name: "partial automation keeps existing keys",
			doc: `{"conversations":[],"messages":[],"templates":[],"logs":[],
				"automation":{"timezone":"Europe/Berlin","autoReplyOnFirstInquiry":false},
				"whatsappConfig":"broken"}`,
			wantChanged: true,
			check: func(t *testing.T, ws *crm.Workspace) {
				if ws.Automation.Timezone != "Europe/Berlin" {
					t.Errorf("Timezone = %q, want kept", ws.Automation.Timezone)
				}
				if ws.Automation.AutoReplyOnFirstInquiry {
					t.Error("existing false toggle must not be overwritten by seed")
				}
				if ws.Automation.BusinessHoursStart != "09:00" {
					t.Errorf("BusinessHoursStart = %q, want filled from seed", ws.Automation.BusinessHoursStart)
				}
				if len(ws.Templates) != 0 {
					t.Errorf("existing empty templates list must be kept")
				}
			},
		},
		{
			name: "complete document untouched",
			doc: func() string {
				b, _ := json.Marshal(seed)
				return string(b)
			}(),
			wantChanged: false,
		},
		{
			name: "raw follow-up input",
			doc: `{"conversations":[
				{"id":"c1","phone":"1","state":"NEW","followUpAt":""},
				{"id":"c2","phone":"2","state":"FOLLOW_UP","followUpAt":"2024-05-01T10:00","followUpReminderSentAt":"soon"},
				{"id":"c3","phone":"3","state":"NEW","createdAt":"","followUpAt":"2024-05-01T15:30:00+0530",
				 "notes":[{"id":"n1","text":"hi","createdAt":"2024-05-01 09:00:00"}]}
			],"messages":[{"id":"m1","createdAt":42}],"templates":[],"logs":[],"automation":{},"whatsappConfig":{}}`,
			wantChanged: true,
			check: func(t *testing.T, ws *crm.Workspace) {
				if len(ws.Conversations) != 3 {
					t.Fatalf("len(Conversations) = %d, want 3", len(ws.Conversations))
				}
				if got := ws.Conversations[0].FollowUpAt; got != nil {
					t.Errorf("empty followUpAt = %v, want nil", got)
				}
				want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
				if got := ws.Conversations[1].FollowUpAt; got == nil || !got.Equal(want) {
					t.Errorf("zoneless followUpAt = %v, want %v", got, want)
				}
				if got := ws.Conversations[1].FollowUpReminderSentAt; got != nil {
					t.Errorf("unreadable followUpReminderSentAt = %v, want nil", got)
				}
				if got := ws.Conversations[2].FollowUpAt; got == nil || !got.Equal(want) {
					t.Errorf("offset followUpAt = %v, want %v", got, want)
				}
				if !ws.Conversations[2].CreatedAt.IsZero() {
					t.Errorf("empty createdAt = %v, want zero", ws.Conversations[2].CreatedAt)
				}
				noteAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
				if got := ws.Conversations[2].Notes[0].CreatedAt; !got.Equal(noteAt) {
					t.Errorf("note createdAt = %v, want %v", got, noteAt)
				}
				if len(ws.Messages) != 1 || !ws.Messages[0].CreatedAt.IsZero() {
					t.Errorf("numeric createdAt should decode as zero time")
				}
			},
		},
		{
			name:        "null entries dropped",
			doc:         `{"conversations":[null],"messages":[],"templates":[],"logs":[],"automation":{},"whatsappConfig":{}}`,
			wantChanged: true,
			check: func(t *testing.T, ws *crm.Workspace) {
				if len(ws.Conversations) != 0 {
					t.Errorf("len(Conversations) = %d, want 0", len(ws.Conversations))
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, changed, err := Normalize([]byte(tt.doc), testDefaults.Workspace(time.Now()))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if tt.check != nil {
				tt.check(t, ws)
			}
		})
	}
}

func TestViewPersistsRepairs(t *testing.T) {
	s := newTestStore(t)
	putDocument(t, s.DB(), "user_a", `{"conversations":[]}`)

	if err := s.View(context.Background(), "user_a", func(*crm.Workspace) error { return nil }); err != nil {
		t.Fatalf("View: %v", err)
	}
	doc := readDocument(t, s.DB(), "user_a")
	if _, ok := doc["automation"]; !ok {
		t.Error("repaired shape should be written back")
	}
}

func TestFindByConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDocument(t, s.DB(), LegacyWorkspaceKey, `{"whatsappConfig":{"verifyToken":"tok","phoneNumberId":"pn1"}}`)
	putDocument(t, s.DB(), "user_b", `{"whatsappConfig":{"verifyToken":"tok","phoneNumberId":"pn1"}}`)
	putDocument(t, s.DB(), "user_c", `{"whatsappConfig":{"verifyToken":"other","phoneNumberId":"pn2"}}`)

	tests := []struct {
		name string
		find func(context.Context, string) (string, error)
		arg  string
		want string
	}{
		{"verify token", s.FindByVerifyToken, "tok", "user_b"},
		{"phone number id", s.FindByPhoneNumberID, "pn2", "user_c"},
		{"unknown", s.FindByPhoneNumberID, "pn9", ""},
		{"empty", s.FindByVerifyToken, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.find(ctx, tt.arg)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWorkspaceIDs(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.DB().Create(&models.User{ID: "user_1", Email: "a@example.com", CreatedAt: now})
	s.DB().Create(&models.User{ID: "user_2", Email: "b@example.com", CreatedAt: now.Add(time.Second)})

	ids, err := s.WorkspaceIDs(context.Background())
	if err != nil {
		t.Fatalf("WorkspaceIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "user_1" || ids[1] != "user_2" {
		t.Errorf("ids = %v", ids)
	}
}
