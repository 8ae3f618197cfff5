package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/models"

	"gorm.io/datatypes"
)

func TestCopyTables(t *testing.T) {
	src, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	dst, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	for _, u := range []models.User{
		{ID: "user_a", Email: "a@example.com", Name: "A", CreatedAt: now},
		{ID: "user_b", Email: "b@example.com", Name: "B", CreatedAt: now},
	} {
		if err := src.Create(&u).Error; err != nil {
			t.Fatal(err)
		}
	}
	if err := src.Create(&models.WorkspaceRecord{UserID: "user_a", Document: datatypes.JSON(`{"conversations":[]}`)}).Error; err != nil {
		t.Fatal(err)
	}
	// already present in the destination; must survive the copy
	if err := dst.Create(&models.User{ID: "user_a", Email: "a@example.com", Name: "Kept", CreatedAt: now}).Error; err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	counts, err := copyTables(src, dst, log)
	if err != nil {
		t.Fatalf("copyTables: %v", err)
	}
	want := map[string]int{"users": 2, "auth_sessions": 0, "workspaces": 1}
	if len(counts) != len(want) {
		t.Fatalf("got %d table counts, want %d", len(counts), len(want))
	}
	for _, c := range counts {
		if want[c.table] != c.rows {
			t.Errorf("%s: got %d rows, want %d", c.table, c.rows, want[c.table])
		}
	}

	var users []models.User
	dst.Order("id").Find(&users)
	if len(users) != 2 {
		t.Fatalf("expected 2 users in destination, got %d", len(users))
	}
	if users[0].Name != "Kept" {
		t.Errorf("existing row was overwritten: %q", users[0].Name)
	}

	// re-running is a no-op
	if _, err := copyTables(src, dst, log); err != nil {
		t.Fatalf("second copy: %v", err)
	}
	var n int64
	dst.Model(&models.WorkspaceRecord{}).Count(&n)
	if n != 1 {
		t.Errorf("expected 1 workspace after re-run, got %d", n)
	}
}
