package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsapp-crm/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportResult summarizes a legacy data file import.
type ImportResult struct {
	Users      int
	Workspaces int
	Legacy     bool
}

type legacyUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    string `json:"createdAt"`
	LastLoginAt  string `json:"lastLoginAt"`
}

// ImportLegacy loads a JSON data file written by the previous file-backed
// backend. Multi-account files bring their users and workspaces along; a
// single-tenant document is parked under LegacyWorkspaceKey for the first
// account to adopt. Existing rows are left untouched. Sessions are not
// imported, so every user signs in again.
func (s *Store) ImportLegacy(ctx context.Context, raw []byte) (ImportResult, error) {
	var result ImportResult

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return result, fmt.Errorf("store: parse legacy file: %w", err)
	}

	var users []legacyUser
	if startsWith(doc["users"], '[') {
		if err := json.Unmarshal(doc["users"], &users); err != nil {
			return result, fmt.Errorf("store: parse legacy users: %w", err)
		}
	}

	workspaces := map[string]json.RawMessage{}
	if startsWith(doc["workspaces"], '{') {
		if err := json.Unmarshal(doc["workspaces"], &workspaces); err != nil {
			return result, fmt.Errorf("store: parse legacy workspaces: %w", err)
		}
	}
	if _, ok := workspaces[LegacyWorkspaceKey]; !ok && hasSingleTenantData(doc) {
		workspaces[LegacyWorkspaceKey] = singleTenantDocument(doc)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			if u.ID == "" || u.Email == "" {
				continue
			}
			row := u.toModel(s.now())
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return fmt.Errorf("store: import user %s: %w", u.ID, res.Error)
			}
			result.Users += int(res.RowsAffected)
		}

		for userID, rawWorkspace := range workspaces {
			var existing int64
			if err := tx.Model(&models.WorkspaceRecord{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
				return fmt.Errorf("store: import workspace %s: %w", userID, err)
			}
			if existing > 0 {
				continue
			}

			ws, _, err := Normalize(rawWorkspace, s.Seed())
			if err != nil {
				return fmt.Errorf("store: import workspace %s: %w", userID, err)
			}
			if err := saveWorkspace(tx, userID, ws); err != nil {
				return err
			}
			result.Workspaces++
			if userID == LegacyWorkspaceKey {
				result.Legacy = true
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	s.logger.Info("imported legacy data",
		slog.Int("users", result.Users),
		slog.Int("workspaces", result.Workspaces),
		slog.Bool("legacy_workspace", result.Legacy))
	return result, nil
}

// AdoptLegacy hands the parked single-tenant workspace to userID. It only
// does so while no account exists yet, so it must run inside the
// registration transaction before the new user row is inserted.
func AdoptLegacy(tx *gorm.DB, userID string) (bool, error) {
	var users int64
	if err := tx.Model(&models.User{}).Count(&users).Error; err != nil {
		return false, fmt.Errorf("store: count users: %w", err)
	}
	if users > 0 {
		return false, nil
	}

	var legacy models.WorkspaceRecord
	err := tx.Where("user_id = ?", LegacyWorkspaceKey).First(&legacy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: load legacy workspace: %w", err)
	}

	if err := saveDocument(tx, userID, legacy.Document); err != nil {
		return false, err
	}
	if err := tx.Where("user_id = ?", LegacyWorkspaceKey).Delete(&models.WorkspaceRecord{}).Error; err != nil {
		return false, fmt.Errorf("store: drop legacy workspace: %w", err)
	}
	return true, nil
}

func hasSingleTenantData(doc map[string]json.RawMessage) bool {
	for _, key := range arrayKeys {
		if startsWith(doc[key], '[') {
			return true
		}
	}
	for _, key := range objectKeys {
		if startsWith(doc[key], '{') {
			return true
		}
	}
	return false
}

func singleTenantDocument(doc map[string]json.RawMessage) json.RawMessage {
	ws := map[string]json.RawMessage{}
	for _, key := range append(append([]string{}, arrayKeys...), objectKeys...) {
		if v, ok := doc[key]; ok {
			ws[key] = v
		}
	}
	out, _ := json.Marshal(ws)
	return out
}

func (u legacyUser) toModel(now time.Time) models.User {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = "User"
	}
	row := models.User{
		ID:           u.ID,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		Name:         name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    parseLegacyTime(u.CreatedAt, now),
	}
	if u.LastLoginAt != "" {
		last := parseLegacyTime(u.LastLoginAt, now)
		row.LastLoginAt = &last
	}
	return row
}

func parseLegacyTime(value string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return fallback.UTC()
}
