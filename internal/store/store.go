// Package store persists one JSON workspace document per user and serializes
// writers of the same workspace.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"whatsapp-crm/internal/models"
	crm "whatsapp-crm/pkg/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoChange can be returned from an Update callback to skip the write
// without failing the call.
var ErrNoChange = errors.New("store: no change")

// LegacyWorkspaceKey parks an imported single-tenant document until the
// first account adopts it.
const LegacyWorkspaceKey = "__legacy"

type Store struct {
	db       *gorm.DB
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *gorm.DB, defaults Defaults, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "store")),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// DB exposes the underlying handle for account and session tables.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Seed returns a fresh default workspace.
func (s *Store) Seed() *crm.Workspace {
	return s.defaults.Workspace(s.now().UTC())
}

func (s *Store) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Update loads the user's workspace, runs fn and writes the whole document
// back. Nothing is written when fn returns an error. Calls for the same user
// run one at a time.
func (s *Store) Update(ctx context.Context, userID string, fn func(ws *crm.Workspace) error) error {
	unlock := s.lock(userID)
	defer unlock()

	ws, _, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(ws); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.save(ctx, userID, ws)
}

// View runs fn against the user's workspace without persisting fn's changes.
// Shape repairs found while loading are still written.
func (s *Store) View(ctx context.Context, userID string, fn func(ws *crm.Workspace) error) error {
	unlock := s.lock(userID)
	defer unlock()

	ws, repaired, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if repaired {
		if err := s.save(ctx, userID, ws); err != nil {
			return err
		}
	}
	return fn(ws)
}

func (s *Store) load(ctx context.Context, userID string) (*crm.Workspace, bool, error) {
	var record models.WorkspaceRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Seed(), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load workspace %s: %w", userID, err)
	}

	ws, repaired, err := Normalize(record.Document, s.Seed())
	if err != nil {
		return nil, false, fmt.Errorf("store: load workspace %s: %w", userID, err)
	}
	if repaired {
		s.logger.Info("repaired workspace shape", slog.String("user_id", userID))
	}
	return ws, repaired, nil
}

func (s *Store) save(ctx context.Context, userID string, ws *crm.Workspace) error {
	return saveWorkspace(s.db.WithContext(ctx), userID, ws)
}

func saveWorkspace(db *gorm.DB, userID string, ws *crm.Workspace) error {
	doc, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("store: encode workspace %s: %w", userID, err)
	}
	return saveDocument(db, userID, doc)
}

func saveDocument(db *gorm.DB, userID string, doc []byte) error {
	record := models.WorkspaceRecord{UserID: userID, Document: datatypes.JSON(doc)}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("store: save workspace %s: %w", userID, err)
	}
	return nil
}

// WorkspaceIDs lists the ids of every registered account.
func (s *Store) WorkspaceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return ids, nil
}

// FindByVerifyToken returns the user whose workspace carries the given
// webhook verify token, or "" when none does.
func (s *Store) FindByVerifyToken(ctx context.Context, token string) (string, error) {
	return s.findByConfig(ctx, "verifyToken", token)
}

// FindByPhoneNumberID returns the user whose workspace is bound to the given
// Cloud API phone number id, or "" when none is.
func (s *Store) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (string, error) {
	return s.findByConfig(ctx, "phoneNumberId", phoneNumberID)
}

func (s *Store) findByConfig(ctx context.Context, key, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	var record models.WorkspaceRecord
	err := s.db.WithContext(ctx).
		Select("user_id").
		Where("user_id <> ?", LegacyWorkspaceKey).
		Where(datatypes.JSONQuery("document").Equals(value, "whatsappConfig", key)).
		Order("user_id").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: find workspace by %s: %w", key, err)
	}
	return record.UserID, nil
}
