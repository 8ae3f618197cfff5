// Package auth manages dashboard accounts and their cookie sessions.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/ids"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Service struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "auth"))

	secret := []byte(cfg.AppSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("auth: generate signing secret: %v", err))
		}
		logger.Warn("APP_SECRET is not set, sessions will not survive a restart")
	}

	return &Service{
		db:     db,
		secret: secret,
		ttl:    time.Duration(cfg.AuthSessionDays) * 24 * time.Hour,
		logger: logger,
		now:    time.Now,
	}
}

// TTL is how long a session stays valid without activity.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("Name is required.")
	}
	if !emailPattern.MatchString(normalizeEmail(in.Email)) {
		return apperr.Validation("Valid email is required.")
	}
	if len(in.Password) < 8 {
		return apperr.Validation("Password must be at least 8 characters.")
	}
	return nil
}

func (s *Service) HasAccounts(ctx context.Context) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("auth: count users: %w", err)
	}
	return count > 0, nil
}

// Register creates an account and a session for it. The first account also
// takes over any imported single-tenant workspace.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           ids.New("user"),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		CreatedAt:    now,
		LastLoginAt:  &now,
	}

	var token string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.Conflict("Account with this email already exists.")
		}

		adopted, err := store.AdoptLegacy(tx, user.ID)
		if err != nil {
			return err
		}
		if adopted {
			s.logger.Info("legacy workspace adopted", slog.String("user_id", user.ID))
		}

		if err := tx.Create(user).Error; err != nil {
			return err
		}
		token, err = s.createSession(tx, user.ID, now)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("account registered", slog.String("user_id", user.ID))
	return user, token, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*models.User, string, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, "", apperr.Validation("Email and password are required.")
	}

	db := s.db.WithContext(ctx)
	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("auth: find user: %w", err)
	}
	if err != nil || !VerifyPassword(in.Password, user.PasswordHash) {
		return nil, "", apperr.Unauthorized("Invalid email or password.")
	}

	now := s.now().UTC()
	var token string
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("last_login_at", now).Error; err != nil {
			return err
		}
		var err error
		token, err = s.createSession(tx, user.ID, now)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("auth: login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, token, nil
}

// Lookup resolves a session cookie to its user and slides the session's
// expiry forward. An unknown or expired token yields nil without error.
func (s *Service) Lookup(ctx context.Context, token string) (*models.User, error) {
	claims, ok := s.parse(token)
	if !ok {
		return nil, nil
	}

	now := s.now().UTC()
	db := s.db.WithContext(ctx)
	if err := db.Where("expires_at <= ?", now).Delete(&models.AuthSession{}).Error; err != nil {
		return nil, fmt.Errorf("auth: prune sessions: %w", err)
	}

	var session models.AuthSession
	err := db.Where("token_hash = ? AND user_id = ?", hashToken(claims.ID), claims.Subject).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find session: %w", err)
	}

	var user models.User
	err = db.Where("id = ?", session.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		db.Delete(&session)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find user: %w", err)
	}

	if err := db.Model(&session).Update("expires_at", now.Add(s.ttl)).Error; err != nil {
		return nil, fmt.Errorf("auth: extend session: %w", err)
	}
	return &user, nil
}

// Logout deletes the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, ok := s.parse(token)
	if !ok {
		return nil
	}
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(claims.ID)).Delete(&models.AuthSession{}).Error
	if err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

func (s *Service) createSession(tx *gorm.DB, userID string, now time.Time) (string, error) {
	if err := tx.Where("expires_at <= ?", now).Delete(&models.AuthSession{}).Error; err != nil {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate session id: %w", err)
	}
	jti := base64.RawURLEncoding.EncodeToString(raw)

	session := models.AuthSession{
		ID:        ids.New("authsess"),
		UserID:    userID,
		TokenHash: hashToken(jti),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := tx.Create(&session).Error; err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Subject:  userID,
		ID:       jti,
		IssuedAt: jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(token string) (*jwt.RegisteredClaims, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
