package models

import (
	"time"

	"gorm.io/datatypes"
)

// StoreMeta is the single-row header describing the persisted schema
type StoreMeta struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	SchemaVersion int       `gorm:"not null" json:"schemaVersion"`
	InitializedAt time.Time `json:"initializedAt"`
}

func (StoreMeta) TableName() string {
	return "store_meta"
}

// User is a dashboard account; each user owns exactly one workspace
type User struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string     `gorm:"type:varchar(255)" json:"name"`
	PasswordHash string     `gorm:"type:text" json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
}

func (User) TableName() string {
	return "users"
}

// AuthSession is a login session; only the hash of the session secret is stored
type AuthSession struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index;not null" json:"userId"`
	TokenHash string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `gorm:"index" json:"expiresAt"`
}

func (AuthSession) TableName() string {
	return "auth_sessions"
}

// WorkspaceRecord holds one workspace document keyed by its owner
type WorkspaceRecord struct {
	UserID    string         `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	Document  datatypes.JSON `json:"document"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (WorkspaceRecord) TableName() string {
	return "workspaces"
}

// All lists every table managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&StoreMeta{},
		&User{},
		&AuthSession{},
		&WorkspaceRecord{},
	}
}
