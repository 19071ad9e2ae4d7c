package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceInfo is the free-form descriptor a device supplies when pairing
type DeviceInfo map[string]interface{}

// PairingSession links devices into one transfer-visibility scope
// Maps to: user_sessions table
type PairingSession struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	SessionKey string     `db:"session_key" json:"session_key"`
	DeviceInfo DeviceInfo `db:"device_info" json:"device_info"`
	LastActive time.Time  `db:"last_active" json:"last_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`

	// Fixed at creation, never extended
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Valid reports whether the session is usable at now
func (s *PairingSession) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// CleanupResult reports what an owner-scoped cleanup removed
type CleanupResult struct {
	DeletedSessions  int64 `json:"deleted_sessions"`
	DeletedTransfers int64 `json:"deleted_transfers"`
}
