package models

import "time"

// CreateTransferRequest publishes inline content or an already stored artifact.
// An empty Type on inline content triggers classification.
type CreateTransferRequest struct {
	Type       TransferKind           `json:"type" validate:"omitempty,oneof=text code image video file"`
	Content    string                 `json:"content,omitempty"`
	ReceiverID string                 `json:"receiver_id,omitempty"`
	SessionKey string                 `json:"session_key,omitempty"`
	FileURL    string                 `json:"file_url,omitempty" validate:"omitempty,url"`
	FileName   string                 `json:"file_name,omitempty"`
	FileSize   int64                  `json:"file_size,omitempty" validate:"gte=0"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateTransferStatusRequest moves a transfer out of pending
type UpdateTransferStatusRequest struct {
	Status TransferStatus `json:"status" validate:"required,oneof=completed failed"`
}

// TransferList is a page of transfers, newest first
type TransferList struct {
	Transfers []*Transfer `json:"transfers"`
	Count     int         `json:"count"`
}

// CreateSessionRequest starts a pairing
type CreateSessionRequest struct {
	DeviceInfo DeviceInfo `json:"device_info"`
}

// SessionList holds a user's live sessions, newest first
type SessionList struct {
	Sessions []*PairingSession `json:"sessions"`
	Count    int               `json:"count"`
}

// SessionValidation is the pairing-protocol answer to validate
type SessionValidation struct {
	Valid      bool       `json:"valid"`
	UserID     string     `json:"user_id,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
