package models

import (
	"time"

	"github.com/google/uuid"
)

// TransferKind is the content kind carried by a transfer
type TransferKind string

const (
	KindText  TransferKind = "text"
	KindCode  TransferKind = "code"
	KindImage TransferKind = "image"
	KindVideo TransferKind = "video"
	KindFile  TransferKind = "file"
)

// Valid reports whether k is one of the known kinds
func (k TransferKind) Valid() bool {
	switch k {
	case KindText, KindCode, KindImage, KindVideo, KindFile:
		return true
	}
	return false
}

// Inline reports whether the kind carries inline content rather than an artifact reference
func (k TransferKind) Inline() bool {
	return k == KindText || k == KindCode
}

// TransferStatus is the lifecycle state of a transfer
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusCompleted TransferStatus = "completed"
	StatusFailed    TransferStatus = "failed"
	StatusExpired   TransferStatus = "expired"
)

// CanTransition reports whether an explicit status change from s to next is allowed.
// Expiry is never set explicitly; it is derived from expires_at at read time.
func (s TransferStatus) CanTransition(next TransferStatus) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusCompleted || next == StatusFailed
}

// Transfer represents one piece of shared content
// Maps to: transfers table
type Transfer struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	SenderID   string       `db:"sender_id" json:"sender_id"`
	ReceiverID *string      `db:"receiver_id" json:"receiver_id,omitempty"`
	Kind       TransferKind `db:"type" json:"type"`

	// Inline payload for text and code
	Content *string `db:"content" json:"content,omitempty"`

	// Artifact reference for image, video and file
	FileURL  *string `db:"file_url" json:"file_url,omitempty"`
	FileName *string `db:"file_name" json:"file_name,omitempty"`
	FileSize *int64  `db:"file_size" json:"file_size,omitempty"`

	// Pairing-session scope, empty for identity-only transfers
	SessionKey *string `db:"session_key" json:"session_key,omitempty"`

	Status    TransferStatus `db:"status" json:"status"`
	ExpiresAt time.Time      `db:"expires_at" json:"expires_at"`

	// Language detection, dimensions, upload and stream bookkeeping
	Metadata map[string]interface{} `db:"metadata" json:"metadata"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the transfer is past its expiry at now
func (t *Transfer) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// EffectiveStatus returns the status as observed at now
func (t *Transfer) EffectiveStatus(now time.Time) TransferStatus {
	if t.Expired(now) && (t.Status == StatusPending || t.Status == StatusCompleted) {
		return StatusExpired
	}
	return t.Status
}

// Involves reports whether identity is the sender or the receiver
func (t *Transfer) Involves(identity string) bool {
	if identity == "" {
		return false
	}
	if t.SenderID == identity {
		return true
	}
	return t.ReceiverID != nil && *t.ReceiverID == identity
}

// TransferEventType names the change carried by a TransferEvent
type TransferEventType string

const (
	EventCreated TransferEventType = "created"
	EventUpdated TransferEventType = "updated"
	EventDeleted TransferEventType = "deleted"
)

// TransferEvent is the payload fanned out to subscribers
type TransferEvent struct {
	Type     string            `json:"type"`
	Event    TransferEventType `json:"event"`
	Transfer *Transfer         `json:"transfer"`
	SentAt   time.Time         `json:"sent_at"`
}

// NewTransferEvent builds an event frame for t
func NewTransferEvent(event TransferEventType, t *Transfer) *TransferEvent {
	return &TransferEvent{
		Type:     "transfer",
		Event:    event,
		Transfer: t,
		SentAt:   time.Now().UTC(),
	}
}
