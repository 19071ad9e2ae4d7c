package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUploadExpired means the registry no longer holds the upload; restart it
	ErrUploadExpired = errors.New("upload not found, chunks may have expired")

	// ErrStorageFailure means reassembly succeeded but the storage hand-off did not
	ErrStorageFailure = errors.New("artifact storage failed")

	// ErrInvalidSession covers both unknown and expired pairing keys
	ErrInvalidSession = errors.New("invalid session")

	ErrTransferNotFound  = errors.New("transfer not found")
	ErrForbidden         = errors.New("not allowed for this identity")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IncompleteUploadError is returned when finalize runs before every chunk arrived
type IncompleteUploadError struct {
	UploadID string
	Total    int
	Received []int
	Missing  []int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload %s incomplete: %d of %d chunks received, missing %v",
		e.UploadID, len(e.Received), e.Total, e.Missing)
}

// Error codes carried in ErrorResponse.Code
const (
	CodeIncompleteUpload  = "incomplete_upload"
	CodeUploadExpired     = "upload_expired"
	CodeStorageFailure    = "storage_failure"
	CodeInvalidSession    = "invalid_session"
	CodeTransferNotFound  = "transfer_not_found"
	CodeForbidden         = "forbidden"
	CodeInvalidTransition = "invalid_transition"
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeTooLarge          = "too_large"
	CodeInternal          = "internal_error"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	UploadID       string `json:"upload_id,omitempty"`
	TotalChunks    int    `json:"total_chunks,omitempty"`
	ReceivedChunks []int  `json:"received_chunks,omitempty"`
	MissingChunks  []int  `json:"missing_chunks,omitempty"`
}

// SentinelForCode maps an error code back to its sentinel, or nil
func SentinelForCode(code string) error {
	switch code {
	case CodeUploadExpired:
		return ErrUploadExpired
	case CodeStorageFailure:
		return ErrStorageFailure
	case CodeInvalidSession:
		return ErrInvalidSession
	case CodeTransferNotFound:
		return ErrTransferNotFound
	case CodeForbidden:
		return ErrForbidden
	case CodeInvalidTransition:
		return ErrInvalidTransition
	}
	return nil
}
