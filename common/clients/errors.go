package clients

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lyzr/connected/common/models"
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Response   models.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Response.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Response.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// Unwrap exposes the domain sentinel so callers can use errors.Is
func (e *APIError) Unwrap() error {
	return models.SentinelForCode(e.Response.Code)
}

// Temporary reports whether repeating the same request may succeed
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500 && e.Response.Code != models.CodeStorageFailure
}

// decodeError turns a failed response into *APIError, or
// *models.IncompleteUploadError when the registry reported gaps
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, &apiErr.Response); err != nil || apiErr.Response.Error == "" {
		apiErr.Response.Error = string(body)
	}

	if apiErr.Response.Code == models.CodeIncompleteUpload {
		return &models.IncompleteUploadError{
			UploadID: apiErr.Response.UploadID,
			Total:    apiErr.Response.TotalChunks,
			Received: apiErr.Response.ReceivedChunks,
			Missing:  apiErr.Response.MissingChunks,
		}
	}
	return apiErr
}
