package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/presence"
	"github.com/lyzr/connected/common/retry"
	"github.com/lyzr/connected/common/uploader"
)

// ConnectedClient talks to the connected API.
// It implements uploader.Transport.
// Requires: ctx with UserID or Token set via WithUserID()/WithToken()
type ConnectedClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

var _ uploader.Transport = (*ConnectedClient)(nil)

// NewConnectedClient creates a new API client. Per-call deadlines come from ctx.
func NewConnectedClient(baseURL string, httpClient *http.Client, logger Logger) *ConnectedClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ConnectedClient{
		baseURL: baseURL,
		http:    NewHTTPClient(httpClient, logger),
		logger:  logger,
	}
}

// BaseURL returns the API root
func (c *ConnectedClient) BaseURL() string {
	return c.baseURL
}

// retryPolicy decides which failures the uploader may repeat
type retryPolicy int

const (
	// retryTransient repeats network errors and temporary statuses
	retryTransient retryPolicy = iota
	// retryNetworkOnly repeats only calls that never got a response
	retryNetworkOnly
)

func (c *ConnectedClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, policy retryPolicy, out interface{}) error {
	resp, err := c.http.DoRequest(ctx, method, c.baseURL+path, body, contentType)
	if err != nil {
		// no response: safe to repeat under either policy
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := decodeError(resp)
		var apiErr *APIError
		if policy == retryTransient && errors.As(err, &apiErr) && apiErr.Temporary() {
			return err
		}
		return retry.Permanent(err)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *ConnectedClient) doJSON(ctx context.Context, method, path string, in interface{}, policy retryPolicy, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, policy, out)
}

// UploadChunk sends one chunk as multipart form data
func (c *ConnectedClient) UploadChunk(ctx context.Context, chunk *uploader.Chunk) (*models.ChunkReceipt, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"upload_id":    chunk.UploadID,
		"chunk_index":  strconv.Itoa(chunk.Index),
		"total_chunks": strconv.Itoa(chunk.TotalChunks),
		"file_name":    chunk.FileName,
		"file_hash":    chunk.FileHash,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, retry.Permanent(err)
		}
	}
	part, err := w.CreateFormFile("chunk", fmt.Sprintf("%s.part%d", chunk.UploadID, chunk.Index))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return nil, retry.Permanent(err)
	}
	if err := w.Close(); err != nil {
		return nil, retry.Permanent(err)
	}

	var receipt models.ChunkReceipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/uploads/chunk", &buf, w.FormDataContentType(), retryTransient, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Finalize asks the server to reassemble the upload. Only calls that never
// reached the server are retried, so a transfer is never published twice.
func (c *ConnectedClient) Finalize(ctx context.Context, req *models.FinalizeRequest) (*models.FinalizeResult, error) {
	var res models.FinalizeResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/uploads/finalize", req, retryNetworkOnly, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadDirect stores a small file in one request
func (c *ConnectedClient) UploadDirect(ctx context.Context, upload *uploader.DirectUpload) (*models.FinalizeResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"session_key": upload.SessionKey, "receiver_id": upload.ReceiverID, "file_type": upload.ContentType} {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, retry.Permanent(err)
		}
	}
	part, err := w.CreateFormFile("file", upload.FileName)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, retry.Permanent(err)
	}
	if err := w.Close(); err != nil {
		return nil, retry.Permanent(err)
	}

	var res models.FinalizeResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/uploads/direct", &buf, w.FormDataContentType(), retryNetworkOnly, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadStatus reports the registry view of an upload; unknown ids return Found=false
func (c *ConnectedClient) UploadStatus(ctx context.Context, uploadID string) (*models.UploadStatus, error) {
	var status models.UploadStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/uploads/"+url.PathEscape(uploadID)+"/status", nil, "", retryTransient, &status)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &models.UploadStatus{Found: false, UploadID: uploadID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateTransfer publishes a transfer
func (c *ConnectedClient) CreateTransfer(ctx context.Context, req *models.CreateTransferRequest) (*models.Transfer, error) {
	var t models.Transfer
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers", req, retryNetworkOnly, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransfers lists the caller's transfers, or a session's when sessionKey is set
func (c *ConnectedClient) ListTransfers(ctx context.Context, sessionKey string, limit int) (*models.TransferList, error) {
	q := url.Values{}
	if sessionKey != "" {
		q.Set("session_key", sessionKey)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/transfers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list models.TransferList
	if err := c.do(ctx, http.MethodGet, path, nil, "", retryTransient, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTransfer fetches one transfer
func (c *ConnectedClient) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	var t models.Transfer
	if err := c.do(ctx, http.MethodGet, "/api/v1/transfers/"+url.PathEscape(id), nil, "", retryTransient, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransferStatus moves a transfer to completed or failed
func (c *ConnectedClient) UpdateTransferStatus(ctx context.Context, id string, status models.TransferStatus) (*models.Transfer, error) {
	var t models.Transfer
	req := &models.UpdateTransferStatusRequest{Status: status}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/v1/transfers/"+url.PathEscape(id), req, retryNetworkOnly, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTransfer retracts a transfer the caller sent
func (c *ConnectedClient) DeleteTransfer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/transfers/"+url.PathEscape(id), nil, "", retryNetworkOnly, nil)
}

// CreateSession starts a pairing session
func (c *ConnectedClient) CreateSession(ctx context.Context, device models.DeviceInfo) (*models.PairingSession, error) {
	var s models.PairingSession
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", &models.CreateSessionRequest{DeviceInfo: device}, retryNetworkOnly, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions lists the caller's live sessions
func (c *ConnectedClient) ListSessions(ctx context.Context) (*models.SessionList, error) {
	var list models.SessionList
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, "", retryTransient, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ValidateSession checks a pairing key; an invalid key is not an error
func (c *ConnectedClient) ValidateSession(ctx context.Context, key string) (*models.SessionValidation, error) {
	var v models.SessionValidation
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions/validate?key="+url.QueryEscape(key), nil, "", retryTransient, &v)
	if errors.Is(err, models.ErrInvalidSession) {
		return &models.SessionValidation{Valid: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Cleanup removes the caller's expired sessions and transfers
func (c *ConnectedClient) Cleanup(ctx context.Context) (*models.CleanupResult, error) {
	var res models.CleanupResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/cleanup", nil, "", retryNetworkOnly, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Presence returns the live subscribers of a session, or of the caller when sessionKey is empty
func (c *ConnectedClient) Presence(ctx context.Context, sessionKey string) (*presence.Snapshot, error) {
	path := "/api/v1/presence"
	if sessionKey != "" {
		path += "?session_key=" + url.QueryEscape(sessionKey)
	}
	var snap presence.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, "", retryTransient, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WebSocketURL builds the realtime subscription URL
func (c *ConnectedClient) WebSocketURL(sessionKey, subscriberID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("subscriber_id", subscriberID)
	if sessionKey != "" {
		q.Set("session_key", sessionKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
