package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/retry"
	"github.com/lyzr/connected/common/uploader"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *ConnectedClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewConnectedClient(srv.URL, srv.Client(), logger.New("error", "text"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestUploadChunk_SendsMultipartAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/chunk", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get("X-User-ID"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "u1", r.FormValue("upload_id"))
		assert.Equal(t, "2", r.FormValue("chunk_index"))
		assert.Equal(t, "3", r.FormValue("total_chunks"))

		f, _, err := r.FormFile("chunk")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "xyz", string(data))

		writeJSON(w, http.StatusOK, models.ChunkReceipt{Success: true, UploadID: "u1", ChunkIndex: 2, UploadedChunks: 1, TotalChunks: 3})
	})

	ctx := WithToken(WithUserID(context.Background(), "alice"), "tok")
	receipt, err := c.UploadChunk(ctx, &uploader.Chunk{UploadID: "u1", Index: 2, TotalChunks: 3, FileName: "f", Data: []byte("xyz")})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.UploadedChunks)
}

func TestUploadChunk_ErrorClassification(t *testing.T) {
	status := http.StatusServiceUnavailable
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, models.ErrorResponse{Error: "nope", Code: models.CodeInternal})
	})
	chunk := &uploader.Chunk{UploadID: "u1", TotalChunks: 1, Data: []byte("a")}

	_, err := c.UploadChunk(context.Background(), chunk)
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))

	status = http.StatusBadRequest
	_, err = c.UploadChunk(context.Background(), chunk)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestFinalize_IncompleteUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:         "incomplete",
			Code:          models.CodeIncompleteUpload,
			UploadID:      "u1",
			TotalChunks:   3,
			MissingChunks: []int{1},
		})
	})

	_, err := c.Finalize(context.Background(), &models.FinalizeRequest{UploadID: "u1", FileName: "f", TotalChunks: 3})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))

	var incomplete *models.IncompleteUploadError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []int{1}, incomplete.Missing)
}

func TestFinalize_ServerErrorsAreNotRetried(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "storage", Code: models.CodeStorageFailure})
	})

	_, err := c.Finalize(context.Background(), &models.FinalizeRequest{UploadID: "u1"})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrStorageFailure)
}

func TestUploadStatus_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/u9/status", r.URL.Path)
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "not found", Code: models.CodeUploadExpired})
	})

	status, err := c.UploadStatus(context.Background(), "u9")
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestValidateSession(t *testing.T) {
	valid := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "K", r.URL.Query().Get("key"))
		if !valid {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "invalid session", Code: models.CodeInvalidSession})
			return
		}
		writeJSON(w, http.StatusOK, models.SessionValidation{Valid: true, UserID: "alice"})
	})

	v, err := c.ValidateSession(context.Background(), "K")
	require.NoError(t, err)
	assert.True(t, v.Valid)

	valid = false
	v, err = c.ValidateSession(context.Background(), "K")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestListTransfers_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "K", r.URL.Query().Get("session_key"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, models.TransferList{Transfers: []*models.Transfer{}, Count: 0})
	})

	list, err := c.ListTransfers(context.Background(), "K", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
}

func TestDeleteTransfer_Forbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Code: models.CodeForbidden})
	})

	err := c.DeleteTransfer(context.Background(), "t1")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestWebSocketURL(t *testing.T) {
	c := NewConnectedClient("https://connected.example.com", nil, logger.New("error", "text"))
	u, err := c.WebSocketURL("K", "dev1")
	require.NoError(t, err)
	assert.Equal(t, "wss://connected.example.com/ws?session_key=K&subscriber_id=dev1", u)
}
