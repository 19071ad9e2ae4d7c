package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPath(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "uploads/alice/1700000000123-up-1.pdf", UploadPath("alice", "up-1", "Report.PDF", at))
	assert.Equal(t, "uploads/anonymous/1700000000123-up-1", UploadPath("", "up-1", "README", at))
	assert.Equal(t, "uploads/_etc_passwd/1700000000123-x.png", UploadPath("../etc/passwd", "x", "a.png", at))
}

func TestLocalStorage_Put(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, "http://localhost:8080/files/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), []byte("hello"), "text/plain", "uploads/alice/1-u.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/uploads/alice/1-u.txt", url)

	data, err := os.ReadFile(filepath.Join(root, "uploads", "alice", "1-u.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStorage_HintCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, "/files")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), []byte("x"), "", "../../escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "/files/escape.txt", url)
	assert.FileExists(t, filepath.Join(root, "escape.txt"))

	_, err = store.Put(context.Background(), []byte("x"), "", "")
	assert.Error(t, err)
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, []byte("x"), "", "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(params.Key)}, nil
}

func TestS3Storage_PutPresigned(t *testing.T) {
	client := &fakeS3{}
	store := newS3Storage(client, fakePresigner{}, S3Config{Bucket: "artifacts", Prefix: "/connected/"})

	url, err := store.Put(context.Background(), []byte("img"), "image/png", "uploads/bob/1-u.png")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/connected/uploads/bob/1-u.png", url)
	assert.Equal(t, "artifacts", aws.ToString(client.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, []byte("img"), client.body)
	assert.Equal(t, 7*24*time.Hour, store.cfg.PresignTTL)
}

func TestS3Storage_PutPublicURL(t *testing.T) {
	store := newS3Storage(&fakeS3{}, fakePresigner{}, S3Config{Bucket: "b", PublicBaseURL: "https://cdn.example/"})

	url, err := store.Put(context.Background(), []byte("x"), "", "uploads/a/1-u.bin")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/uploads/a/1-u.bin", url)
}

func TestS3Storage_PutError(t *testing.T) {
	store := newS3Storage(&fakeS3{err: errors.New("access denied")}, fakePresigner{}, S3Config{Bucket: "b"})

	_, err := store.Put(context.Background(), []byte("x"), "", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
