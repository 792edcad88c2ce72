package utils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageKey(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)

	key := ImageKey(now, "Normal", "openai-images", "image/png")
	assert.Regexp(t, `^rounds/2025-06-01/normal-openai-images-[0-9a-f-]{36}\.png$`, key)

	assert.NotEqual(t, key, ImageKey(now, "Normal", "openai-images", "image/png"))
	assert.Regexp(t, `\.jpg$`, ImageKey(now, "easy", "x", "image/jpeg; charset=binary"))
}

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:5200/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "rounds/a/b.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5200/uploads/rounds/a/b.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "rounds", "a", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../escape.png", []byte("x"), "image/png")
	assert.Error(t, err)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestR2StoreSave(t *testing.T) {
	putter := &fakePutter{}
	store := &R2Store{client: putter, bucket: "images", cdnBaseURL: "https://cdn.example"}

	url, err := store.Save(context.Background(), "rounds/x.png", []byte("data"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/rounds/x.png", url)
	assert.Equal(t, "images", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "data", string(putter.body))
}

func TestR2StoreSaveError(t *testing.T) {
	store := &R2Store{client: &fakePutter{err: errors.New("denied")}, bucket: "b", cdnBaseURL: "https://cdn"}

	_, err := store.Save(context.Background(), "k", []byte("x"), "image/png")
	assert.ErrorContains(t, err, "failed to upload to R2")
}

func TestDownloadBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("webp-bytes"))
	}))
	defer server.Close()

	data, ct, err := DownloadBytes(context.Background(), server.URL+"/img")
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(data))
	assert.Equal(t, "image/webp", ct)

	_, _, err = DownloadBytes(context.Background(), server.URL+"/missing")
	assert.Error(t, err)
}
