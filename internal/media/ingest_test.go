package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
)

type memoryStore struct {
	objects     map[string][]byte
	contentType map[string]string
	putErr      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (s *memoryStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.objects[key] = data
	s.contentType[key] = contentType
	return nil
}

func (s *memoryStore) URL(_ context.Context, key string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestIngestStoresAndClassifies(t *testing.T) {
	store := newMemoryStore()
	ingestor := NewIngestor(store, 0, []string{"image/*", "application/pdf"})

	att, typ, err := ingestor.Ingest(context.Background(), 7, Upload{
		FileName:    "dir/photo.PNG",
		ContentType: "image/png",
		Size:        int64(len(pngHeader)),
		Body:        bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, typ)
	assert.Equal(t, "photo.PNG", att.FileName)
	assert.Equal(t, int64(len(pngHeader)), att.SizeBytes)
	assert.True(t, strings.HasPrefix(att.URL, "https://cdn.example.com/attachments/7/"))
	assert.True(t, strings.HasSuffix(att.URL, ".png"))
	require.Len(t, store.objects, 1)
	for key, data := range store.objects {
		assert.Equal(t, pngHeader, data)
		assert.Equal(t, "image/png", store.contentType[key])
	}
}

func TestIngestSniffsMissingContentType(t *testing.T) {
	store := newMemoryStore()
	ingestor := NewIngestor(store, 0, nil)

	_, typ, err := ingestor.Ingest(context.Background(), 1, Upload{
		FileName: "blob",
		Body:     bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, typ)
}

func TestIngestRejectsOversizeAndDisallowed(t *testing.T) {
	ingestor := NewIngestor(newMemoryStore(), 8, []string{"image/*"})

	_, _, err := ingestor.Ingest(context.Background(), 1, Upload{Size: 9, Body: bytes.NewReader(make([]byte, 9))})
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = ingestor.Ingest(context.Background(), 1, Upload{Body: bytes.NewReader(make([]byte, 64))})
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = ingestor.Ingest(context.Background(), 1, Upload{ContentType: "text/plain", Size: 2, Body: strings.NewReader("hi")})
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = ingestor.Ingest(context.Background(), 1, Upload{ContentType: "image/png", Body: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestIngestStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("bucket gone")
	ingestor := NewIngestor(store, 0, nil)

	_, _, err := ingestor.Ingest(context.Background(), 1, Upload{ContentType: "audio/mpeg", Size: 3, Body: strings.NewReader("abc")})
	assert.ErrorIs(t, err, ErrIngestFailed)
	assert.NotErrorIs(t, err, ErrRejected)
}
