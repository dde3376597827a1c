package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioStoreURLIsPermanent(t *testing.T) {
	store := &MinioStore{bucket: "chat-attachments", publicURL: "https://cdn.example.com"}

	u, err := store.URL(context.Background(), "7/abc-cat.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/chat-attachments/7/abc-cat.png", u)
	assert.NotContains(t, u, "X-Amz-Expires")
}

func TestMinioStoreRequiresPublicURL(t *testing.T) {
	_, err := NewMinioStore(context.Background(), MinioConfig{Endpoint: "localhost:9000", Bucket: "b"})
	assert.ErrorIs(t, err, errNoPublicURL)

	_, err = (&MinioStore{bucket: "b"}).URL(context.Background(), "k")
	assert.ErrorIs(t, err, errNoPublicURL)
}
