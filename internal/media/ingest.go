package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"realtime-chat/internal/models"
)

const DefaultMaxBytes = 10 << 20

var (
	// ErrRejected means the attachment broke the size or type policy.
	ErrRejected = errors.New("attachment rejected")
	// ErrIngestFailed means the object store did not accept the upload.
	ErrIngestFailed = errors.New("media ingest failed")
)

// Upload is an attachment as received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Ingestor validates attachments and hands them to object storage.
type Ingestor struct {
	store    ObjectStore
	maxBytes int64
	allowed  []string
}

// NewIngestor builds an Ingestor. allowed holds MIME types or "type/*"
// wildcards; an empty list allows any type.
func NewIngestor(store ObjectStore, maxBytes int64, allowed []string) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	clean := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			clean = append(clean, a)
		}
	}
	return &Ingestor{store: store, maxBytes: maxBytes, allowed: clean}
}

// Ingest stores the upload and returns its attachment record and the message
// type implied by its content type.
func (i *Ingestor) Ingest(ctx context.Context, ownerID int64, up Upload) (models.Attachment, models.MessageType, error) {
	if up.Size > i.maxBytes {
		return models.Attachment{}, "", fmt.Errorf("%w: file exceeds %d bytes", ErrRejected, i.maxBytes)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.Attachment{}, "", fmt.Errorf("%w: read upload: %w", ErrIngestFailed, err)
	}
	head = head[:n]
	if n == 0 {
		return models.Attachment{}, "", fmt.Errorf("%w: empty file", ErrRejected)
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(up.ContentType, ";")[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = strings.Split(mimetype.Detect(head).String(), ";")[0]
	}
	if !i.typeAllowed(contentType) {
		return models.Attachment{}, "", fmt.Errorf("%w: type %s not allowed", ErrRejected, contentType)
	}

	body := io.MultiReader(bytes.NewReader(head), up.Body)
	size := up.Size
	if size <= 0 {
		// unknown size: buffer up to the limit so it can still be enforced
		buf, err := io.ReadAll(io.LimitReader(body, i.maxBytes+1))
		if err != nil {
			return models.Attachment{}, "", fmt.Errorf("%w: read upload: %w", ErrIngestFailed, err)
		}
		if int64(len(buf)) > i.maxBytes {
			return models.Attachment{}, "", fmt.Errorf("%w: file exceeds %d bytes", ErrRejected, i.maxBytes)
		}
		size = int64(len(buf))
		body = bytes.NewReader(buf)
	}

	key := objectKey(ownerID, up.FileName)
	if err := i.store.Put(ctx, key, body, size, contentType); err != nil {
		return models.Attachment{}, "", fmt.Errorf("%w: %w", ErrIngestFailed, err)
	}
	url, err := i.store.URL(ctx, key)
	if err != nil {
		return models.Attachment{}, "", fmt.Errorf("%w: %w", ErrIngestFailed, err)
	}

	return models.Attachment{
		URL:       url,
		FileName:  path.Base(up.FileName),
		SizeBytes: size,
	}, models.MessageTypeForMIME(contentType), nil
}

func (i *Ingestor) typeAllowed(contentType string) bool {
	if len(i.allowed) == 0 {
		return true
	}
	for _, a := range i.allowed {
		if a == contentType {
			return true
		}
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(contentType, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}

func objectKey(ownerID int64, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(fileName)))
	return fmt.Sprintf("attachments/%d/%s/%s%s", ownerID, time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}
