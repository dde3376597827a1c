package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"realtime-chat/internal/media"
	"realtime-chat/internal/models"
)

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) PublishMessage(ctx context.Context, msg models.Message, conv models.Conversation) {
	m.Called(ctx, msg, conv)
}

func (m *BroadcasterMock) PublishRead(ctx context.Context, msg models.Message, readerID int64) {
	m.Called(ctx, msg, readerID)
}

func (m *BroadcasterMock) PublishDeletion(ctx context.Context, msg models.Message) {
	m.Called(ctx, msg)
}

type MediaIngestorMock struct {
	mock.Mock
}

func (m *MediaIngestorMock) Ingest(ctx context.Context, ownerID int64, up media.Upload) (models.Attachment, models.MessageType, error) {
	args := m.Called(ctx, ownerID, up)
	return args.Get(0).(models.Attachment), args.Get(1).(models.MessageType), args.Error(2)
}
