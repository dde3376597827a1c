package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotParticipant       = errors.New("not a participant of the conversation")
	ErrNotOwner             = errors.New("only the sender can delete a message")
	ErrSelfConversation     = errors.New("cannot start a conversation with self")
	ErrInvalidConversation  = errors.New("invalid conversation")
	// ErrStoreUnavailable wraps every persistence failure. Callers surface it
	// as a failed operation and do not retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

const pqForeignKeyViolation = "23503"

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
