package conversations

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound is returned when no conversation matches within the org
	ErrConversationNotFound = errors.New("conversations: conversation not found")

	// ErrQuotaExceeded is matched by QuotaExceededError
	ErrQuotaExceeded = errors.New("conversations: dialog quota exceeded")

	// ErrMissingKey is returned when org, channel or chat id are empty
	ErrMissingKey = errors.New("conversations: org, channel and external chat id are required")
)

// QuotaExceededError reports the usage that blocked a new conversation.
type QuotaExceededError struct {
	Current int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("conversations: dialog quota exceeded (%d/%d)", e.Current, e.Limit)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
