package database

import (
	"context"
	"errors"

	"doc-collab/backend/models"
)

// ErrUserNotFound is returned by UserLookup implementations for unknown IDs.
var ErrUserNotFound = errors.New("user not found")

//go:generate mockgen -source=store.go -destination=../mocks/store_mock.go -package=mocks

// MessageStore persists document chat messages. Implementations must be safe
// for concurrent use and return messages in insertion order.
type MessageStore interface {
	// CreateMessage stores a message and returns it with ID and CreatedAt set.
	CreateMessage(ctx context.Context, documentID, userID, content string) (*models.Message, error)
	// ListMessages returns up to limit of the most recent messages, oldest first.
	ListMessages(ctx context.Context, documentID string, limit int) ([]models.Message, error)
}

// UserLookup resolves display fields for message authors.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}
