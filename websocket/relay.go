package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"doc-collab/backend/database"
	"doc-collab/backend/models"
)

// Relay validates and persists chat messages and hydrates them with author
// display fields. Broadcasting is left to the caller.
type Relay struct {
	store        database.MessageStore
	users        database.UserLookup
	maxLength    int
	historyLimit int
}

// RelayConfig bounds message content and history reads. Zero values disable the bound.
type RelayConfig struct {
	MaxLength    int
	HistoryLimit int
}

func NewRelay(store database.MessageStore, users database.UserLookup, cfg RelayConfig) *Relay {
	return &Relay{store: store, users: users, maxLength: cfg.MaxLength, historyLimit: cfg.HistoryLimit}
}

// Send stores content as a message on documentID by userID. Invalid content
// never reaches the store.
func (r *Relay) Send(ctx context.Context, documentID, userID, content string) (*models.Message, error) {
	if err := r.Validate(content); err != nil {
		return nil, err
	}

	msg, err := r.store.CreateMessage(ctx, documentID, userID, content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	// The message exists from here on, so an unresolved author is not a failure.
	msg.Author = r.resolveAuthor(ctx, userID, nil)
	return msg, nil
}

// Validate reports ErrInvalidMessage for blank or oversized content.
func (r *Relay) Validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if r.maxLength > 0 && utf8.RuneCountInString(content) > r.maxLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, r.maxLength)
	}
	return nil
}

// History returns the stored messages of a document, oldest first, with authors.
func (r *Relay) History(ctx context.Context, documentID string) ([]models.Message, error) {
	messages, err := r.store.ListMessages(ctx, documentID, r.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	authors := make(map[string]models.Author)
	for i := range messages {
		messages[i].Author = r.resolveAuthor(ctx, messages[i].UserID, authors)
	}
	return messages, nil
}

func (r *Relay) resolveAuthor(ctx context.Context, userID string, memo map[string]models.Author) models.Author {
	if author, ok := memo[userID]; ok {
		return author
	}
	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("[relay] Could not resolve author %s: %v", userID, err)
	}
	author := user.Author()
	if memo != nil {
		memo[userID] = author
	}
	return author
}
