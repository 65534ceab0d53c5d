package models

import "time"

// Author holds the display fields shown next to a chat message.
type Author struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Message is one chat entry on a document. ID and CreatedAt are assigned by the store.
type Message struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Author     Author    `json:"author"`
}
