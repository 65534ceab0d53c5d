package handlers

import (
	"context"
	"log"
	"net/http"

	"doc-collab/backend/models"

	"github.com/gorilla/mux"
)

// HistoryReader returns a document's chat history with authors resolved.
type HistoryReader interface {
	History(ctx context.Context, documentID string) ([]models.Message, error)
}

// PresenceReader lists the users currently viewing a document.
type PresenceReader interface {
	PresentUsers(documentID string) []string
}

// DocumentHandler serves the read-only chat endpoints of a document.
type DocumentHandler struct {
	history  HistoryReader
	presence PresenceReader
}

func NewDocumentHandler(history HistoryReader, presence PresenceReader) *DocumentHandler {
	return &DocumentHandler{history: history, presence: presence}
}

// PresenceResponse is the body of GET /documents/{id}/presence.
type PresenceResponse struct {
	DocumentID string   `json:"documentId"`
	UserIDs    []string `json:"userIds"`
}

// GetMessages handles GET /documents/{id}/messages.
func (h *DocumentHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]
	if documentID == "" {
		sendJSONError(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	messages, err := h.history.History(r.Context(), documentID)
	if err != nil {
		log.Printf("Error getting messages for document %s: %v", documentID, err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	sendJSON(w, messages)
}

// GetPresence handles GET /documents/{id}/presence.
func (h *DocumentHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]
	if documentID == "" {
		sendJSONError(w, "Document ID is required", http.StatusBadRequest)
		return
	}
	sendJSON(w, PresenceResponse{DocumentID: documentID, UserIDs: h.presence.PresentUsers(documentID)})
}
