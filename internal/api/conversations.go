package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
)

type conversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toConversationView(conversation chat.Conversation) conversationView {
	return conversationView{
		ID:        conversation.ID,
		Title:     conversation.Title,
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
	}
}

func handleCreateConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", false, nil)
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		title = "New conversation"
	}

	conversation, err := deps.Repo.CreateConversation(r.Context(), chat.CreateConversationInput{Title: title})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CREATE_CONVERSATION_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationView(conversation))
}

func handleListConversations(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversations, err := deps.Repo.ListConversations(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "LIST_CONVERSATIONS_FAILED", err.Error(), true, nil)
		return
	}
	views := make([]conversationView, 0, len(conversations))
	for _, conversation := range conversations {
		views = append(views, toConversationView(conversation))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

func handleGetConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation")
	conversation, err := deps.Repo.GetConversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "GET_CONVERSATION_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(conversation))
}

func handleDeleteConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation")
	deleted, err := deps.Repo.DeleteConversation(r.Context(), conversationID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DELETE_CONVERSATION_FAILED", err.Error(), true, nil)
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
