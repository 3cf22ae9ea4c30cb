package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/export"
	"github.com/tablechat/tablechat/internal/pipeline"
)

type messageView struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Kind           *string         `json:"kind,omitempty"`
	Content        string          `json:"content"`
	Results        json.RawMessage `json:"results,omitempty"`
	SQL            *string         `json:"sql,omitempty"`
	ResponseToID   *string         `json:"response_to_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toMessageView(message chat.Message) messageView {
	view := messageView{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		Role:           string(message.Role),
		Content:        message.Content,
		SQL:            message.SQL,
		ResponseToID:   message.ResponseToID,
		CreatedAt:      message.CreatedAt,
	}
	if message.Kind != nil {
		kind := string(*message.Kind)
		view.Kind = &kind
	}
	if len(message.Results) > 0 {
		view.Results = json.RawMessage(message.Results)
	}
	return view
}

func handleListMessages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation")
	if _, err := deps.Repo.GetConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "LIST_MESSAGES_FAILED", err.Error(), true, nil)
		return
	}

	messages, err := deps.Repo.ListMessages(r.Context(), conversationID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "LIST_MESSAGES_FAILED", err.Error(), true, nil)
		return
	}
	views := make([]messageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, toMessageView(message))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

func handleCreateMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation")

	var body struct {
		Question string `json:"question"`
		Kind     string `json:"kind"`
		Model    string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", false, nil)
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	kind := chat.Kind(strings.ToUpper(strings.TrimSpace(body.Kind)))
	if kind == "" {
		kind = chat.KindTable
	}
	if !kind.Valid() {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_KIND", "kind must be one of TABLE, CHART, TEXT", false, nil)
		return
	}

	result, err := deps.Pipeline.Run(r.Context(), pipeline.RunRequest{
		ConversationID: conversationID,
		Question:       body.Question,
		Kind:           kind,
		Model:          strings.TrimSpace(body.Model),
	}, nil)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrRunInFlight):
			writeError(r.Context(), w, http.StatusConflict, "RUN_IN_FLIGHT", "a run is already in progress for this conversation", true, nil)
		case errors.Is(err, chat.ErrNotFound):
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "RUN_FAILED", err.Error(), true, nil)
		}
		return
	}

	replies := make([]messageView, 0, len(result.Replies))
	for _, reply := range result.Replies {
		replies = append(replies, toMessageView(reply))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":       string(result.Status),
		"user_message": toMessageView(result.UserMessage),
		"replies":      replies,
	})
}

func handleExportMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "result export is not configured", false, nil)
		return
	}
	conversationID := r.PathValue("conversation")
	messageID := r.PathValue("message")

	info, err := deps.Exporter.Export(r.Context(), conversationID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			writeError(r.Context(), w, http.StatusNotFound, "MESSAGE_NOT_FOUND", "message does not exist", false, nil)
		case errors.Is(err, export.ErrNotExportable):
			writeError(r.Context(), w, http.StatusBadRequest, "NOT_EXPORTABLE", "message has no table result to export", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), true, nil)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"object_key": info.Key,
		"size_bytes": info.Size,
	})
}
