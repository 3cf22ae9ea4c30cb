package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tablechat/tablechat/internal/auth"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/export"
	"github.com/tablechat/tablechat/internal/pipeline"
	"github.com/tablechat/tablechat/internal/storage"
)

type fakeRepo struct {
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	deleted       []string
}

func newFakeRepo(conversationIDs ...string) *fakeRepo {
	repo := &fakeRepo{
		conversations: map[string]chat.Conversation{},
		messages:      map[string][]chat.Message{},
	}
	for _, id := range conversationIDs {
		repo.conversations[id] = chat.Conversation{ID: id, Title: "test"}
	}
	return repo
}

func (r *fakeRepo) HealthCheck(context.Context) error { return nil }

func (r *fakeRepo) CreateConversation(_ context.Context, in chat.CreateConversationInput) (chat.Conversation, error) {
	conversation := chat.Conversation{ID: "c-new", Title: in.Title}
	r.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (r *fakeRepo) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	conversation, ok := r.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return conversation, nil
}

func (r *fakeRepo) ListConversations(context.Context) ([]chat.Conversation, error) {
	listed := make([]chat.Conversation, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		listed = append(listed, conversation)
	}
	return listed, nil
}

func (r *fakeRepo) DeleteConversation(_ context.Context, conversationID string) (bool, error) {
	if _, ok := r.conversations[conversationID]; !ok {
		return false, nil
	}
	delete(r.conversations, conversationID)
	r.deleted = append(r.deleted, conversationID)
	return true, nil
}

func (r *fakeRepo) CreateMessage(_ context.Context, in chat.CreateMessageInput) (chat.Message, error) {
	message := chat.Message{ID: "m-new", ConversationID: in.ConversationID, Role: in.Role, Content: in.Content}
	r.messages[in.ConversationID] = append(r.messages[in.ConversationID], message)
	return message, nil
}

func (r *fakeRepo) GetMessage(_ context.Context, conversationID, messageID string) (chat.Message, error) {
	for _, message := range r.messages[conversationID] {
		if message.ID == messageID {
			return message, nil
		}
	}
	return chat.Message{}, chat.ErrNotFound
}

func (r *fakeRepo) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	return r.messages[conversationID], nil
}

type fakeRunner struct {
	result  pipeline.RunResult
	err     error
	lastReq pipeline.RunRequest
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.RunRequest, _ pipeline.StatusFunc) (pipeline.RunResult, error) {
	f.lastReq = req
	if f.err != nil {
		return pipeline.RunResult{}, f.err
	}
	return f.result, nil
}

type fakeExporter struct {
	info storage.ObjectInfo
	err  error
}

func (f *fakeExporter) Export(context.Context, string, string) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	return f.info, nil
}

func testHandler(t *testing.T, deps Dependencies, cfg config.Config) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "tablechat"
	}
	return NewHandler(cfg, deps)
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	handler := testHandler(t, Dependencies{Repo: newFakeRepo()}, config.Config{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCreateMessageRunsPipeline(t *testing.T) {
	kind := chat.KindTable
	runner := &fakeRunner{result: pipeline.RunResult{
		Status:      pipeline.StatusDone,
		UserMessage: chat.Message{ID: "m1", ConversationID: "c1", Role: chat.RoleUser, Content: "How many partners?"},
		Replies: []chat.Message{{
			ID:             "m2",
			ConversationID: "c1",
			Role:           chat.RoleAssistant,
			Kind:           &kind,
			Content:        "Here are the results.",
			Results:        []byte(`[{"count":3}]`),
		}},
	}}
	handler := testHandler(t, Dependencies{Repo: newFakeRepo("c1"), Pipeline: runner}, config.Config{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"question": "How many partners?", "kind": "table"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["status"] != string(pipeline.StatusDone) {
		t.Fatalf("unexpected status: %v", body["status"])
	}
	replies, ok := body["replies"].([]any)
	if !ok || len(replies) != 1 {
		t.Fatalf("unexpected replies: %v", body["replies"])
	}
	if runner.lastReq.Kind != chat.KindTable {
		t.Fatalf("kind not normalized: %q", runner.lastReq.Kind)
	}
}

func TestCreateMessageMapsRunInFlightToConflict(t *testing.T) {
	runner := &fakeRunner{err: pipeline.ErrRunInFlight}
	handler := testHandler(t, Dependencies{Repo: newFakeRepo("c1"), Pipeline: runner}, config.Config{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"question": "Again?"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error_code"] != "RUN_IN_FLIGHT" {
		t.Fatalf("unexpected error code: %v", body["error_code"])
	}
}

func TestCreateMessageValidatesRequest(t *testing.T) {
	handler := testHandler(t, Dependencies{Repo: newFakeRepo("c1"), Pipeline: &fakeRunner{}}, config.Config{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"question": "  "}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank question, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages",
		strings.NewReader(`{"question": "q", "kind": "GRAPH"}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", recorder.Code)
	}
}

func TestListMessagesUnknownConversation(t *testing.T) {
	handler := testHandler(t, Dependencies{Repo: newFakeRepo()}, config.Config{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/conversations/missing/messages", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	repo := newFakeRepo("c1")
	handler := testHandler(t, Dependencies{Repo: repo}, config.Config{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/v1/conversations/c1", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/v1/conversations/c1", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", recorder.Code)
	}
}

func TestExportMessage(t *testing.T) {
	exporter := &fakeExporter{info: storage.ObjectInfo{Key: "exports/c1/m1.parquet", Size: 128}}
	handler := testHandler(t, Dependencies{Repo: newFakeRepo("c1"), Exporter: exporter}, config.Config{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages/m1/export", nil))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["object_key"] != "exports/c1/m1.parquet" {
		t.Fatalf("unexpected body: %v", body)
	}

	exporter.err = export.ErrNotExportable
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages/m1/export", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-exportable message, got %d", recorder.Code)
	}
}

func TestAuthGatesProtectedRoutesOnly(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("key-1:alice:chat_user")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{Auth: config.AuthConfig{Required: true}}
	handler := testHandler(t, Dependencies{
		Repo:           newFakeRepo("c1"),
		AuthMiddleware: auth.Middleware(logger, validator),
	}, cfg)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	request.Header.Set("X-API-Key", "key-1")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", recorder.Code)
	}
}
