package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/storage"
)

type fakeRepo struct {
	message chat.Message
	err     error
}

func (r *fakeRepo) HealthCheck(context.Context) error { return nil }

func (r *fakeRepo) CreateConversation(context.Context, chat.CreateConversationInput) (chat.Conversation, error) {
	return chat.Conversation{}, nil
}

func (r *fakeRepo) GetConversation(context.Context, string) (chat.Conversation, error) {
	return chat.Conversation{}, nil
}

func (r *fakeRepo) ListConversations(context.Context) ([]chat.Conversation, error) {
	return nil, nil
}

func (r *fakeRepo) DeleteConversation(context.Context, string) (bool, error) { return false, nil }

func (r *fakeRepo) CreateMessage(context.Context, chat.CreateMessageInput) (chat.Message, error) {
	return chat.Message{}, nil
}

func (r *fakeRepo) GetMessage(context.Context, string, string) (chat.Message, error) {
	if r.err != nil {
		return chat.Message{}, r.err
	}
	return r.message, nil
}

func (r *fakeRepo) ListMessages(context.Context, string) ([]chat.Message, error) { return nil, nil }

type fakeStore struct {
	key  string
	body []byte
}

func (s *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.key = key
	s.body = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *fakeStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (s *fakeStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func tableMessage(results string) chat.Message {
	return chat.Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           chat.RoleAssistant,
		Kind:           chat.KindPtr(chat.KindTable),
		Content:        "Here are the results.",
		Results:        []byte(results),
	}
}

func TestExportWritesParquetArtifact(t *testing.T) {
	repo := &fakeRepo{message: tableMessage(`[{"province":"ON","avg_amount":1250.5},{"province":"BC","avg_amount":980.25}]`)}
	store := &fakeStore{}

	info, err := NewExporter(repo, store).Export(context.Background(), "c1", "m1")
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if info.Key != "exports/c1/m1.parquet" {
		t.Fatalf("unexpected object key: %q", info.Key)
	}
	if store.key != "exports/c1/m1.parquet" {
		t.Fatalf("store received unexpected key: %q", store.key)
	}

	rows, err := parquet.Read[parquetRow](bytes.NewReader(store.body), int64(len(store.body)))
	if err != nil {
		t.Fatalf("read parquet artifact: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 parquet rows, got %d", len(rows))
	}
	if rows[0].RowIndex != 0 || rows[1].RowIndex != 1 {
		t.Fatalf("row indexes not preserved: %+v", rows)
	}
	if !strings.Contains(rows[0].RowJSON, `"province":"ON"`) {
		t.Fatalf("row payload missing column: %s", rows[0].RowJSON)
	}
}

func TestExportRejectsNonTableMessages(t *testing.T) {
	notice := chat.Message{ID: "m2", ConversationID: "c1", Role: chat.RoleAssistant, Content: "error"}
	repo := &fakeRepo{message: notice}

	_, err := NewExporter(repo, &fakeStore{}).Export(context.Background(), "c1", "m2")
	if !errors.Is(err, ErrNotExportable) {
		t.Fatalf("expected ErrNotExportable, got %v", err)
	}
}

func TestExportPropagatesMissingMessage(t *testing.T) {
	repo := &fakeRepo{err: chat.ErrNotFound}

	_, err := NewExporter(repo, &fakeStore{}).Export(context.Background(), "c1", "gone")
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
