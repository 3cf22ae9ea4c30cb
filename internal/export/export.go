package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/pipeline"
	"github.com/tablechat/tablechat/internal/storage"
)

// ErrNotExportable reports a message that does not carry a table result.
var ErrNotExportable = errors.New("message has no table result to export")

// parquetRow is the generic export schema. Rows keep their original column
// structure inside RowJSON so any downstream reader can re-derive them
// without knowing the query shape.
type parquetRow struct {
	RowIndex int64  `parquet:"row_index"`
	RowJSON  string `parquet:"row_json"`
}

type Exporter struct {
	repo  chat.Repository
	store storage.ObjectStore
}

func NewExporter(repo chat.Repository, store storage.ObjectStore) *Exporter {
	return &Exporter{repo: repo, store: store}
}

// Export encodes a persisted TABLE message's rows as Parquet and puts the
// artifact in the object store. It returns the stored object info.
func (e *Exporter) Export(ctx context.Context, conversationID, messageID string) (storage.ObjectInfo, error) {
	message, err := e.repo.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("load message: %w", err)
	}
	if message.Kind == nil || *message.Kind != chat.KindTable || len(message.Results) == 0 {
		return storage.ObjectInfo{}, ErrNotExportable
	}

	rows, err := pipeline.DecodeRows(message.Results)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("decode table result: %w", err)
	}

	encoded, err := encodeRows(rows)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	key := ObjectKey(conversationID, messageID)
	info, err := e.store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("store export: %w", err)
	}
	return info, nil
}

func ObjectKey(conversationID, messageID string) string {
	return fmt.Sprintf("exports/%s/%s.parquet", conversationID, messageID)
}

func encodeRows(rows []map[string]any) ([]byte, error) {
	encoded := make([]parquetRow, 0, len(rows))
	for index, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("marshal row %d: %w", index, err)
		}
		encoded = append(encoded, parquetRow{
			RowIndex: int64(index),
			RowJSON:  string(payload),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if len(encoded) > 0 {
		if _, err := writer.Write(encoded); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
