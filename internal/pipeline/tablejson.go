package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tablechat/tablechat/internal/warehouse"
)

// maxExactJSONInt is the largest integer magnitude a float64, and therefore a
// generic JSON number, can represent exactly.
const maxExactJSONInt = int64(1) << 53

// MarshalRows serializes a row-set to JSON. Integer values whose magnitude
// exceeds the float64-exact range are stringified so their digit strings
// survive a decode by a generic JSON reader.
func MarshalRows(rows []warehouse.Row) ([]byte, error) {
	widened := make([]map[string]any, len(rows))
	for i, row := range rows {
		entry := make(map[string]any, len(row))
		for column, value := range row {
			entry[column] = widenValue(value)
		}
		widened[i] = entry
	}
	encoded, err := json.Marshal(widened)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}
	return encoded, nil
}

// DecodeRows reads a serialized row-set back. Numbers are kept as
// json.Number so large stringified integers and exact decimals are not
// collapsed into float64.
func DecodeRows(payload []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var rows []map[string]any
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func widenValue(value any) any {
	switch typed := value.(type) {
	case int64:
		if typed > maxExactJSONInt || typed < -maxExactJSONInt {
			return strconv.FormatInt(typed, 10)
		}
		return typed
	case int:
		return widenValue(int64(typed))
	case uint64:
		if typed > uint64(maxExactJSONInt) {
			return strconv.FormatUint(typed, 10)
		}
		return typed
	default:
		return typed
	}
}
