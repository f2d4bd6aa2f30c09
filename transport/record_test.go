package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordMarshalFlattensFields(t *testing.T) {
	r := Record{ID: "srv-1", UpdatedAt: 1700000000000, Fields: map[string]any{"title": "hi"}}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "srv-1", raw["id"])
	require.Equal(t, float64(1700000000000), raw["updatedAt"])
	require.Equal(t, "hi", raw["title"])
}

func TestRecordUnmarshalSplitsMetadataFromFields(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":"srv-2","updatedAt":42,"title":"hello","body":"world"}`), &r)
	require.NoError(t, err)
	require.Equal(t, "srv-2", r.ID)
	require.Equal(t, int64(42), r.UpdatedAt)
	require.Equal(t, "hello", r.Fields["title"])
	require.Equal(t, "world", r.Fields["body"])
	require.NotContains(t, r.Fields, "id")
	require.NotContains(t, r.Fields, "updatedAt")
}

func TestRecordUnmarshalAcceptsSnakeCaseUpdatedAt(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":"srv-3","updated_at":7,"title":"x"}`), &r)
	require.NoError(t, err)
	require.Equal(t, int64(7), r.UpdatedAt)
	require.NotContains(t, r.Fields, "updated_at")
}

func TestRecordUnmarshalDropsCreatedAt(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":"srv-4","updatedAt":1,"createdAt":1,"created_at":1,"title":"x"}`), &r)
	require.NoError(t, err)
	require.NotContains(t, r.Fields, "createdAt")
	require.NotContains(t, r.Fields, "created_at")
	require.Contains(t, r.Fields, "title")
}
