package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMarshalJSON(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	post := Post{
		ID:          1,
		Content:     "hello",
		AuthorID:    "s1",
		AuthorLabel: "Anonymous",
		CreatedAt:   ts,
	}

	raw, err := json.Marshal(post)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "2026-03-14T09:26:53.589793238Z", decoded["created_at"])
	assert.NotContains(t, decoded, "parent_id")
	assert.NotContains(t, decoded, "attachment_uri")
	assert.NotContains(t, decoded, "DeletedAt")
}

func TestPostJSONRoundTrip(t *testing.T) {
	parentID := uint(3)
	post := Post{
		ID:          7,
		Content:     "a comment",
		AuthorID:    "s1",
		AuthorLabel: "casey@example.com",
		ParentID:    &parentID,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(post)
	require.NoError(t, err)

	var restored Post
	require.NoError(t, json.Unmarshal(raw, &restored))

	assert.Equal(t, post.ID, restored.ID)
	assert.Equal(t, post.Content, restored.Content)
	require.NotNil(t, restored.ParentID)
	assert.Equal(t, parentID, *restored.ParentID)
	assert.True(t, post.CreatedAt.Equal(restored.CreatedAt),
		"cache round-trips must preserve the timestamp")
}

func TestQuarantinedItemMarshalJSON(t *testing.T) {
	item := QuarantinedItem{
		ID:        2,
		Content:   "bad words",
		AuthorID:  "s1",
		Reason:    "Harassment",
		FlaggedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2026-05-01T12:00:00Z", decoded["flagged_at"])
	assert.Equal(t, "Harassment", decoded["reason"])
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := assert.AnError
	err := NewInternalError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Internal server error")
}
