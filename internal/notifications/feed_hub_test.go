package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"murmur/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewFeedHub()

	client, err := hub.Register("subject-1", nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, "subject-1", client.SubjectID)

	anon, err := hub.Register("", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Count())

	hub.BroadcastAll(`{"type":"post_created"}`)

	for _, c := range []*Client{client, anon} {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"type":"post_created"}`, string(msg))
		default:
			t.Fatal("subscriber did not receive the broadcast")
		}
	}

	hub.UnregisterClient(client)
	assert.Equal(t, 1, hub.Count())

	// Unregistering twice is harmless.
	hub.UnregisterClient(client)
	assert.Equal(t, 1, hub.Count())
}

func TestClient_TrySendBackpressure(t *testing.T) {
	hub := NewFeedHub()
	client, err := hub.Register("subject-1", nil)
	require.NoError(t, err)

	// Fill the outbound buffer completely.
	for i := 0; i < cap(client.Send); i++ {
		client.TrySend([]byte("event"))
	}
	require.Len(t, client.Send, cap(client.Send))

	// The next event is dropped rather than blocking the broadcaster.
	client.TrySend([]byte("overflow"))
	assert.Len(t, client.Send, cap(client.Send))

	// Once the reader drains, delivery resumes.
	<-client.Send
	client.TrySend([]byte("late event"))
	assert.Len(t, client.Send, cap(client.Send))
}

func TestClient_TrySendClosedChannel(t *testing.T) {
	hub := NewFeedHub()
	client, err := hub.Register("subject-1", nil)
	require.NoError(t, err)

	close(client.Send)
	assert.NotPanics(t, func() {
		client.TrySend([]byte("event"))
	})
}

func TestNotifier_PublishAndWire(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewFeedHub()
	client, err := hub.Register("subject-1", nil)
	require.NoError(t, err)

	notifier := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, notifier))

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	notifier.PublishPostCreated(ctx, &models.Post{
		ID: 7, Content: "hello", AuthorID: "s1", AuthorLabel: "Anonymous",
	})

	select {
	case raw := <-client.Send:
		var event FeedEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, EventPostCreated, event.Type)

		var post models.Post
		require.NoError(t, json.Unmarshal(event.Payload, &post))
		assert.Equal(t, uint(7), post.ID)
		assert.Equal(t, "hello", post.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("feed event never reached the subscriber")
	}

	parentID := uint(3)
	notifier.PublishPostDeleted(ctx, 7, &parentID)

	select {
	case raw := <-client.Send:
		var event FeedEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, EventPostDeleted, event.Type)

		var payload struct {
			ID       uint  `json:"id"`
			ParentID *uint `json:"parent_id"`
		}
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, uint(7), payload.ID)
		require.NotNil(t, payload.ParentID)
		assert.Equal(t, parentID, *payload.ParentID)
	case <-time.After(2 * time.Second):
		t.Fatal("delete event never reached the subscriber")
	}
}

func TestNotifier_NilRedisIsSilent(t *testing.T) {
	notifier := NewNotifier(nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		notifier.PublishPostCreated(ctx, &models.Post{ID: 1})
		notifier.PublishPostDeleted(ctx, 1, nil)
	})
	assert.NoError(t, notifier.StartFeedSubscriber(ctx, func(string) {}))
}
