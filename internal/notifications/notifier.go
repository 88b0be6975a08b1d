// Package notifications provides real-time feed event delivery over Redis
// pub/sub and WebSocket connections.
package notifications

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"

	"murmur/internal/models"

	"github.com/redis/go-redis/v9"
)

// FeedChannel is the Redis channel carrying feed events. Every server
// instance subscribes to it, so events reach subscribers regardless of which
// instance handled the originating request.
const FeedChannel = "feed:events"

// Feed event types.
const (
	EventPostCreated = "post_created"
	EventPostDeleted = "post_deleted"
)

// FeedEvent is the wire envelope pushed to WebSocket subscribers.
type FeedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Notifier publishes feed events into Redis.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishPostCreated announces a newly published post. Failures are logged
// and swallowed: the post is already durable, only liveness suffers.
func (n *Notifier) PublishPostCreated(ctx context.Context, post *models.Post) {
	payload, err := json.Marshal(post)
	if err != nil {
		log.Printf("feed event marshal error: %v", err)
		return
	}
	n.publish(ctx, EventPostCreated, payload)
}

// PublishPostDeleted announces a deleted post so subscribers can drop it.
func (n *Notifier) PublishPostDeleted(ctx context.Context, postID uint, parentID *uint) {
	payload, err := json.Marshal(map[string]any{
		"id":        postID,
		"parent_id": parentID,
	})
	if err != nil {
		log.Printf("feed event marshal error: %v", err)
		return
	}
	n.publish(ctx, EventPostDeleted, payload)
}

func (n *Notifier) publish(ctx context.Context, eventType string, payload json.RawMessage) {
	if n.rdb == nil {
		return
	}
	envelope, err := json.Marshal(FeedEvent{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("feed event marshal error: %v", err)
		return
	}
	if err := n.rdb.Publish(ctx, FeedChannel, envelope).Err(); err != nil {
		log.Printf("feed event publish error: %v", err)
	}
}

// StartFeedSubscriber subscribes to the feed channel and calls onMessage for
// each incoming event payload.
func (n *Notifier) StartFeedSubscriber(
	ctx context.Context, onMessage func(payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, FeedChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in FeedSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
