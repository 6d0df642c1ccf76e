package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"

	"beacon/internal/models"
	"beacon/internal/observability"
)

const (
	feedChannel       = "beacon:feed"
	chatChannelPrefix = "beacon:chat:"
)

// Notifier publishes feed events through Redis pub/sub so every instance's
// hub sees them, and falls back to delivering straight to the local hub
// when Redis is not configured.
type Notifier struct {
	rdb      *redis.Client
	hub      *Hub
	feedHook func()
}

// NewNotifier creates a notifier delivering to hub. rdb may be nil.
func NewNotifier(rdb *redis.Client, hub *Hub) *Notifier {
	return &Notifier{rdb: rdb, hub: hub}
}

// SetFeedHook registers fn to run after each feed event is delivered to
// the local hub, including events that arrived over Redis from another
// instance. Call before StartSubscriber.
func (n *Notifier) SetFeedHook(fn func()) {
	n.feedHook = fn
}

// Publish delivers a feed event. Message events go to the chat's channel;
// everything else to the global feed channel.
func (n *Notifier) Publish(ctx context.Context, event models.FeedEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		observability.GlobalLogger.Error("marshal feed event", slog.Any("error", err))
		return
	}

	channel := feedChannel
	if event.Type == models.FeedEventMessageSent {
		channel = chatChannelPrefix + event.ChatID
	}

	if n.rdb == nil {
		n.deliver(channel, payload)
		return
	}
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("publish").Inc()
		// Degrade to local-only delivery.
		n.deliver(channel, payload)
	}
}

// StartSubscriber consumes the Redis channels and forwards payloads to the
// local hub until the context is canceled. A no-op without Redis, since
// Publish then delivers locally.
func (n *Notifier) StartSubscriber(ctx context.Context) {
	if n.rdb == nil {
		return
	}
	sub := n.rdb.PSubscribe(ctx, feedChannel, chatChannelPrefix+"*")
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
							observability.GlobalLogger.Error("panic in feed subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					n.deliver(msg.Channel, []byte(msg.Payload))
				}()
			}
		}
	}()
}

func (n *Notifier) deliver(channel string, payload []byte) {
	if n.hub == nil {
		return
	}
	if chatID, ok := strings.CutPrefix(channel, chatChannelPrefix); ok {
		n.hub.BroadcastRoom(chatID, payload)
		return
	}
	n.hub.BroadcastAll(payload)
	if n.feedHook != nil {
		n.feedHook()
	}
}
