package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

// BookChannel is the Redis pub/sub channel carrying every live update for a
// book: structural TOC changes and generation job progress alike. The
// WebSocket hub subscribes to it per connected book.
func BookChannel(bookID uuid.UUID) string {
	return "book_updates:" + bookID.String()
}

func tocVersionKey(bookID uuid.UUID) string {
	return "toc_version:" + bookID.String()
}

// SyncBus fans structural-change notifications out to every consumer of a
// book's outline: in-process subscribers directly, and browser tabs through
// Redis pub/sub and the WebSocket hub. Delivery through Redis is best
// effort; a failed publish is logged and left to the polling fallback, since
// Postgres remains the canonical version source.
type SyncBus struct {
	mu          sync.RWMutex
	redis       *redis.Client
	subscribers map[uuid.UUID]map[int]func(models.StructuralChange)
	nextSubID   int
}

func NewSyncBus(redisClient *redis.Client) *SyncBus {
	return &SyncBus{
		redis:       redisClient,
		subscribers: make(map[uuid.UUID]map[int]func(models.StructuralChange)),
	}
}

// Subscribe registers an in-process callback for one book's structural
// changes and returns the matching unsubscribe. Consumers subscribe rather
// than poll; the poll path exists only as the cross-tab fallback.
func (b *SyncBus) Subscribe(bookID uuid.UUID, fn func(models.StructuralChange)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[bookID] == nil {
		b.subscribers[bookID] = make(map[int]func(models.StructuralChange))
	}
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[bookID][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[bookID], id)
		if len(b.subscribers[bookID]) == 0 {
			delete(b.subscribers, bookID)
		}
	}
}

// Publish delivers a structural change to in-process subscribers, caches the
// new version for cheap polling, and broadcasts to browser tabs via Redis.
// An empty classification (a pure content edit) only refreshes the version
// cache: open views pick the new version up through polling instead of being
// told their structure changed.
func (b *SyncBus) Publish(ctx context.Context, change models.StructuralChange) {
	if !change.Empty() {
		b.mu.RLock()
		subs := make([]func(models.StructuralChange), 0, len(b.subscribers[change.BookID]))
		for _, fn := range b.subscribers[change.BookID] {
			subs = append(subs, fn)
		}
		b.mu.RUnlock()

		for _, fn := range subs {
			fn(change)
		}
	}

	if b.redis == nil {
		return
	}

	if err := b.redis.Set(ctx, tocVersionKey(change.BookID), change.Version, 24*time.Hour).Err(); err != nil {
		log.Printf("sync: failed to cache toc version for book %s: %v", change.BookID, err)
	}

	if !change.Empty() {
		b.PublishMessage(ctx, change.BookID, models.WSMessage{
			Type:    "toc_structure_changed",
			Payload: change,
		})
	}
}

// PublishMessage broadcasts an arbitrary event to every open view of a book.
// Used for job progress as well as structural changes.
func (b *SyncBus) PublishMessage(ctx context.Context, bookID uuid.UUID, msg models.WSMessage) {
	if b.redis == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("sync: failed to marshal %s message for book %s: %v", msg.Type, bookID, err)
		return
	}
	if err := b.redis.Publish(ctx, BookChannel(bookID), string(data)).Err(); err != nil {
		// Non-fatal: connected tabs fall back to version polling.
		log.Printf("sync: broadcast to book %s failed: %v", bookID, err)
	}
}

// CachedVersion returns the last published version from Redis, or 0 when the
// cache is cold. Callers fall back to the persistence store for the
// authoritative value.
func (b *SyncBus) CachedVersion(ctx context.Context, bookID uuid.UUID) (int64, error) {
	if b.redis == nil {
		return 0, fmt.Errorf("version cache unavailable")
	}
	version, err := b.redis.Get(ctx, tocVersionKey(bookID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return version, err
}
