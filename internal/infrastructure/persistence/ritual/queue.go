package ritualstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

const queueKeyPrefix = "anomaly_queue:"

// Queue is the per-visitor FIFO delivery queue for anomaly events.
// Bounded to the newest maxSize entries; the TTL refreshes on every
// push so an abandoned queue expires on its own.
type Queue struct {
	store   kvClient
	logger  *logging.ChanneledLogger
	ttl     time.Duration
	maxSize int
}

// NewQueue creates a delivery queue with the given cap and TTL.
func NewQueue(store kvClient, maxSize int, ttl time.Duration, logger *logging.ChanneledLogger) *Queue {
	return &Queue{
		store:   store,
		logger:  logger,
		ttl:     ttl,
		maxSize: maxSize,
	}
}

func (q *Queue) key(visitorID string) string {
	return queueKeyPrefix + visitorID
}

func (q *Queue) encode(event *ritual.AnomalyEvent) (string, error) {
	data, err := json.Marshal(event.WSMessage())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decode parses a queue entry. Corrupt entries come back nil, never as
// an error; readers skip them.
func (q *Queue) decode(data string) *ritual.WSMessage {
	var msg ritual.WSMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		q.logger.Queue().Debug("Skipping corrupt queue entry", "error", err.Error())
		return nil
	}
	return &msg
}

// Push appends an event to the visitor's queue and returns the queue
// length after the push. Overflow trims oldest entries.
func (q *Queue) Push(ctx context.Context, visitorID string, event *ritual.AnomalyEvent) (int64, error) {
	data, err := q.encode(event)
	if err != nil {
		return 0, err
	}

	key := q.key(visitorID)
	length, err := q.store.RPush(ctx, key, data)
	if err != nil {
		return 0, err
	}

	if length > int64(q.maxSize) {
		if err := q.store.LTrim(ctx, key, -int64(q.maxSize), -1); err != nil {
			return 0, err
		}
		length = int64(q.maxSize)
	}

	if _, err := q.store.Expire(ctx, key, q.ttl); err != nil {
		return 0, err
	}
	return length, nil
}

// Pop removes and returns the oldest event, nil when empty.
func (q *Queue) Pop(ctx context.Context, visitorID string) (*ritual.WSMessage, error) {
	data, ok, err := q.store.LPop(ctx, q.key(visitorID))
	if err != nil || !ok {
		return nil, err
	}
	return q.decode(data), nil
}

// PopBlocking waits up to timeout for an event. Returns immediately if
// one is already queued; a timeout <= 0 never blocks. Nil on timeout.
func (q *Queue) PopBlocking(ctx context.Context, visitorID string, timeout time.Duration) (*ritual.WSMessage, error) {
	data, ok, err := q.store.BLPop(ctx, q.key(visitorID), timeout)
	if err != nil || !ok {
		return nil, err
	}
	return q.decode(data), nil
}

// Peek returns the oldest event without removing it.
func (q *Queue) Peek(ctx context.Context, visitorID string) (*ritual.WSMessage, error) {
	data, ok, err := q.store.LIndex(ctx, q.key(visitorID), 0)
	if err != nil || !ok {
		return nil, err
	}
	return q.decode(data), nil
}

// GetAll returns a non-destructive snapshot of the queue in push order,
// skipping corrupt entries.
func (q *Queue) GetAll(ctx context.Context, visitorID string) ([]*ritual.WSMessage, error) {
	items, err := q.store.LRange(ctx, q.key(visitorID), 0, -1)
	if err != nil {
		return nil, err
	}

	messages := make([]*ritual.WSMessage, 0, len(items))
	for _, item := range items {
		if msg := q.decode(item); msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// Length returns the number of queued events.
func (q *Queue) Length(ctx context.Context, visitorID string) (int64, error) {
	return q.store.LLen(ctx, q.key(visitorID))
}

// Clear drops the visitor's queue. Returns true if one existed.
func (q *Queue) Clear(ctx context.Context, visitorID string) (bool, error) {
	n, err := q.store.Delete(ctx, q.key(visitorID))
	return n > 0, err
}

// PushToAll fans one event out to many visitors in a single pipelined
// round trip. Returns how many queues were pushed to.
func (q *Queue) PushToAll(ctx context.Context, visitorIDs []string, event *ritual.AnomalyEvent) (int, error) {
	if len(visitorIDs) == 0 {
		return 0, nil
	}

	data, err := q.encode(event)
	if err != nil {
		return 0, err
	}

	keys := make([]string, len(visitorIDs))
	for i, id := range visitorIDs {
		keys[i] = q.key(id)
	}
	return q.store.RPushFanout(ctx, keys, data, q.ttl)
}

// PushBroadcast fans an event out to every active queue whose visitor
// ID matches the glob pattern. KEYS scan; low-volume admin use only.
func (q *Queue) PushBroadcast(ctx context.Context, event *ritual.AnomalyEvent, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := q.store.Keys(ctx, queueKeyPrefix+pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, queueKeyPrefix))
	}
	return q.PushToAll(ctx, ids, event)
}

// ActiveVisitors lists visitors that currently have a queue. KEYS scan.
func (q *Queue) ActiveVisitors(ctx context.Context) ([]string, error) {
	keys, err := q.store.Keys(ctx, queueKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, queueKeyPrefix))
	}
	return ids, nil
}

// RepairOrphans gives a TTL back to any queue that lost its expiry.
// Run from the hourly cleanup sweep.
func (q *Queue) RepairOrphans(ctx context.Context) (int, int, error) {
	keys, err := q.store.Keys(ctx, queueKeyPrefix+"*")
	if err != nil {
		return 0, 0, err
	}

	repaired := 0
	for _, key := range keys {
		ttl, err := q.store.TTL(ctx, key)
		if err != nil {
			return len(keys), repaired, err
		}
		// -1s means the key exists with no expiry set.
		if ttl == -1*time.Second {
			if _, err := q.store.Expire(ctx, key, q.ttl); err != nil {
				return len(keys), repaired, err
			}
			repaired++
		}
	}
	return len(keys), repaired, nil
}
