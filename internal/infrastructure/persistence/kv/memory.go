package kv

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryClient is an in-process Client for tests and dev mode. Mutex
// guarded maps with lazy TTL expiry; blocking pops wake on push via a
// per-key broadcast channel.
type MemoryClient struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	hashes  map[string]map[string]string
	expiry  map[string]time.Time
	signals map[string]chan struct{}

	now func() time.Time
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		hashes:  make(map[string]map[string]string),
		expiry:  make(map[string]time.Time),
		signals: make(map[string]chan struct{}),
		now:     time.Now,
	}
}

// SetTimeProvider overrides the clock, for TTL tests.
func (m *MemoryClient) SetTimeProvider(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// purgeLocked drops the key if its TTL has lapsed. Caller holds mu.
func (m *MemoryClient) purgeLocked(key string) {
	exp, ok := m.expiry[key]
	if !ok || m.now().Before(exp) {
		return
	}
	delete(m.strings, key)
	delete(m.lists, key)
	delete(m.hashes, key)
	delete(m.expiry, key)
}

func (m *MemoryClient) existsLocked(key string) bool {
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.lists[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	return false
}

// signalLocked wakes all blocked poppers on key. Caller holds mu.
func (m *MemoryClient) signalLocked(key string) {
	if ch, ok := m.signals[key]; ok {
		close(ch)
		delete(m.signals, key)
	}
}

// waiterLocked returns the channel the next push on key will close.
func (m *MemoryClient) waiterLocked(key string) chan struct{} {
	ch, ok := m.signals[key]
	if !ok {
		ch = make(chan struct{})
		m.signals[key] = ch
	}
	return ch
}

func (m *MemoryClient) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	val, ok := m.strings[key]
	return val, ok, nil
}

func (m *MemoryClient) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	if ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	} else {
		delete(m.expiry, key)
	}
	return nil
}

func (m *MemoryClient) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for _, key := range keys {
		m.purgeLocked(key)
		if m.existsLocked(key) {
			delete(m.strings, key)
			delete(m.lists, key)
			delete(m.hashes, key)
			delete(m.expiry, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryClient) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return m.existsLocked(key), nil
}

func (m *MemoryClient) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	if !m.existsLocked(key) {
		return false, nil
	}
	m.expiry[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryClient) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	if !m.existsLocked(key) {
		return -2 * time.Second, nil
	}
	exp, ok := m.expiry[key]
	if !ok {
		return -1 * time.Second, nil
	}
	return exp.Sub(m.now()), nil
}

func (m *MemoryClient) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	collect := func(key string) {
		m.purgeLocked(key)
		if !m.existsLocked(key) {
			return
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key := range m.strings {
		collect(key)
	}
	for key := range m.lists {
		collect(key)
	}
	for key := range m.hashes {
		collect(key)
	}
	return keys, nil
}

func (m *MemoryClient) RPush(_ context.Context, key string, values ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	m.lists[key] = append(m.lists[key], values...)
	m.signalLocked(key)
	return int64(len(m.lists[key])), nil
}

func (m *MemoryClient) lpopLocked(key string) (string, bool) {
	m.purgeLocked(key)
	list := m.lists[key]
	if len(list) == 0 {
		return "", false
	}
	val := list[0]
	if len(list) == 1 {
		delete(m.lists, key)
	} else {
		m.lists[key] = list[1:]
	}
	return val, true
}

func (m *MemoryClient) LPop(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.lpopLocked(key)
	return val, ok, nil
}

func (m *MemoryClient) BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		m.mu.Lock()
		if val, ok := m.lpopLocked(key); ok {
			m.mu.Unlock()
			return val, true, nil
		}
		if timeout <= 0 {
			m.mu.Unlock()
			return "", false, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			m.mu.Unlock()
			return "", false, nil
		}
		signal := m.waiterLocked(key)
		m.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false, ctx.Err()
		case <-signal:
			timer.Stop()
		case <-timer.C:
			return "", false, nil
		}
	}
}

func (m *MemoryClient) LIndex(_ context.Context, key string, index int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	list := m.lists[key]
	if index < 0 {
		index += int64(len(list))
	}
	if index < 0 || index >= int64(len(list)) {
		return "", false, nil
	}
	return list[index], true, nil
}

func (m *MemoryClient) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	list := m.lists[key]
	n := int64(len(list))

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return []string{}, nil
	}

	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *MemoryClient) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	list := m.lists[key]
	n := int64(len(list))

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		delete(m.lists, key)
		return nil
	}

	trimmed := make([]string, stop-start+1)
	copy(trimmed, list[start:stop+1])
	m.lists[key] = trimmed
	return nil
}

func (m *MemoryClient) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return int64(len(m.lists[key])), nil
}

func (m *MemoryClient) RPushFanout(_ context.Context, keys []string, value string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, key := range keys {
		m.purgeLocked(key)
		m.lists[key] = append(m.lists[key], value)
		m.expiry[key] = m.now().Add(ttl)
		m.signalLocked(key)
		count++
	}
	return count, nil
}

func (m *MemoryClient) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemoryClient) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, field := range fields {
		delete(h, field)
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
	return nil
}

func (m *MemoryClient) HExists(_ context.Context, key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	_, ok := m.hashes[key][field]
	return ok, nil
}

func (m *MemoryClient) HKeys(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	fields := make([]string, 0, len(m.hashes[key]))
	for field := range m.hashes[key] {
		fields = append(fields, field)
	}
	return fields, nil
}

func (m *MemoryClient) HLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return int64(len(m.hashes[key])), nil
}

func (m *MemoryClient) Ping(context.Context) error { return nil }

func (m *MemoryClient) Close() error { return nil }
