package store

import (
	"context"
	"sync"

	"gtgbot/internal/alert"
)

// Memory is a process-local Store for development and tests. It keeps the
// same FIFO and idempotence semantics as the durable drivers but loses
// everything on restart.
type Memory struct {
	mu    sync.Mutex
	queue []alert.Batch
	subs  map[int64]struct{}
	seq   int64
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int64]struct{})}
}

func (m *Memory) PushBatch(_ context.Context, batch alert.Batch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.queue = append(m.queue, batch)
	return m.seq, nil
}

func (m *Memory) PopBatch(_ context.Context) (alert.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return alert.Batch{}, ErrEmpty
	}
	batch := m.queue[0]
	m.queue = m.queue[1:]
	return batch, nil
}

func (m *Memory) QueueDepth(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queue)), nil
}

func (m *Memory) AddSubscriber(_ context.Context, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[chatID]; ok {
		return false, nil
	}
	m.subs[chatID] = struct{}{}
	return true, nil
}

func (m *Memory) RemoveSubscriber(_ context.Context, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[chatID]; !ok {
		return false, nil
	}
	delete(m.subs, chatID)
	return true, nil
}

func (m *Memory) IsSubscriber(_ context.Context, chatID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[chatID]
	return ok, nil
}

func (m *Memory) Subscribers(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
