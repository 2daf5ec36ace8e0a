package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/netreplay/internal/replay"
)

// MemoryStore хранит записи в памяти. Используется в тестах и при встраивании
// движка без персистентности. Документы держатся в сериализованной форме,
// поэтому round-trip через кодек проверяется и здесь.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Save сериализует запись и кладёт документ в карту.
func (ms *MemoryStore) Save(ctx context.Context, rec *replay.Recording) (string, error) {
	id := RecordingID(rec.StartTimeMillis)

	data, err := encodeRecording(id, rec)
	if err != nil {
		return "", err
	}

	ms.mu.Lock()
	ms.docs[id] = data
	ms.mu.Unlock()
	return id, nil
}

// Load десериализует и валидирует документ.
func (ms *MemoryStore) Load(ctx context.Context, id string) (*replay.Recording, error) {
	ms.mu.RLock()
	data, ok := ms.docs[id]
	ms.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return decodeRecording(data)
}

// List возвращает метаданные всех записей по возрастанию времени старта.
func (ms *MemoryStore) List(ctx context.Context) ([]RecordingInfo, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	infos := make([]RecordingInfo, 0, len(ms.docs))
	for id, data := range ms.docs {
		rec, err := decodeRecording(data)
		if err != nil {
			continue
		}
		infos = append(infos, RecordingInfo{
			ID:          id,
			StartTimeMs: rec.StartTimeMillis,
			DurationMs:  rec.DurationMillis,
			Packets:     len(rec.Packets),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartTimeMs < infos[j].StartTimeMs })
	return infos, nil
}

// Delete удаляет запись из карты.
func (ms *MemoryStore) Delete(ctx context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	delete(ms.docs, id)
	return nil
}

// Close для in-memory хранилища ничего не освобождает.
func (ms *MemoryStore) Close() error { return nil }
