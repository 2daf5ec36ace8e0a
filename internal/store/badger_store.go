package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/netreplay/internal/replay"
)

const badgerKeyPrefix = "rec:"

// BadgerStore хранит записи во встроенной BadgerDB: один документ на ключ
// rec:<id>. Подходит для одиночного процесса без внешних зависимостей.
type BadgerStore struct {
	db      *badger.DB
	mu      sync.Mutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) базу в указанной директории.
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dataPath)
	opts.Logger = nil // отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{db: db, isReady: true}, nil
}

// Save сериализует запись и кладёт документ под ключ rec:<id>.
func (bs *BadgerStore) Save(ctx context.Context, rec *replay.Recording) (string, error) {
	id := RecordingID(rec.StartTimeMillis)

	data, err := encodeRecording(id, rec)
	if err != nil {
		return "", err
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+id), data)
	})
	if err != nil {
		return "", fmt.Errorf("ошибка сохранения записи %s в BadgerDB: %w", id, err)
	}
	return id, nil
}

// Load читает и валидирует документ записи.
func (bs *BadgerStore) Load(ctx context.Context, id string) (*replay.Recording, error) {
	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи %s из BadgerDB: %w", id, err)
	}

	return decodeRecording(data)
}

// List итерирует по префиксу rec: и собирает метаданные записей.
func (bs *BadgerStore) List(ctx context.Context) ([]RecordingInfo, error) {
	var infos []RecordingInfo

	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecording(val)
				if err != nil {
					return nil // повреждённый документ не ломает листинг
				}
				infos = append(infos, RecordingInfo{
					ID:          string(it.Item().Key()[len(badgerKeyPrefix):]),
					StartTimeMs: rec.StartTimeMillis,
					DurationMs:  rec.DurationMillis,
					Packets:     len(rec.Packets),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка итерации по BadgerDB: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartTimeMs < infos[j].StartTimeMs })
	return infos, nil
}

// Delete удаляет документ записи.
func (bs *BadgerStore) Delete(ctx context.Context, id string) error {
	key := []byte(badgerKeyPrefix + id)

	err := bs.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s из BadgerDB: %w", id, err)
	}
	return nil
}

// Close закрывает базу данных.
func (bs *BadgerStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.isReady {
		return nil
	}
	bs.isReady = false
	return bs.db.Close()
}
