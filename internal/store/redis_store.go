package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/netreplay/internal/replay"
)

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей (0 — без истечения)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "netreplay:rec:",
	}
}

// RedisStore хранит документы записей в Redis. Используется, когда записи
// должны быть доступны нескольким процессам или иметь ограниченный срок жизни.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore подключается к Redis и проверяет соединение.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "netreplay:rec:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// Save сериализует запись и кладёт документ под ключ <prefix><id>.
func (rs *RedisStore) Save(ctx context.Context, rec *replay.Recording) (string, error) {
	id := RecordingID(rec.StartTimeMillis)

	data, err := encodeRecording(id, rec)
	if err != nil {
		return "", err
	}

	if err := rs.client.Set(ctx, rs.keyPrefix+id, data, rs.ttl).Err(); err != nil {
		return "", fmt.Errorf("ошибка сохранения записи %s в Redis: %w", id, err)
	}
	return id, nil
}

// Load читает и валидирует документ записи.
func (rs *RedisStore) Load(ctx context.Context, id string) (*replay.Recording, error) {
	data, err := rs.client.Get(ctx, rs.keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи %s из Redis: %w", id, err)
	}

	return decodeRecording(data)
}

// List сканирует ключи по префиксу и собирает метаданные записей.
func (rs *RedisStore) List(ctx context.Context) ([]RecordingInfo, error) {
	var infos []RecordingInfo
	var cursor uint64

	for {
		keys, next, err := rs.client.Scan(ctx, cursor, rs.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключей Redis: %w", err)
		}

		for _, key := range keys {
			data, err := rs.client.Get(ctx, key).Bytes()
			if err != nil {
				continue // ключ мог истечь между SCAN и GET
			}
			rec, err := decodeRecording(data)
			if err != nil {
				continue
			}
			infos = append(infos, RecordingInfo{
				ID:          strings.TrimPrefix(key, rs.keyPrefix),
				StartTimeMs: rec.StartTimeMillis,
				DurationMs:  rec.DurationMillis,
				Packets:     len(rec.Packets),
			})
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartTimeMs < infos[j].StartTimeMs })
	return infos, nil
}

// Delete удаляет документ записи.
func (rs *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := rs.client.Del(ctx, rs.keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s из Redis: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
