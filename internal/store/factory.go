package store

import (
	"fmt"
	"time"

	"github.com/annel0/netreplay/internal/config"
	"github.com/annel0/netreplay/internal/logging"
)

// NewFromConfig выбирает и создаёт бэкенд хранилища записей по конфигурации.
func NewFromConfig(cfg *config.StorageConfig) (RecordingStore, error) {
	backend := cfg.GetBackend()

	switch backend {
	case "file":
		logging.Info("💾 Хранилище записей: file (%s, gzip=%v)", cfg.GetPath(), cfg.UseGzip)
		return NewFileStore(cfg.GetPath(), cfg.UseGzip)

	case "badger":
		logging.Info("💾 Хранилище записей: badger (%s)", cfg.GetPath())
		return NewBadgerStore(cfg.GetPath())

	case "redis":
		rc := DefaultRedisConfig()
		if cfg.RedisAddr != "" {
			rc.Addr = cfg.RedisAddr
		}
		rc.Password = cfg.RedisPass
		rc.DB = cfg.RedisDB
		if cfg.RedisTTLMin > 0 {
			rc.TTL = time.Duration(cfg.RedisTTLMin) * time.Minute
		}
		logging.Info("💾 Хранилище записей: redis (%s)", rc.Addr)
		return NewRedisStore(rc)

	case "mongo":
		mc := MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDB}
		logging.Info("💾 Хранилище записей: mongo (%s)", mc.URI)
		return NewMongoStore(mc)

	case "memory":
		logging.Info("💾 Хранилище записей: in-memory (без персистентности)")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища: %s", backend)
	}
}
