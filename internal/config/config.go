package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации движка записи/воспроизведения.

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Playback PlaybackConfig `yaml:"playback"`
	Capture  CaptureConfig  `yaml:"capture"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	IngestPort int `yaml:"ingest_port"` // TCP порт приёма живого трафика
	RESTPort   int `yaml:"rest_port"`   // REST API управления
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // file | badger | redis | mongo | memory
	Path        string `yaml:"path"`    // директория для file/badger
	UseGzip     bool   `yaml:"use_gzip_compression"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPass   string `yaml:"redis_password"`
	RedisTTLMin int    `yaml:"redis_ttl_minutes"` // 0 — без истечения
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_database"`
}

type PlaybackConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"` // кадр кооперативных часов
}

type CaptureConfig struct {
	ExcludeBoundary bool `yaml:"exclude_boundary"` // не писать граничные сообщения в запись
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто — in-memory шина
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type AuthConfig struct {
	Operator     string `yaml:"operator"`      // имя оператора REST API
	PasswordHash string `yaml:"password_hash"` // bcrypt хеш пароля оператора
	JWTSecret    string `yaml:"jwt_secret"`    // base64, >=32 байт после декодирования
}

// GetIngestPort возвращает порт приёма трафика с поддержкой fallback значений
func (s *ServerConfig) GetIngestPort() int {
	return getPortWithEnvFallback(s.IngestPort, "REPLAY_INGEST_PORT", 7600)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "REPLAY_REST_PORT", 8090)
}

// GetTickIntervalMs возвращает интервал тиков, по умолчанию 10мс
func (p *PlaybackConfig) GetTickIntervalMs() int {
	if p.TickIntervalMs > 0 {
		return p.TickIntervalMs
	}
	return 10
}

// GetBackend возвращает бэкенд хранилища, по умолчанию file
func (s *StorageConfig) GetBackend() string {
	if s.Backend != "" {
		return s.Backend
	}
	if env := os.Getenv("REPLAY_STORAGE_BACKEND"); env != "" {
		return env
	}
	return "file"
}

// GetPath возвращает директорию хранилища, по умолчанию data/recordings
func (s *StorageConfig) GetPath() string {
	if s.Path != "" {
		return s.Path
	}
	return "data/recordings"
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV REPLAY_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REPLAY_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
