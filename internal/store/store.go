package store

import (
	"context"
	"errors"

	"github.com/annel0/netreplay/internal/replay"
)

// Ошибки хранилища записей.
var (
	// ErrMalformedRecording — сохранённые данные не содержат упорядоченной
	// последовательности пакетов. Пустая последовательность при этом легальна.
	ErrMalformedRecording = errors.New("повреждённая запись: отсутствует последовательность пакетов")

	// ErrRecordingNotFound — записи с таким идентификатором нет в хранилище.
	ErrRecordingNotFound = errors.New("запись не найдена")
)

// RecordingInfo — метаданные записи для листинга без загрузки пакетов.
type RecordingInfo struct {
	ID          string `json:"id"`
	StartTimeMs uint64 `json:"start_time_ms"`
	DurationMs  uint64 `json:"duration_ms"`
	Packets     int    `json:"packets"`
}

// RecordingStore — контракт персистентности завершённых сессий.
// Save присваивает детерминированный идентификатор, производный от времени
// старта записи; коллизия двух сессий в одну миллисекунду — принятое
// ограничение. Load обязан отклонять запись без последовательности пакетов
// (ErrMalformedRecording). Ошибки IO отдаются вызывающему и не трогают
// состояние сессии в памяти.
type RecordingStore interface {
	Save(ctx context.Context, rec *replay.Recording) (string, error)
	Load(ctx context.Context, id string) (*replay.Recording, error)
	List(ctx context.Context) ([]RecordingInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
