package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/annel0/netreplay/internal/replay"
)

// FileStore хранит каждую запись отдельным JSON документом в базовой
// директории. Запись атомарна: документ пишется во временный файл и
// переименовывается. Опционально документы сжимаются gzip (.json.gz).
type FileStore struct {
	basePath           string
	compressionEnabled bool
}

// NewFileStore создаёт файловое хранилище записей.
func NewFileStore(basePath string, compress bool) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", basePath, err)
	}
	return &FileStore{basePath: basePath, compressionEnabled: compress}, nil
}

// Save сериализует запись и атомарно пишет её в <basePath>/<id>.json[.gz].
func (fs *FileStore) Save(ctx context.Context, rec *replay.Recording) (string, error) {
	id := RecordingID(rec.StartTimeMillis)

	data, err := encodeRecording(id, rec)
	if err != nil {
		return "", err
	}

	if fs.compressionEnabled {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return "", fmt.Errorf("ошибка сжатия записи %s: %w", id, err)
		}
		if err := gw.Close(); err != nil {
			return "", fmt.Errorf("ошибка сжатия записи %s: %w", id, err)
		}
		data = buf.Bytes()
	}

	filename := fs.filename(id)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("ошибка записи файла %s: %w", filename, err)
	}

	return id, nil
}

// Load читает, распаковывает и валидирует запись по идентификатору.
func (fs *FileStore) Load(ctx context.Context, id string) (*replay.Recording, error) {
	data, err := fs.readFile(id)
	if err != nil {
		return nil, err
	}
	return decodeRecording(data)
}

// List возвращает метаданные всех записей, отсортированные по времени старта.
func (fs *FileStore) List(ctx context.Context) ([]RecordingInfo, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.basePath, err)
	}

	infos := make([]RecordingInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		id := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".json")
		if id == name || !strings.HasPrefix(id, "rec_") {
			continue
		}

		data, err := fs.readFile(id)
		if err != nil {
			continue // нечитаемый файл не ломает листинг
		}
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

// Delete удаляет запись (обе формы файла, если есть).
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	removed := false
	for _, name := range []string{fs.plainName(id), fs.gzipName(id)} {
		err := os.Remove(name)
		if err == nil {
			removed = true
			continue
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("ошибка удаления %s: %w", name, err)
		}
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}

// Close для файлового хранилища ничего не освобождает.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) plainName(id string) string {
	return filepath.Join(fs.basePath, id+".json")
}

func (fs *FileStore) gzipName(id string) string {
	return filepath.Join(fs.basePath, id+".json.gz")
}

func (fs *FileStore) filename(id string) string {
	if fs.compressionEnabled {
		return fs.gzipName(id)
	}
	return fs.plainName(id)
}

// readFile читает документ записи независимо от того, сжат он или нет.
func (fs *FileStore) readFile(id string) ([]byte, error) {
	if data, err := os.ReadFile(fs.plainName(id)); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка чтения файла записи %s: %w", id, err)
	}

	data, err := os.ReadFile(fs.gzipName(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла записи %s: %w", id, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: повреждённый gzip контейнер", ErrMalformedRecording)
	}
	defer gr.Close()

	plain, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("%w: повреждённый gzip контейнер", ErrMalformedRecording)
	}
	return plain, nil
}
