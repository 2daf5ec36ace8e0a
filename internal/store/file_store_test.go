package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netreplay/internal/replay"
)

func sampleRecording() *replay.Recording {
	return &replay.Recording{
		StartTimeMillis: 1_700_000_000_000,
		DurationMillis:  150,
		Packets: []replay.Packet{
			{DelayMillis: 50, Payload: []byte("alpha")},
			{DelayMillis: 120, Payload: []byte{0x00, 0xFF, 0x7F}},
		},
	}
}

// TestFileStoreRoundTrip проверяет, что запись восстанавливается байт-в-байт
func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), false)
	require.NoError(t, err)

	rec := sampleRecording()
	id, err := fs.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "rec_1700000000000", id, "идентификатор выводится из времени старта")

	loaded, err := fs.Load(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, rec.StartTimeMillis, loaded.StartTimeMillis)
	assert.Equal(t, rec.DurationMillis, loaded.DurationMillis)
	require.Len(t, loaded.Packets, 2)
	for i := range rec.Packets {
		assert.Equal(t, rec.Packets[i].DelayMillis, loaded.Packets[i].DelayMillis)
		assert.Equal(t, rec.Packets[i].Payload, loaded.Packets[i].Payload, "нагрузка должна совпадать байт-в-байт")
	}
}

// TestFileStoreGzipRoundTrip проверяет сжатую форму хранения
func TestFileStoreGzipRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir, true)
	require.NoError(t, err)

	rec := sampleRecording()
	id, err := fs.Save(ctx, rec)
	require.NoError(t, err)

	// На диске лежит именно .json.gz
	if _, err := os.Stat(filepath.Join(dir, id+".json.gz")); err != nil {
		t.Fatalf("Ожидался сжатый файл: %v", err)
	}

	loaded, err := fs.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded.Packets, 2)
	assert.Equal(t, rec.Packets[1].Payload, loaded.Packets[1].Payload)
}

// TestFileStoreLoadNotFound проверяет загрузку несуществующей записи
func TestFileStoreLoadNotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "rec_0")
	if !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("Ожидался ErrRecordingNotFound, получено: %v", err)
	}
}

// TestFileStoreMalformedMissingPackets проверяет, что документ без поля
// packets отвергается как повреждённый
func TestFileStoreMalformedMissingPackets(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, false)
	require.NoError(t, err)

	doc := `{"format_version":1,"recording_id":"rec_42","start_time_ms":42,"duration_ms":0}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rec_42.json"), []byte(doc), 0644))

	_, err = fs.Load(context.Background(), "rec_42")
	if !errors.Is(err, ErrMalformedRecording) {
		t.Fatalf("Ожидался ErrMalformedRecording, получено: %v", err)
	}
}

// TestFileStoreMalformedJSON проверяет реакцию на синтаксически битый документ
func TestFileStoreMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rec_7.json"), []byte("{broken"), 0644))

	_, err = fs.Load(context.Background(), "rec_7")
	assert.True(t, errors.Is(err, ErrMalformedRecording), "неожиданная ошибка: %v", err)
}

// TestFileStoreUnknownFieldsIgnored проверяет прямую совместимость формата:
// неизвестные поля верхнего уровня игнорируются при загрузке
func TestFileStoreUnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, false)
	require.NoError(t, err)

	doc := `{
		"format_version": 2,
		"recording_id": "rec_99",
		"start_time_ms": 99,
		"duration_ms": 10,
		"compression": "zstd",
		"annotations": {"note": "из будущей версии"},
		"packets": [{"delay_ms": 5, "payload": "aGk="}]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rec_99.json"), []byte(doc), 0644))

	rec, err := fs.Load(context.Background(), "rec_99")
	require.NoError(t, err)
	require.Len(t, rec.Packets, 1)
	assert.Equal(t, []byte("hi"), rec.Packets[0].Payload)
	assert.Equal(t, uint64(5), rec.Packets[0].DelayMillis)
}

// TestFileStoreEmptyPackets проверяет, что пустой список пакетов легален
func TestFileStoreEmptyPackets(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), false)
	require.NoError(t, err)

	id, err := fs.Save(ctx, &replay.Recording{StartTimeMillis: 5, DurationMillis: 0})
	require.NoError(t, err)

	rec, err := fs.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rec.Packets, "пустая запись загружается без ошибки")
}

// TestFileStoreListAndDelete проверяет листинг с сортировкой и удаление
func TestFileStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), false)
	require.NoError(t, err)

	// Сохраняем в обратном хронологическом порядке
	for _, startMs := range []uint64{300, 100, 200} {
		_, err := fs.Save(ctx, &replay.Recording{
			StartTimeMillis: startMs,
			DurationMillis:  1,
			Packets:         []replay.Packet{{DelayMillis: 0, Payload: []byte("x")}},
		})
		require.NoError(t, err)
	}

	infos, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "rec_100", infos[0].ID, "листинг отсортирован по времени старта")
	assert.Equal(t, "rec_200", infos[1].ID)
	assert.Equal(t, "rec_300", infos[2].ID)
	assert.Equal(t, 1, infos[0].Packets)

	require.NoError(t, fs.Delete(ctx, "rec_200"))

	infos, err = fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	err = fs.Delete(ctx, "rec_200")
	assert.True(t, errors.Is(err, ErrRecordingNotFound), "повторное удаление: %v", err)
}

// TestFileStoreCorruptedGzip проверяет реакцию на битый gzip контейнер
func TestFileStoreCorruptedGzip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, true)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rec_13.json.gz"), []byte("not gzip"), 0644))

	_, err = fs.Load(context.Background(), "rec_13")
	assert.True(t, errors.Is(err, ErrMalformedRecording), "неожиданная ошибка: %v", err)
}
