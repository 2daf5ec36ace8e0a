package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netreplay/internal/replay"
)

// TestMemoryStoreRoundTrip проверяет сохранение/загрузку через кодек
func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	rec := sampleRecording()
	id, err := ms.Save(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, RecordingID(rec.StartTimeMillis), id)

	loaded, err := ms.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded.Packets, len(rec.Packets))
	for i := range rec.Packets {
		assert.Equal(t, rec.Packets[i].DelayMillis, loaded.Packets[i].DelayMillis)
		assert.Equal(t, rec.Packets[i].Payload, loaded.Packets[i].Payload)
	}
}

// TestMemoryStoreNotFound проверяет ошибки отсутствующей записи
func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	if _, err := ms.Load(ctx, "rec_404"); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("Ожидался ErrRecordingNotFound, получено: %v", err)
	}
	if err := ms.Delete(ctx, "rec_404"); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("Ожидался ErrRecordingNotFound, получено: %v", err)
	}
}

// TestMemoryStoreListSorted проверяет сортировку листинга
func TestMemoryStoreListSorted(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	for _, startMs := range []uint64{30, 10, 20} {
		_, err := ms.Save(ctx, &replay.Recording{StartTimeMillis: startMs})
		require.NoError(t, err)
	}

	infos, err := ms.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, uint64(10), infos[0].StartTimeMs)
	assert.Equal(t, uint64(20), infos[1].StartTimeMs)
	assert.Equal(t, uint64(30), infos[2].StartTimeMs)
}

// TestMemoryStoreOverwrite проверяет, что повторное сохранение с тем же
// временем старта перезаписывает документ
func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	_, err := ms.Save(ctx, &replay.Recording{StartTimeMillis: 1, DurationMillis: 5})
	require.NoError(t, err)
	id, err := ms.Save(ctx, &replay.Recording{StartTimeMillis: 1, DurationMillis: 9})
	require.NoError(t, err)

	loaded, err := ms.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), loaded.DurationMillis)

	infos, err := ms.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
