package replay

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netreplay/internal/session"
)

// TestFindFirstMatch проверяет поиск первого подходящего пакета
func TestFindFirstMatch(t *testing.T) {
	rec := &Recording{
		Packets: []Packet{
			{DelayMillis: 10, Payload: []byte("ping")},
			{DelayMillis: 20, Payload: []byte("login:alice")},
			{DelayMillis: 30, Payload: []byte("login:bob")},
		},
	}

	payload, err := FindFirst(rec, func(p []byte) bool {
		return bytes.HasPrefix(p, []byte("login:"))
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("login:alice"), payload, "возвращается именно первый подходящий пакет")
}

// TestFindFirstNoMatch проверяет отрицательный результат поиска
func TestFindFirstNoMatch(t *testing.T) {
	rec := &Recording{
		Packets: []Packet{{DelayMillis: 10, Payload: []byte("ping")}},
	}

	_, err := FindFirst(rec, func(p []byte) bool { return false })
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Ожидался ErrNoMatch, получено: %v", err)
	}

	// nil-аргументы — тоже отрицательный результат, не паника
	if _, err := FindFirst(nil, func([]byte) bool { return true }); !errors.Is(err, ErrNoMatch) {
		t.Errorf("nil-запись должна давать ErrNoMatch: %v", err)
	}
	if _, err := FindFirst(rec, nil); !errors.Is(err, ErrNoMatch) {
		t.Errorf("nil-предикат должен давать ErrNoMatch: %v", err)
	}
}

// TestFindFirstReturnsCopy проверяет, что поиск возвращает копию нагрузки
func TestFindFirstReturnsCopy(t *testing.T) {
	rec := &Recording{
		Packets: []Packet{{DelayMillis: 0, Payload: []byte("data")}},
	}

	payload, err := FindFirst(rec, func([]byte) bool { return true })
	require.NoError(t, err)

	payload[0] = 'X'
	assert.Equal(t, []byte("data"), rec.Packets[0].Payload, "мутация результата не должна трогать запись")
}

// TestFindFirstDoesNotTouchPlaybackQueue проверяет, что поиск по записи
// не расходует живую очередь воспроизведения
func TestFindFirstDoesNotTouchPlaybackQueue(t *testing.T) {
	machine := session.NewMachine()
	sink := &collectSink{}
	p := NewPlayer(machine, sink.deliver)

	rec := testRecording()
	require.NoError(t, p.StartPlayback("rec_find", rec))
	require.Equal(t, 2, p.QueueLen())

	_, err := FindFirst(rec, func(p []byte) bool { return false })
	require.True(t, errors.Is(err, ErrNoMatch))

	assert.Equal(t, 2, p.QueueLen(), "очередь не должна измениться после поиска")

	// Следующий тик доставляет исходный фронт в исходном порядке
	require.Equal(t, 1, p.Tick(60))
	assert.Equal(t, []byte("alpha"), sink.at(0))
}
