package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netreplay/internal/session"
)

// TestTickDriverDeliversPackets проверяет сквозную доставку через реальные часы
func TestTickDriverDeliversPackets(t *testing.T) {
	machine := session.NewMachine()
	sink := &collectSink{}
	p := NewPlayer(machine, sink.deliver)

	d := NewTickDriver(p, machine, 5*time.Millisecond)
	d.Start()
	defer d.Stop()

	rec := &Recording{
		DurationMillis: 30,
		Packets: []Packet{
			{DelayMillis: 0, Payload: []byte("first")},
			{DelayMillis: 30, Payload: []byte("second")},
		},
	}
	require.NoError(t, p.StartPlayback("rec_drv", rec))

	require.Eventually(t, func() bool { return sink.count() == 2 },
		2*time.Second, 5*time.Millisecond, "оба пакета должны быть доставлены")

	assert.Equal(t, []byte("first"), sink.at(0))
	assert.Equal(t, []byte("second"), sink.at(1))
	assert.Equal(t, session.PlaybackActive, machine.Current(), "исчерпание очереди не останавливает воспроизведение")

	p.StopPlayback()
}

// TestTickDriverPauseFreezesClock проверяет, что пауза останавливает часы
func TestTickDriverPauseFreezesClock(t *testing.T) {
	machine := session.NewMachine()
	p := NewPlayer(machine, func([]byte) {})

	d := NewTickDriver(p, machine, 5*time.Millisecond)
	d.Start()
	defer d.Stop()

	rec := &Recording{
		DurationMillis: 10_000,
		Packets:        []Packet{{DelayMillis: 10_000, Payload: []byte("far")}},
	}
	require.NoError(t, p.StartPlayback("rec_pause", rec))

	require.Eventually(t, func() bool { return d.Elapsed() > 0 },
		2*time.Second, 5*time.Millisecond, "часы должны идти при активном воспроизведении")

	_, err := p.TogglePlayback()
	require.NoError(t, err)

	frozen := d.Elapsed()
	time.Sleep(50 * time.Millisecond)
	// Небольшой допуск на тик, попавший в окно между замером и паузой
	assert.LessOrEqual(t, d.Elapsed(), frozen+uint64(10), "на паузе часы не должны идти")
	assert.Equal(t, 1, p.QueueLen(), "пакеты не теряются на паузе")

	p.StopPlayback()
}

// TestTickDriverRestartResetsClock проверяет, что остановка и перезапуск
// внутри одного интервала тиков не наследуют часы предыдущей сессии:
// ранние пакеты новой записи не доставляются преждевременно
func TestTickDriverRestartResetsClock(t *testing.T) {
	machine := session.NewMachine()
	sink := &collectSink{}
	p := NewPlayer(machine, sink.deliver)

	// Крупный интервал: перезапуск гарантированно попадает между тиками
	d := NewTickDriver(p, machine, 50*time.Millisecond)
	d.Start()
	defer d.Stop()

	first := &Recording{
		DurationMillis: 10_000,
		Packets:        []Packet{{DelayMillis: 10_000, Payload: []byte("far")}},
	}
	require.NoError(t, p.StartPlayback("rec_one", first))

	// Накапливаем заметное время первой сессии
	require.Eventually(t, func() bool { return d.Elapsed() >= 400 },
		5*time.Second, 10*time.Millisecond)

	// Остановка и немедленный перезапуск — без ожидания тика в Idle
	p.StopPlayback()
	second := &Recording{
		DurationMillis: 400,
		Packets:        []Packet{{DelayMillis: 400, Payload: []byte("early?")}},
	}
	require.NoError(t, p.StartPlayback("rec_two", second))

	require.Less(t, d.Elapsed(), uint64(400), "часы должны сброситься при старте")

	// Пакет с delay=400 не созревает сразу после перезапуска
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, sink.count(), "пакет новой записи не должен доставляться по часам прошлой сессии")
	assert.Equal(t, 1, p.QueueLen())

	// А по собственным часам новой сессии — созревает
	require.Eventually(t, func() bool { return sink.count() == 1 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("early?"), sink.at(0))

	p.StopPlayback()
}

// TestTickDriverResetsInIdle проверяет обнуление часов вне воспроизведения
func TestTickDriverResetsInIdle(t *testing.T) {
	machine := session.NewMachine()
	p := NewPlayer(machine, func([]byte) {})

	d := NewTickDriver(p, machine, 5*time.Millisecond)
	d.Start()
	defer d.Stop()

	rec := &Recording{
		DurationMillis: 10_000,
		Packets:        []Packet{{DelayMillis: 10_000, Payload: []byte("far")}},
	}
	require.NoError(t, p.StartPlayback("rec_reset", rec))
	require.Eventually(t, func() bool { return d.Elapsed() > 0 },
		2*time.Second, 5*time.Millisecond)

	p.StopPlayback()

	require.Eventually(t, func() bool { return d.Elapsed() == 0 },
		2*time.Second, 5*time.Millisecond, "в Idle счётчик должен обнулиться")
}
