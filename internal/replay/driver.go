package replay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/netreplay/internal/session"
)

// TickDriver — хозяин кооперативных часов воспроизведения. Сам движок не
// запускает горутин и не держит таймеров: Tick — чистая функция прошедшего
// времени. Драйвер накапливает миллисекунды только пока автомат в
// PlaybackActive, поэтому пауза останавливает часы, а не роняет созревшие
// пакеты.
type TickDriver struct {
	player   *Player
	machine  *session.Machine
	interval time.Duration

	elapsed uint64 // атомарный счётчик миллисекунд активного воспроизведения

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewTickDriver создаёт драйвер с указанным интервалом тиков и привязывает
// сброс своих часов к старту воспроизведения: новая сессия начинается с
// elapsed=0 сразу, а не после первого тика в Idle.
func NewTickDriver(player *Player, machine *session.Machine, interval time.Duration) *TickDriver {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	d := &TickDriver{
		player:   player,
		machine:  machine,
		interval: interval,
		stop:     make(chan struct{}),
	}
	player.bindClockReset(d.Reset)
	return d
}

// Reset обнуляет накопленное время воспроизведения. Вызывается плеером при
// StartPlayback: остановка и перезапуск внутри одного интервала тиков не
// должны наследовать часы предыдущей сессии.
func (d *TickDriver) Reset() {
	atomic.StoreUint64(&d.elapsed, 0)
}

// Start запускает цикл тиков.
func (d *TickDriver) Start() {
	d.wg.Add(1)
	go d.loop()
}

func (d *TickDriver) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	step := uint64(d.interval.Milliseconds())

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			switch d.machine.Current() {
			case session.PlaybackActive:
				elapsed := atomic.AddUint64(&d.elapsed, step)
				d.player.Tick(elapsed)
			case session.PlaybackPaused:
				// часы стоят
			default:
				// вне воспроизведения счётчик обнуляется, чтобы следующий
				// запуск начинался с elapsed=0
				atomic.StoreUint64(&d.elapsed, 0)
			}
		}
	}
}

// Elapsed возвращает накопленное активное время воспроизведения в мс.
func (d *TickDriver) Elapsed() uint64 {
	return atomic.LoadUint64(&d.elapsed)
}

// Stop останавливает цикл тиков и дожидается завершения горутины.
func (d *TickDriver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}
