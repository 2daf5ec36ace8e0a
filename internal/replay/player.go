package replay

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/annel0/netreplay/internal/eventbus"
	"github.com/annel0/netreplay/internal/logging"
	"github.com/annel0/netreplay/internal/session"
)

// Sink доставляет один пакет внешнему потребителю. Форма совпадает с живым
// входящим трафиком, поэтому потребители не отличают реплей от реальности.
type Sink func(payload []byte)

// Player воспроизводит загруженную Recording с исходными межпакетными
// интервалами. Планирование кооперативное: внешние часы вызывают Tick с
// неубывающим прошедшим временем, Player лишь отдаёт «созревшие» пакеты.
// Ровно одна запись активна на экземпляр Player.
type Player struct {
	machine *session.Machine
	sink    Sink

	mu          sync.Mutex
	queue       []Packet // потребляемая FIFO-копия rec.Packets
	offset      int64    // коррекция пропуска: offset = delay фронта - elapsed на момент skip
	lastElapsed uint64   // elapsed последнего Tick (для SkipAhead)
	recordingID string
	finished    bool   // очередь исчерпана; событие publish только один раз
	generation  uint64 // растёт на каждом StopPlayback; обрывает доставку устаревшей партии
	clockReset  func() // сброс внешних часов при StartPlayback
}

// NewPlayer создаёт планировщик воспроизведения поверх общего автомата.
func NewPlayer(machine *session.Machine, sink Sink) *Player {
	return &Player{machine: machine, sink: sink}
}

// bindClockReset привязывает сброс внешних часов к каждому StartPlayback.
func (p *Player) bindClockReset(reset func()) {
	p.mu.Lock()
	p.clockReset = reset
	p.mu.Unlock()
}

// StartPlayback загружает запись в очередь и переводит автомат в
// PlaybackActive. Повторный запуск при активном воспроизведении или записи —
// безопасный отказ с ErrInvalidTransition.
func (p *Player) StartPlayback(recordingID string, rec *Recording) error {
	if rec == nil {
		return fmt.Errorf("запись не загружена")
	}

	if err := p.machine.BeginPlayback(); err != nil {
		return err
	}

	p.mu.Lock()
	// Часы сбрасываются синхронно: перезапуск внутри одного интервала тиков
	// не наследует elapsed предыдущей сессии.
	if p.clockReset != nil {
		p.clockReset()
	}
	// Порядок вставки авторитетен: очередь не пересортировывается по delay.
	p.queue = make([]Packet, len(rec.Packets))
	copy(p.queue, rec.Packets)
	p.offset = 0
	p.lastElapsed = 0
	p.recordingID = recordingID
	p.finished = len(p.queue) == 0
	metricQueueLength.Set(float64(len(p.queue)))
	p.mu.Unlock()

	logging.Info("▶️ Воспроизведение %s: %d пакетов, %dms", recordingID, len(rec.Packets), rec.DurationMillis)
	eventbus.PublishLifecycle("player", eventbus.EventPlaybackStarted, recordingID, map[string]string{
		"packets": strconv.Itoa(len(rec.Packets)),
	})
	return nil
}

// Tick отдаёт все пакеты, чьё время пришло: пока фронт очереди имеет
// delay <= elapsed + offset, пакет извлекается и доставляется синхронно,
// по порядку. Работа ограничена числом созревших пакетов, а не длиной
// записи. Во время паузы Tick не вызывается — часы стоят у водителя,
// пакеты не теряются.
func (p *Player) Tick(elapsedMillis uint64) int {
	if !p.machine.IsPlaybackActive() {
		return 0
	}

	p.mu.Lock()
	p.lastElapsed = elapsedMillis
	gen := p.generation

	var due [][]byte
	for len(p.queue) > 0 && int64(p.queue[0].DelayMillis) <= int64(elapsedMillis)+p.offset {
		due = append(due, p.queue[0].Payload)
		p.queue = p.queue[1:]
	}
	exhausted := len(p.queue) == 0 && len(due) > 0 && !p.finished
	if exhausted {
		p.finished = true
	}
	recID := p.recordingID
	metricQueueLength.Set(float64(len(p.queue)))
	p.mu.Unlock()

	// Доставка вне блокировки: sink может синхронно дёргать движок обратно.
	// StopPlayback из другой горутины (или из самого sink) поднимает
	// generation и обрывает остаток партии: после остановки доставок нет.
	delivered := 0
	for _, payload := range due {
		if p.staleGeneration(gen) {
			break
		}
		p.sink(payload)
		metricPacketsDelivered.Inc()
		delivered++
	}

	if exhausted && delivered == len(due) {
		// Исчерпание очереди не останавливает воспроизведение: состояние
		// остаётся PlaybackActive до явного StopPlayback, это наблюдаемое
		// терминальное условие.
		logging.Info("🏁 Очередь воспроизведения %s исчерпана", recID)
		eventbus.PublishLifecycle("player", eventbus.EventPlaybackFinished, recID, nil)
	}
	return delivered
}

// staleGeneration сообщает, была ли остановка воспроизведения после снятия
// снимка очереди с поколением gen.
func (p *Player) staleGeneration(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation != gen
}

// SkipAhead схлопывает оставшееся ожидание перед фронтовым пакетом: offset
// вычисляется как delay фронта минус уже прошедшее время, поэтому следующий
// Tick отдаёт фронт немедленно. Вычитание только «сырого» delay без поправки
// на elapsed недокорректирует и даёт промах тем больший, чем дальше ушло
// воспроизведение.
func (p *Player) SkipAhead() error {
	if !p.machine.InPlayback() {
		return fmt.Errorf("%w: пропуск вне воспроизведения", session.ErrInvalidTransition)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		logging.Debug("Плеер: пропуск при пустой очереди — нечего ускорять")
		return nil
	}

	p.offset = int64(p.queue[0].DelayMillis) - int64(p.lastElapsed)
	metricPlaybackSkips.Inc()
	logging.Debug("⏩ Пропуск: front=%dms, elapsed=%dms, offset=%d",
		p.queue[0].DelayMillis, p.lastElapsed, p.offset)
	return nil
}

// TogglePlayback переключает паузу, не трогая очередь и накопленный offset.
func (p *Player) TogglePlayback() (session.State, error) {
	st, err := p.machine.TogglePlayback()
	if err != nil {
		return st, err
	}

	p.mu.Lock()
	recID := p.recordingID
	p.mu.Unlock()

	logging.Info("⏯ Воспроизведение %s: %s", recID, st)
	eventbus.PublishLifecycle("player", eventbus.EventPlaybackToggled, recID, map[string]string{
		"state": st.String(),
	})
	return st, nil
}

// StopPlayback очищает очередь, сбрасывает offset и возвращает автомат в
// Idle. Идемпотентен: повторный вызов ничего не меняет.
func (p *Player) StopPlayback() {
	wasActive := p.machine.InPlayback()
	_ = p.machine.EndPlayback()

	p.mu.Lock()
	recID := p.recordingID
	p.queue = nil
	p.offset = 0
	p.lastElapsed = 0
	p.recordingID = ""
	p.finished = false
	p.generation++
	metricQueueLength.Set(0)
	p.mu.Unlock()

	if wasActive {
		logging.Info("⏹ Воспроизведение %s остановлено", recID)
		eventbus.PublishLifecycle("player", eventbus.EventPlaybackStopped, recID, nil)
	}
}

// QueueLen возвращает число ещё не доставленных пакетов.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// RecordingID возвращает идентификатор активной записи ("" вне воспроизведения).
func (p *Player) RecordingID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordingID
}
