package replay

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/netreplay/internal/eventbus"
	"github.com/annel0/netreplay/internal/logging"
	"github.com/annel0/netreplay/internal/session"
)

// Classification — вердикт граничного классификатора по одному сообщению.
type Classification int

const (
	// ClassNone — обычное сообщение сессии
	ClassNone Classification = iota
	// ClassSessionStart — сообщение открывает новую сессию
	ClassSessionStart
	// ClassSessionEnd — сообщение закрывает текущую сессию
	ClassSessionEnd
)

// Classifier — внешний предикат, отличающий граничные сообщения сессии от
// обычных. Движок ничего не знает о протоколе: классификация инжектируется.
type Classifier func(payload []byte) Classification

// RecordingSaver — узкий контракт персистентности, который Recorder требует
// от хранилища записей.
type RecordingSaver interface {
	Save(ctx context.Context, rec *Recording) (string, error)
}

// RecorderOptions настраивает поведение захвата.
type RecorderOptions struct {
	// ExcludeBoundary исключает сами граничные сообщения из записи
	ExcludeBoundary bool
	// Now подменяет источник времени (для тестов)
	Now func() time.Time
	// SaveTimeout ограничивает время сохранения завершённой записи
	SaveTimeout time.Duration
}

// Recorder захватывает входящий поток сообщений с отметками прошедшего
// времени. Сессия открывается и закрывается автоматически по вердиктам
// классификатора. Recorder единолично владеет журналом пакетов до конца
// сессии, после чего готовая Recording передаётся хранилищу.
type Recorder struct {
	machine  *session.Machine
	classify Classifier
	saver    RecordingSaver

	excludeBoundary bool
	now             func() time.Time
	saveTimeout     time.Duration

	mu        sync.Mutex
	packets   []Packet
	startWall time.Time
	pending   *Recording // финализирована, но не сохранена (ошибка IO)
}

// NewRecorder создаёт рекордер поверх общего автомата состояний.
func NewRecorder(machine *session.Machine, classify Classifier, saver RecordingSaver, opts RecorderOptions) *Recorder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	return &Recorder{
		machine:         machine,
		classify:        classify,
		saver:           saver,
		excludeBoundary: opts.ExcludeBoundary,
		now:             opts.Now,
		saveTimeout:     opts.SaveTimeout,
	}
}

// OnInboundMessage — единственная точка приёма живого трафика.
// Вызывается сетевым слоем для каждого полученного сообщения.
func (r *Recorder) OnInboundMessage(payload []byte) {
	// Во время воспроизведения захват не видит синтетический трафик:
	// иначе реплей записывал бы сам себя.
	if r.machine.InPlayback() {
		return
	}

	class := ClassNone
	if r.classify != nil {
		class = r.classify(payload)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if class == ClassSessionStart && !r.machine.IsRecording() {
		if err := r.machine.BeginRecording(); err != nil {
			logging.Debug("Рекордер: старт сессии отклонён: %v", err)
			return
		}
		r.startWall = r.now()
		r.packets = nil
		logging.Info("🔴 Начата запись сессии (start=%d)", r.startWall.UnixMilli())
		eventbus.PublishLifecycle("recorder", eventbus.EventCaptureStarted, "", nil)
	}

	if !r.machine.IsRecording() {
		// Конец сессии без активной записи игнорируется
		return
	}

	// Классификация и добавление — независимые заботы: пустая или «битая»
	// полезная нагрузка добавляется как есть.
	if !(r.excludeBoundary && class != ClassNone) {
		delay := uint64(r.now().Sub(r.startWall).Milliseconds())
		cp := make([]byte, len(payload))
		copy(cp, payload)
		r.packets = append(r.packets, Packet{DelayMillis: delay, Payload: cp})
		metricPacketsRecorded.Inc()
		logging.Trace("Рекордер: пакет #%d, delay=%dms, size=%d", len(r.packets), delay, len(cp))
	}

	if class == ClassSessionEnd {
		r.finalizeLocked()
	}
}

// StopCapture явно завершает текущую сессию записи.
// Вне записи — безопасный no-op.
func (r *Recorder) StopCapture() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.machine.IsRecording() {
		return
	}
	r.finalizeLocked()
}

// finalizeLocked собирает Recording из журнала, передаёт её хранилищу и
// возвращает автомат в Idle. Вызывается под r.mu.
func (r *Recorder) finalizeLocked() {
	duration := uint64(r.now().Sub(r.startWall).Milliseconds())
	rec := &Recording{
		StartTimeMillis: uint64(r.startWall.UnixMilli()),
		DurationMillis:  duration,
		Packets:         r.packets,
	}
	r.packets = nil
	r.pending = rec
	_ = r.machine.EndRecording()

	logging.Info("⏹ Сессия завершена: %d пакетов, %dms", len(rec.Packets), duration)
	r.savePendingLocked()
}

// savePendingLocked пытается сохранить финализированную запись.
// При ошибке IO запись остаётся в pending: состояние в памяти не
// повреждается, вызывающая сторона может повторить через Flush.
func (r *Recorder) savePendingLocked() {
	if r.pending == nil || r.saver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.saveTimeout)
	defer cancel()

	id, err := r.saver.Save(ctx, r.pending)
	if err != nil {
		metricSaveFailures.Inc()
		logging.Error("Ошибка сохранения записи: %v", err)
		eventbus.PublishLifecycle("recorder", eventbus.EventCaptureFailed, "", map[string]string{
			"error": err.Error(),
		})
		return
	}

	metricSessionsSaved.Inc()
	logging.Info("💾 Запись сохранена: %s (%d пакетов)", id, len(r.pending.Packets))
	eventbus.PublishLifecycle("recorder", eventbus.EventCaptureSaved, id, map[string]string{
		"packets":     strconv.Itoa(len(r.pending.Packets)),
		"duration_ms": strconv.FormatUint(r.pending.DurationMillis, 10),
	})
	r.pending = nil
}

// Flush повторяет сохранение записи, оставшейся после ошибки IO.
// Возвращает идентификатор сохранённой записи; пустая строка означает, что
// несохранённых записей не было.
func (r *Recorder) Flush(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return "", nil
	}
	if r.saver == nil {
		return "", fmt.Errorf("хранилище записей не сконфигурировано")
	}

	id, err := r.saver.Save(ctx, r.pending)
	if err != nil {
		metricSaveFailures.Inc()
		return "", fmt.Errorf("повторное сохранение записи: %w", err)
	}

	metricSessionsSaved.Inc()
	logging.Info("💾 Запись сохранена после повтора: %s", id)
	r.pending = nil
	return id, nil
}

// PendingPackets возвращает размер текущего журнала захвата.
func (r *Recorder) PendingPackets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

// HasUnsaved сообщает, осталась ли несохранённая финализированная запись.
func (r *Recorder) HasUnsaved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}
