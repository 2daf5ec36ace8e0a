package session

import (
	"fmt"
	"sync"
)

// State описывает текущую фазу работы движка записи/воспроизведения.
// В каждый момент времени активна ровно одна фаза: запись и воспроизведение
// взаимоисключающие по построению.
type State int

const (
	// Idle — нет ни записи, ни воспроизведения
	Idle State = iota
	// Recording — идёт запись живой сессии
	Recording
	// PlaybackActive — идёт воспроизведение записи
	PlaybackActive
	// PlaybackPaused — воспроизведение приостановлено
	PlaybackPaused
)

// String возвращает строковое представление состояния
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case PlaybackActive:
		return "PlaybackActive"
	case PlaybackPaused:
		return "PlaybackPaused"
	default:
		return "Unknown"
	}
}

// ErrInvalidTransition сигнализирует о запросе операции в несовместимом
// состоянии. Это не фатальная ошибка: операция просто не выполняется,
// данные не теряются.
var ErrInvalidTransition = fmt.Errorf("недопустимый переход состояния")

// Machine — единственный разделяемый автомат состояний сессии.
// Все переходы сериализуются одним мьютексом, поэтому Idle→Recording и
// Idle→PlaybackActive атомарны относительно друг друга.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine создаёт автомат в состоянии Idle
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// Current возвращает текущее состояние
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRecording сообщает, идёт ли запись
func (m *Machine) IsRecording() bool {
	return m.Current() == Recording
}

// IsPlaybackActive сообщает, идёт ли активное воспроизведение
func (m *Machine) IsPlaybackActive() bool {
	return m.Current() == PlaybackActive
}

// IsPlaybackPaused сообщает, приостановлено ли воспроизведение
func (m *Machine) IsPlaybackPaused() bool {
	return m.Current() == PlaybackPaused
}

// InPlayback сообщает, находится ли автомат в любой фазе воспроизведения
func (m *Machine) InPlayback() bool {
	st := m.Current()
	return st == PlaybackActive || st == PlaybackPaused
}

// AllowOutbound сообщает сетевому слою, разрешена ли отправка исходящего
// трафика. Во время воспроизведения любая отправка подавляется — это
// жёсткий инвариант границы, а не соглашение.
func (m *Machine) AllowOutbound() bool {
	return !m.InPlayback()
}

// BeginRecording выполняет переход Idle → Recording
func (m *Machine) BeginRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return fmt.Errorf("%w: запись из состояния %s", ErrInvalidTransition, m.state)
	}
	m.state = Recording
	return nil
}

// EndRecording выполняет переход Recording → Idle.
// Вызов вне записи — безопасный no-op.
func (m *Machine) EndRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Recording {
		return nil
	}
	m.state = Idle
	return nil
}

// BeginPlayback выполняет переход Idle → PlaybackActive
func (m *Machine) BeginPlayback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return fmt.Errorf("%w: воспроизведение из состояния %s", ErrInvalidTransition, m.state)
	}
	m.state = PlaybackActive
	return nil
}

// TogglePlayback переключает PlaybackActive ⇄ PlaybackPaused и возвращает
// новое состояние
func (m *Machine) TogglePlayback() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case PlaybackActive:
		m.state = PlaybackPaused
	case PlaybackPaused:
		m.state = PlaybackActive
	default:
		return m.state, fmt.Errorf("%w: переключение паузы из состояния %s", ErrInvalidTransition, m.state)
	}
	return m.state, nil
}

// EndPlayback выполняет переход PlaybackActive|PlaybackPaused → Idle.
// Идемпотентен: вызов вне воспроизведения — безопасный no-op.
func (m *Machine) EndPlayback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != PlaybackActive && m.state != PlaybackPaused {
		return nil
	}
	m.state = Idle
	return nil
}
