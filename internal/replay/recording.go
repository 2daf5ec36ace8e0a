package replay

import "errors"

// Packet — одно захваченное сообщение.
// DelayMillis отсчитывается от начала записи, а не от предыдущего пакета:
// это определяет алгоритм планирования в Player.
type Packet struct {
	DelayMillis uint64 // миллисекунды от старта записи до получения сообщения
	Payload     []byte // сырые байты сообщения, непрозрачные для движка
}

// Recording — одна завершённая или загруженная сессия.
// Порядок Packets семантически значим: это порядок воспроизведения,
// он сохраняется байт-в-байт через сериализацию.
type Recording struct {
	StartTimeMillis uint64   // wall-clock старт записи (для имени файла и provenance)
	DurationMillis  uint64   // полная длительность исходного захвата
	Packets         []Packet // порядок вставки == порядок воспроизведения
}

// Predicate проверяет полезную нагрузку пакета.
// Предикаты считаются чистыми функциями над байтами и не могут ошибаться.
type Predicate func(payload []byte) bool

// ErrNoMatch — нормальный отрицательный результат поиска, не ошибка обработки.
var ErrNoMatch = errors.New("подходящий пакет не найден")

// FindFirst сканирует запись один раз по порядку и возвращает полезную
// нагрузку первого пакета, удовлетворяющего предикату. Работает только
// по загруженной Recording и не трогает живую очередь воспроизведения.
func FindFirst(rec *Recording, pred Predicate) ([]byte, error) {
	if rec == nil || pred == nil {
		return nil, ErrNoMatch
	}
	for _, pkt := range rec.Packets {
		if pred(pkt.Payload) {
			out := make([]byte, len(pkt.Payload))
			copy(out, pkt.Payload)
			return out, nil
		}
	}
	return nil, ErrNoMatch
}
