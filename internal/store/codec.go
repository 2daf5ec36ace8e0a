package store

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/netreplay/internal/replay"
)

// FormatVersion — версия сериализованной формы записи.
// Контейнер самоописывающийся: неизвестные поля верхнего уровня при загрузке
// игнорируются, что позволяет формату эволюционировать вперёд.
const FormatVersion = 1

// packetDoc — один пакет в сериализованной форме. Полезная нагрузка хранится
// текстово (base64 внутри JSON): читаемость контейнера дороже плотности.
type packetDoc struct {
	DelayMs uint64 `json:"delay_ms" bson:"delay_ms"`
	Payload []byte `json:"payload" bson:"payload"`
}

// recordingDoc — сериализованная форма записи. Packets — указатель, чтобы
// отличать отсутствующее поле (повреждённая запись) от пустой легальной
// последовательности.
type recordingDoc struct {
	FormatVersion int          `json:"format_version" bson:"format_version"`
	RecordingID   string       `json:"recording_id" bson:"recording_id"`
	StartTimeMs   uint64       `json:"start_time_ms" bson:"start_time_ms"`
	DurationMs    uint64       `json:"duration_ms" bson:"duration_ms"`
	Packets       *[]packetDoc `json:"packets" bson:"packets"`
}

// RecordingID выводит детерминированный идентификатор записи из времени
// старта. Две сессии, начавшиеся в одну миллисекунду, получат один ID —
// документированное принятое ограничение.
func RecordingID(startTimeMillis uint64) string {
	return fmt.Sprintf("rec_%d", startTimeMillis)
}

// docFromRecording собирает сериализуемый документ из записи.
func docFromRecording(id string, rec *replay.Recording) recordingDoc {
	packets := make([]packetDoc, len(rec.Packets))
	for i, pkt := range rec.Packets {
		packets[i] = packetDoc{DelayMs: pkt.DelayMillis, Payload: pkt.Payload}
	}
	return recordingDoc{
		FormatVersion: FormatVersion,
		RecordingID:   id,
		StartTimeMs:   rec.StartTimeMillis,
		DurationMs:    rec.DurationMillis,
		Packets:       &packets,
	}
}

// recordingFromDoc валидирует документ и восстанавливает запись.
// Отсутствующее поле packets — ErrMalformedRecording; пустой список легален
// (воспроизведение нулевой длины разрешено).
func recordingFromDoc(doc *recordingDoc) (*replay.Recording, error) {
	if doc.Packets == nil {
		return nil, ErrMalformedRecording
	}

	packets := make([]replay.Packet, len(*doc.Packets))
	for i, pd := range *doc.Packets {
		packets[i] = replay.Packet{DelayMillis: pd.DelayMs, Payload: pd.Payload}
	}
	return &replay.Recording{
		StartTimeMillis: doc.StartTimeMs,
		DurationMillis:  doc.DurationMs,
		Packets:         packets,
	}, nil
}

// encodeRecording сериализует запись в JSON документ.
func encodeRecording(id string, rec *replay.Recording) ([]byte, error) {
	doc := docFromRecording(id, rec)
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации записи %s: %w", id, err)
	}
	return data, nil
}

// decodeRecording десериализует JSON документ и валидирует его.
func decodeRecording(data []byte) (*replay.Recording, error) {
	var doc recordingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecording, err)
	}
	return recordingFromDoc(&doc)
}

// infoFromDoc собирает метаданные записи без копирования пакетов.
func infoFromDoc(doc *recordingDoc) RecordingInfo {
	info := RecordingInfo{
		ID:          doc.RecordingID,
		StartTimeMs: doc.StartTimeMs,
		DurationMs:  doc.DurationMs,
	}
	if doc.Packets != nil {
		info.Packets = len(*doc.Packets)
	}
	return info
}
