package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var globalBus EventBus

// Init устанавливает глобальную шину.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину, если она инициализирована.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}

// PublishLifecycle собирает Envelope для события жизненного цикла и
// публикует его в глобальную шину. Ошибки публикации не прерывают
// вызывающую операцию.
func PublishLifecycle(source, eventType, recordingID string, meta map[string]string) {
	_ = Publish(context.Background(), &Envelope{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Source:      source,
		EventType:   eventType,
		RecordingID: recordingID,
		Metadata:    meta,
	})
}
