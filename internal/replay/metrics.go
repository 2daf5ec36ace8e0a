package replay

import "github.com/prometheus/client_golang/prometheus"

// Метрики движка записи/воспроизведения.
//
// * replay_packets_recorded_total  — пакеты, добавленные в журнал захвата
// * replay_packets_delivered_total — пакеты, отданные sink'у при реплее
// * replay_sessions_saved_total    — успешно сохранённые записи
// * replay_save_failures_total     — ошибки сохранения записей
// * replay_playback_skips_total    — вызовы SkipAhead
// * replay_playback_queue_length   — текущая длина очереди воспроизведения
var (
	metricPacketsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_packets_recorded_total",
		Help: "Пакеты, добавленные в журнал захвата.",
	})
	metricPacketsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_packets_delivered_total",
		Help: "Пакеты, доставленные sink'у при воспроизведении.",
	})
	metricSessionsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_sessions_saved_total",
		Help: "Успешно сохранённые записи сессий.",
	})
	metricSaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_save_failures_total",
		Help: "Ошибки сохранения записей.",
	})
	metricPlaybackSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replay_playback_skips_total",
		Help: "Операции пропуска ожидания (SkipAhead).",
	})
	metricQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replay_playback_queue_length",
		Help: "Текущая длина очереди воспроизведения.",
	})
)

func init() {
	prometheus.MustRegister(
		metricPacketsRecorded,
		metricPacketsDelivered,
		metricSessionsSaved,
		metricSaveFailures,
		metricPlaybackSkips,
		metricQueueLength,
	)
}
