package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/netreplay/internal/api"
	"github.com/annel0/netreplay/internal/auth"
	"github.com/annel0/netreplay/internal/config"
	"github.com/annel0/netreplay/internal/eventbus"
	"github.com/annel0/netreplay/internal/logging"
	"github.com/annel0/netreplay/internal/network"
	"github.com/annel0/netreplay/internal/observability"
	"github.com/annel0/netreplay/internal/replay"
	"github.com/annel0/netreplay/internal/session"
	"github.com/annel0/netreplay/internal/store"
)

// Маркеры границ сессии в первом байте кадра. Шлюз ничего не знает о
// протоколе внутри кадров: классификация границ — инжектируемая забота,
// и эти маркеры — её дефолтная реализация для кадрированного транспорта.
const (
	markerSessionStart = 0x01
	markerSessionEnd   = 0x02
)

// boundaryClassifier — дефолтный граничный классификатор.
func boundaryClassifier(payload []byte) replay.Classification {
	if len(payload) == 0 {
		return replay.ClassNone
	}
	switch payload[0] {
	case markerSessionStart:
		return replay.ClassSessionStart
	case markerSessionEnd:
		return replay.ClassSessionEnd
	default:
		return replay.ClassNone
	}
}

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎬 Запуск netreplay: движок записи/воспроизведения сессий...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка чтения конфигурации: %v", err)
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{} // дефолты
	}

	if cfg.Auth.JWTSecret != "" {
		if err := auth.SetJWTSecret(cfg.Auth.JWTSecret); err != nil {
			logging.Error("❌ Неверный JWT секрет в конфигурации: %v", err)
			log.Fatalf("❌ Неверный JWT секрет в конфигурации: %v", err)
		}
	}

	ingestAddr := fmt.Sprintf(":%d", cfg.Server.GetIngestPort())
	restAddr := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	logging.Info("📡 Конфигурация: ingest=%s, REST API=%s, storage=%s",
		ingestAddr, restAddr, cfg.Storage.GetBackend())

	// === ТЕЛЕМЕТРИЯ ===
	ctx := context.Background()
	telemetryShutdown, err := observability.InitTelemetry(ctx, "netreplay")
	if err != nil {
		logging.Warn("OpenTelemetry недоступен: %v", err)
		telemetryShutdown = func(context.Context) error { return nil }
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		jsBus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			logging.Error("❌ Ошибка подключения к NATS: %v", err)
			log.Fatalf("❌ Ошибка подключения к NATS: %v", err)
		}
		defer jsBus.Close()
		bus = jsBus
		logging.Info("📨 Шина событий: NATS JetStream (%s)", cfg.EventBus.URL)
	} else {
		bus = eventbus.NewMemoryBus(1024)
		logging.Info("📨 Шина событий: in-memory")
	}
	eventbus.Init(bus)

	// === ХРАНИЛИЩЕ ЗАПИСЕЙ ===
	recStore, err := store.NewFromConfig(&cfg.Storage)
	if err != nil {
		logging.Error("❌ Ошибка создания хранилища: %v", err)
		log.Fatalf("❌ Ошибка создания хранилища: %v", err)
	}
	defer recStore.Close()

	// === ЯДРО ДВИЖКА ===
	// Единственный разделяемый автомат состояний: запись и воспроизведение
	// взаимоисключающие, исходящий трафик гейтится им же.
	machine := session.NewMachine()

	recorder := replay.NewRecorder(machine, boundaryClassifier, recStore, replay.RecorderOptions{
		ExcludeBoundary: cfg.Capture.ExcludeBoundary,
	})

	// Sink подключается к шлюзу ниже; на момент создания плеера шлюза ещё нет.
	var gateway *network.FrameGateway
	player := replay.NewPlayer(machine, func(payload []byte) {
		gateway.Broadcast(payload)
	})

	gateway, err = network.NewFrameGateway(ingestAddr, machine, recorder.OnInboundMessage)
	if err != nil {
		logging.Error("❌ Ошибка запуска шлюза трафика: %v", err)
		log.Fatalf("❌ Ошибка запуска шлюза трафика: %v", err)
	}

	tickInterval := time.Duration(cfg.Playback.GetTickIntervalMs()) * time.Millisecond
	driver := replay.NewTickDriver(player, machine, tickInterval)

	gateway.Start()
	driver.Start()

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Port:     restAddr,
		Machine:  machine,
		Recorder: recorder,
		Player:   player,
		Store:    recStore,
		Auth:     cfg.Auth,
	})

	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
			os.Exit(1)
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🎛 Живой трафик: TCP %s (кадры uint32-BE length prefix)", ingestAddr)
	logging.Info("   🌐 REST API: http://localhost%s", restAddr)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restAddr)

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("⏳ Завершение работы...")

	driver.Stop()
	gateway.Stop()
	player.StopPlayback()
	recorder.StopCapture()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logging.Warn("Ошибка завершения телеметрии: %v", err)
	}

	logging.Info("👋 Сервер остановлен")
}
