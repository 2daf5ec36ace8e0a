package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/netreplay/internal/auth"
	"github.com/annel0/netreplay/internal/config"
	"github.com/annel0/netreplay/internal/logging"
	"github.com/annel0/netreplay/internal/middleware"
	"github.com/annel0/netreplay/internal/replay"
	"github.com/annel0/netreplay/internal/session"
	"github.com/annel0/netreplay/internal/store"
)

// RestServer — поверхность управления движком записи/воспроизведения:
// запуск/остановка/пауза/пропуск реплея, листинг и поиск по записям,
// статусные запросы.
type RestServer struct {
	router   *gin.Engine
	machine  *session.Machine
	recorder *replay.Recorder
	player   *replay.Player
	store    store.RecordingStore
	authCfg  config.AuthConfig
	port     string
	metrics  *ServerMetrics
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string // порт для запуска сервера, например ":8090"
	Machine  *session.Machine
	Recorder *replay.Recorder
	Player   *replay.Player
	Store    store.RecordingStore
	Auth     config.AuthConfig
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8090"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("replay_api"))

	promMw := middleware.NewPrometheusMiddleware("replay_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:   router,
		machine:  cfg.Machine,
		recorder: cfg.Recorder,
		player:   cfg.Player,
		store:    cfg.Store,
		authCfg:  cfg.Auth,
		port:     cfg.Port,
		metrics:  NewServerMetrics(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", rs.handleLogin)
	}

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/status", rs.handleStatus)

		recordings := protected.Group("/recordings")
		{
			recordings.GET("", rs.handleListRecordings)
			recordings.GET("/:id", rs.handleGetRecording)
			recordings.DELETE("/:id", rs.handleDeleteRecording)
			recordings.GET("/:id/summary", rs.handleRecordingSummary)
		}

		playback := protected.Group("/playback")
		{
			playback.POST("/:id/start", rs.handleStartPlayback)
			playback.POST("/stop", rs.handleStopPlayback)
			playback.POST("/toggle", rs.handleTogglePlayback)
			playback.POST("/skip", rs.handleSkipAhead)
		}

		capture := protected.Group("/capture")
		{
			capture.POST("/stop", rs.handleStopCapture)
			capture.POST("/flush", rs.handleFlushCapture)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// jwtMiddleware проверяет Bearer-токен оператора.
// Если оператор не сконфигурирован, защита отключена (режим разработки).
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.authCfg.Operator == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Требуется токен авторизации",
			})
			return
		}

		operator, valid := auth.ValidateJWT(strings.TrimPrefix(header, "Bearer "))
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set("operator", operator)
		c.Next()
	}
}

// handleLogin обрабатывает запрос на вход оператора
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	if rs.authCfg.Operator == "" || req.Username != rs.authCfg.Operator ||
		!auth.CheckPassword(rs.authCfg.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}

	token, err := auth.GenerateJWT(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
	})
}

// handleStatus возвращает состояние движка и метрики процесса
func (rs *RestServer) handleStatus(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	status := map[string]interface{}{
		"state":               rs.machine.Current().String(),
		"is_recording":        rs.machine.IsRecording(),
		"is_playback_active":  rs.machine.IsPlaybackActive(),
		"is_playback_paused":  rs.machine.IsPlaybackPaused(),
		"playback_recording":  rs.player.RecordingID(),
		"playback_queue_len":  rs.player.QueueLen(),
		"capture_packets":     rs.recorder.PendingPackets(),
		"capture_has_unsaved": rs.recorder.HasUnsaved(),
		"server": map[string]interface{}{
			"uptime":      rs.metrics.GetUptime(),
			"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
			"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
			"server_time": time.Now().Unix(),
		},
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статус движка",
		Data:    status,
	})
}

// handleListRecordings возвращает метаданные всех сохранённых записей
func (rs *RestServer) handleListRecordings(c *gin.Context) {
	infos, err := rs.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения хранилища: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список записей",
		Data: map[string]interface{}{
			"recordings": infos,
			"total":      len(infos),
		},
	})
}

// handleGetRecording возвращает метаданные одной записи
func (rs *RestServer) handleGetRecording(c *gin.Context) {
	rec, ok := rs.loadRecording(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запись найдена",
		Data: store.RecordingInfo{
			ID:          c.Param("id"),
			StartTimeMs: rec.StartTimeMillis,
			DurationMs:  rec.DurationMillis,
			Packets:     len(rec.Packets),
		},
	})
}

// handleDeleteRecording удаляет запись из хранилища
func (rs *RestServer) handleDeleteRecording(c *gin.Context) {
	err := rs.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrRecordingNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Запись не найдена",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка удаления записи: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запись удалена",
	})
}

// handleRecordingSummary ищет первый пакет записи с указанным hex-префиксом
// полезной нагрузки. Поиск работает по загруженной записи и не трогает
// очередь воспроизведения.
func (rs *RestServer) handleRecordingSummary(c *gin.Context) {
	prefixHex := c.Query("prefix")
	if prefixHex == "" {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Параметр prefix обязателен (hex)",
		})
		return
	}

	prefix, err := hex.DecodeString(prefixHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный hex в параметре prefix",
		})
		return
	}

	rec, ok := rs.loadRecording(c)
	if !ok {
		return
	}

	payload, err := replay.FindFirst(rec, func(p []byte) bool {
		return bytes.HasPrefix(p, prefix)
	})
	if errors.Is(err, replay.ErrNoMatch) {
		// Отсутствие совпадения — нормальный отрицательный результат
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Подходящий пакет не найден",
			Data:    map[string]interface{}{"found": false},
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Пакет найден",
		Data: map[string]interface{}{
			"found":       true,
			"payload_hex": hex.EncodeToString(payload),
			"size":        len(payload),
		},
	})
}

// handleStartPlayback загружает запись и запускает воспроизведение
func (rs *RestServer) handleStartPlayback(c *gin.Context) {
	id := c.Param("id")

	rec, err := rs.store.Load(c.Request.Context(), id)
	if !rs.reportLoadError(c, err) {
		return
	}

	if err := rs.player.StartPlayback(id, rec); err != nil {
		// Запуск при активной записи или воспроизведении — безопасный отказ
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: "Воспроизведение не запущено: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Воспроизведение запущено",
		Data:    map[string]interface{}{"recording_id": id, "packets": len(rec.Packets)},
	})
}

// handleStopPlayback останавливает воспроизведение (идемпотентно)
func (rs *RestServer) handleStopPlayback(c *gin.Context) {
	rs.player.StopPlayback()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Воспроизведение остановлено",
	})
}

// handleTogglePlayback переключает паузу воспроизведения
func (rs *RestServer) handleTogglePlayback(c *gin.Context) {
	st, err := rs.player.TogglePlayback()
	if err != nil {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Пауза переключена",
		Data:    map[string]interface{}{"state": st.String()},
	})
}

// handleSkipAhead схлопывает ожидание перед следующим пакетом
func (rs *RestServer) handleSkipAhead(c *gin.Context) {
	if err := rs.player.SkipAhead(); err != nil {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Ожидание пропущено",
	})
}

// handleStopCapture явно завершает текущую сессию записи
func (rs *RestServer) handleStopCapture(c *gin.Context) {
	rs.recorder.StopCapture()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запись остановлена",
	})
}

// handleFlushCapture повторяет сохранение несохранённой записи
func (rs *RestServer) handleFlushCapture(c *gin.Context) {
	id, err := rs.recorder.Flush(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	if id == "" {
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Несохранённых записей нет",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Запись сохранена",
		Data:    map[string]interface{}{"recording_id": id},
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  rs.machine.Current().String(),
		"time":   time.Now().Unix(),
	})
}

// loadRecording загружает запись по :id и пишет ошибку в ответ при неудаче.
func (rs *RestServer) loadRecording(c *gin.Context) (*replay.Recording, bool) {
	rec, err := rs.store.Load(c.Request.Context(), c.Param("id"))
	if !rs.reportLoadError(c, err) {
		return nil, false
	}
	return rec, true
}

// reportLoadError транслирует ошибки загрузки в HTTP статусы.
// Возвращает true, если ошибки нет.
func (rs *RestServer) reportLoadError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrRecordingNotFound):
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Запись не найдена",
		})
	case errors.Is(err, store.ErrMalformedRecording):
		c.JSON(http.StatusUnprocessableEntity, GenericResponse{
			Success: false,
			Message: "Повреждённая запись: " + err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения хранилища: " + err.Error(),
		})
	}
	return false
}

// Start запускает REST сервер (блокирующий вызов)
func (rs *RestServer) Start() error {
	logging.Info("🌐 REST API запущен на %s", rs.port)
	return rs.router.Run(rs.port)
}

// Router возвращает *gin.Engine (для тестов через httptest)
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}

// Stop останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	// graceful shutdown делегируется процессу
	return nil
}
