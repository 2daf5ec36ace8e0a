package network

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/annel0/netreplay/internal/logging"
	"github.com/annel0/netreplay/internal/session"
)

// InboundHandler получает каждый кадр живого трафика.
// Это единственная точка приёма движка: шлюз отдаёт сюда сырые байты.
type InboundHandler func(payload []byte)

// FrameGateway — TCP граница между движком и внешним миром. Принимает
// кадрированный живой трафик и передаёт его рекордеру; при воспроизведении
// служит sink'ом, рассылая пакеты подключённым клиентам в той же форме, что
// и живой трафик. Отправка живого исходящего трафика гейтится автоматом
// состояний: во время воспроизведения она подавляется.
type FrameGateway struct {
	listener  net.Listener
	machine   *session.Machine
	onInbound InboundHandler

	connections map[uint64]*gatewayConn
	nextConnID  uint64
	mu          sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	suppressed uint64 // подавленные исходящие отправки (под mu)
}

// gatewayConn — одно клиентское соединение.
type gatewayConn struct {
	id      uint64
	conn    net.Conn
	writeMu sync.Mutex
}

// NewFrameGateway открывает слушающий сокет на указанном адресе.
func NewFrameGateway(address string, machine *session.Machine, onInbound InboundHandler) (*FrameGateway, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FrameGateway{
		listener:    listener,
		machine:     machine,
		onInbound:   onInbound,
		connections: make(map[uint64]*gatewayConn),
		nextConnID:  1,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start запускает цикл приёма соединений.
func (g *FrameGateway) Start() {
	g.wg.Add(1)
	go g.acceptLoop()
	logging.Info("🌐 Шлюз трафика слушает %s", g.listener.Addr())
}

// Stop останавливает шлюз и закрывает все соединения.
func (g *FrameGateway) Stop() {
	g.cancel()
	g.listener.Close()

	g.mu.Lock()
	for _, gc := range g.connections {
		gc.conn.Close()
	}
	g.connections = make(map[uint64]*gatewayConn)
	g.mu.Unlock()

	g.wg.Wait()
}

// acceptLoop принимает новые соединения.
func (g *FrameGateway) acceptLoop() {
	defer g.wg.Done()

	for {
		conn, err := g.listener.Accept()
		if err != nil {
			select {
			case <-g.ctx.Done():
				return
			default:
				logging.Error("Ошибка принятия соединения: %v", err)
				continue
			}
		}

		g.mu.Lock()
		connID := g.nextConnID
		g.nextConnID++
		gc := &gatewayConn{id: connID, conn: conn}
		g.connections[connID] = gc
		g.mu.Unlock()

		logging.Debug("Новое соединение #%d от %s", connID, conn.RemoteAddr())

		g.wg.Add(1)
		go g.readLoop(gc)
	}
}

// readLoop читает кадры одного соединения и отдаёт их рекордеру.
func (g *FrameGateway) readLoop(gc *gatewayConn) {
	defer g.wg.Done()
	defer g.dropConnection(gc)

	connID := strconv.FormatUint(gc.id, 10)

	for {
		payload, err := ReadFrame(gc.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && g.ctx.Err() == nil {
				logging.Debug("Соединение #%d закрыто: %v", gc.id, err)
			}
			return
		}

		logging.LogPacket(connID, "IN", payload)
		if g.onInbound != nil {
			g.onInbound(payload)
		}
	}
}

func (g *FrameGateway) dropConnection(gc *gatewayConn) {
	gc.conn.Close()
	g.mu.Lock()
	delete(g.connections, gc.id)
	g.mu.Unlock()
}

// Broadcast рассылает пакет всем подключённым клиентам. Используется как
// sink воспроизведения: кадры неотличимы от живого трафика.
func (g *FrameGateway) Broadcast(payload []byte) {
	g.mu.RLock()
	conns := make([]*gatewayConn, 0, len(g.connections))
	for _, gc := range g.connections {
		conns = append(conns, gc)
	}
	g.mu.RUnlock()

	for _, gc := range conns {
		gc.writeMu.Lock()
		err := WriteFrame(gc.conn, payload)
		gc.writeMu.Unlock()
		if err != nil {
			logging.Debug("Ошибка отправки в соединение #%d: %v", gc.id, err)
		}
	}
}

// SendLive — исходящий путь живого трафика. Перед отправкой сверяется с
// автоматом состояний: во время воспроизведения отправка отбрасывается.
// Возвращает true, если пакет был отправлен.
func (g *FrameGateway) SendLive(payload []byte) bool {
	if !g.machine.AllowOutbound() {
		g.mu.Lock()
		g.suppressed++
		g.mu.Unlock()
		logging.Trace("Исходящая отправка подавлена: идёт воспроизведение")
		return false
	}

	g.Broadcast(payload)
	return true
}

// SuppressedSends возвращает число подавленных исходящих отправок.
func (g *FrameGateway) SuppressedSends() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.suppressed
}

// ConnectionCount возвращает число активных соединений.
func (g *FrameGateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Addr возвращает фактический адрес слушающего сокета.
func (g *FrameGateway) Addr() net.Addr {
	return g.listener.Addr()
}
