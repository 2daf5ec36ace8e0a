package network

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/netreplay/internal/session"
)

// inboundCollector накапливает принятые шлюзом кадры
type inboundCollector struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *inboundCollector) handle(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.mu.Lock()
	c.payloads = append(c.payloads, cp)
	c.mu.Unlock()
}

func (c *inboundCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func startGateway(t *testing.T, machine *session.Machine, onInbound InboundHandler) *FrameGateway {
	t.Helper()

	g, err := NewFrameGateway("127.0.0.1:0", machine, onInbound)
	require.NoError(t, err)
	g.Start()
	t.Cleanup(g.Stop)
	return g
}

// TestGatewayInbound проверяет приём кадрированного живого трафика
func TestGatewayInbound(t *testing.T) {
	machine := session.NewMachine()
	collector := &inboundCollector{}
	g := startGateway(t, machine, collector.handle)

	conn, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, []byte("первый")))
	require.NoError(t, WriteFrame(conn, []byte("второй")))

	require.Eventually(t, func() bool { return collector.count() == 2 },
		2*time.Second, 10*time.Millisecond, "оба кадра должны дойти до обработчика")

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, []byte("первый"), collector.payloads[0])
	assert.Equal(t, []byte("второй"), collector.payloads[1])
}

// TestGatewayBroadcast проверяет рассылку воспроизводимых пакетов клиентам
func TestGatewayBroadcast(t *testing.T) {
	machine := session.NewMachine()
	g := startGateway(t, machine, nil)

	conn, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return g.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	g.Broadcast([]byte("replayed"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, []byte("replayed"), payload)
}

// TestGatewaySuppressesOutboundDuringPlayback проверяет жёсткое подавление
// живого исходящего трафика во время воспроизведения
func TestGatewaySuppressesOutboundDuringPlayback(t *testing.T) {
	machine := session.NewMachine()
	g := startGateway(t, machine, nil)

	conn, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return g.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// В Idle отправка разрешена
	require.True(t, g.SendLive([]byte("live")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, []byte("live"), payload)

	// Во время воспроизведения — подавляется
	require.NoError(t, machine.BeginPlayback())
	assert.False(t, g.SendLive([]byte("must-not-send")))
	assert.Equal(t, uint64(1), g.SuppressedSends())

	// И на паузе тоже
	_, err = machine.TogglePlayback()
	require.NoError(t, err)
	assert.False(t, g.SendLive([]byte("still-suppressed")))
	assert.Equal(t, uint64(2), g.SuppressedSends())

	// После остановки воспроизведения отправка снова разрешена
	require.NoError(t, machine.EndPlayback())
	assert.True(t, g.SendLive([]byte("live again")))
}

// TestGatewayDropConnection проверяет учёт разрыва соединения
func TestGatewayDropConnection(t *testing.T) {
	machine := session.NewMachine()
	g := startGateway(t, machine, nil)

	conn, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return g.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return g.ConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond, "закрытое соединение должно сниматься с учёта")
}
