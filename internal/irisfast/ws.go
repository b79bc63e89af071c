package irisfast

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var errNotConnected = errors.New("ws not connected")

const (
	wsDialTimeout   = 10 * time.Second
	wsPingTimeout   = 3 * time.Second
	wsPingFailLimit = 2
)

// WebSocket receives chat events from iris and can carry replies back.
// A dropped connection is redialed up to the configured number of attempts.
type WebSocket struct {
	url       string
	attempts  int
	delay     time.Duration
	pingEvery time.Duration
	headers   HeaderProvider

	mu    sync.RWMutex
	conn  *websocket.Conn
	state WebSocketState

	writeMu sync.Mutex

	cbMu    sync.Mutex
	onMsg   registry[MessageCallback]
	onState registry[StateCallback]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ WSClient = (*WebSocket)(nil)

// NewWebSocket returns a disconnected client. A zero delay backs off
// exponentially between redials; otherwise the delay grows linearly.
func NewWebSocket(url string, attempts int, delay time.Duration) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		url:       url,
		attempts:  attempts,
		delay:     delay,
		pingEvery: 30 * time.Second,
		state:     WSStateDisconnected,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (ws *WebSocket) SetHeaderProvider(h HeaderProvider) { ws.headers = h }

func (ws *WebSocket) State() WebSocketState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

func (ws *WebSocket) Connected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state == WSStateConnected && ws.conn != nil
}

func (ws *WebSocket) OnMessage(cb MessageCallback) int {
	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	return ws.onMsg.add(cb)
}

func (ws *WebSocket) OnStateChange(cb StateCallback) int {
	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	return ws.onState.add(cb)
}

func (ws *WebSocket) RemoveStateCallback(id int) {
	ws.cbMu.Lock()
	defer ws.cbMu.Unlock()
	ws.onState.remove(id)
}

func (ws *WebSocket) Connect(ctx context.Context) error {
	if s := ws.State(); s == WSStateConnected || s == WSStateConnecting {
		return nil
	}
	ws.publish(WSStateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()
	if err := ws.dial(dialCtx); err != nil {
		ws.publish(WSStateFailed)
		ws.redial()
		return err
	}
	return nil
}

// WriteJSON sends one frame; writers are serialized.
func (ws *WebSocket) WriteJSON(ctx context.Context, v any) error {
	ws.mu.RLock()
	conn, state := ws.conn, ws.state
	ws.mu.RUnlock()
	if conn == nil || state != WSStateConnected {
		return errNotConnected
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return wsjson.Write(ctx, conn, v)
}

func (ws *WebSocket) Close(ctx context.Context) error {
	ws.cancel()
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		ws.publish(WSStateDisconnected)
	}

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ws *WebSocket) closed() bool { return ws.ctx.Err() != nil }

func (ws *WebSocket) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, ws.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.handshakeHeader(),
	})
	if err != nil {
		return err
	}
	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.publish(WSStateConnected)

	ws.wg.Add(2)
	go ws.readLoop(conn)
	go ws.keepalive(conn)
	return nil
}

func (ws *WebSocket) handshakeHeader() http.Header {
	h := http.Header{}
	if ws.headers == nil {
		return h
	}
	for k, v := range ws.headers() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			h.Set(k, v)
		}
	}
	return h
}

func (ws *WebSocket) readLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(ws.ctx, conn, &msg); err != nil {
			if !ws.closed() {
				obslog.L().Warn("iris_ws_read_error", zap.Error(err))
				ws.lost(conn, "read error")
			}
			return
		}
		ws.cbMu.Lock()
		cbs := ws.onMsg.snapshot()
		ws.cbMu.Unlock()
		for _, cb := range cbs {
			cb(&msg)
		}
	}
}

func (ws *WebSocket) keepalive(conn *websocket.Conn) {
	defer ws.wg.Done()
	tick := time.NewTicker(ws.pingEvery)
	defer tick.Stop()

	misses := 0
	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-tick.C:
		}
		if !ws.isCurrent(conn) {
			return
		}
		ctx, cancel := context.WithTimeout(ws.ctx, wsPingTimeout)
		err := conn.Ping(ctx)
		cancel()
		if err == nil {
			misses = 0
			continue
		}
		if misses++; misses < wsPingFailLimit || ws.closed() {
			continue
		}
		obslog.L().Warn("iris_ws_ping_failed", zap.Int("misses", misses), zap.Error(err))
		ws.lost(conn, "ping timeout")
		return
	}
}

func (ws *WebSocket) isCurrent(conn *websocket.Conn) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.conn == conn
}

// lost tears down conn once; later callers for the same conn are no-ops.
func (ws *WebSocket) lost(conn *websocket.Conn, reason string) {
	ws.mu.Lock()
	if ws.conn != conn {
		ws.mu.Unlock()
		return
	}
	ws.conn = nil
	ws.mu.Unlock()

	_ = conn.Close(websocket.StatusGoingAway, reason)
	ws.publish(WSStateDisconnected)
	ws.redial()
}

func (ws *WebSocket) redial() {
	if ws.attempts <= 0 || ws.closed() {
		return
	}
	ws.publish(WSStateReconnecting)
	go func() {
		for n := 1; n <= ws.attempts; n++ {
			wait := backoffDuration(n)
			if ws.delay > 0 {
				wait = ws.delay * time.Duration(n)
			}
			if sleepWithContext(ws.ctx, wait) != nil {
				return
			}
			ctx, cancel := context.WithTimeout(ws.ctx, wsDialTimeout)
			err := ws.dial(ctx)
			cancel()
			if err == nil {
				obslog.L().Info("iris_ws_reconnected", zap.Int("attempt", n))
				return
			}
			obslog.L().Warn("iris_ws_reconnect_failed", zap.Int("attempt", n), zap.Error(err))
		}
		ws.publish(WSStateFailed)
	}()
}

func (ws *WebSocket) publish(s WebSocketState) {
	ws.mu.Lock()
	ws.state = s
	ws.mu.Unlock()
	obslog.L().Info("iris_ws_state", zap.String("state", string(s)))

	ws.cbMu.Lock()
	cbs := ws.onState.snapshot()
	ws.cbMu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}
