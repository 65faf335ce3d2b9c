package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
)

const (
	wsWriteWait = 1 * time.Second
	// Close frame payloads are limited to 125 bytes including the 2 byte code.
	maxCloseReasonBytes = 123
)

// wsConn is the peer.Channel for one WebSocket. Frames are queued and written
// by a single writer goroutine, which also sends keepalive pings and the
// final close frame.
type wsConn struct {
	conn         *websocket.Conn
	metrics      *metrics.Metrics
	pingInterval time.Duration

	out        chan string
	done       chan struct{}
	writerDone chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newWSConn(conn *websocket.Conn, queueLen int, pingInterval time.Duration, m *metrics.Metrics) *wsConn {
	if queueLen <= 0 {
		queueLen = 1
	}
	return &wsConn{
		conn:         conn,
		metrics:      m,
		pingInterval: pingInterval,
		out:          make(chan string, queueLen),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
}

// Send queues frame without blocking. A peer that cannot keep up is
// disconnected.
func (c *wsConn) Send(frame string) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- frame:
	default:
		c.metrics.Inc(metrics.SendQueueOverflow)
		c.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
	}
}

func (c *wsConn) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith records the close code for the writer. Only the first call wins.
func (c *wsConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		if len(reason) > maxCloseReasonBytes {
			reason = reason[:maxCloseReasonBytes]
		}
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	defer c.conn.Close()

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame := <-c.out:
			if err := c.write(frame); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			// closeCode is written before done is closed.
			if c.closeCode != websocket.CloseAbnormalClosure {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeReason),
					time.Now().Add(wsWriteWait),
				)
			}
			return
		}
	}
}

// flush writes whatever is still queued, so that frames sent just before a
// close (for example the notices preceding a rejection) are not lost.
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.out:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(frame string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}
