package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// CloseAuthRejected is the close code the backend uses for a rejected token.
const CloseAuthRejected = websocket.ClosePolicyViolation

// Socket is the subset of *websocket.Conn a Connection needs.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens sockets. Dial must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Clock schedules reconnects.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	WriteWait        time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		// A handshake refused with 401/403 is the same auth rejection as a 1008 close.
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial %s: %w", redact(endpoint), &websocket.CloseError{Code: CloseAuthRejected, Text: resp.Status})
		}
		return nil, fmt.Errorf("dial %s: %w", redact(endpoint), err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	wait := d.WriteWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &gorillaSocket{conn: conn, writeWait: wait}, nil
}

type gorillaSocket struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (s *gorillaSocket) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *gorillaSocket) WriteMessage(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *gorillaSocket) Close() error {
	return s.conn.Close()
}

// closeCode extracts the websocket close code, 1006 when the peer vanished
// without a close frame.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
