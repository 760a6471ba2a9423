package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	drepo "SignalBoard/internal/domain/repository"
	"SignalBoard/internal/feed"
	applogger "SignalBoard/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected    = errors.New("stream not connected")
	ErrSendUnsupported = errors.New("channel does not accept outbound messages")
	ErrNoToken         = errors.New("authentication token missing")
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectDelay       = 3 * time.Second
	defaultPingInterval         = 30 * time.Second
)

// Option configures a Connection.
type Option func(*Connection)

// WithDialer replaces the gorilla dialer.
func WithDialer(d Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(clock Clock) Option {
	return func(c *Connection) { c.clock = clock }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(c *Connection) { c.maxAttempts = n }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Connection) { c.reconnectDelay = d }
}

// WithPingInterval sets the keepalive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *Connection) { c.pingInterval = d }
}

// WithObserver receives every classified event after dispatch, on the reader goroutine.
func WithObserver(fn func(Channel, feed.Event)) Option {
	return func(c *Connection) { c.observer = fn }
}

// Status is a point-in-time view of a Connection.
type Status struct {
	Channel    Channel `json:"channel"`
	State      State   `json:"state"`
	Attempts   int     `json:"reconnect_attempts"`
	AuthFailed bool    `json:"auth_required"`
	LastError  string  `json:"last_error,omitempty"`
}

// Connection owns the socket of one channel and its reconnect policy.
// Callbacks run on the socket's reader goroutine, in arrival order, never
// while the connection lock is held.
type Connection struct {
	channel        Channel
	baseURL        string
	tokens         drepo.TokenSource
	dialer         Dialer
	clock          Clock
	logger         *applogger.Logger
	metrics        drepo.Metrics
	observer       func(Channel, feed.Event)
	maxAttempts    int
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu              sync.Mutex
	state           State
	sock            *attempt
	callbacks       feed.Callbacks
	attempts        int
	shouldReconnect bool
	timer           Timer
	timerSeq        uint64
	authFailed      bool
	lastErr         string
}

// attempt is one dial and, if it succeeds, its socket. Identity tells a live
// attempt from a superseded one.
type attempt struct {
	ctx     context.Context
	cancel  context.CancelFunc
	conn    Socket
	writeMu sync.Mutex
	once    sync.Once
}

func newAttempt() *attempt {
	ctx, cancel := context.WithCancel(context.Background())
	return &attempt{ctx: ctx, cancel: cancel}
}

// close tears the attempt down once; graceful sends a normal close frame first.
func (a *attempt) close(graceful bool) {
	a.once.Do(func() {
		a.cancel()
		if a.conn == nil {
			return
		}
		if graceful {
			a.writeMu.Lock()
			_ = a.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			a.writeMu.Unlock()
		}
		_ = a.conn.Close()
	})
}

// New creates a Connection for one channel. Nothing is dialed until Connect.
func New(ch Channel, baseURL string, tokens drepo.TokenSource, opts ...Option) *Connection {
	c := &Connection{
		channel:        ch,
		baseURL:        baseURL,
		tokens:         tokens,
		dialer:         WebsocketDialer{},
		clock:          systemClock{},
		maxAttempts:    defaultMaxReconnectAttempts,
		reconnectDelay: defaultReconnectDelay,
		pingInterval:   defaultPingInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = applogger.NewNop()
	}
	c.logger = c.logger.With(applogger.String("channel", string(ch)))
	return c
}

// Channel returns the channel this connection serves.
func (c *Connection) Channel() Channel { return c.channel }

// Connect registers callbacks and opens the socket. While a socket is already
// open or connecting the callbacks are merged and nothing is dialed. Failures
// are reported through OnError only. A caller-initiated Connect starts a fresh
// reconnect budget.
func (c *Connection) Connect(cb feed.Callbacks) {
	c.connect(cb, true)
}

func (c *Connection) connect(cb feed.Callbacks, fresh bool) {
	c.mu.Lock()
	c.callbacks = c.callbacks.Merge(cb)
	if c.sock != nil && (c.state == StateOpen || c.state == StateConnecting) {
		c.mu.Unlock()
		return
	}
	if fresh {
		c.attempts = 0
	}

	token, ok := c.token()
	if !ok {
		c.authFailed = true
		c.lastErr = ErrNoToken.Error()
		onError := c.callbacks.OnError
		c.mu.Unlock()

		c.logger.Warn("connect skipped: no token")
		c.recordError("no_token")
		if onError != nil {
			onError(ErrNoToken.Error())
		}
		return
	}

	c.stopTimerLocked()
	c.shouldReconnect = true
	c.authFailed = false
	a := newAttempt()
	c.sock = a
	c.setStateLocked(StateConnecting)
	endpoint := BuildURL(c.baseURL, c.channel, token)
	c.mu.Unlock()

	go c.run(a, endpoint)
}

// UpdateCallbacks merges cb into the registered callbacks.
func (c *Connection) UpdateCallbacks(cb feed.Callbacks) {
	c.mu.Lock()
	c.callbacks = c.callbacks.Merge(cb)
	c.mu.Unlock()
}

// Disconnect closes the socket, cancels any pending reconnect and clears the
// callbacks. It is safe to call in any state.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	c.stopTimerLocked()
	c.callbacks = feed.Callbacks{}

	a := c.sock
	c.sock = nil
	if a == nil {
		if c.state != StateIdle {
			c.setStateLocked(StateClosed)
		}
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	// The close frame can block on a stalled peer; it is written unlocked.
	a.close(true)

	c.mu.Lock()
	if c.sock == nil && c.state == StateClosing {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()
	c.logger.Info("disconnected")
}

// Send writes msg on the account channel. []byte and json.RawMessage are sent
// as-is, anything else is JSON encoded.
func (c *Connection) Send(msg interface{}) error {
	if c.channel != ChannelAccount {
		return ErrSendUnsupported
	}

	c.mu.Lock()
	a := c.sock
	var conn Socket
	if a != nil && c.state == StateOpen {
		conn = a.conn
	}
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	var payload []byte
	switch v := msg.(type) {
	case []byte:
		payload = v
	case json.RawMessage:
		payload = v
	case string:
		payload = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		payload = b
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

func (c *Connection) IsConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnecting
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts is the number of reconnects scheduled since the last successful open.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Channel:    c.channel,
		State:      c.state,
		Attempts:   c.attempts,
		AuthFailed: c.authFailed,
		LastError:  c.lastErr,
	}
}

func (c *Connection) run(a *attempt, endpoint string) {
	start := time.Now()
	conn, err := c.dialer.Dial(a.ctx, endpoint)
	if err != nil {
		c.handleClose(a, closeCode(err), err)
		return
	}
	if !c.handleOpen(a, conn) {
		_ = conn.Close()
		return
	}
	if c.metrics != nil {
		c.metrics.RecordLatency("ws_dial", time.Since(start).Seconds())
	}

	if c.pingInterval > 0 {
		go c.keepalive(a, conn)
	}
	c.readLoop(a, conn)
}

// handleOpen promotes a dialed socket. It reports false when the attempt was
// superseded, in which case the caller closes the socket.
func (c *Connection) handleOpen(a *attempt, conn Socket) bool {
	c.mu.Lock()
	if c.sock != a || !c.shouldReconnect {
		c.mu.Unlock()
		c.logger.Debug("stale socket opened, closing")
		return false
	}
	a.conn = conn
	c.attempts = 0
	c.lastErr = ""
	c.setStateLocked(StateOpen)
	onConnect := c.callbacks.OnConnect
	c.mu.Unlock()

	c.logger.Info("connected", applogger.String("url", redact(BuildURL(c.baseURL, c.channel, ""))))
	if onConnect != nil {
		onConnect()
	}
	return true
}

func (c *Connection) readLoop(a *attempt, conn Socket) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(a, closeCode(err), err)
			return
		}
		c.handleFrame(a, data)
	}
}

func (c *Connection) handleFrame(a *attempt, data []byte) {
	c.mu.Lock()
	if c.sock != a {
		c.mu.Unlock()
		return
	}
	cb := c.callbacks
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordFrame(string(c.channel))
	}

	ev, err := feed.Classify(data)
	if err != nil {
		c.logger.Warn("frame dropped", applogger.Error(err), applogger.Int("bytes", len(data)))
		c.recordError("malformed_frame")
		return
	}
	if feed.Dispatch(ev, cb, c.logger) && c.metrics != nil {
		c.metrics.RecordEvent(string(c.channel), ev.Kind.String())
	}
	if c.observer != nil {
		c.observer(c.channel, ev)
	}
}

// handleClose applies the reconnect policy to a closed or failed attempt.
func (c *Connection) handleClose(a *attempt, code int, cause error) {
	c.mu.Lock()
	if c.sock != a {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	a.close(false)
	c.setStateLocked(StateClosed)
	cb := c.callbacks

	var msg string
	switch {
	case code == CloseAuthRejected:
		c.shouldReconnect = false
		c.authFailed = true
		msg = "authentication rejected, please log in again"
	case c.shouldReconnect && c.attempts < c.maxAttempts:
		c.attempts++
		c.timerSeq++
		seq := c.timerSeq
		c.timer = c.clock.AfterFunc(c.reconnectDelay, func() { c.reconnect(seq) })
		msg = fmt.Sprintf("connection lost (code %d), reconnecting %d/%d", code, c.attempts, c.maxAttempts)
	case c.shouldReconnect:
		c.shouldReconnect = false
		msg = "max reconnect attempts reached"
	default:
		msg = fmt.Sprintf("connection closed (code %d)", code)
	}
	c.lastErr = msg
	attempts := c.attempts
	c.mu.Unlock()

	c.logger.Warn("socket closed",
		applogger.Int("code", code),
		applogger.Int("attempts", attempts),
		applogger.Error(cause),
	)
	c.recordError(fmt.Sprintf("close_%d", code))

	if cb.OnDisconnect != nil {
		cb.OnDisconnect()
	}
	if cb.OnError != nil {
		cb.OnError(msg)
	}
}

// reconnect fires from the reconnect timer.
func (c *Connection) reconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || !c.shouldReconnect || c.sock != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	if _, ok := c.token(); !ok {
		c.shouldReconnect = false
		c.authFailed = true
		c.lastErr = "authentication token missing, reconnect aborted"
		onError := c.callbacks.OnError
		c.mu.Unlock()

		c.logger.Warn("reconnect aborted: no token")
		c.recordError("no_token")
		if onError != nil {
			onError("authentication token missing, reconnect aborted")
		}
		return
	}
	cb := c.callbacks
	attempts := c.attempts
	c.mu.Unlock()

	c.logger.Info("reconnecting", applogger.Int("attempt", attempts))
	if c.metrics != nil {
		c.metrics.RecordReconnect(string(c.channel))
	}
	c.connect(cb, false)
}

func (c *Connection) keepalive(a *attempt, conn Socket) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			a.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", applogger.Error(err))
				return
			}
		}
	}
}

func (c *Connection) token() (string, bool) {
	if c.tokens == nil {
		return "", false
	}
	t, ok := c.tokens.Token()
	return t, ok && t != ""
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Connection) setStateLocked(s State) {
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordConnState(string(c.channel), int(s))
	}
}

func (c *Connection) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}
