package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/feed"
	applogger "SignalBoard/pkg/logger"

	"github.com/gorilla/websocket"
)

const waitTimeout = 2 * time.Second

type fakeSocket struct {
	frames    chan []byte
	closeErr  chan error
	closed    chan struct{}
	once      sync.Once
	writeGate chan struct{} // when set, writes wait for it

	mu     sync.Mutex
	writes [][]byte
	types  []int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames:   make(chan []byte, 16),
		closeErr: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case f := <-s.frames:
		return websocket.TextMessage, f, nil
	case err := <-s.closeErr:
		return 0, nil, err
	case <-s.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	if s.writeGate != nil {
		<-s.writeGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, messageType)
	s.writes = append(s.writes, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failures  int           // number of leading dials that fail
	gate      chan struct{} // when set, Dial waits for it and ignores ctx
	writeGate chan struct{} // handed to every socket
	sockets   chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sockets: make(chan *fakeSocket, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	d.mu.Lock()
	d.dials++
	fail := d.dials <= d.failures
	gate := d.gate
	writeGate := d.writeGate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	s := newFakeSocket()
	s.writeGate = writeGate
	d.sockets <- s
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeTimer struct {
	clock   *fakeClock
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every pending timer, ignoring stopped ones.
func (c *fakeClock) fire() {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// fireAll runs every timer ever scheduled, stopped or not, to prove stale
// timers are inert.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	all := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range all {
		t.f()
	}
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
}

func (f *fakeTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) set(t string) {
	f.mu.Lock()
	f.token = t
	f.mu.Unlock()
}

type recorder struct {
	connected    chan struct{}
	disconnected chan struct{}
	errs         chan string
	signals      chan []models.ScanSignal
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan struct{}, 16),
		disconnected: make(chan struct{}, 16),
		errs:         make(chan string, 16),
		signals:      make(chan []models.ScanSignal, 16),
	}
}

func (r *recorder) callbacks() feed.Callbacks {
	return feed.Callbacks{
		OnConnect:    func() { r.connected <- struct{}{} },
		OnDisconnect: func() { r.disconnected <- struct{}{} },
		OnError:      func(msg string) { r.errs <- msg },
		OnSignals:    func(s []models.ScanSignal) { r.signals <- s },
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitError(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for error callback")
	}
	return ""
}

func waitSocket(t *testing.T, d *fakeDialer) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.sockets:
		return s
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for dial")
	}
	return nil
}

func newTestConnection(ch Channel, d *fakeDialer, clock *fakeClock, tokens *fakeTokens) *Connection {
	return New(ch, "https://bot.example.com/", tokens,
		WithDialer(d),
		WithClock(clock),
		WithPingInterval(0),
	)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base  string
		ch    Channel
		token string
		want  string
	}{
		{"https://bot.example.com/", ChannelAccount, "abc", "wss://bot.example.com/api/v1/futures/websocket/account?token=abc"},
		{"http://localhost:8000", ChannelSignal, "a/b=c", "ws://localhost:8000/api/v1/futures/websocket/client?token=a%2Fb%3Dc"},
		{"wss://already.example.com", ChannelSignal, "t", "wss://already.example.com/api/v1/futures/websocket/client?token=t"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.ch, tt.token); got != tt.want {
			t.Fatalf("BuildURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestConnectWithoutTokenStaysIdle(t *testing.T) {
	d := newFakeDialer()
	conn := newTestConnection(ChannelAccount, d, &fakeClock{}, &fakeTokens{})
	rec := newRecorder()

	conn.Connect(rec.callbacks())

	if msg := waitError(t, rec.errs); msg != ErrNoToken.Error() {
		t.Fatalf("unexpected error %q", msg)
	}
	if conn.State() != StateIdle {
		t.Fatalf("expected idle, got %s", conn.State())
	}
	if d.count() != 0 {
		t.Fatalf("no socket should be dialed")
	}
	if !conn.Status().AuthFailed {
		t.Fatalf("expected auth flag")
	}
}

func TestConnectTwiceMergesCallbacks(t *testing.T) {
	d := newFakeDialer()
	conn := newTestConnection(ChannelSignal, d, &fakeClock{}, &fakeTokens{token: "tok"})
	first := newRecorder()
	second := newRecorder()

	conn.Connect(feed.Callbacks{OnConnect: first.callbacks().OnConnect})
	conn.Connect(feed.Callbacks{OnSignals: second.callbacks().OnSignals})

	sock := waitSocket(t, d)
	waitSignal(t, first.connected, "connect")

	conn.Connect(feed.Callbacks{OnError: second.callbacks().OnError})
	if d.count() != 1 {
		t.Fatalf("expected exactly one dial, got %d", d.count())
	}

	sock.frames <- []byte(`[{"symbol":"BTCUSDT"}]`)
	select {
	case got := <-second.signals:
		if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
			t.Fatalf("unexpected signals %+v", got)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("merged OnSignals not called")
	}

	select {
	case <-first.connected:
		t.Fatalf("OnConnect fired twice")
	case <-time.After(20 * time.Millisecond):
	}
	if !conn.IsConnected() {
		t.Fatalf("expected open connection")
	}
}

func TestUpdateCallbacksReplacesHandlers(t *testing.T) {
	d := newFakeDialer()
	conn := newTestConnection(ChannelSignal, d, &fakeClock{}, &fakeTokens{token: "tok"})
	old := newRecorder()
	next := newRecorder()

	conn.Connect(old.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, old.connected, "connect")

	conn.UpdateCallbacks(feed.Callbacks{OnSignals: next.callbacks().OnSignals})
	sock.frames <- []byte(`[{"symbol":"ETHUSDT"}]`)

	select {
	case got := <-next.signals:
		if len(got) != 1 || got[0].Symbol != "ETHUSDT" {
			t.Fatalf("unexpected signals %+v", got)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("updated OnSignals not called")
	}
	select {
	case <-old.signals:
		t.Fatalf("replaced OnSignals still called")
	case <-time.After(20 * time.Millisecond):
	}
	if d.count() != 1 {
		t.Fatalf("UpdateCallbacks must not dial, got %d dials", d.count())
	}
}

func TestReconnectCapYieldsTerminalError(t *testing.T) {
	d := newFakeDialer()
	d.failures = 1 << 30
	clock := &fakeClock{}
	conn := newTestConnection(ChannelAccount, d, clock, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())

	for i := 1; i <= defaultMaxReconnectAttempts; i++ {
		msg := waitError(t, rec.errs)
		if !strings.Contains(msg, "reconnecting") {
			t.Fatalf("attempt %d: unexpected error %q", i, msg)
		}
		if clock.pending() != 1 {
			t.Fatalf("attempt %d: expected one pending timer, got %d", i, clock.pending())
		}
		if conn.Attempts() != i {
			t.Fatalf("expected %d attempts, got %d", i, conn.Attempts())
		}
		clock.fire()
	}

	if msg := waitError(t, rec.errs); msg != "max reconnect attempts reached" {
		t.Fatalf("expected terminal error, got %q", msg)
	}
	if clock.pending() != 0 {
		t.Fatalf("no timer may be scheduled after the cap")
	}
	if d.count() != defaultMaxReconnectAttempts+1 {
		t.Fatalf("expected %d dials, got %d", defaultMaxReconnectAttempts+1, d.count())
	}
	for _, delay := range clock.delays {
		if delay != defaultReconnectDelay {
			t.Fatalf("unexpected reconnect delay %v", delay)
		}
	}
}

func TestManualConnectAfterCapRestoresRetries(t *testing.T) {
	d := newFakeDialer()
	d.failures = 1 << 30
	clock := &fakeClock{}
	conn := newTestConnection(ChannelAccount, d, clock, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	for i := 0; i < defaultMaxReconnectAttempts; i++ {
		waitError(t, rec.errs)
		clock.fire()
	}
	if msg := waitError(t, rec.errs); msg != "max reconnect attempts reached" {
		t.Fatalf("expected terminal error, got %q", msg)
	}

	conn.Connect(rec.callbacks())
	msg := waitError(t, rec.errs)
	if !strings.Contains(msg, "reconnecting 1/") {
		t.Fatalf("a manual connect must get a fresh retry budget, got %q", msg)
	}
	if conn.Attempts() != 1 || clock.pending() != 1 {
		t.Fatalf("expected attempts=1 and a pending timer, got %d and %d", conn.Attempts(), clock.pending())
	}
}

func TestLoggerCarriesChannelOnce(t *testing.T) {
	var buf bytes.Buffer
	l, err := applogger.New(&applogger.Config{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	conn := New(ChannelAccount, "ws://bot", &fakeTokens{},
		WithLogger(l.With(applogger.String("component", "stream"))))

	conn.Connect(feed.Callbacks{})
	line := buf.String()
	if !strings.Contains(line, "connect skipped") {
		t.Fatalf("expected a skipped connect line, got %q", line)
	}
	if n := strings.Count(line, `"channel":"account"`); n != 1 {
		t.Fatalf("expected the channel field once, got %d in %q", n, line)
	}
}

func TestPolicyViolationNeverReconnects(t *testing.T) {
	d := newFakeDialer()
	clock := &fakeClock{}
	conn := newTestConnection(ChannelAccount, d, clock, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	sock.closeErr <- &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "bad token"}

	msg := waitError(t, rec.errs)
	if !strings.Contains(msg, "authentication") {
		t.Fatalf("unexpected error %q", msg)
	}
	if clock.pending() != 0 {
		t.Fatalf("1008 must not schedule a reconnect")
	}
	st := conn.Status()
	if st.State != StateClosed || !st.AuthFailed {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestAttemptsResetAfterSuccessfulOpen(t *testing.T) {
	d := newFakeDialer()
	d.failures = 2
	clock := &fakeClock{}
	conn := newTestConnection(ChannelAccount, d, clock, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	waitError(t, rec.errs)
	clock.fire()
	waitError(t, rec.errs)
	if conn.Attempts() != 2 {
		t.Fatalf("expected 2 attempts, got %d", conn.Attempts())
	}
	clock.fire()

	waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")
	if conn.Attempts() != 0 {
		t.Fatalf("attempts must reset on open, got %d", conn.Attempts())
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d := newFakeDialer()
	clock := &fakeClock{}
	conn := newTestConnection(ChannelAccount, d, clock, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	sock.closeErr <- errors.New("reset by peer")
	waitError(t, rec.errs)
	if clock.pending() != 1 {
		t.Fatalf("expected a pending reconnect")
	}

	conn.Disconnect()
	if clock.pending() != 0 {
		t.Fatalf("disconnect must stop the reconnect timer")
	}
	clock.fireAll()

	if d.count() != 1 {
		t.Fatalf("stale timer dialed again: %d dials", d.count())
	}
	if conn.State() != StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}
}

func TestDisconnectClosesOpenSocket(t *testing.T) {
	d := newFakeDialer()
	conn := newTestConnection(ChannelAccount, d, &fakeClock{}, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	conn.Disconnect()
	if !sock.isClosed() {
		t.Fatalf("socket not closed")
	}
	sock.mu.Lock()
	sentClose := len(sock.types) == 1 && sock.types[0] == websocket.CloseMessage
	sock.mu.Unlock()
	if !sentClose {
		t.Fatalf("expected a close frame")
	}

	select {
	case msg := <-rec.errs:
		t.Fatalf("callbacks must be cleared on disconnect, got error %q", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDisconnectDoesNotBlockStatusOnStalledPeer(t *testing.T) {
	d := newFakeDialer()
	d.writeGate = make(chan struct{})
	conn := newTestConnection(ChannelAccount, d, &fakeClock{}, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	done := make(chan struct{})
	go func() {
		conn.Disconnect()
		close(done)
	}()

	deadline := time.Now().Add(waitTimeout)
	for conn.State() != StateClosing {
		if time.Now().After(deadline) {
			t.Fatalf("state never reached closing, got %s", conn.State())
		}
		time.Sleep(time.Millisecond)
	}

	statusDone := make(chan Status, 1)
	go func() { statusDone <- conn.Status() }()
	select {
	case st := <-statusDone:
		if st.State != StateClosing || conn.IsConnected() {
			t.Fatalf("unexpected status while closing %+v", st)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Status blocked behind the close frame write")
	}

	close(d.writeGate)
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatalf("Disconnect did not return")
	}
	if conn.State() != StateClosed || !sock.isClosed() {
		t.Fatalf("expected closed state and socket, got %s", conn.State())
	}
}

func TestStaleSocketIsClosedOnLateOpen(t *testing.T) {
	d := newFakeDialer()
	d.gate = make(chan struct{})
	conn := newTestConnection(ChannelSignal, d, &fakeClock{}, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	if !conn.IsConnecting() {
		t.Fatalf("expected connecting")
	}
	conn.Disconnect()
	close(d.gate)

	sock := waitSocket(t, d)
	select {
	case <-sock.closed:
	case <-time.After(waitTimeout):
		t.Fatalf("late socket not closed")
	}
	select {
	case <-rec.connected:
		t.Fatalf("stale socket must not call OnConnect")
	case <-time.After(20 * time.Millisecond):
	}
	if conn.State() != StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}
}

func TestReconnectStopsWhenTokenVanishes(t *testing.T) {
	d := newFakeDialer()
	clock := &fakeClock{}
	tokens := &fakeTokens{token: "tok"}
	conn := newTestConnection(ChannelAccount, d, clock, tokens)
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	tokens.set("")
	sock.closeErr <- errors.New("eof")
	waitError(t, rec.errs)
	clock.fire()

	if msg := waitError(t, rec.errs); !strings.Contains(msg, "token missing") {
		t.Fatalf("unexpected error %q", msg)
	}
	if d.count() != 1 {
		t.Fatalf("expected no redial, got %d dials", d.count())
	}
	if clock.pending() != 0 {
		t.Fatalf("expected no further timers")
	}
}

func TestSend(t *testing.T) {
	d := newFakeDialer()
	signal := newTestConnection(ChannelSignal, d, &fakeClock{}, &fakeTokens{token: "tok"})
	if err := signal.Send(map[string]string{"a": "b"}); !errors.Is(err, ErrSendUnsupported) {
		t.Fatalf("expected ErrSendUnsupported, got %v", err)
	}

	account := newTestConnection(ChannelAccount, d, &fakeClock{}, &fakeTokens{token: "tok"})
	if err := account.Send("x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	rec := newRecorder()
	account.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	if err := account.Send(map[string]string{"action": "refresh"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if len(sock.writes) != 1 || string(sock.writes[0]) != `{"action":"refresh"}` {
		t.Fatalf("unexpected writes %q", sock.writes)
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	d := newFakeDialer()
	conn := newTestConnection(ChannelSignal, d, &fakeClock{}, &fakeTokens{token: "tok"})
	rec := newRecorder()

	conn.Connect(rec.callbacks())
	sock := waitSocket(t, d)
	waitSignal(t, rec.connected, "connect")

	sock.frames <- []byte(`{not json`)
	sock.frames <- []byte(`{"type":"scan_signal","data":[{"symbol":"XRPUSDT"}]}`)

	select {
	case got := <-rec.signals:
		if got[0].Symbol != "XRPUSDT" {
			t.Fatalf("unexpected signal %+v", got)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("connection should survive a malformed frame")
	}
	if !conn.IsConnected() {
		t.Fatalf("expected open connection")
	}
}
