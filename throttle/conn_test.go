package throttle

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rocrail/rcp"
)

// testServer is a single-client loopback stand-in for the control server.
type testServer struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn
	recv []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &testServer{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })

	go srv.acceptLoop()

	return srv
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		go s.readLoop(conn)
	}
}

func (s *testServer) readLoop(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.recv = append(s.recv, buf[:n]...)
		s.mu.Unlock()
	}
}

func (s *testServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *testServer) received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, len(s.recv))
	copy(out, s.recv)

	return out
}

func (s *testServer) write(t *testing.T, data []byte) {
	t.Helper()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	require.NotNil(t, conn)
	_, err := conn.Write(data)
	require.NoError(t, err)
}

func (s *testServer) hasClient() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn != nil
}

func (s *testServer) closeClient() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func newTestConn(t *testing.T, srv *testServer) *Connection {
	t.Helper()

	cfg, err := NewConnectionConfig("127.0.0.1", srv.port())
	require.NoError(t, err)

	conn, err := NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestConnectionSendsFramedCommandsInOrder(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Connect(context.Background()))
	require.Equal(ConnectedState, conn.State())

	payloadA := rcp.SpeedCommand("BR103", 50, true)
	payloadB := rcp.SpeedCommand("BR103", 0, true)
	require.NoError(conn.Send(payloadA))
	require.NoError(conn.Send(payloadB))

	want := append(rcp.Encode(payloadA), rcp.Encode(payloadB)...)
	require.Eventually(func() bool {
		return bytes.Equal(srv.received(), want)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConnectionFlushesQueuedFramesAfterConnect(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	// enqueued while disconnected, flushed in order once the session is up
	require.NoError(conn.Send("first"))
	require.NoError(conn.SendRaw(rcp.RosterQuery()))

	require.NoError(conn.Connect(context.Background()))

	want := append(rcp.Encode("first"), rcp.RosterQuery()...)
	require.Eventually(func() bool {
		return bytes.Equal(srv.received(), want)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConnectionDeliversInboundData(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	got := make(chan string, 16)
	conn.SetDataHandler(func(buf *rcp.Buffer) {
		got <- buf.String()
	})

	require.NoError(conn.Connect(context.Background()))

	payload := `<lclist><lc id="BR103"/></lclist>`
	srv.write(t, []byte(payload))

	require.Eventually(func() bool {
		select {
		case data := <-got:
			return data == payload
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}

// flakyConn wraps a live socket and fails writes on demand.
type flakyConn struct {
	net.Conn
	failWrites *atomic.Bool
}

func (f *flakyConn) Write(p []byte) (int, error) {
	if f.failWrites.Load() {
		return 0, errors.New("transient write failure")
	}

	return f.Conn.Write(p)
}

func TestSenderSurvivesWriteErrorAndLostFlip(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Connect(context.Background()))

	var fail atomic.Bool
	fail.Store(true)
	conn.connMutex.Lock()
	conn.conn = &flakyConn{Conn: conn.conn, failWrites: &fail}
	conn.connMutex.Unlock()

	payload := rcp.SpeedCommand("BR103", 50, true)
	require.NoError(conn.Send(payload))

	// the failed write flags the session lost; the sender parks instead of dying
	require.Eventually(func() bool {
		return conn.State() == LostState
	}, 3*time.Second, 20*time.Millisecond)
	require.Empty(srv.received())

	// inbound traffic proves the session is live again; the parked sender must
	// wake and flush the requeued frame
	fail.Store(false)
	srv.write(t, []byte("<clock/>"))

	require.Eventually(func() bool {
		return conn.State() == ConnectedState
	}, 3*time.Second, 20*time.Millisecond)
	require.Eventually(func() bool {
		return bytes.Equal(srv.received(), rcp.Encode(payload))
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConnectInitialFailure(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", unusedPort(t))
	require.NoError(err)

	conn, err := NewConnection(context.Background(), cfg)
	require.NoError(err)
	defer func() { _ = conn.Close() }()

	require.Error(conn.Connect(context.Background()))
	require.Equal(DisconnectedState, conn.State())
}

func TestConnectWhileConnected(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Connect(context.Background()))
	require.ErrorIs(conn.Connect(context.Background()), ErrAlreadyConnected)
}

func TestRemoteCloseMarksLost(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Connect(context.Background()))
	require.Eventually(func() bool { return srv.hasClient() }, 3*time.Second, 20*time.Millisecond)

	srv.closeClient()

	require.Eventually(func() bool {
		return conn.State() == LostState
	}, 3*time.Second, 20*time.Millisecond)
}

// scriptedConn replays a fixed sequence of read outcomes.
type scriptedConn struct {
	mu    sync.Mutex
	steps []scriptStep
}

type scriptStep struct {
	data []byte
	err  error
}

func (s *scriptedConn) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return 0, errors.New("script exhausted")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]

	if step.err != nil {
		return 0, step.err
	}

	return copy(p, step.data), nil
}

func (s *scriptedConn) Write(p []byte) (int, error)      { return len(p), nil }
func (s *scriptedConn) Close() error                     { return nil }
func (s *scriptedConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (s *scriptedConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (s *scriptedConn) SetDeadline(time.Time) error      { return nil }
func (s *scriptedConn) SetReadDeadline(time.Time) error  { return nil }
func (s *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func TestReadErrorThresholdCounting(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", 8051)
	require.NoError(err)

	conn, err := NewConnection(context.Background(), cfg)
	require.NoError(err)
	defer func() { _ = conn.Close() }()

	errTransient := errors.New("transient read failure")
	script := &scriptedConn{steps: []scriptStep{
		{err: errTransient},
		{err: errTransient},
		{data: []byte("<clock/>")},
		{err: errTransient},
		{err: errTransient},
		{err: errTransient},
	}}

	conn.connMutex.Lock()
	conn.conn = script
	conn.connMutex.Unlock()
	conn.stateMgr.ToConnected()

	buf := make([]byte, recvBufSize)

	// a run shorter than the threshold does not declare loss
	require.True(conn.receiverTask(buf))
	require.True(conn.receiverTask(buf))
	require.Equal(2, conn.readErrs)
	require.Equal(ConnectedState, conn.State())

	// a successful read resets the counter
	require.True(conn.receiverTask(buf))
	require.Equal(0, conn.readErrs)
	require.Equal(ConnectedState, conn.State())

	// only a full consecutive run declares loss
	require.True(conn.receiverTask(buf))
	require.True(conn.receiverTask(buf))
	require.False(conn.receiverTask(buf))
	require.Equal(3, conn.readErrs)
	require.Eventually(func() bool {
		return conn.State() == LostState
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Connect(context.Background()))

	conn.Disconnect()
	require.Equal(DisconnectedState, conn.State())

	// repeated teardown from any call site is safe
	conn.Disconnect()
	require.NoError(conn.Close())
	require.NoError(conn.Close())

	// explicit disconnect never flips the state to lost
	time.Sleep(100 * time.Millisecond)
	require.Equal(DisconnectedState, conn.State())
}

func TestSendAfterClose(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)
	conn := newTestConn(t, srv)

	require.NoError(conn.Close())
	require.ErrorIs(conn.Send("payload"), ErrConnClosed)
	require.ErrorIs(conn.SendRaw([]byte("frame")), ErrConnClosed)
	require.ErrorIs(conn.Connect(context.Background()), ErrConnClosed)
}
