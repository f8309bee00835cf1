package throttle

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rocrail/internal/queue"
	"github.com/arloliu/go-rocrail/logger"
	"github.com/arloliu/go-rocrail/rcp"
)

// DataHandler processes newly buffered inbound data. It is invoked from the
// receiver task after each successful read, with the connection's receive
// buffer. The handler may reset the buffer after consuming a record.
type DataHandler func(buf *rcp.Buffer)

// Connection owns one TCP session to the control server: the socket, the
// sender task draining the outbound frame queue, and the receiver task
// feeding the receive buffer. At most one session is live at a time.
//
// Send never blocks on the network; frames are enqueued and flushed in FIFO
// order by the sender task, including across a reconnect.
type Connection struct {
	pctx   context.Context
	cfg    *ConnectionConfig
	logger logger.Logger

	conn      net.Conn
	connMutex sync.Mutex

	stateMgr *SessionStateMgr
	taskMgr  *TaskManager
	outbound *queue.FrameQueue
	recvBuf  *rcp.Buffer

	dataHandler  DataHandler
	shutdown     atomic.Bool // indicates if has entered shutdown mode
	wasConnected atomic.Bool // indicates if any connect attempt ever succeeded
	lastActivity atomic.Int64

	// readErrs counts consecutive read errors; owned by the receiver task.
	readErrs int
}

// NewConnection creates a control-server connection from the given
// configuration. The connection is created in the DisconnectedState; call
// Connect to establish the session.
func NewConnection(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	c := &Connection{
		pctx:     ctx,
		cfg:      cfg,
		logger:   cfg.logger,
		outbound: queue.NewFrameQueue(10),
		recvBuf:  rcp.NewBuffer(cfg.bufferLimit, cfg.maxPacket),
	}

	c.stateMgr = NewSessionStateMgr(ctx, cfg.logger)
	c.taskMgr = NewTaskManager(ctx, cfg.logger)

	return c, nil
}

// SetDataHandler registers the handler invoked with the receive buffer after
// each read. It must be set before Connect.
func (c *Connection) SetDataHandler(handler DataHandler) {
	c.dataHandler = handler
}

// StateMgr returns the session state manager shared by every subsystem
// observing this connection.
func (c *Connection) StateMgr() *SessionStateMgr {
	return c.stateMgr
}

// State returns the current session state.
func (c *Connection) State() SessionState {
	return c.stateMgr.State()
}

// LastActivity returns the time data was last sent or received on the session.
func (c *Connection) LastActivity() time.Time {
	return time.UnixMilli(c.lastActivity.Load())
}

// Connect establishes the TCP session and starts the sender and receiver
// tasks. It blocks up to the configured connect timeout.
//
// On a failed initial attempt the state returns to DisconnectedState and the
// error is returned to the caller; automatic retries only begin once a
// session has been established and subsequently lost.
func (c *Connection) Connect(ctx context.Context) error {
	if c.shutdown.Load() {
		return ErrConnClosed
	}

	c.connMutex.Lock()
	if c.conn != nil {
		c.connMutex.Unlock()
		return ErrAlreadyConnected
	}
	c.connMutex.Unlock()

	c.stateMgr.ToConnecting()

	address := net.JoinHostPort(c.cfg.host, strconv.Itoa(c.cfg.port))
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		c.logger.Warn("failed to dial control server", "address", address, "error", err)
		if c.wasConnected.Load() {
			c.stateMgr.ToLost()
		} else {
			c.stateMgr.ToDisconnected()
		}

		return err
	}

	c.connMutex.Lock()
	c.conn = conn
	c.connMutex.Unlock()

	c.readErrs = 0
	c.recvBuf.Reset()
	c.touchActivity()
	c.wasConnected.Store(true)

	if err := c.taskMgr.StartSender("senderTask", c.senderTask, nil, c.outbound); err != nil {
		c.logger.Error("failed to start sender task", "error", err)
		c.teardown()
		c.stateMgr.ToDisconnected()

		return err
	}

	if err := c.taskMgr.StartReceiver("receiverTask", c.receiverTask, nil); err != nil {
		c.logger.Error("failed to start receiver task", "error", err)
		c.teardown()
		c.stateMgr.ToDisconnected()

		return err
	}

	c.logger.Info("connected to control server",
		"host", c.cfg.host,
		"port", c.cfg.port,
		"local_addr", conn.LocalAddr().String(),
		"remote_addr", conn.RemoteAddr().String(),
	)

	c.stateMgr.ToConnected()

	return nil
}

// Send frames the payload and enqueues it for transmission. It never blocks
// on the network; frames enqueued while the session is down are flushed in
// order after the next successful connect.
func (c *Connection) Send(payload string) error {
	if c.shutdown.Load() {
		return ErrConnClosed
	}

	c.outbound.Enqueue(rcp.Encode(payload))

	return nil
}

// SendRaw enqueues an already framed message for transmission.
func (c *Connection) SendRaw(frame []byte) error {
	if c.shutdown.Load() {
		return ErrConnClosed
	}

	c.outbound.Enqueue(frame)

	return nil
}

// Disconnect tears the session down and transitions to DisconnectedState.
// It is idempotent and safe from multiple call sites.
func (c *Connection) Disconnect() {
	c.stateMgr.ToDisconnected()
	c.closeConn(c.cfg.closeConnTimeout)
}

// Close closes the connection gracefully and enters shutdown mode; no further
// operations are accepted afterwards.
func (c *Connection) Close() error {
	c.shutdown.Store(true)
	c.stateMgr.ToDisconnected()
	c.closeConn(c.cfg.closeConnTimeout)

	return nil
}

// teardown closes the transport and stops the IO tasks without changing the
// session state. Used by the reconnection engine, which manages the state
// itself.
func (c *Connection) teardown() {
	c.closeConn(c.cfg.closeConnTimeout)
}

// closeConn performs the actual connection closing process with a timeout.
// It stops the task manager, closes the TCP connection, and waits for all
// goroutines to terminate.
func (c *Connection) closeConn(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.taskMgr.Stop()

	// close TCP connection; this also unblocks a receiver parked in Read
	c.connMutex.Lock()
	if c.conn != nil {
		if tcpConn, ok := c.conn.(*net.TCPConn); ok {
			_ = tcpConn.SetLinger(0) // Set linger timeout to 0 to force close
		}

		if err := c.conn.Close(); err != nil {
			c.logger.Error("failed to close TCP connection", "method", "closeConn", "error", err)
		}
		c.conn = nil
	}
	c.connMutex.Unlock()

	go func() {
		c.taskMgr.Wait()
		cancel()
	}()

	// wait all goroutines terminated
	<-ctx.Done()

	if errors.Is(ctx.Err(), context.Canceled) {
		c.logger.Debug("close success", "method", "closeConn")
	} else {
		c.logger.Error("close timeout", "method", "closeConn", "error", ctx.Err(), "timeout", timeout)
	}
}

// transport safely returns the current socket, or nil when disconnected.
func (c *Connection) transport() net.Conn {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	return c.conn
}

// senderTask transmits one framed message. A frame that cannot be written is
// requeued at the head so FIFO order is preserved across a reconnect.
//
// A write error never kills the writer: the frame goes back to the head and
// the task parks until the session is connected again, whether by inbound
// traffic flipping a lost session back or by a fresh transport. Only local
// teardown terminates the task.
func (c *Connection) senderTask(frame []byte) bool {
	conn := c.transport()
	if conn == nil {
		c.outbound.Requeue(frame)
		return c.waitUntilConnected()
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	if _, err := conn.Write(frame); err != nil {
		c.outbound.Requeue(frame)

		if errors.Is(err, net.ErrClosed) {
			// local teardown; a fresh sender starts with the next transport
			return false
		}

		c.logger.Warn("failed to write frame", "error", err)
		c.markLost("write error", err)

		return c.waitUntilConnected()
	}

	c.touchActivity()

	return true
}

// waitUntilConnected parks the sender until the session reports connected
// again. It returns false only when the task context is cancelled by
// teardown.
func (c *Connection) waitUntilConnected() bool {
	return c.stateMgr.WaitState(c.taskMgr.getContext(), ConnectedState) == nil
}

// receiverTask reads one chunk from the socket and feeds the receive buffer.
// Transient read errors are tolerated up to the configured threshold; only a
// consecutive run of them declares the connection lost.
func (c *Connection) receiverTask(readBuf []byte) bool {
	conn := c.transport()
	if conn == nil {
		return false
	}

	n, err := conn.Read(readBuf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			// local teardown
			return false
		}
		if errors.Is(err, io.EOF) {
			c.markLost("remote closed connection", err)
			return false
		}

		c.readErrs++
		c.logger.Debug("read error", "count", c.readErrs, "error", err)
		if c.readErrs >= c.cfg.readErrorThreshold {
			c.markLost("read error threshold reached", err)
			return false
		}

		return true
	}

	c.readErrs = 0
	if n > 0 {
		c.handleIncoming(readBuf[:n])
	}

	return true
}

// handleIncoming records session activity, buffers the data, and invokes the
// data handler. Inbound traffic on a session flagged lost proves it is live
// again and flips the state back to connected.
func (c *Connection) handleIncoming(data []byte) {
	c.touchActivity()

	if c.stateMgr.State() == LostState {
		c.logger.Info("data received on lost session, marking connected")
		c.stateMgr.ToConnectedAsync()
	}

	if c.recvBuf.Append(data) {
		c.logger.Warn("oversized packet dropped", "size", len(data))
		return
	}

	if c.dataHandler != nil {
		c.dataHandler(c.recvBuf)
	}
}

// markLost flags an established session as lost. It never overrides an
// explicit disconnect or shutdown.
func (c *Connection) markLost(reason string, err error) {
	if c.shutdown.Load() {
		return
	}
	if c.stateMgr.State() != ConnectedState {
		return
	}

	c.logger.Warn("connection lost", "reason", reason, "error", err)
	c.stateMgr.ToLostAsync()
}

func (c *Connection) touchActivity() {
	c.lastActivity.Store(time.Now().UnixMilli())
}
