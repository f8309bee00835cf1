package throttle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-rocrail/logger"
)

// SessionState represents the various stages of a control-server session.
type SessionState uint32

// Control-server session states observed by every subsystem of the throttle.
const (
	// DisconnectedState indicates no TCP connection is established and no
	// recovery is in progress.
	DisconnectedState SessionState = iota
	// ConnectingState indicates a connection attempt is in progress.
	ConnectingState
	// ConnectedState indicates the TCP connection is established and the
	// session is live.
	ConnectedState
	// LostState indicates an established connection failed and recovery has
	// not produced a new one yet.
	LostState
	// ReconnectingState indicates the reconnection engine is actively cycling
	// retry attempts.
	ReconnectingState
)

// IsDisconnected returns if the current state is disconnected.
func (ss SessionState) IsDisconnected() bool { return ss == DisconnectedState }

// IsConnected returns if the current state is connected.
func (ss SessionState) IsConnected() bool { return ss == ConnectedState }

// IsLost returns if the current state is lost.
func (ss SessionState) IsLost() bool { return ss == LostState }

// String returns string representation of the current state.
func (ss SessionState) String() string {
	switch ss {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case LostState:
		return "lost"
	case ReconnectingState:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// SessionStateChangeHandler is a function type that represents a handler for
// session state changes.
//
// Note: the handler will be invoked in a blocking mode. Take care with
// long-running implementations.
//
// The handler function receives two arguments:
//   - prevState: The previous session state.
//   - newState: The current session state.
type SessionStateChangeHandler func(prevState SessionState, newState SessionState)

// SessionStateMgr manages the session state of a control-server connection.
//
// It provides methods for managing state transitions and notifying listeners
// of state changes. All transitions are serialized by a mutex, so concurrent
// producers (reader task, reconnection engine, explicit shutdown) observe a
// total order of state changes.
type SessionStateMgr struct {
	mu               sync.Mutex
	ctx              context.Context
	cond             *sync.Cond
	state            atomic.Uint32
	logger           logger.Logger
	asyncStateChange chan SessionState
	handlers         []SessionStateChangeHandler
}

// NewSessionStateMgr creates a new SessionStateMgr instance, initializing it
// to the DisconnectedState.
//
// It accepts optional SessionStateChangeHandler functions that will be invoked
// when the session state changes.
func NewSessionStateMgr(ctx context.Context, log logger.Logger, handlers ...SessionStateChangeHandler) *SessionStateMgr {
	if log == nil {
		log = logger.GetLogger()
	}

	mgr := &SessionStateMgr{
		ctx:              ctx,
		logger:           log,
		asyncStateChange: make(chan SessionState, 10),
		handlers:         make([]SessionStateChangeHandler, 0, len(handlers)),
	}
	mgr.handlers = append(mgr.handlers, handlers...)

	mgr.state.Store(uint32(DisconnectedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	go mgr.asyncStateChangeTask()

	return mgr
}

// State returns the current session state.
func (mgr *SessionStateMgr) State() SessionState {
	return SessionState(mgr.state.Load())
}

// AddHandler adds one or more SessionStateChangeHandler functions to be
// invoked on state changes.
func (mgr *SessionStateMgr) AddHandler(handlers ...SessionStateChangeHandler) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.handlers = append(mgr.handlers, handlers...)
}

// WaitState waits for the session state to reach the specified state or until
// the context is done. It returns nil if the desired state is reached, or an
// error if the context is canceled or times out.
func (mgr *SessionStateMgr) WaitState(ctx context.Context, state SessionState) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		mgr.cond.Broadcast()
	})
	defer stopFunc()

	for mgr.State() != state {
		select {
		case <-ctx.Done():
			mgr.logger.Debug("wait session state receive ctx done", "cur_state", mgr.State(), "desired_state", state)
			return ctx.Err()
		default:
			mgr.cond.Wait()
		}
	}

	return nil
}

// ToDisconnected transitions the session state to DisconnectedState.
// This transition is allowed from any state and represents an explicit
// disconnect or a reset of the connection.
func (mgr *SessionStateMgr) ToDisconnected() { mgr.toState(DisconnectedState) }

// ToConnecting transitions the session state to ConnectingState.
func (mgr *SessionStateMgr) ToConnecting() { mgr.toState(ConnectingState) }

// ToConnected transitions the session state to ConnectedState.
func (mgr *SessionStateMgr) ToConnected() { mgr.toState(ConnectedState) }

// ToLost transitions the session state to LostState.
func (mgr *SessionStateMgr) ToLost() { mgr.toState(LostState) }

// ToReconnecting transitions the session state to ReconnectingState.
func (mgr *SessionStateMgr) ToReconnecting() { mgr.toState(ReconnectingState) }

// ToLostAsync transitions the session state to LostState asynchronously.
//
// It will notify a goroutine and transit state in the back asynchronously.
// Used from the reader and sender tasks, which must never block on the
// reconnection engine's state handlers.
//
// If the state is the same as the current state, the function is a no-op.
func (mgr *SessionStateMgr) ToLostAsync() { mgr.changeStateAsync(LostState) }

// ToConnectedAsync transitions the session state to ConnectedState
// asynchronously.
//
// If the state is the same as the current state, the function is a no-op.
func (mgr *SessionStateMgr) ToConnectedAsync() { mgr.changeStateAsync(ConnectedState) }

// IsConnected returns if the current state is connected.
func (mgr *SessionStateMgr) IsConnected() bool {
	return mgr.State().IsConnected()
}

// IsDisconnected returns if the current state is disconnected.
func (mgr *SessionStateMgr) IsDisconnected() bool {
	return mgr.State().IsDisconnected()
}

// toState transitions to the desired state under the transition lock.
// Same-state transitions are no-ops; handlers observe every effective change.
func (mgr *SessionStateMgr) toState(newState SessionState) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()
	if curState == newState {
		return
	}

	// change state BEFORE handlers run so observers polling State() and
	// handlers agree on the new state
	mgr.setState(newState)
	mgr.logger.Debug("session state changed", "prev_state", curState, "new_state", newState)

	mgr.invokeHandlers(curState, newState)
}

// setState atomically sets the current state to newState. It also broadcasts
// a signal to any waiting goroutines.
func (mgr *SessionStateMgr) setState(newState SessionState) {
	mgr.state.Store(uint32(newState))
	mgr.cond.Broadcast()
}

// invokeHandlers invokes all registered SessionStateChangeHandler functions
// with the previous and new states.
func (mgr *SessionStateMgr) invokeHandlers(prevState SessionState, newState SessionState) {
	for _, handler := range mgr.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}

// changeStateAsync transitions to the desired session state asynchronously.
//
// If the state is the same as the current state, the function is a no-op.
func (mgr *SessionStateMgr) changeStateAsync(state SessionState) {
	if mgr.State() == state {
		return
	}

	mgr.asyncStateChange <- state
}

// asyncStateChangeTask handles state changing in the background.
func (mgr *SessionStateMgr) asyncStateChangeTask() {
	defer mgr.logger.Debug("asyncStateChangeTask terminated")

	for {
		select {
		case <-mgr.ctx.Done():
			return

		case desiredState := <-mgr.asyncStateChange:
			if desiredState == mgr.State() {
				break
			}

			mgr.toState(desiredState)
		}
	}
}
