package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionStateString(t *testing.T) {
	require := require.New(t)

	require.Equal("disconnected", DisconnectedState.String())
	require.Equal("connecting", ConnectingState.String())
	require.Equal("connected", ConnectedState.String())
	require.Equal("lost", LostState.String())
	require.Equal("reconnecting", ReconnectingState.String())
	require.Equal("unknown", SessionState(99).String())
}

func TestSessionStateTransitions(t *testing.T) {
	require := require.New(t)

	var transitions []SessionState
	mgr := NewSessionStateMgr(context.Background(), nil, func(_ SessionState, newState SessionState) {
		transitions = append(transitions, newState)
	})

	require.Equal(DisconnectedState, mgr.State())
	require.True(mgr.IsDisconnected())

	mgr.ToConnecting()
	mgr.ToConnected()
	require.True(mgr.IsConnected())

	// same-state transition is a no-op and does not invoke handlers
	mgr.ToConnected()

	mgr.ToLost()
	require.True(mgr.State().IsLost())

	mgr.ToReconnecting()
	mgr.ToDisconnected()

	require.Equal([]SessionState{
		ConnectingState, ConnectedState, LostState, ReconnectingState, DisconnectedState,
	}, transitions)
}

func TestSessionStateWaitState(t *testing.T) {
	require := require.New(t)

	mgr := NewSessionStateMgr(context.Background(), nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		mgr.ToConnected()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(mgr.WaitState(ctx, ConnectedState))
	require.Equal(ConnectedState, mgr.State())

	// already in the desired state returns immediately
	require.NoError(mgr.WaitState(ctx, ConnectedState))
}

func TestSessionStateWaitStateTimeout(t *testing.T) {
	require := require.New(t)

	mgr := NewSessionStateMgr(context.Background(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := mgr.WaitState(ctx, ConnectedState)
	require.ErrorIs(err, context.DeadlineExceeded)
}

func TestSessionStateAsyncTransition(t *testing.T) {
	require := require.New(t)

	mgr := NewSessionStateMgr(context.Background(), nil)
	mgr.ToConnected()

	mgr.ToLostAsync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(mgr.WaitState(ctx, LostState))

	// async transition to the current state is a no-op
	mgr.ToLostAsync()
	require.Equal(LostState, mgr.State())
}
