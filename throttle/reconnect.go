package throttle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rocrail/internal/pool"
	"github.com/arloliu/go-rocrail/logger"
)

// transportReleaseDelay is the pause between tearing down a stale transport
// and dialing again, giving the network stack time to release resources.
const transportReleaseDelay = 500 * time.Millisecond

// Reconnector recovers a lost session with a tiered retry schedule: a few
// quick attempts first, then slower steady retries, with an extended cooldown
// inserted periodically so a long outage does not hammer the server.
//
// The engine is single-flight: concurrent loss notifications collapse into
// one retry loop. It stays disarmed until the first roster load succeeds, so
// a misconfigured address fails fast instead of retrying forever.
type Reconnector struct {
	conn   *Connection
	cfg    *ConnectionConfig
	logger logger.Logger

	armed   atomic.Bool
	running atomic.Bool

	// onConnected is invoked after each successful reconnect, once the
	// configured settle delay has passed.
	onConnected func()
}

// NewReconnector creates a reconnection engine for the given connection and
// registers it on the connection's state manager; any transition into
// LostState triggers a recovery cycle.
//
// onConnected, if non-nil, runs after every successful reconnect.
func NewReconnector(conn *Connection, onConnected func()) *Reconnector {
	r := &Reconnector{
		conn:        conn,
		cfg:         conn.cfg,
		logger:      conn.logger,
		onConnected: onConnected,
	}

	conn.stateMgr.AddHandler(func(_ SessionState, newState SessionState) {
		if newState == LostState {
			r.Trigger()
		}
	})

	return r
}

// Arm enables automatic reconnection. Called after the first successful
// roster load proves the configured server is real.
func (r *Reconnector) Arm() {
	if r.armed.CompareAndSwap(false, true) {
		r.logger.Debug("reconnection engine armed")
	}
}

// Armed returns whether automatic reconnection is enabled.
func (r *Reconnector) Armed() bool {
	return r.armed.Load()
}

// Running returns whether a recovery cycle is in progress.
func (r *Reconnector) Running() bool {
	return r.running.Load()
}

// Trigger starts a recovery cycle unless one is already running, the engine
// is disarmed, or the connection is shutting down. It returns true if a new
// cycle was started.
//
// Trigger never blocks; the cycle runs in its own goroutine.
func (r *Reconnector) Trigger() bool {
	if !r.armed.Load() {
		r.logger.Debug("connection lost before first roster load, reconnection disarmed")
		return false
	}
	if r.conn.shutdown.Load() {
		return false
	}
	if !r.running.CompareAndSwap(false, true) {
		return false
	}

	go r.loop(r.conn.pctx)

	return true
}

// loop cycles reconnection attempts until one succeeds or the connection
// shuts down.
func (r *Reconnector) loop(ctx context.Context) {
	defer r.running.Store(false)

	attempt := 0
	for {
		if r.conn.shutdown.Load() {
			return
		}

		attempt++
		delay := delayForAttempt(r.cfg, attempt)

		r.conn.stateMgr.ToReconnecting()
		r.logger.Info("scheduling reconnection attempt", "attempt", attempt, "delay", delay)

		if !r.sleep(ctx, delay) {
			return
		}
		if r.conn.shutdown.Load() {
			return
		}

		// tear down any stale transport before dialing again
		r.conn.teardown()
		if !r.sleep(ctx, transportReleaseDelay) {
			return
		}

		if err := r.conn.Connect(ctx); err != nil {
			r.logger.Warn("reconnection attempt failed", "attempt", attempt, "error", err)
			continue
		}

		r.logger.Info("reconnected to control server", "attempts", attempt)

		if r.onConnected != nil {
			if !r.sleep(ctx, r.cfg.settleDelay) {
				return
			}
			r.onConnected()
		}

		return
	}
}

// sleep waits for the given duration, returning false if the context is done
// first.
func (r *Reconnector) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := pool.AcquireTimer(d)
	defer pool.ReleaseTimer(timer)

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// delayForAttempt returns the pause before the given 1-based reconnection
// attempt: the fast delay for the leading attempts, the slow delay afterwards,
// plus the extended cooldown at every cooldown point.
func delayForAttempt(cfg *ConnectionConfig, attempt int) time.Duration {
	delay := cfg.slowRetryDelay
	if attempt <= cfg.fastRetryCount {
		delay = cfg.fastRetryDelay
	}

	if cfg.cooldownAfter > 0 && attempt%cfg.cooldownAfter == 0 {
		delay += cfg.cooldownDelay
	}

	return delay
}
