package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rocrail/logger"
	"github.com/arloliu/go-rocrail/rcp"
	"github.com/arloliu/go-rocrail/roster"
)

// queryWatchInterval is the period of the roster query bookkeeping task.
const queryWatchInterval = 1 * time.Second

// Link is the slice of the connection the controller drives.
type Link interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error
	// Send frames the payload and enqueues it for transmission.
	Send(payload string) error
	// SendRaw enqueues an already framed message.
	SendRaw(frame []byte) error
	// State returns the current session state.
	State() SessionState
	// Close closes the connection and enters shutdown mode.
	Close() error
}

var _ Link = (*Connection)(nil)

// Status is a snapshot of the throttle state for the presentation layer.
type Status struct {
	Session       SessionState
	SpeedEnabled  bool
	RosterLoaded  bool
	RosterCount   int
	SelectedIndex int
	SelectedName  string
	Forward       bool
	Light         bool
}

// Controller wires operator input events to protocol commands and tracks the
// per-locomotive control context: selected locomotive, travel direction,
// light state, and the last speed put on the wire.
//
// All command methods are safe for concurrent use and never block on the
// network. Command methods on an empty roster return ErrNoLocomotiveSelected
// and send nothing; the operator stays in control.
type Controller struct {
	cfg    *ConnectionConfig
	logger logger.Logger

	link      Link
	roster    *roster.List
	interlock *Interlock
	reconn    *Reconnector
	taskMgr   *TaskManager

	mu         sync.Mutex
	forward    bool
	light      bool
	lastSpeed  int
	lastStatus Status

	rosterLoaded atomic.Bool
	queryPending atomic.Bool
	queryStart   atomic.Int64
	lastQuery    atomic.Int64
}

// NewController creates the full throttle engine: the control-server
// connection, the reconnection engine, the roster backed by the given store,
// and the safety interlock. Call Start to connect.
func NewController(ctx context.Context, cfg *ConnectionConfig, store roster.Store) (*Controller, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	list := roster.NewList(store, cfg.logger)
	ctrl := newController(ctx, cfg, conn, list)

	conn.SetDataHandler(ctrl.handleData)
	ctrl.reconn = NewReconnector(conn, ctrl.onReconnected)

	return ctrl, nil
}

// newController wires a controller onto an existing link and roster.
func newController(ctx context.Context, cfg *ConnectionConfig, link Link, list *roster.List) *Controller {
	return &Controller{
		cfg:       cfg,
		logger:    cfg.logger,
		link:      link,
		roster:    list,
		interlock: NewInterlock(cfg.logger),
		taskMgr:   NewTaskManager(ctx, cfg.logger),
		forward:   true,
		lastSpeed: -1,
	}
}

// Roster returns the locomotive roster.
func (c *Controller) Roster() *roster.List {
	return c.roster
}

// Interlock returns the safety interlock.
func (c *Controller) Interlock() *Interlock {
	return c.interlock
}

// Start connects to the control server and issues the initial roster query.
//
// A failed initial attempt returns the error to the caller with the session
// left in DisconnectedState; automatic retries only begin once a session has
// been established and a roster loaded.
func (c *Controller) Start(ctx context.Context) error {
	if c.roster.Count() == 0 && c.cfg.defaultLocoID != "" {
		if c.roster.Add(c.cfg.defaultLocoID, c.cfg.defaultLocoID) {
			c.logger.Info("roster seeded with default locomotive", "id", c.cfg.defaultLocoID)
		}
	}

	if err := c.link.Connect(ctx); err != nil {
		return err
	}

	if err := c.QueryLocomotives(); err != nil {
		c.logger.Warn("initial roster query failed", "error", err)
	}

	if _, err := c.taskMgr.StartInterval("queryWatch", c.queryWatch, queryWatchInterval, false); err != nil {
		return err
	}

	return nil
}

// Stop shuts the throttle engine down: bookkeeping tasks first, then the
// connection.
func (c *Controller) Stop() error {
	c.taskMgr.Stop()
	c.taskMgr.Wait()

	return c.link.Close()
}

// QueryLocomotives sends a roster query to the control server and marks it
// pending. The reply is consumed by the connection's data handler. It returns
// ErrNotConnected when no session is live; a query enqueued into a dead
// session would only expire against the query timeout.
func (c *Controller) QueryLocomotives() error {
	if c.link.State() != ConnectedState {
		return ErrNotConnected
	}

	if err := c.link.SendRaw(rcp.RosterQuery()); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	c.queryPending.Store(true)
	c.queryStart.Store(now)
	c.lastQuery.Store(now)
	c.logger.Info("roster query sent")

	return nil
}

// SelectNext moves the selection to the next locomotive.
//
// A zero-speed command for the previously selected locomotive is enqueued
// before the selection moves, and speed sending is disabled until the
// throttle returns to zero.
func (c *Controller) SelectNext() error {
	return c.changeSelection(true)
}

// SelectPrevious moves the selection to the previous locomotive.
//
// A zero-speed command for the previously selected locomotive is enqueued
// before the selection moves, and speed sending is disabled until the
// throttle returns to zero.
func (c *Controller) SelectPrevious() error {
	return c.changeSelection(false)
}

func (c *Controller) changeSelection(next bool) error {
	prevID := c.roster.SelectedID()
	if prevID == "" {
		return ErrNoLocomotiveSelected
	}
	if c.roster.Count() <= 1 {
		return nil
	}

	// the gate, the stop command and the selection move form one critical
	// section so no concurrent throttle sample can slip a speed frame in
	// between
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interlock.Disable(LocomotiveChanged)
	c.lastSpeed = -1

	// stop the previous locomotive before the selection moves
	if err := c.link.Send(rcp.SpeedCommand(prevID, 0, c.forward)); err != nil {
		return err
	}

	if next {
		c.roster.SelectNext()
	} else {
		c.roster.SelectPrevious()
	}

	c.logger.Info("locomotive selected", "id", c.roster.SelectedID())

	return nil
}

// ToggleDirection reverses the travel direction of the selected locomotive.
//
// A zero-speed command in the previous direction is enqueued before the new
// direction takes effect, and speed sending is disabled until the throttle
// returns to zero.
func (c *Controller) ToggleDirection() error {
	id := c.roster.SelectedID()
	if id == "" {
		return ErrNoLocomotiveSelected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.interlock.Disable(DirectionChanged)

	prev := c.forward
	c.forward = !prev
	c.lastSpeed = -1

	// stop in the old direction before the flip takes effect
	if err := c.link.Send(rcp.SpeedCommand(id, 0, prev)); err != nil {
		return err
	}

	c.logger.Info("direction toggled", "id", id, "forward", !prev)

	return nil
}

// EmergencyStop commands speed zero for the selected locomotive and disables
// speed sending until the throttle returns to zero.
func (c *Controller) EmergencyStop() error {
	id := c.roster.SelectedID()
	if id == "" {
		return ErrNoLocomotiveSelected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.interlock.Disable(EmergencyStop)
	c.lastSpeed = -1

	c.logger.Warn("emergency stop", "id", id)

	return c.link.Send(rcp.SpeedCommand(id, 0, c.forward))
}

// ToggleLight toggles the headlight function of the selected locomotive.
// Lights are independent of the safety interlock.
func (c *Controller) ToggleLight() error {
	id := c.roster.SelectedID()
	if id == "" {
		return ErrNoLocomotiveSelected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.light = !c.light
	on := c.light

	c.logger.Info("light toggled", "id", id, "on", on)

	return c.link.Send(rcp.FunctionCommand(id, on))
}

// ToggleSound acknowledges a sound toggle request.
//
// TODO: map sound to a decoder function slot once the function layout per
// locomotive is configurable.
func (c *Controller) ToggleSound() error {
	id := c.roster.SelectedID()
	if id == "" {
		return ErrNoLocomotiveSelected
	}

	c.logger.Info("sound toggle requested", "id", id)

	return nil
}

// ThrottleSample processes one reading from the physical throttle. Readings
// are clamped to [0, rcp.MaxSpeed].
//
// While speed sending is enabled, a reading that differs from the last speed
// put on the wire is sent; repeats are suppressed. While disabled, readings
// only feed the interlock: the reading of exactly zero re-enables sending and
// nothing is transmitted until the next sample.
func (c *Controller) ThrottleSample(speed int) error {
	if speed < 0 {
		speed = 0
	}
	if speed > rcp.MaxSpeed {
		speed = rcp.MaxSpeed
	}

	// the gate check and the send share the command lock, so a selection or
	// direction change can never interleave between them
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.interlock.Enabled() {
		c.interlock.CheckSample(speed)
		return nil
	}

	id := c.roster.SelectedID()
	if id == "" {
		return ErrNoLocomotiveSelected
	}

	if speed == c.lastSpeed {
		return nil
	}
	c.lastSpeed = speed

	return c.link.Send(rcp.SpeedCommand(id, speed, c.forward))
}

// Status returns a snapshot of the throttle state.
func (c *Controller) Status() Status {
	selected, _ := c.roster.Selected()

	c.mu.Lock()
	forward := c.forward
	light := c.light
	c.mu.Unlock()

	return Status{
		Session:       c.link.State(),
		SpeedEnabled:  c.interlock.Enabled(),
		RosterLoaded:  c.rosterLoaded.Load(),
		RosterCount:   c.roster.Count(),
		SelectedIndex: c.roster.SelectedIndex(),
		SelectedName:  selected.Name,
		Forward:       forward,
		Light:         light,
	}
}

// StatusChanged reports whether the status snapshot differs from the one
// observed by the previous call, letting the presentation layer redraw only
// on change.
func (c *Controller) StatusChanged() bool {
	status := c.Status()

	c.mu.Lock()
	defer c.mu.Unlock()

	if status == c.lastStatus {
		return false
	}
	c.lastStatus = status

	return true
}

// handleData consumes buffered inbound data: it extracts the locomotive
// roster reply, commits it, and arms the reconnection engine on the first
// successful load. All other server chatter is left to the buffer's own
// retention policy.
func (c *Controller) handleData(buf *rcp.Buffer) {
	if c.rosterLoaded.Load() {
		return
	}

	result, err := rcp.ExtractRoster(buf.String())
	if err != nil {
		// truncated record; the opening tag is gone, so the reply can never
		// complete and the buffer restarts clean
		c.logger.Warn("roster reply truncated, discarding buffer", "error", err)
		buf.Reset()
		c.queryPending.Store(false)

		return
	}
	if !result.Complete {
		return
	}

	if len(result.Locos) == 0 {
		c.logger.Warn("roster reply contained no locomotives", "scanned", result.Scanned, "skipped", result.Skipped)
		buf.Reset()
		c.queryPending.Store(false)

		return
	}

	added := c.roster.Commit(result.Locos)
	c.logger.Info("roster loaded",
		"count", added,
		"scanned", result.Scanned,
		"skipped", result.Skipped,
	)

	buf.Reset()
	c.rosterLoaded.Store(true)
	c.queryPending.Store(false)

	// the selection may now point at a different locomotive; force the
	// operator back to zero before driving
	c.interlock.Disable(LocomotiveChanged)

	// first successful roster load proves the configured server is real
	if c.reconn != nil {
		c.reconn.Arm()
	}
}

// queryWatch is the periodic roster query bookkeeping: it expires a pending
// query after the query timeout and re-issues one at the query interval until
// the roster loads, then stops itself.
func (c *Controller) queryWatch() bool {
	if c.rosterLoaded.Load() {
		return false
	}

	now := time.Now().UnixMilli()

	if c.queryPending.Load() && now-c.queryStart.Load() > c.cfg.queryTimeout.Milliseconds() {
		c.logger.Warn("roster query timed out")
		c.queryPending.Store(false)
	}

	if !c.queryPending.Load() &&
		c.link.State() == ConnectedState &&
		now-c.lastQuery.Load() >= c.cfg.queryInterval.Milliseconds() {
		if err := c.QueryLocomotives(); err != nil {
			c.logger.Warn("roster re-query failed", "error", err)
		}
	}

	return true
}

// onReconnected runs after every successful reconnect; if no roster has been
// loaded yet, the query is re-issued immediately rather than waiting for the
// query interval.
func (c *Controller) onReconnected() {
	if c.rosterLoaded.Load() {
		return
	}

	if err := c.QueryLocomotives(); err != nil {
		c.logger.Warn("roster query after reconnect failed", "error", err)
	}
}
