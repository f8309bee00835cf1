package throttle

import (
	"sync"

	"github.com/arloliu/go-rocrail/logger"
)

// InterlockEvent identifies the control event that disabled speed sending.
type InterlockEvent uint8

// Control events that disable speed sending until the physical throttle
// returns to zero.
const (
	// LocomotiveChanged indicates the selection moved to another locomotive.
	LocomotiveChanged InterlockEvent = iota
	// DirectionChanged indicates the travel direction was toggled.
	DirectionChanged
	// EmergencyStop indicates the operator hit the emergency stop.
	EmergencyStop
)

// String returns string representation of the event.
func (e InterlockEvent) String() string {
	switch e {
	case LocomotiveChanged:
		return "locomotive-changed"
	case DirectionChanged:
		return "direction-changed"
	case EmergencyStop:
		return "emergency-stop"
	default:
		return "unknown"
	}
}

// Interlock is the safety gate between the physical throttle and the wire.
// After a locomotive change, direction change, or emergency stop, speed
// sending stays disabled until the operator physically returns the throttle
// to zero; only a live reading of exactly zero re-enables it. This prevents
// a stale throttle position from commanding an unexpected speed.
type Interlock struct {
	mu        sync.Mutex
	enabled   bool
	lastEvent InterlockEvent
	tripped   bool
	logger    logger.Logger
}

// NewInterlock creates an interlock in the enabled state.
func NewInterlock(log logger.Logger) *Interlock {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Interlock{enabled: true, logger: log}
}

// Disable gates speed sending until the throttle returns to zero, recording
// the event that tripped the gate. Disabling an already disabled interlock
// updates the event.
func (il *Interlock) Disable(event InterlockEvent) {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.enabled = false
	il.lastEvent = event
	il.tripped = true

	il.logger.Info("speed sending disabled", "event", event)
}

// CheckSample inspects a live throttle reading while the gate is closed.
// A reading of exactly zero re-enables speed sending; any other value keeps
// the gate closed. It returns true if this sample re-enabled sending.
//
// Calling CheckSample while the interlock is enabled is a no-op.
func (il *Interlock) CheckSample(speed int) bool {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.enabled {
		return false
	}
	if speed != 0 {
		return false
	}

	il.enabled = true
	il.logger.Info("throttle at zero, speed sending re-enabled", "event", il.lastEvent)

	return true
}

// Enabled returns whether speed sending is currently allowed.
func (il *Interlock) Enabled() bool {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.enabled
}

// LastEvent returns the event that most recently tripped the gate, and false
// if the gate has never been tripped.
func (il *Interlock) LastEvent() (InterlockEvent, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.lastEvent, il.tripped
}
