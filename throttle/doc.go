// Package throttle implements the connection/protocol engine of a handheld
// model-railway throttle: the TCP session lifecycle to the Rocrail control
// server, the reconnection/backoff state machine, and the safety-interlock
// state machine that gates when speed commands may be transmitted.
//
// Key pieces:
//   - Connection: owns one TCP session; a sender task drains the FIFO outbound
//     queue and a receiver task feeds the receive buffer. At most one control
//     server connection is live at a time.
//   - SessionStateMgr: the shared session status (disconnected, connecting,
//     connected, lost, reconnecting) observed by every subsystem; the sole
//     source of truth for connectivity.
//   - Reconnector: a tiered-backoff, single-flight retry loop armed after the
//     first successful roster load.
//   - Interlock: the safety gate; once disabled by a locomotive, direction or
//     emergency event it only re-enables when the live throttle reading is
//     exactly zero.
//   - Controller: the composition surface wiring input events to protocol
//     sends and exposing status to the presentation layer.
//
// Connection establishment:
//   - Create a ConnectionConfig with NewConnectionConfig().
//   - Create a Controller with NewController and call Start.
//   - Feed throttle samples through Controller.ThrottleSample on a short fixed
//     period; this path stays responsive regardless of network state.
//
// Nothing in this package terminates the process: transport errors are
// recovered by the Reconnector, protocol errors by skip-and-continue, and
// invariant violations surface as no-op errors to the caller.
package throttle
