// Package rcp implements the wire format of the Rocrail client protocol subset
// spoken by the throttle: a length-prefixed XML envelope around single
// self-closing command tags, and the locomotive roster record (<lclist>)
// returned by the control server.
//
// The protocol is intentionally degenerate and is parsed with substring
// scanning rather than a real XML parser; the subset is regular enough and a
// full parser would cost more memory than the target hardware has. The
// scanning is isolated behind ExtractRoster so it could be swapped for a real
// parser without touching callers.
//
// Key pieces:
//   - Encode/EncodeNamed/Decode: the <xmlh><xml size="N"/></xmlh> envelope.
//   - SpeedCommand/FunctionCommand/RosterQuery: outgoing payload builders.
//   - Buffer: bounded accumulation of partial inbound data between reads.
//   - ExtractRoster: tolerant extraction of locomotive definitions from an
//     accumulated roster record.
package rcp
