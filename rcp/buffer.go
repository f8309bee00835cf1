package rcp

import "strings"

const (
	// DefaultBufferLimit is the ceiling for accumulated inbound data.
	DefaultBufferLimit = 16384
	// DefaultMaxPacket is the ceiling for a single inbound read; larger reads
	// are dropped instead of buffered to bound memory use against a
	// misbehaving peer.
	DefaultMaxPacket = 8192

	// tailKeep is the suffix retained when no roster record is in progress.
	tailKeep = 4096
)

// Buffer accumulates partial protocol data between reads. It is owned
// exclusively by the connection's reader task; no locking is performed.
//
// Data is stored as a string; byte slices that are not valid UTF-8 are kept
// as-is, which matches the lossy-fallback behaviour the protocol tolerates.
// When the buffer exceeds its limit the truncation policy preferentially
// preserves the start of an in-progress roster record over arbitrary suffix
// retention.
type Buffer struct {
	data      string
	limit     int
	maxPacket int
}

// NewBuffer creates a receive buffer with the given total ceiling and
// single-packet ceiling. Non-positive values select the defaults.
func NewBuffer(limit, maxPacket int) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacket
	}

	return &Buffer{limit: limit, maxPacket: maxPacket}
}

// Append adds newly received bytes to the buffer and enforces the size
// ceilings. It returns true if the packet was dropped for exceeding the
// single-packet ceiling.
func (b *Buffer) Append(data []byte) (dropped bool) {
	if len(data) > b.maxPacket {
		return true
	}

	b.data += string(data)

	if len(b.data) > b.limit {
		if idx := strings.Index(b.data, rosterOpen); idx >= 0 {
			// keep the in-progress roster record from its start
			b.data = b.data[idx:]
			if len(b.data) > b.limit {
				b.data = b.data[:b.limit]
			}
		} else if len(b.data) > tailKeep {
			b.data = b.data[len(b.data)-tailKeep:]
		}
	}

	return false
}

// String returns the accumulated data.
func (b *Buffer) String() string {
	return b.data
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Reset drops all buffered data.
func (b *Buffer) Reset() {
	b.data = ""
}
