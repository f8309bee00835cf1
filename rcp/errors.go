package rcp

import "errors"

var (
	// ErrInvalidHeader indicates that a frame does not start with the expected envelope header.
	ErrInvalidHeader = errors.New("rcp: invalid envelope header")
	// ErrInvalidSize indicates that the envelope size attribute is missing or not a number.
	ErrInvalidSize = errors.New("rcp: invalid envelope size attribute")
	// ErrShortFrame indicates that a frame is shorter than its envelope announces.
	ErrShortFrame = errors.New("rcp: frame shorter than announced payload size")
	// ErrRosterTruncated indicates a roster record whose close sentinel arrived without
	// an open sentinel. The record is unrecoverable for this pass; the caller is
	// expected to reset the receive buffer.
	ErrRosterTruncated = errors.New("rcp: truncated roster record, close sentinel without open sentinel")
)
