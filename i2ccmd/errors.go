// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a transaction did not complete before its
	// deadline.
	ErrTimeout = errors.New("i2ccmd: transaction timed out")
	// ErrArbitrationLost is returned when another master drove the data line
	// while this one was transmitting.
	ErrArbitrationLost = errors.New("i2ccmd: arbitration lost")
	// ErrNotInstalled is returned when a link is executed on a channel that
	// was never installed.
	ErrNotInstalled = errors.New("i2ccmd: channel not installed")
	// ErrUnsupported is returned by controllers that cannot express the
	// sequence of primitives of a link.
	ErrUnsupported = errors.New("i2ccmd: command sequence not supported by controller")
	// ErrInvalidAddress is returned for device addresses that do not fit in
	// 7 bits.
	ErrInvalidAddress = errors.New("i2ccmd: invalid 7-bit address")
	// ErrReleased is returned when executing a link a second time.
	ErrReleased = errors.New("i2ccmd: command link already executed")
)

// NackError reports a byte that was not acknowledged by the receiver while
// the master required an acknowledgement.
type NackError struct {
	// Index is the position of the byte in the transaction, counting every
	// byte written or read since the first start condition.
	Index int
	// Byte is the value that was sent.
	Byte byte
}

func (e *NackError) Error() string {
	return fmt.Sprintf("i2ccmd: byte #%d (0x%02X) not acknowledged", e.Index, e.Byte)
}

// IsNack returns true if err is or wraps a *NackError.
func IsNack(err error) bool {
	var n *NackError
	return errors.As(err, &n)
}
