// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds one transaction.
const DefaultTimeout = 500 * time.Millisecond

// Direction bits OR'd into the shifted device address.
const (
	WriteBit byte = 0
	ReadBit  byte = 1
)

// Op is one bus primitive.
type Op uint8

const (
	OpStart Op = iota // start or repeated start condition
	OpStop            // stop condition
	OpWrite           // bytes sent by the master
	OpRead            // bytes received by the master
)

func (o Op) String() string {
	switch o {
	case OpStart:
		return "START"
	case OpStop:
		return "STOP"
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Ack is the acknowledgement bit the master drives after receiving a byte.
type Ack uint8

const (
	ACK  Ack = 0 // request more data
	NACK Ack = 1 // last byte
)

func (a Ack) String() string {
	if a == NACK {
		return "NACK"
	}
	return "ACK"
}

// Cmd is a single primitive of a command link.
type Cmd struct {
	Op Op
	// Data holds the bytes of an OpWrite.
	Data []byte
	// CheckAck requires every byte of an OpWrite to be acknowledged.
	CheckAck bool
	// Buf receives the bytes of an OpRead.
	Buf []byte
	// Ack is driven after every byte of an OpRead.
	Ack Ack
}

func (c Cmd) String() string {
	switch c.Op {
	case OpWrite:
		return fmt.Sprintf("WRITE % X check=%t", c.Data, c.CheckAck)
	case OpRead:
		return fmt.Sprintf("READ %d %s", len(c.Buf), c.Ack)
	default:
		return c.Op.String()
	}
}

// Link accumulates the primitives of one transaction. It is not safe for
// concurrent use and must be executed only once.
type Link struct {
	cmds     []Cmd
	released bool
}

// Open begins a transaction and emits its start condition.
func Open() *Link {
	l := &Link{cmds: make([]Cmd, 0, 8)}
	l.Start()
	return l
}

// Start appends a start condition. After the first one it is a repeated
// start.
func (l *Link) Start() {
	l.cmds = append(l.cmds, Cmd{Op: OpStart})
}

// Stop appends a stop condition.
func (l *Link) Stop() {
	l.cmds = append(l.cmds, Cmd{Op: OpStop})
}

// WriteByte appends one byte sent by the master.
func (l *Link) WriteByte(b byte, checkAck bool) {
	l.cmds = append(l.cmds, Cmd{Op: OpWrite, Data: []byte{b}, CheckAck: checkAck})
}

// Write appends a copy of p sent by the master. An empty p is a no-op.
func (l *Link) Write(p []byte, checkAck bool) {
	if len(p) == 0 {
		return
	}
	l.cmds = append(l.cmds, Cmd{Op: OpWrite, Data: append([]byte(nil), p...), CheckAck: checkAck})
}

// Read appends the reception of len(buf) bytes, each followed by ack. An
// empty buf is a no-op.
func (l *Link) Read(buf []byte, ack Ack) {
	if len(buf) == 0 {
		return
	}
	l.cmds = append(l.cmds, Cmd{Op: OpRead, Buf: buf, Ack: ack})
}

// Cmds returns the primitives accumulated so far.
func (l *Link) Cmds() []Cmd {
	return l.cmds
}

// Released returns true once the link was executed.
func (l *Link) Released() bool {
	return l.released
}

func (l *Link) release() {
	l.released = true
	l.cmds = nil
}

// Execute appends the stop condition and runs the link on channel ch of c,
// bounded by timeout. The link is released whatever the outcome. A timeout
// of 0 means DefaultTimeout.
//
// The error is the controller's, returned unchanged, except that a deadline
// expiring in the controller is reported as ErrTimeout.
func Execute(ctx context.Context, c Controller, ch Channel, l *Link, timeout time.Duration) error {
	if l.released {
		return ErrReleased
	}
	defer l.release()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l.Stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := c.Exec(ctx, ch, l.cmds)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
