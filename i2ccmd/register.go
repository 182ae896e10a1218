// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"context"
	"time"
)

// RegisterIO reads and writes the registers of a device on a channel.
type RegisterIO interface {
	WriteRegister(ctx context.Context, ch Channel, addr uint8, reg byte, data []byte) error
	ReadRegister(ctx context.Context, ch Channel, addr uint8, reg byte, buf []byte) error
}

// Transport binds a Controller to a transaction timeout.
type Transport struct {
	Controller Controller
	// Timeout bounds each transaction. 0 means DefaultTimeout.
	Timeout time.Duration
}

// WriteRegister implements RegisterIO.
func (t *Transport) WriteRegister(ctx context.Context, ch Channel, addr uint8, reg byte, data []byte) error {
	return WriteRegister(ctx, t.Controller, ch, addr, reg, data, t.Timeout)
}

// ReadRegister implements RegisterIO.
func (t *Transport) ReadRegister(ctx context.Context, ch Channel, addr uint8, reg byte, buf []byte) error {
	return ReadRegister(ctx, t.Controller, ch, addr, reg, buf, t.Timeout)
}

// WriteRegister writes data to register reg of the device at addr. Every byte
// must be acknowledged; the first one that is not aborts the transaction.
//
// An empty data only addresses the register.
func WriteRegister(ctx context.Context, c Controller, ch Channel, addr uint8, reg byte, data []byte, timeout time.Duration) error {
	if addr > 0x7F {
		return ErrInvalidAddress
	}
	l := Open()
	l.WriteByte(addr<<1|WriteBit, true)
	l.WriteByte(reg, true)
	l.Write(data, true)
	return Execute(ctx, c, ch, l, timeout)
}

// ReadRegister fills buf from register reg of the device at addr, using a
// repeated start between the register selection and the read. All bytes but
// the last are acknowledged by the master, the last one is not.
//
// An empty buf is a successful no-op that does not touch the bus. buf is
// only modified when the transaction succeeds.
func ReadRegister(ctx context.Context, c Controller, ch Channel, addr uint8, reg byte, buf []byte, timeout time.Duration) error {
	size := len(buf)
	if size == 0 {
		return nil
	}
	if addr > 0x7F {
		return ErrInvalidAddress
	}
	rx := make([]byte, size)
	l := Open()
	l.WriteByte(addr<<1|WriteBit, true)
	l.WriteByte(reg, true)
	l.Start()
	l.WriteByte(addr<<1|ReadBit, true)
	if size > 1 {
		l.Read(rx[:size-1], ACK)
	}
	l.Read(rx[size-1:], NACK)
	if err := Execute(ctx, c, ch, l, timeout); err != nil {
		return err
	}
	copy(buf, rx)
	return nil
}

var _ RegisterIO = &Transport{}
