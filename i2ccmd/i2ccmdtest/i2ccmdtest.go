// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2ccmdtest is meant to be used to test drivers built on i2ccmd.
//
// Controller simulates register mapped devices behind a bus controller,
// records every transaction as a list of wire events and can inject a
// missing acknowledgement or a timeout at any event.
package i2ccmdtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/expander/i2ccmd"
)

// Kind is the kind of a wire event.
type Kind uint8

const (
	Start Kind = iota
	Stop
	Write // byte sent by the master, Ack set by the device
	Read  // byte sent by the device, Ack set by the master
)

// Event is one primitive as seen on the wire.
type Event struct {
	Kind Kind
	Byte byte
	Ack  bool
}

// String formats the event as START, STOP or 0x40(ACK) / 0xFF(NACK).
func (e Event) String() string {
	switch e.Kind {
	case Start:
		return "START"
	case Stop:
		return "STOP"
	}
	if e.Ack {
		return fmt.Sprintf("0x%02X(ACK)", e.Byte)
	}
	return fmt.Sprintf("0x%02X(NACK)", e.Byte)
}

// Device is a simulated register mapped device with an auto-incrementing
// register pointer, like the MCP23017 in its default configuration.
type Device struct {
	Regs [256]byte
	ptr  byte
}

// Fault injects a failure at event Event (0 based) of transaction Tx (0
// based, counting every Exec). A nil Err makes the device not acknowledge
// the byte and is only valid on write events. Any other Err aborts the
// transaction with it before the event happens.
type Fault struct {
	Tx    int
	Event int
	Err   error
}

// Controller implements i2ccmd.Controller.
type Controller struct {
	sync.Mutex
	// Devices maps 7-bit addresses to simulated devices.
	Devices map[uint8]*Device
	// Faults lists injected failures.
	Faults []Fault
	// InstallErr is returned by Install when set.
	InstallErr error
	// Delay is spent before each event, honoring the transaction deadline.
	Delay time.Duration

	// Installed records the configuration of each installed channel.
	Installed map[i2ccmd.Channel]i2ccmd.Config
	// Txs records the wire events of every transaction.
	Txs [][]Event
}

// Install implements i2ccmd.Controller.
func (c *Controller) Install(ch i2ccmd.Channel, cfg i2ccmd.Config) error {
	c.Lock()
	defer c.Unlock()
	if c.InstallErr != nil {
		return c.InstallErr
	}
	if c.Installed == nil {
		c.Installed = map[i2ccmd.Channel]i2ccmd.Config{}
	}
	c.Installed[ch] = cfg
	return nil
}

// Exec implements i2ccmd.Controller.
func (c *Controller) Exec(ctx context.Context, ch i2ccmd.Channel, cmds []i2ccmd.Cmd) error {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.Installed[ch]; !ok {
		return i2ccmd.ErrNotInstalled
	}
	r := run{c: c, ctx: ctx, tx: len(c.Txs)}
	c.Txs = append(c.Txs, nil)
	for _, cmd := range cmds {
		if err := r.do(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Wire returns the events of transaction tx formatted with Event.String.
func (c *Controller) Wire(tx int) []string {
	c.Lock()
	defer c.Unlock()
	if tx >= len(c.Txs) {
		return nil
	}
	out := make([]string, len(c.Txs[tx]))
	for i, e := range c.Txs[tx] {
		out[i] = e.String()
	}
	return out
}

// run is the state of one transaction.
type run struct {
	c     *Controller
	ctx   context.Context
	tx    int
	event int
	bytes int

	dev      *Device
	expAddr  bool
	reading  bool
	selected bool
}

func (r *run) do(cmd i2ccmd.Cmd) error {
	switch cmd.Op {
	case i2ccmd.OpStart:
		r.expAddr = true
		return r.emit(Event{Kind: Start})
	case i2ccmd.OpStop:
		r.dev = nil
		return r.emit(Event{Kind: Stop})
	case i2ccmd.OpWrite:
		for _, b := range cmd.Data {
			nack, err := r.fault()
			if err != nil {
				return err
			}
			e := Event{Kind: Write, Byte: b}
			if !nack {
				e = r.write(b)
			}
			if err := r.emit(e); err != nil {
				return err
			}
			if cmd.CheckAck && !e.Ack {
				return &i2ccmd.NackError{Index: r.bytes - 1, Byte: b}
			}
		}
	case i2ccmd.OpRead:
		for i := range cmd.Buf {
			b := byte(0xFF)
			if r.dev != nil && r.reading {
				b = r.dev.Regs[r.dev.ptr]
				r.dev.ptr++
			}
			if err := r.emit(Event{Kind: Read, Byte: b, Ack: cmd.Ack == i2ccmd.ACK}); err != nil {
				return err
			}
			cmd.Buf[i] = b
		}
	}
	return nil
}

// write returns the event for a byte sent by the master, updating the
// addressed device.
func (r *run) write(b byte) Event {
	e := Event{Kind: Write, Byte: b}
	if r.expAddr {
		r.expAddr = false
		r.dev = r.c.Devices[b>>1]
		r.reading = b&i2ccmd.ReadBit != 0
		r.selected = false
		e.Ack = r.dev != nil
		return e
	}
	if r.dev == nil || r.reading {
		return e
	}
	if !r.selected {
		r.dev.ptr = b
		r.selected = true
	} else {
		r.dev.Regs[r.dev.ptr] = b
		r.dev.ptr++
	}
	e.Ack = true
	return e
}

// fault waits for the event slot and reports an injected failure for it.
func (r *run) fault() (bool, error) {
	if r.c.Delay > 0 {
		t := time.NewTimer(r.c.Delay)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return false, i2ccmd.ErrTimeout
		case <-t.C:
		}
	} else if r.ctx.Err() != nil {
		return false, i2ccmd.ErrTimeout
	}
	nack := false
	for _, f := range r.c.Faults {
		if f.Tx != r.tx || f.Event != r.event {
			continue
		}
		if f.Err != nil {
			return false, f.Err
		}
		nack = true
	}
	return nack, nil
}

// emit records e. Events other than writes go through fault here; writes
// already did. Only a write can be left unacknowledged, a NACK fault aimed at
// any other event fails the transaction with a descriptive error.
func (r *run) emit(e Event) error {
	if e.Kind != Write {
		nack, err := r.fault()
		if err != nil {
			return err
		}
		if nack {
			return fmt.Errorf("i2ccmdtest: NACK fault on event %d (%s) of tx %d, only writes can be NACKed", r.event, e, r.tx)
		}
	}
	r.event++
	r.c.Txs[r.tx] = append(r.c.Txs[r.tx], e)
	if e.Kind == Write || e.Kind == Read {
		r.bytes++
	}
	return nil
}

var _ i2ccmd.Controller = &Controller{}
