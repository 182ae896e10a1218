// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements an I²C bus master on two GPIO pins.
//
// Both lines are driven open-drain: a line is released by configuring the pin
// as an input, with the internal pull-up when requested, and driven by
// setting the pin as a low output. Every command of an i2ccmd link maps to
// the corresponding bus condition, so acknowledgement checking, ACK/NACK on
// reads and repeated starts are exactly what the link asks for.
//
// Clock stretching is supported and bounded by the transaction deadline.
//
// The timing is best effort; the actual clock is slower than requested on a
// loaded host.
package bitbang

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/expander/i2ccmd"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Controller is an i2ccmd.Controller bit-banging one bus per channel.
type Controller struct {
	mu       sync.Mutex
	attached map[i2ccmd.Channel][2]gpio.PinIO
	buses    map[i2ccmd.Channel]*bus
}

// New returns a Controller resolving pin names with gpioreg.ByName.
func New() *Controller {
	return &Controller{
		attached: map[i2ccmd.Channel][2]gpio.PinIO{},
		buses:    map[i2ccmd.Channel]*bus{},
	}
}

// Attach makes ch use sda and scl instead of looking the pins up by name.
func (c *Controller) Attach(ch i2ccmd.Channel, sda, scl gpio.PinIO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[ch] = [2]gpio.PinIO{sda, scl}
}

// Install implements i2ccmd.Controller.
//
// Both lines are released and must read high; a line held low is reported
// as a configuration failure. Installing an installed channel replaces its
// configuration.
func (c *Controller) Install(ch i2ccmd.Channel, cfg i2ccmd.Config) error {
	if cfg.Frequency == 0 {
		cfg.Frequency = i2ccmd.DefaultFrequency
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &bus{pull: gpio.Float, half: cfg.Frequency.Period() / 2}
	if cfg.PullUp {
		b.pull = gpio.PullUp
	}
	if p, ok := c.attached[ch]; ok {
		b.sda, b.scl = p[0], p[1]
	} else {
		if b.sda = gpioreg.ByName(cfg.SDA); b.sda == nil {
			return fmt.Errorf("bitbang: SDA pin %q not found", cfg.SDA)
		}
		if b.scl = gpioreg.ByName(cfg.SCL); b.scl == nil {
			return fmt.Errorf("bitbang: SCL pin %q not found", cfg.SCL)
		}
	}
	if err := b.release(b.sda); err != nil {
		return fmt.Errorf("bitbang: SDA: %w", err)
	}
	if err := b.release(b.scl); err != nil {
		return fmt.Errorf("bitbang: SCL: %w", err)
	}
	if b.sda.Read() == gpio.Low || b.scl.Read() == gpio.Low {
		return fmt.Errorf("bitbang: channel %s: bus is held low", ch)
	}
	c.buses[ch] = b
	return nil
}

// Exec implements i2ccmd.Controller.
func (c *Controller) Exec(ctx context.Context, ch i2ccmd.Channel, cmds []i2ccmd.Cmd) error {
	c.mu.Lock()
	b, ok := c.buses[ch]
	c.mu.Unlock()
	if !ok {
		return i2ccmd.ErrNotInstalled
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := master{bus: b, ctx: ctx}
	for _, cmd := range cmds {
		if err := m.do(cmd); err != nil {
			m.abort(err)
			return err
		}
	}
	return nil
}

func (c *Controller) String() string {
	return "bitbang"
}

type bus struct {
	mu   sync.Mutex
	sda  gpio.PinIO
	scl  gpio.PinIO
	pull gpio.Pull
	half time.Duration
}

func (b *bus) release(p gpio.PinIO) error {
	return p.In(b.pull, gpio.NoEdge)
}

func (b *bus) drive(p gpio.PinIO) error {
	return p.Out(gpio.Low)
}

// master runs one transaction.
type master struct {
	*bus
	ctx   context.Context
	index int
	// owner is set once a start condition was driven.
	owner bool
	// stretched is set when a target held SCL low past the deadline.
	stretched bool
}

func (m *master) do(cmd i2ccmd.Cmd) error {
	switch cmd.Op {
	case i2ccmd.OpStart:
		return m.start()
	case i2ccmd.OpStop:
		return m.stop()
	case i2ccmd.OpWrite:
		for _, v := range cmd.Data {
			acked, err := m.writeByte(v)
			if err != nil {
				return err
			}
			m.index++
			if cmd.CheckAck && !acked {
				return &i2ccmd.NackError{Index: m.index - 1, Byte: v}
			}
		}
	case i2ccmd.OpRead:
		for i := range cmd.Buf {
			v, err := m.readByte(cmd.Ack)
			if err != nil {
				return err
			}
			m.index++
			cmd.Buf[i] = v
		}
	default:
		return i2ccmd.ErrUnsupported
	}
	return nil
}

// abort leaves the bus released after a failure. A stop condition is sent
// whenever this master owns the bus and SCL is not held low by a target.
func (m *master) abort(err error) {
	if m.owner && !m.stretched && err != i2ccmd.ErrArbitrationLost {
		if m.stop() == nil {
			return
		}
	}
	_ = m.release(m.sda)
	_ = m.release(m.scl)
}

func (m *master) delay() {
	if m.half > 0 {
		time.Sleep(m.half)
	}
}

// clockHigh releases SCL and waits for slaves stretching the clock.
func (m *master) clockHigh() error {
	if err := m.release(m.scl); err != nil {
		return err
	}
	for m.scl.Read() == gpio.Low {
		if m.ctx.Err() != nil {
			m.stretched = true
			return i2ccmd.ErrTimeout
		}
		m.delay()
	}
	return nil
}

func (m *master) clockLow() error {
	return m.drive(m.scl)
}

// start issues a start condition. With SCL low, it is a repeated start.
func (m *master) start() error {
	if m.ctx.Err() != nil {
		return i2ccmd.ErrTimeout
	}
	if err := m.release(m.sda); err != nil {
		return err
	}
	m.delay()
	if err := m.clockHigh(); err != nil {
		return err
	}
	if m.sda.Read() == gpio.Low {
		return i2ccmd.ErrArbitrationLost
	}
	m.delay()
	if err := m.drive(m.sda); err != nil {
		return err
	}
	m.owner = true
	m.delay()
	return m.clockLow()
}

func (m *master) stop() error {
	if err := m.drive(m.sda); err != nil {
		return err
	}
	m.delay()
	if err := m.clockHigh(); err != nil {
		return err
	}
	m.delay()
	if err := m.release(m.sda); err != nil {
		return err
	}
	m.delay()
	return nil
}

func (m *master) writeBit(bit bool) error {
	var err error
	if bit {
		err = m.release(m.sda)
	} else {
		err = m.drive(m.sda)
	}
	if err != nil {
		return err
	}
	m.delay()
	if err := m.clockHigh(); err != nil {
		return err
	}
	if bit && m.sda.Read() == gpio.Low {
		return i2ccmd.ErrArbitrationLost
	}
	m.delay()
	return m.clockLow()
}

func (m *master) readBit() (bool, error) {
	if err := m.release(m.sda); err != nil {
		return false, err
	}
	m.delay()
	if err := m.clockHigh(); err != nil {
		return false, err
	}
	bit := m.sda.Read() == gpio.High
	m.delay()
	return bit, m.clockLow()
}

// writeByte sends v MSB first and returns whether the receiver acknowledged
// it.
func (m *master) writeByte(v byte) (bool, error) {
	if m.ctx.Err() != nil {
		return false, i2ccmd.ErrTimeout
	}
	for i := 7; i >= 0; i-- {
		if err := m.writeBit(v&(1<<uint(i)) != 0); err != nil {
			return false, err
		}
	}
	nack, err := m.readBit()
	return !nack, err
}

// readByte receives a byte MSB first and answers with ack.
func (m *master) readByte(ack i2ccmd.Ack) (byte, error) {
	if m.ctx.Err() != nil {
		return 0, i2ccmd.ErrTimeout
	}
	var v byte
	for i := 0; i < 8; i++ {
		bit, err := m.readBit()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, m.writeBit(ack == i2ccmd.NACK)
}

var _ i2ccmd.Controller = &Controller{}
