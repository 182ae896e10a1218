// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// Opener opens the periph.io bus backing a channel.
type Opener func(name string) (i2c.BusCloser, error)

// Host is a Controller running command links on periph.io I²C buses.
//
// The host bus driver owns the wire: it checks the acknowledgement of every
// byte and acknowledges all received bytes but the last. Host therefore only
// accepts the link shapes built by WriteRegister and ReadRegister, that is a
// write, a read, or a write followed by a repeated start and a read to the
// same address. Anything else fails with ErrUnsupported.
//
// Installing a channel that is already installed with the same Config is a
// no-op so that several devices can share one bus.
type Host struct {
	open Opener

	mu        sync.Mutex
	attached  map[Channel]i2c.Bus
	installed map[Channel]*hostChannel
}

type hostChannel struct {
	mu     sync.Mutex
	bus    i2c.Bus
	closer io.Closer
	cfg    Config
}

// NewHost returns a Host opening buses with open. A nil open uses
// i2creg.Open, which requires host.Init() to have been called.
func NewHost(open Opener) *Host {
	if open == nil {
		open = i2creg.Open
	}
	return &Host{
		open:      open,
		attached:  map[Channel]i2c.Bus{},
		installed: map[Channel]*hostChannel{},
	}
}

// Attach makes ch use an already opened bus. The bus is not closed by Close.
func (h *Host) Attach(ch Channel, bus i2c.Bus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[ch] = bus
}

// Install implements Controller.
//
// When the bus exposes its pins through i2c.Pins, the pin names must match
// the ones in cfg. The clock frequency is applied with SetSpeed. Pull-ups of
// a host bus are part of the board and cfg.PullUp is not applied.
func (h *Host) Install(ch Channel, cfg Config) error {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if hc, ok := h.installed[ch]; ok {
		if hc.cfg != cfg {
			return fmt.Errorf("i2ccmd: channel %s already installed with %s", ch, hc.cfg)
		}
		return nil
	}
	hc := &hostChannel{cfg: cfg}
	if bus, ok := h.attached[ch]; ok {
		hc.bus = bus
	} else {
		bc, err := h.open(ch.String())
		if err != nil {
			return fmt.Errorf("i2ccmd: opening channel %s: %w", ch, err)
		}
		hc.bus = bc
		hc.closer = bc
	}
	if err := configureBus(hc.bus, cfg); err != nil {
		if hc.closer != nil {
			err = multierr.Append(err, hc.closer.Close())
		}
		return fmt.Errorf("i2ccmd: channel %s: %w", ch, err)
	}
	h.installed[ch] = hc
	return nil
}

func configureBus(bus i2c.Bus, cfg Config) error {
	if p, ok := bus.(i2c.Pins); ok {
		if err := checkPin("SDA", p.SDA(), cfg.SDA); err != nil {
			return err
		}
		if err := checkPin("SCL", p.SCL(), cfg.SCL); err != nil {
			return err
		}
	}
	return bus.SetSpeed(cfg.Frequency)
}

func checkPin(line string, got gpio.PinIO, want string) error {
	if want == "" || got == nil || got == gpio.INVALID {
		return nil
	}
	if got.Name() != want {
		return fmt.Errorf("%s is %s, not %s", line, got.Name(), want)
	}
	return nil
}

// Exec implements Controller.
//
// The bus transaction cannot be aborted once submitted. When ctx expires
// first, ErrTimeout is returned and the channel stays busy until the bus
// driver gives up.
func (h *Host) Exec(ctx context.Context, ch Channel, cmds []Cmd) error {
	h.mu.Lock()
	hc, ok := h.installed[ch]
	h.mu.Unlock()
	if !ok {
		return ErrNotInstalled
	}
	t, err := planTx(cmds)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return ErrTimeout
	}
	done := make(chan error, 1)
	go func() {
		hc.mu.Lock()
		defer hc.mu.Unlock()
		done <- hc.bus.Tx(t.addr, t.w, t.r)
	}()
	select {
	case <-ctx.Done():
		return ErrTimeout
	case err := <-done:
		if err != nil {
			return err
		}
	}
	t.scatter()
	return nil
}

// Close closes every bus opened by Install.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	for ch, hc := range h.installed {
		if hc.closer != nil {
			err = multierr.Append(err, hc.closer.Close())
		}
		delete(h.installed, ch)
	}
	return err
}

func (h *Host) String() string {
	return "i2ccmd.Host"
}

// hostTx is a command link flattened into one i2c.Bus.Tx call.
type hostTx struct {
	addr uint16
	w    []byte
	r    []byte
	bufs [][]byte
}

func (t *hostTx) scatter() {
	off := 0
	for _, b := range t.bufs {
		off += copy(b, t.r[off:])
	}
}

// planTx splits cmds at each start condition and maps the segments on a
// single Tx.
func planTx(cmds []Cmd) (*hostTx, error) {
	if len(cmds) < 2 || cmds[0].Op != OpStart || cmds[len(cmds)-1].Op != OpStop {
		return nil, ErrUnsupported
	}
	var segs [][]Cmd
	for _, c := range cmds[:len(cmds)-1] {
		switch c.Op {
		case OpStart:
			segs = append(segs, nil)
		case OpStop:
			return nil, ErrUnsupported
		default:
			segs[len(segs)-1] = append(segs[len(segs)-1], c)
		}
	}
	if len(segs) > 2 {
		return nil, ErrUnsupported
	}
	t := &hostTx{}
	for i, seg := range segs {
		addr, read, rest, err := splitAddress(seg)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			t.addr = addr
		} else if addr != t.addr || !read {
			return nil, ErrUnsupported
		}
		if !read {
			if i != 0 {
				return nil, ErrUnsupported
			}
			for _, c := range rest {
				if c.Op != OpWrite {
					return nil, ErrUnsupported
				}
				t.w = append(t.w, c.Data...)
			}
			continue
		}
		for j, c := range rest {
			last := j == len(rest)-1
			if c.Op != OpRead || (last && c.Ack != NACK) || (!last && c.Ack != ACK) {
				return nil, ErrUnsupported
			}
			t.bufs = append(t.bufs, c.Buf)
			t.r = append(t.r, make([]byte, len(c.Buf))...)
		}
	}
	return t, nil
}

// splitAddress extracts the address byte leading a segment.
func splitAddress(seg []Cmd) (uint16, bool, []Cmd, error) {
	if len(seg) == 0 || seg[0].Op != OpWrite || len(seg[0].Data) == 0 {
		return 0, false, nil, ErrUnsupported
	}
	a := seg[0].Data[0]
	rest := seg[1:]
	if len(seg[0].Data) > 1 {
		rest = append([]Cmd{{Op: OpWrite, Data: seg[0].Data[1:], CheckAck: seg[0].CheckAck}}, rest...)
	}
	return uint16(a >> 1), a&ReadBit != 0, rest, nil
}

var _ Controller = &Host{}
