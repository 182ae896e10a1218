// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/GermanBionicSystems/expander/i2ccmd"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

func TestWriteRegister(t *testing.T) {
	c, w := newBus(t)
	err := i2ccmd.WriteRegister(context.Background(), c, 0, 0x20, 0x00, []byte{0xFF}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"START", "W40", "W00", "WFF", "STOP"}
	if !reflect.DeepEqual(w.dev.log, want) {
		t.Fatalf("wire %v, want %v", w.dev.log, want)
	}
	if w.dev.regs[0] != 0xFF {
		t.Fatalf("register = 0x%02X", w.dev.regs[0])
	}
	if w.sdaPull != gpio.PullUp || w.sclPull != gpio.PullUp {
		t.Fatalf("pull-ups not enabled: %s %s", w.sdaPull, w.sclPull)
	}
}

func TestReadRegister(t *testing.T) {
	for _, size := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			c, w := newBus(t)
			copy(w.dev.regs[0x12:], []byte{0xAA, 0x55, 0xC3})
			buf := make([]byte, size)
			err := i2ccmd.ReadRegister(context.Background(), c, 0, 0x20, 0x12, buf, time.Second)
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"START", "W40", "W12", "START", "W41"}
			for i := 0; i < size; i++ {
				ack := "ACK"
				if i == size-1 {
					ack = "NACK"
				}
				want = append(want, fmt.Sprintf("R%02X %s", w.dev.regs[0x12+i], ack))
			}
			want = append(want, "STOP")
			if !reflect.DeepEqual(w.dev.log, want) {
				t.Fatalf("wire %v, want %v", w.dev.log, want)
			}
			for i := range buf {
				if buf[i] != w.dev.regs[0x12+i] {
					t.Fatalf("read % X", buf)
				}
			}
		})
	}
}

func TestNack(t *testing.T) {
	for _, tc := range []struct {
		name   string
		addr   uint8
		nackAt int
		index  int
		log    []string
	}{
		{"address", 0x21, -1, 0, []string{"START", "W42 NACK", "STOP"}},
		{"register", 0x20, 1, 1, []string{"START", "W40", "W05 NACK", "STOP"}},
		{"data", 0x20, 2, 2, []string{"START", "W40", "W05", "W01 NACK", "STOP"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newBus(t)
			w.dev.nackAt = tc.nackAt
			err := i2ccmd.WriteRegister(context.Background(), c, 0, tc.addr, 0x05, []byte{0x01}, time.Second)
			var nack *i2ccmd.NackError
			if !errors.As(err, &nack) {
				t.Fatalf("err = %v", err)
			}
			if nack.Index != tc.index {
				t.Errorf("index %d, want %d", nack.Index, tc.index)
			}
			if !reflect.DeepEqual(w.dev.log, tc.log) {
				t.Fatalf("wire %v, want %v", w.dev.log, tc.log)
			}
			if !w.sdaLevel() || !w.sclLevel() {
				t.Fatal("bus not released")
			}
		})
	}
}

func TestClockStretchTimeout(t *testing.T) {
	c, w := newBus(t)
	w.stretch = true
	start := time.Now()
	err := i2ccmd.WriteRegister(context.Background(), c, 0, 0x20, 0x00, []byte{0xFF}, 10*time.Millisecond)
	if err != i2ccmd.ErrTimeout {
		t.Fatalf("err = %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("took %s", d)
	}
	if w.dev.regs[0] != 0 {
		t.Fatal("register written")
	}
	if !w.sda {
		t.Fatal("SDA not released")
	}
	if n := len(w.dev.log); n != 0 && w.dev.log[n-1] == "STOP" {
		t.Fatalf("stop sent while the clock is held: %v", w.dev.log)
	}
}

// expiring is a context whose deadline passes on the n-th Err call.
type expiring struct {
	context.Context
	calls, n int
}

func (e *expiring) Err() error {
	if e.calls++; e.calls >= e.n {
		return context.DeadlineExceeded
	}
	return nil
}

func TestTimeoutSendsStop(t *testing.T) {
	data := []struct {
		name string
		n    int
		log  []string
	}{
		// Err is checked before each START and each byte.
		{"before start", 1, nil},
		{"before register", 3, []string{"START", "W40", "STOP"}},
		{"before data", 4, []string{"START", "W40", "W00", "STOP"}},
	}
	for _, line := range data {
		c, w := newBus(t)
		l := i2ccmd.Open()
		l.WriteByte(0x40, true)
		l.WriteByte(0x00, true)
		l.WriteByte(0xFF, true)
		l.Stop()
		ctx := &expiring{Context: context.Background(), n: line.n}
		if err := c.Exec(ctx, 0, l.Cmds()); err != i2ccmd.ErrTimeout {
			t.Fatalf("%s: err = %v", line.name, err)
		}
		if !reflect.DeepEqual(w.dev.log, line.log) {
			t.Fatalf("%s: wire %v, want %v", line.name, w.dev.log, line.log)
		}
		if w.dev.state != idle {
			t.Fatalf("%s: target left in state %d", line.name, w.dev.state)
		}
		if !w.sdaLevel() || !w.sclLevel() {
			t.Fatalf("%s: bus not released", line.name)
		}
		if w.dev.regs[0] != 0 {
			t.Fatalf("%s: register written", line.name)
		}
	}
}

func TestInstall(t *testing.T) {
	w := newWire()
	sda := &line{Pin: gpiotest.Pin{N: "BB_SDA", Num: 1000}, w: w}
	scl := &line{Pin: gpiotest.Pin{N: "BB_SCL", Num: 1001}, w: w, clock: true}
	if err := gpioreg.Register(sda); err != nil {
		t.Fatal(err)
	}
	defer gpioreg.Unregister(sda.Name())
	if err := gpioreg.Register(scl); err != nil {
		t.Fatal(err)
	}
	defer gpioreg.Unregister(scl.Name())

	c := New()
	if err := c.Install(0, i2ccmd.Config{SDA: "BB_SDA", SCL: "NOPE"}); err == nil {
		t.Fatal("unknown pin must fail")
	}
	if err := c.Install(0, i2ccmd.Config{SDA: "BB_SDA", SCL: "BB_SCL"}); err != nil {
		t.Fatal(err)
	}
	if w.sdaPull != gpio.Float {
		t.Fatalf("pull %s without PullUp", w.sdaPull)
	}
	if err := i2ccmd.WriteRegister(context.Background(), c, 0, 0x20, 0x01, []byte{0x0F}, time.Second); err != nil {
		t.Fatal(err)
	}
	if w.dev.regs[1] != 0x0F {
		t.Fatal("register not written")
	}

	w.stretch = true
	if err := c.Install(1, i2ccmd.Config{SDA: "BB_SDA", SCL: "BB_SCL"}); err == nil {
		t.Fatal("stuck bus must fail")
	}
	if err := c.Exec(context.Background(), 2, nil); err != i2ccmd.ErrNotInstalled {
		t.Fatalf("err = %v", err)
	}
}

func newBus(t *testing.T) (*Controller, *wire) {
	w := newWire()
	c := New()
	c.Attach(0, &line{Pin: gpiotest.Pin{N: "SDA"}, w: w}, &line{Pin: gpiotest.Pin{N: "SCL"}, w: w, clock: true})
	cfg := i2ccmd.Config{PullUp: true, Frequency: physic.MegaHertz}
	if err := c.Install(0, cfg); err != nil {
		t.Fatal(err)
	}
	return c, w
}

// line is one open-drain line of a simulated bus.
type line struct {
	gpiotest.Pin
	w     *wire
	clock bool
}

func (l *line) In(pull gpio.Pull, edge gpio.Edge) error {
	if l.clock {
		l.w.sclPull = pull
		l.w.setSCL(true)
	} else {
		l.w.sdaPull = pull
		l.w.setSDA(true)
	}
	return nil
}

func (l *line) Out(v gpio.Level) error {
	if l.clock {
		l.w.setSCL(bool(v))
	} else {
		l.w.setSDA(bool(v))
	}
	return nil
}

func (l *line) Read() gpio.Level {
	if l.clock {
		return gpio.Level(l.w.sclLevel())
	}
	return gpio.Level(l.w.sdaLevel())
}

// wire combines the master's lines with a simulated MCP23017 at 0x20.
type wire struct {
	sda, scl         bool
	sdaPull, sclPull gpio.Pull
	stretch          bool
	dev              device
}

func newWire() *wire {
	return &wire{sda: true, scl: true, dev: device{addr: 0x20, out: true, nackAt: -1}}
}

func (w *wire) sdaLevel() bool { return w.sda && w.dev.out }
func (w *wire) sclLevel() bool { return w.scl && !w.stretch }

func (w *wire) setSDA(v bool) {
	before := w.sdaLevel()
	w.sda = v
	after := w.sdaLevel()
	if before == after || !w.sclLevel() {
		return
	}
	if after {
		w.dev.stop()
	} else {
		w.dev.start()
	}
}

func (w *wire) setSCL(v bool) {
	before := w.sclLevel()
	w.scl = v
	after := w.sclLevel()
	if before == after {
		return
	}
	if after {
		w.dev.rise(w.sdaLevel())
	} else {
		w.dev.fall()
	}
}

const (
	idle = iota
	receiving
	acking
	sending
	acked
)

// device is a register mapped I²C target reacting to clock edges.
type device struct {
	addr   byte
	regs   [256]byte
	ptr    byte
	nackAt int
	log    []string

	state    int
	out      bool
	shift    byte
	n        int
	received int
	gotAddr  bool
	gotReg   bool
	reading  bool
	ack      bool
	mAck     bool
}

func (d *device) start() {
	d.log = append(d.log, "START")
	d.state = receiving
	d.shift, d.n = 0, 0
	d.gotAddr, d.gotReg = false, false
	d.out = true
}

func (d *device) stop() {
	d.log = append(d.log, "STOP")
	d.state = idle
	d.out = true
}

func (d *device) rise(sda bool) {
	switch d.state {
	case receiving:
		d.shift <<= 1
		if sda {
			d.shift |= 1
		}
		d.n++
	case acked:
		d.mAck = !sda
		ack := "ACK"
		if !d.mAck {
			ack = "NACK"
		}
		d.log[len(d.log)-1] += " " + ack
	}
}

func (d *device) fall() {
	switch d.state {
	case receiving:
		if d.n < 8 {
			return
		}
		d.ack = d.accept(d.shift)
		entry := fmt.Sprintf("W%02X", d.shift)
		if !d.ack {
			entry += " NACK"
		}
		d.log = append(d.log, entry)
		d.out = !d.ack
		d.state = acking
	case acking:
		d.out = true
		switch {
		case !d.ack:
			d.state = idle
		case d.reading:
			d.load()
		default:
			d.state = receiving
			d.shift, d.n = 0, 0
		}
	case sending:
		d.n++
		if d.n == 8 {
			d.out = true
			d.state = acked
			return
		}
		d.out = d.shift&(0x80>>uint(d.n)) != 0
	case acked:
		if d.mAck {
			d.load()
		} else {
			d.state = idle
			d.out = true
		}
	}
}

func (d *device) load() {
	d.state = sending
	d.shift = d.regs[d.ptr]
	d.ptr++
	d.n = 0
	d.out = d.shift&0x80 != 0
	d.log = append(d.log, fmt.Sprintf("R%02X", d.shift))
}

// accept handles a received byte and returns whether it is acknowledged.
func (d *device) accept(b byte) bool {
	defer func() { d.received++ }()
	if !d.gotAddr {
		d.gotAddr = true
		if b>>1 != d.addr {
			return false
		}
		d.reading = b&1 == 1
		return d.received != d.nackAt
	}
	if d.received == d.nackAt {
		return false
	}
	if !d.gotReg {
		d.gotReg = true
		d.ptr = b
		return true
	}
	d.regs[d.ptr] = b
	d.ptr++
	return true
}
