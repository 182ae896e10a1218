// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp23xxx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/expander/i2ccmd"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the address of an MCP23017 with A2..A0 tied low.
const DefaultAddress uint8 = 0x20

var errInvalidAddress = errors.New("mcp23xxx: address must be within 0x20..0x27")

// Device identifies one MCP23017. It is only read by this package.
type Device struct {
	// Channel is the bus controller channel the chip is wired to.
	Channel i2ccmd.Channel
	// SDA and SCL name the data and clock pins of the channel.
	SDA string
	SCL string
	// Addr is the 7-bit bus address, 0x20 to 0x27.
	Addr uint8
}

func (d Device) String() string {
	return fmt.Sprintf("MCP23017_%d_%x", d.Channel, d.Addr)
}

// Opts holds the configuration options for the device.
type Opts struct {
	// Timeout bounds every bus transaction. Default is 500ms.
	Timeout time.Duration
	// Frequency is the bus clock. Default is 100kHz.
	Frequency physic.Frequency
	// Retry is applied to every register access. The default never retries.
	Retry i2ccmd.RetryPolicy
	// Logger receives diagnostics. Default is the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Timeout:   i2ccmd.DefaultTimeout,
	Frequency: i2ccmd.DefaultFrequency,
}

// Dev is a handle to an initialized MCP23017.
//
// Calls block until the bus transaction completes or times out. A Dev is safe
// for concurrent use; callers sharing a channel between several Dev must
// rely on the controller to serialize transactions.
type Dev struct {
	d   Device
	rio i2ccmd.RegisterIO
	log logrus.FieldLogger

	mu    sync.Mutex
	portA byte
	portB byte
}

// New configures the channel of d for master mode with pull-ups and installs
// it on c, then returns a Dev. The Opts can be nil.
//
// Reinstalling a channel already installed is controller specific.
func New(c i2ccmd.Controller, d Device, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Timeout <= 0 {
		o.Timeout = i2ccmd.DefaultTimeout
	}
	if o.Frequency <= 0 {
		o.Frequency = i2ccmd.DefaultFrequency
	}
	log := o.Logger
	if log == nil {
		log = logrus.WithField("prefix", "mcp23xxx")
	}
	log = log.WithField("device", d.String())
	if d.Addr < 0x20 || d.Addr > 0x27 {
		log.WithField("addr", fmt.Sprintf("0x%02X", d.Addr)).Error("init failed: invalid address")
		return nil, errInvalidAddress
	}
	cfg := i2ccmd.Config{SDA: d.SDA, SCL: d.SCL, PullUp: true, Frequency: o.Frequency}
	if err := c.Install(d.Channel, cfg); err != nil {
		log.WithError(err).Error("init failed")
		return nil, fmt.Errorf("mcp23xxx: init: %w", err)
	}
	log.WithField("config", cfg.String()).Debug("init ok")
	var rio i2ccmd.RegisterIO = &i2ccmd.Transport{Controller: c, Timeout: o.Timeout}
	if o.Retry.Enabled() {
		rio = &i2ccmd.Retrying{Next: rio, Policy: o.Retry}
	}
	return &Dev{d: d, rio: rio, log: log}, nil
}

// WriteConfig writes value to reg.
func (dev *Dev) WriteConfig(reg Register, value byte) error {
	f := logrus.Fields{"reg": reg.String(), "value": fmt.Sprintf("0x%02X", value)}
	err := dev.rio.WriteRegister(context.Background(), dev.d.Channel, dev.d.Addr, byte(reg), []byte{value})
	if err != nil {
		dev.log.WithFields(f).WithError(err).Error(">> failed")
		return fmt.Errorf("mcp23xxx: write %s: %w", reg, err)
	}
	dev.log.WithFields(f).Debug(">> ok")
	return nil
}

// ReadPort reads reg. Reading GPIOA or GPIOB also updates the port value
// returned by Ports.
func (dev *Dev) ReadPort(reg Register) (byte, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	v, err := dev.readPort(reg)
	if err != nil {
		return 0, err
	}
	switch reg {
	case GPIOA:
		dev.portA = v
	case GPIOB:
		dev.portB = v
	}
	return v, nil
}

// ReadPorts reads GPIOA then GPIOB and returns them as GPIOA | GPIOB<<8.
//
// The two reads are distinct transactions; pins changing in between are not
// detected. The values returned by Ports are only updated when both succeed.
func (dev *Dev) ReadPorts() (uint16, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	a, err := dev.readPort(GPIOA)
	if err != nil {
		return 0, err
	}
	b, err := dev.readPort(GPIOB)
	if err != nil {
		return 0, err
	}
	dev.portA, dev.portB = a, b
	return uint16(a) | uint16(b)<<8, nil
}

// Ports returns the port values of the last successful GPIOA and GPIOB
// reads, zero before any.
func (dev *Dev) Ports() (a, b byte) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.portA, dev.portB
}

// Device returns the descriptor dev was created with.
func (dev *Dev) Device() Device {
	return dev.d
}

func (dev *Dev) String() string {
	return dev.d.String()
}

func (dev *Dev) readPort(reg Register) (byte, error) {
	var buf [1]byte
	err := dev.rio.ReadRegister(context.Background(), dev.d.Channel, dev.d.Addr, byte(reg), buf[:])
	if err != nil {
		dev.log.WithField("reg", reg.String()).WithError(err).Error("<< failed")
		return 0, fmt.Errorf("mcp23xxx: read %s: %w", reg, err)
	}
	dev.log.WithFields(logrus.Fields{"reg": reg.String(), "value": fmt.Sprintf("0x%02X", buf[0])}).Debug("<< ok")
	return buf[0], nil
}

var _ fmt.Stringer = &Dev{}
