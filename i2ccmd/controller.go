// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// DefaultFrequency is the standard mode I²C clock.
const DefaultFrequency = 100 * physic.KiloHertz

// Channel identifies one bus controller channel, e.g. the "1" in
// /dev/i2c-1.
type Channel int

// String returns the channel number in the form accepted by i2creg.Open.
func (c Channel) String() string {
	return fmt.Sprintf("%d", int(c))
}

// Config is the signaling setup applied to a channel when it is installed.
type Config struct {
	// SDA and SCL are the names of the data and clock pins. Controllers that
	// own their pins ignore empty values.
	SDA string
	SCL string
	// PullUp enables the internal pull-ups on both lines.
	PullUp bool
	// Frequency is the clock frequency. 0 means DefaultFrequency.
	Frequency physic.Frequency
}

func (c Config) String() string {
	return fmt.Sprintf("sda=%s scl=%s pullup=%t freq=%s", c.SDA, c.SCL, c.PullUp, c.Frequency)
}

// Controller executes command links on bus channels.
//
// Implementations must run the commands strictly in order and stop at the
// first failing primitive, leaving the bus released. Exec blocks until the
// transaction completes or ctx expires, in which case ErrTimeout is
// returned.
type Controller interface {
	// Install configures the channel signaling and installs the driver for
	// it. Installing an already installed channel is controller specific.
	Install(ch Channel, cfg Config) error
	// Exec runs cmds as one transaction on ch.
	Exec(ctx context.Context, ch Channel, cmds []Cmd) error
}
