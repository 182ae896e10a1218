// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp23xxx

import (
	"fmt"
	"strconv"
	"strings"
)

// Register is the address of an MCP23017 register with IOCON.BANK = 0, the
// power-on default. Port B registers follow their port A counterpart.
type Register byte

const (
	IODIRA   Register = 0x00 // I/O direction, port A. 1 = input.
	IODIRB   Register = 0x01 // I/O direction, port B.
	IPOLA    Register = 0x02 // Input polarity, port A.
	IPOLB    Register = 0x03 // Input polarity, port B.
	GPINTENA Register = 0x04 // Interrupt-on-change enable, port A.
	GPINTENB Register = 0x05 // Interrupt-on-change enable, port B.
	DEFVALA  Register = 0x06 // Default compare value for interrupt-on-change, port A.
	DEFVALB  Register = 0x07 // Default compare value for interrupt-on-change, port B.
	INTCONA  Register = 0x08 // Interrupt control (compare against DEFVAL or previous value), port A.
	INTCONB  Register = 0x09 // Interrupt control, port B.
	IOCONA   Register = 0x0A // Device configuration.
	IOCONB   Register = 0x0B // Device configuration, mirror of IOCONA.
	GPPUA    Register = 0x0C // Pull-up enable, port A.
	GPPUB    Register = 0x0D // Pull-up enable, port B.
	INTFA    Register = 0x0E // Interrupt flags, port A. Read only.
	INTFB    Register = 0x0F // Interrupt flags, port B. Read only.
	INTCAPA  Register = 0x10 // Port A value captured at interrupt time. Read only.
	INTCAPB  Register = 0x11 // Port B value captured at interrupt time. Read only.
	GPIOA    Register = 0x12 // Port A pin values.
	GPIOB    Register = 0x13 // Port B pin values.
	OLATA    Register = 0x14 // Output latches, port A.
	OLATB    Register = 0x15 // Output latches, port B.
)

// IOCON bits.
const (
	IOCONIntPol byte = 1 << 1 // INT pins active-high.
	IOCONODR    byte = 1 << 2 // INT pins open-drain.
	IOCONHAEN   byte = 1 << 3 // Hardware address enable (MCP23S17 only).
	IOCONDISSLW byte = 1 << 4 // SDA slew rate control disabled.
	IOCONSEQOP  byte = 1 << 5 // Sequential operation disabled.
	IOCONMirror byte = 1 << 6 // INTA and INTB mirrored.
	IOCONBank   byte = 1 << 7 // Registers split in two banks. Not supported by this package.
)

var registerNames = [...]string{
	"IODIRA", "IODIRB", "IPOLA", "IPOLB", "GPINTENA", "GPINTENB",
	"DEFVALA", "DEFVALB", "INTCONA", "INTCONB", "IOCONA", "IOCONB",
	"GPPUA", "GPPUB", "INTFA", "INTFB", "INTCAPA", "INTCAPB",
	"GPIOA", "GPIOB", "OLATA", "OLATB",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(0x%02X)", byte(r))
}

// PortB returns true for port B registers.
func (r Register) PortB() bool {
	return r&1 == 1
}

// ParseRegister returns the register named s, case insensitive, or the
// register at the numeric address s, for example "0x12".
func ParseRegister(s string) (Register, error) {
	for i, n := range registerNames {
		if strings.EqualFold(n, s) {
			return Register(i), nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || int(v) >= len(registerNames) {
		return 0, fmt.Errorf("mcp23xxx: unknown register %q", s)
	}
	return Register(v), nil
}
