// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcp23xxx provides a register level driver for the MCP23017 16-bit
// I²C GPIO expander.
//
// The chip has two 8-bit ports, A and B, each controlled by its own set of
// registers. Dev writes configuration registers and reads port values; pin
// level helpers are left to the caller.
//
// Transactions run through an i2ccmd.Controller, so the same driver works on
// a host I²C bus (i2ccmd.Host), on two GPIO pins (bitbang) or against the
// simulated devices of i2ccmdtest.
//
// # Datasheet
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/20001952C.pdf
package mcp23xxx
