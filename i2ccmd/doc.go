// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2ccmd frames I²C register accesses as ordered command links and
// hands them to a bus controller.
//
// A command link is the list of bus primitives making up one transaction:
// start condition, address and data bytes with their acknowledgement
// handling, repeated start, reads and the final stop condition. A link is
// opened with Open, filled in order and executed exactly once with Execute,
// which bounds the transaction with a timeout and releases the link whatever
// the outcome.
//
// WriteRegister and ReadRegister build the framing required by register
// mapped devices such as the MCP23017:
//
//	Write: START, ADDR<<1|W [ACK], REG [ACK], DATA0 [ACK], ..., STOP
//	Read:  START, ADDR<<1|W [ACK], REG [ACK], START, ADDR<<1|R [ACK],
//	       DATA0 [ACK], ..., DATAn-1 [NACK], STOP
//
// The controller executing a link is an interface. Host runs links on
// periph.io I²C buses, the bitbang package drives two GPIO lines directly and
// i2ccmdtest simulates devices for tests.
//
// All calls block until the transaction completes, fails or times out. The
// package performs no locking across calls on the same channel beyond what
// the controller provides.
package i2ccmd
