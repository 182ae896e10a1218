// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package expander is a container for the MCP23017 GPIO expander driver.
//
// Package i2ccmd builds and executes I²C command links, bitbang runs them on
// two GPIOs and mcp23xxx drives the expander on top of either. Package
// portview renders port snapshots and cmd/mcp23017 exposes everything on the
// command line.
package expander
