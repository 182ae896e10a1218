// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package portview renders MCP23017 port snapshots.
//
// A snapshot is the 16-bit value returned by mcp23xxx.Dev.ReadPorts, GPIOA in
// the low byte. Dev draws one snapshot on a terminal line using ANSI color
// codes; Render draws a series of snapshots into an image.
package portview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Pins is the number of pins in a snapshot.
const Pins = 16

// Default colors of a high and a low pin.
var (
	High = color.NRGBA{R: 0x20, G: 0xE0, B: 0x40, A: 255}
	Low  = color.NRGBA{R: 0x30, G: 0x30, B: 0x30, A: 255}
)

// Opts represents the options available for the terminal view.
type Opts struct {
	// High and Low default to the package colors when zero.
	High    color.NRGBA
	Low     color.NRGBA
	Palette *ansi256.Palette

	_ struct{}
}

// Dev shows pins A0 to B7 left to right on a single terminal line, rewritten
// in place on every update.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	high    color.NRGBA
	low     color.NRGBA

	pixels [Pins]color.NRGBA
	label  string
	buf    bytes.Buffer
}

// New returns a Dev writing to w. A nil w uses the console, with ANSI codes
// translated on Windows. The Opts can be nil.
func New(w io.Writer, opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d := &Dev{w: w, palette: *p, high: opts.High, low: opts.Low}
	if d.high == (color.NRGBA{}) {
		d.high = High
	}
	if d.low == (color.NRGBA{}) {
		d.low = Low
	}
	for i := range d.pixels {
		d.pixels[i] = d.low
	}
	return d
}

func (d *Dev) String() string {
	return "PortView"
}

// Show draws the snapshot ports followed by its hexadecimal value.
func (d *Dev) Show(ports uint16) error {
	for i := range d.pixels {
		if ports&(1<<uint(i)) != 0 {
			d.pixels[i] = d.high
		} else {
			d.pixels[i] = d.low
		}
	}
	d.label = fmt.Sprintf("0x%04X", ports)
	_, err := d.refresh()
	return err
}

// Halt implements conn.Resource.
//
// It terminates the line and resets the colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Write accepts a stream of raw RGB pixels, one per pin.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("portview: invalid RGB stream length")
	}
	for i := 0; i < Pins && 3*i < len(pixels); i++ {
		d.pixels[i] = color.NRGBA{pixels[3*i], pixels[3*i+1], pixels[3*i+2], 255}
	}
	d.label = ""
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: Pins, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		c := color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y)).(color.NRGBA)
		c.A = 255
		d.pixels[x] = c
	}
	d.label = ""
	_, err := d.refresh()
	return err
}

func (d *Dev) refresh() (int, error) {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i, c := range d.pixels {
		if i == Pins/2 {
			_, _ = d.buf.WriteString("\033[0m ")
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(d.label)
	_, err := d.buf.WriteTo(d.w)
	return 3 * Pins, err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
