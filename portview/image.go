// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package portview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gomono"
)

var mono *truetype.Font

func init() {
	var err error
	if mono, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// ImageOpts represents the options available for Render.
type ImageOpts struct {
	// Cell is the side of one pin square in pixels. Default is 24.
	Cell int
	// High and Low default to the package colors when nil.
	High color.Color
	Low  color.Color
	// Background defaults to white.
	Background color.Color
}

// Render draws samples as a timing chart: one row per snapshot, oldest on
// top, and one column per pin from A0 to B7. The header row carries the pin
// names and the left column the sample index.
func Render(samples []uint16, opts *ImageOpts) (image.Image, error) {
	if len(samples) == 0 {
		return nil, errors.New("portview: no sample to render")
	}
	o := ImageOpts{}
	if opts != nil {
		o = *opts
	}
	if o.Cell <= 0 {
		o.Cell = 24
	}
	if o.High == nil {
		o.High = High
	}
	if o.Low == nil {
		o.Low = Low
	}
	if o.Background == nil {
		o.Background = color.White
	}
	cell := float64(o.Cell)
	margin := 3 * cell
	dc := gg.NewContext(int(margin)+Pins*o.Cell+o.Cell/2, (len(samples)+1)*o.Cell)
	dc.SetColor(o.Background)
	dc.Clear()
	dc.SetFontFace(truetype.NewFace(mono, &truetype.Options{Size: cell / 2}))

	dc.SetColor(color.Black)
	for i := 0; i < Pins; i++ {
		dc.DrawStringAnchored(PinName(i), columnX(i, margin, cell)+cell/2, cell/2, 0.5, 0.5)
	}
	for row, v := range samples {
		y := float64(row+1) * cell
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(fmt.Sprintf("%d", row), margin-cell/4, y+cell/2, 1, 0.5)
		for i := 0; i < Pins; i++ {
			if v&(1<<uint(i)) != 0 {
				dc.SetColor(o.High)
			} else {
				dc.SetColor(o.Low)
			}
			dc.DrawRectangle(columnX(i, margin, cell)+1, y+1, cell-2, cell-2)
			dc.Fill()
		}
	}
	return dc.Image(), nil
}

// WritePNG renders samples and encodes them as PNG to w.
func WritePNG(w io.Writer, samples []uint16, opts *ImageOpts) error {
	img, err := Render(samples, opts)
	if err != nil {
		return err
	}
	return gg.NewContextForImage(img).EncodePNG(w)
}

// PinName returns the name of pin i of a snapshot, A0 to B7.
func PinName(i int) string {
	if i < 0 || i >= Pins {
		return fmt.Sprintf("P%d", i)
	}
	port := 'A'
	if i >= Pins/2 {
		port = 'B'
	}
	return fmt.Sprintf("%c%d", port, i%(Pins/2))
}

// columnX leaves half a cell between the two ports.
func columnX(i int, margin, cell float64) float64 {
	x := margin + float64(i)*cell
	if i >= Pins/2 {
		x += cell / 2
	}
	return x
}
