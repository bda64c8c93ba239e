// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

import (
	stdcolor "image/color"
	"math"

	"honnef.co/go/color"
)

// Premul32 returns c as premultiplied linear sRGB, the layout vertex colors
// are uploaded in.
func Premul32(c *color.Color) [4]float32 {
	cc := c.Convert(color.LinearSRGB)
	r := cc.Values[0]
	g := cc.Values[1]
	b := cc.Values[2]
	a := cc.Values[3]

	return [4]float32{
		float32(r * a),
		float32(g * a),
		float32(b * a),
		float32(a),
	}
}

// NRGBA converts c to 8-bit sRGB. Out of gamut values are clipped.
func NRGBA(c *color.Color) stdcolor.NRGBA {
	cc := c.Convert(color.SRGB)
	to8 := func(v float64) uint8 {
		return uint8(math.Round(max(0, min(v, 1)) * 255))
	}
	return stdcolor.NRGBA{
		R: to8(cc.Values[0]),
		G: to8(cc.Values[1]),
		B: to8(cc.Values[2]),
		A: to8(cc.Values[3]),
	}
}
