package hue

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dokzlo13/discod/internal/disco"
)

// ToXYBri converts an sRGB colour to CIE 1931 xy chromaticity and a 0-254
// brightness, the colour model the bridge accepts.
func ToXYBri(c disco.RGB) (x, y float32, bri uint8) {
	col := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
	cx, cy, luminance := col.Xyy()
	return float32(cx), float32(cy), uint8(math.Round(math.Min(luminance, 1) * 254))
}

// StateBody is the v1 light state payload for a command.
func StateBody(cmd disco.Command) map[string]interface{} {
	x, y, bri := ToXYBri(cmd.Color)
	return map[string]interface{}{
		"on":             cmd.On,
		"xy":             []float32{x, y},
		"bri":            bri,
		"transitiontime": cmd.Transition,
	}
}
