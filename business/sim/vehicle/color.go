package vehicle

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	colorSaturation = 0.9
	colorBrightness = 1.0
)

//randomColorCode picks a vivid display color: random hue, fixed high
//saturation and brightness
func randomColorCode() string {
	return hsbToColorCode(rand.Float64()*360, colorSaturation, colorBrightness)
}

//hsbToColorCode converts hue [0,360), saturation and brightness [0,1] to a
//hex RGB string
func hsbToColorCode(hue, saturation, brightness float64) string {
	c := brightness * saturation
	x := c * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := brightness - c

	var r, g, b float64
	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return fmt.Sprintf("#%02X%02X%02X",
		int(math.Round((r+m)*255)),
		int(math.Round((g+m)*255)),
		int(math.Round((b+m)*255)))
}
