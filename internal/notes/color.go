package notes

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

// Color is an RGB color with each channel in [0,1].
type Color struct {
	R, G, B float64
}

// Black is used for the content/notes separator.
var Black = Color{}

// HexToRGB converts a 6-hex-digit color, with or without a leading '#',
// to normalized channel intensities: "#CECECE" -> (206/255, 206/255, 206/255).
func HexToRGB(hex string) (Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return Color{}, errors.NewConfigurationError("color", hex, "expected 6 hex digits")
	}

	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return Color{}, errors.NewConfigurationError("color", hex, "not a hex number")
		}
		ch[i] = float64(v) / 255.0
	}
	return Color{R: ch[0], G: ch[1], B: ch[2]}, nil
}

// RGBToHex is the inverse of HexToRGB. Channels are clamped to [0,1] and
// rounded to the nearest 1/255.
func RGBToHex(c Color) string {
	r, g, b := c.RGB255()
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// RGB255 returns the channels scaled to 0..255.
func (c Color) RGB255() (r, g, b int) {
	return to255(c.R), to255(c.G), to255(c.B)
}

func to255(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return int(math.Round(v * 255))
}

func (c Color) String() string {
	return RGBToHex(c)
}
