package notes

import (
	"testing"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

func TestHexToRGB(t *testing.T) {
	cases := []struct {
		in   string
		want Color
	}{
		{"#CECECE", Color{206.0 / 255, 206.0 / 255, 206.0 / 255}},
		{"cecece", Color{206.0 / 255, 206.0 / 255, 206.0 / 255}},
		{"#FFFFFF", Color{1, 1, 1}},
		{"#000000", Color{0, 0, 0}},
		{" #ff0080 ", Color{1, 0, 128.0 / 255}},
	}
	for _, tc := range cases {
		got, err := HexToRGB(tc.in)
		if err != nil {
			t.Fatalf("HexToRGB(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("HexToRGB(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestHexToRGBRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "#CECE", "#CECECEC", "#GGGGGG", "#12 456"} {
		_, err := HexToRGB(in)
		if !errors.HasCode(err, errors.ErrorConfigurationInvalid) {
			t.Errorf("HexToRGB(%q) error = %v, want configuration error", in, err)
		}
	}
}

func TestRGBToHexRoundTrip(t *testing.T) {
	for _, hex := range []string{"#CECECE", "#FFFFFF", "#000000", "#1A2B3C"} {
		c, err := HexToRGB(hex)
		if err != nil {
			t.Fatal(err)
		}
		if got := RGBToHex(c); got != hex {
			t.Errorf("RGBToHex(HexToRGB(%q)) = %q", hex, got)
		}
	}
}

func TestRGBToHexClamps(t *testing.T) {
	if got := RGBToHex(Color{-0.5, 1.7, 0.5}); got != "#00FF80" {
		t.Errorf("RGBToHex = %q, want #00FF80", got)
	}
}
