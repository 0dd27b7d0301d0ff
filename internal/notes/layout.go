package notes

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

// Style selects the background pattern of the notes panel.
type Style string

const (
	StyleGrid   Style = "Grid"
	StyleLined  Style = "Lined"
	StyleDotted Style = "Dotted"
	StyleBlank  Style = "Blank"
)

// Placement selects the side of the source page the notes panel goes on.
type Placement string

const (
	PlacementRight  Placement = "Right"
	PlacementLeft   Placement = "Left"
	PlacementTop    Placement = "Top"
	PlacementBottom Placement = "Bottom"
)

// Font identifies one of the three supported text families.
type Font string

const (
	FontSans  Font = "Helvetica"
	FontMono  Font = "Courier"
	FontSerif Font = "Times-Roman"
)

// MaxSpacing bounds the spacing unit. Larger values leave no room for a
// pattern on any common page size.
const MaxSpacing = 200

var styles = map[string]Style{
	"grid":   StyleGrid,
	"lined":  StyleLined,
	"dotted": StyleDotted,
	"blank":  StyleBlank,
}

var placements = map[string]Placement{
	"right":  PlacementRight,
	"left":   PlacementLeft,
	"top":    PlacementTop,
	"bottom": PlacementBottom,
}

var fonts = map[string]Font{
	"helvetica":   FontSans,
	"sans":        FontSans,
	"arial":       FontSans,
	"courier":     FontMono,
	"mono":        FontMono,
	"monospace":   FontMono,
	"times-roman": FontSerif,
	"times":       FontSerif,
	"serif":       FontSerif,
}

// ParseStyle matches a style name case-insensitively.
func ParseStyle(s string) (Style, error) {
	if v, ok := styles[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", errors.NewConfigurationError("style", s, "expected Grid, Lined, Dotted or Blank")
}

// ParsePlacement matches a placement name case-insensitively.
func ParsePlacement(s string) (Placement, error) {
	if v, ok := placements[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", errors.NewConfigurationError("placement", s, "expected Right, Left, Top or Bottom")
}

// ParseFont matches a font identifier or one of its aliases.
func ParseFont(s string) (Font, error) {
	if v, ok := fonts[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", errors.NewConfigurationError("font", s, "expected Helvetica, Courier or Times-Roman")
}

// SideBySide reports whether the panel sits left or right of the content.
func (p Placement) SideBySide() bool {
	return p == PlacementRight || p == PlacementLeft
}

// family is the core-font family name understood by the PDF writer.
func (f Font) family() string {
	switch f {
	case FontMono:
		return "Courier"
	case FontSerif:
		return "Times"
	default:
		return "Helvetica"
	}
}

// DateOffset is the distance from the panel's right edge to the left edge
// of the date label. Wider fonts need more clearance.
func (f Font) DateOffset() float64 {
	switch f {
	case FontMono:
		return 236
	case FontSerif:
		return 170
	default:
		return 185
	}
}

// Layout is the fully resolved configuration for one processing run.
// It is passed by value and never modified once parsed.
type Layout struct {
	Style           Style
	Placement       Placement
	Font            Font
	LineColor       Color
	BackgroundColor Color
	TextColor       Color
	Spacing         float64
	Title           string
	IncludeDate     bool
}

// DefaultLayout returns the layout used when a caller supplies nothing.
func DefaultLayout() Layout {
	return Layout{
		Style:           StyleGrid,
		Placement:       PlacementRight,
		Font:            FontSans,
		LineColor:       Color{R: 206.0 / 255, G: 206.0 / 255, B: 206.0 / 255},
		BackgroundColor: Color{R: 1, G: 1, B: 1},
		TextColor:       Black,
		Spacing:         20,
		Title:           "Notes",
		IncludeDate:     true,
	}
}

// Validate checks a layout built in code rather than through ParseLayout.
func (l Layout) Validate() error {
	if s, ok := styles[strings.ToLower(string(l.Style))]; !ok || s != l.Style {
		return errors.NewConfigurationError("style", string(l.Style), "unknown style")
	}
	if p, ok := placements[strings.ToLower(string(l.Placement))]; !ok || p != l.Placement {
		return errors.NewConfigurationError("placement", string(l.Placement), "unknown placement")
	}
	if f, ok := fonts[strings.ToLower(string(l.Font))]; !ok || f != l.Font {
		return errors.NewConfigurationError("font", string(l.Font), "unknown font")
	}
	if err := validateSpacing(l.Spacing); err != nil {
		return err
	}
	for name, c := range map[string]Color{"lineColor": l.LineColor, "backgroundColor": l.BackgroundColor, "textColor": l.TextColor} {
		if !inUnit(c.R) || !inUnit(c.G) || !inUnit(c.B) {
			return errors.NewConfigurationError(name, c.String(), "channels must be in [0,1]")
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func validateSpacing(s float64) error {
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 || s > MaxSpacing {
		return errors.NewConfigurationError("spacing", strconv.FormatFloat(s, 'g', -1, 64),
			"must be greater than 0 and at most "+strconv.Itoa(MaxSpacing))
	}
	return nil
}

// RawLayout is a layout as it arrives from a form or a job payload.
// Empty fields are filled from defaults by Merge.
type RawLayout struct {
	Style           string  `json:"style,omitempty"`
	Placement       string  `json:"placement,omitempty"`
	Font            string  `json:"font,omitempty"`
	LineColor       string  `json:"lineColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	TextColor       string  `json:"textColor,omitempty"`
	Spacing         float64 `json:"spacing,omitempty"`
	Title           *string `json:"title,omitempty"`
	IncludeDate     *bool   `json:"includeDate,omitempty"`
}

// Merge returns r with its unset fields taken from defaults.
func (r RawLayout) Merge(defaults RawLayout) RawLayout {
	out := r
	if out.Style == "" {
		out.Style = defaults.Style
	}
	if out.Placement == "" {
		out.Placement = defaults.Placement
	}
	if out.Font == "" {
		out.Font = defaults.Font
	}
	if out.LineColor == "" {
		out.LineColor = defaults.LineColor
	}
	if out.BackgroundColor == "" {
		out.BackgroundColor = defaults.BackgroundColor
	}
	if out.TextColor == "" {
		out.TextColor = defaults.TextColor
	}
	if out.Spacing == 0 {
		out.Spacing = defaults.Spacing
	}
	if out.Title == nil {
		out.Title = defaults.Title
	}
	if out.IncludeDate == nil {
		out.IncludeDate = defaults.IncludeDate
	}
	return out
}

// ToRaw renders a layout back into its string form.
func (l Layout) ToRaw() RawLayout {
	title := l.Title
	date := l.IncludeDate
	return RawLayout{
		Style:           string(l.Style),
		Placement:       string(l.Placement),
		Font:            string(l.Font),
		LineColor:       RGBToHex(l.LineColor),
		BackgroundColor: RGBToHex(l.BackgroundColor),
		TextColor:       RGBToHex(l.TextColor),
		Spacing:         l.Spacing,
		Title:           &title,
		IncludeDate:     &date,
	}
}

// ParseLayout resolves every field of r. The first invalid field is
// reported as a configuration error.
func ParseLayout(r RawLayout) (Layout, error) {
	r = r.Merge(DefaultLayout().ToRaw())

	var l Layout
	var err error
	if l.Style, err = ParseStyle(r.Style); err != nil {
		return Layout{}, err
	}
	if l.Placement, err = ParsePlacement(r.Placement); err != nil {
		return Layout{}, err
	}
	if l.Font, err = ParseFont(r.Font); err != nil {
		return Layout{}, err
	}
	if l.LineColor, err = HexToRGB(r.LineColor); err != nil {
		return Layout{}, err
	}
	if l.BackgroundColor, err = HexToRGB(r.BackgroundColor); err != nil {
		return Layout{}, err
	}
	if l.TextColor, err = HexToRGB(r.TextColor); err != nil {
		return Layout{}, err
	}
	if err := validateSpacing(r.Spacing); err != nil {
		return Layout{}, err
	}
	l.Spacing = r.Spacing
	l.Title = norm.NFC.String(*r.Title)
	l.IncludeDate = *r.IncludeDate
	return l, nil
}
