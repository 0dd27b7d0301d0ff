package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

// boxTolerance absorbs the two-decimal rounding of written page boxes.
const boxTolerance = 0.005

// Box is a PDF rectangle in default user space (origin bottom-left).
type Box struct {
	LLX, LLY, URX, URY float64
}

func boxFromArray(a [4]float64) Box { return Box{a[0], a[1], a[2], a[3]} }
func (b Box) array() [4]float64     { return [4]float64{b.LLX, b.LLY, b.URX, b.URY} }

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }

// Empty reports whether b has no positive area.
func (b Box) Empty() bool {
	return !(b.Width() > 0) || !(b.Height() > 0)
}

// Intersect returns the overlap of b and o, which may be Empty.
func (b Box) Intersect(o Box) Box {
	return Box{
		LLX: math.Max(b.LLX, o.LLX),
		LLY: math.Max(b.LLY, o.LLY),
		URX: math.Min(b.URX, o.URX),
		URY: math.Min(b.URY, o.URY),
	}
}

// Same compares boxes within the precision boxes are written with.
func (b Box) Same(o Box) bool {
	return math.Abs(b.LLX-o.LLX) <= boxTolerance &&
		math.Abs(b.LLY-o.LLY) <= boxTolerance &&
		math.Abs(b.URX-o.URX) <= boxTolerance &&
		math.Abs(b.URY-o.URY) <= boxTolerance
}

func (b Box) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.LLX, b.LLY, b.URX, b.URY)
}

// PageGeometry is what the normalizer knows about one page.
type PageGeometry struct {
	Page     int `json:"page"`
	MediaBox Box `json:"mediaBox"`
	CropBox  Box `json:"cropBox"`
	Rotate   int `json:"rotate"`
}

// Width and Height are the page's nominal size in points.
func (g PageGeometry) Width() float64  { return g.MediaBox.Width() }
func (g PageGeometry) Height() float64 { return g.MediaBox.Height() }

// Defect names one kind of geometry inconsistency.
type Defect string

const (
	DefectCropMismatch Defect = "crop-mismatch"
	DefectRotated      Defect = "rotated"
)

// Defects lists what is wrong with g, or nil.
func (g PageGeometry) Defects() []Defect {
	var out []Defect
	if !g.CropBox.Same(g.MediaBox) {
		out = append(out, DefectCropMismatch)
	}
	if canonicalRotation(g.Rotate) != 0 {
		out = append(out, DefectRotated)
	}
	return out
}

// Defective reports whether the page's rendered geometry differs from its
// nominal geometry.
func (g PageGeometry) Defective() bool {
	return len(g.Defects()) > 0
}

// canonicalRotation maps any multiple of 90 into 0, 90, 180 or 270.
func canonicalRotation(r int) int {
	return ((r % 360) + 360) % 360
}

// Policy decides which defective pages get a rotation baked into content.
type Policy int

const (
	// RotatedOnly bakes each page's own rotation. Pages that are only
	// cropped are moved to a zero origin without rotating.
	RotatedOnly Policy = iota

	// AllDefective applies the 90 degree compensating transform to every
	// defective page, whatever made it defective.
	AllDefective
)

func (p Policy) String() string {
	switch p {
	case AllDefective:
		return "all-defective"
	default:
		return "rotated-only"
	}
}

// ParsePolicy accepts "rotated-only" or "all-defective".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rotated-only", "rotated":
		return RotatedOnly, nil
	case "all-defective", "all":
		return AllDefective, nil
	}
	return RotatedOnly, errors.NewConfigurationError("normalizePolicy", s, "expected rotated-only or all-defective")
}

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// Identity leaves coordinates unchanged.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Apply maps (x, y) through m.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// bakeMatrix returns the transform that draws content laid out in box as
// a viewer would show it with /Rotate rotation, on a new page whose box is
// returned with its origin at (0,0).
func bakeMatrix(box Box, rotation int) (Matrix, Box) {
	w, h := box.Width(), box.Height()
	switch canonicalRotation(rotation) {
	case 90:
		return Matrix{0, -1, 1, 0, -box.LLY, box.URX}, Box{0, 0, h, w}
	case 180:
		return Matrix{-1, 0, 0, -1, box.URX, box.URY}, Box{0, 0, w, h}
	case 270:
		return Matrix{0, 1, -1, 0, box.URY, -box.LLX}, Box{0, 0, h, w}
	default:
		return Matrix{1, 0, 0, 1, -box.LLX, -box.LLY}, Box{0, 0, w, h}
	}
}

// BoxRepair is the first repair stage for one page: the visible area
// (crop box clipped to the media box) becomes both boxes and the rotation
// flag is dropped.
func BoxRepair(orig PageGeometry) (PageGeometry, error) {
	if orig.Rotate%90 != 0 {
		return PageGeometry{}, errors.NewGeometryError(orig.Page, fmt.Sprintf("rotation %d is not a multiple of 90", orig.Rotate))
	}
	if orig.MediaBox.Empty() {
		return PageGeometry{}, errors.NewGeometryError(orig.Page, "zero-area media box "+orig.MediaBox.String())
	}
	visible := orig.CropBox.Intersect(orig.MediaBox)
	if visible.Empty() {
		return PageGeometry{}, errors.NewGeometryError(orig.Page,
			fmt.Sprintf("crop box %s does not overlap media box %s", orig.CropBox, orig.MediaBox))
	}
	return PageGeometry{Page: orig.Page, MediaBox: visible, CropBox: visible}, nil
}

// Correction is what Repair decided for one page.
type Correction struct {
	Page    int      `json:"page"`
	Defects []Defect `json:"defects,omitempty"`
	// Rotation is the angle baked into content, 0 when only translated.
	Rotation int    `json:"rotation"`
	Matrix   Matrix `json:"matrix"`
	From     Box    `json:"from"`
	To       Box    `json:"to"`
}

// Changed reports whether the page content is transformed.
func (c Correction) Changed() bool {
	return len(c.Defects) > 0
}

// Repair is the second stage for one page. original is the page as it
// was read from the input, boxed the same page after BoxRepair. Pages that
// were not defective are left alone.
func Repair(original, boxed PageGeometry, policy Policy) (Correction, error) {
	if original.Page != boxed.Page {
		return Correction{}, fmt.Errorf("page mismatch: original page %d paired with intermediate page %d",
			original.Page, boxed.Page)
	}
	c := Correction{Page: original.Page, Matrix: Identity, From: boxed.MediaBox, To: boxed.MediaBox}
	c.Defects = original.Defects()
	if len(c.Defects) == 0 {
		return c, nil
	}
	if boxed.MediaBox.Empty() {
		return Correction{}, errors.NewGeometryError(boxed.Page, "zero-area intermediate box "+boxed.MediaBox.String())
	}

	c.Rotation = canonicalRotation(original.Rotate)
	if policy == AllDefective {
		c.Rotation = 90
	}
	c.Matrix, c.To = bakeMatrix(boxed.MediaBox, c.Rotation)
	return c, nil
}
