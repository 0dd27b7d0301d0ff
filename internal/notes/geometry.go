package notes

import (
	"fmt"
	"math"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

// Coordinates in this package have their origin at the top-left corner of
// the composed page with y growing downwards, in points.

// Size is a page size in points.
type Size struct {
	Width, Height float64
}

// Area returns Width*Height.
func (s Size) Area() float64 {
	return s.Width * s.Height
}

// Rect is an axis-aligned rectangle from (X0,Y0) to (X1,Y1).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

// Overlaps reports whether r and o share a region of positive area.
// Rectangles that only touch along an edge do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return math.Min(r.X1, o.X1) > math.Max(r.X0, o.X0) &&
		math.Min(r.Y1, o.Y1) > math.Max(r.Y0, o.Y0)
}

// Contains reports whether o lies inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.X0, r.Y0, r.X1, r.Y1)
}

// Segment is a straight line from (X0,Y0) to (X1,Y1).
type Segment struct {
	X0, Y0, X1, Y1 float64
}

// PagePlan is the geometry of one composed page.
type PagePlan struct {
	Page      Size
	Content   Rect
	Notes     Rect
	Separator Segment
}

// PlanPage computes where the source page and the notes panel go on the
// composed page. The composed page is twice as wide (Right, Left) or twice
// as tall (Top, Bottom) as the source.
func PlanPage(placement Placement, src Size) (PagePlan, error) {
	w, h := src.Width, src.Height
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return PagePlan{}, errors.NewGeometryError(0, fmt.Sprintf("degenerate page size %gx%g", w, h))
	}

	switch placement {
	case PlacementRight:
		return PagePlan{
			Page:      Size{2 * w, h},
			Content:   Rect{0, 0, w, h},
			Notes:     Rect{w, 0, 2 * w, h},
			Separator: Segment{w, 0, w, h},
		}, nil
	case PlacementLeft:
		return PagePlan{
			Page:      Size{2 * w, h},
			Content:   Rect{w, 0, 2 * w, h},
			Notes:     Rect{0, 0, w, h},
			Separator: Segment{w, 0, w, h},
		}, nil
	case PlacementTop:
		return PagePlan{
			Page:      Size{w, 2 * h},
			Content:   Rect{0, h, w, 2 * h},
			Notes:     Rect{0, 0, w, h},
			Separator: Segment{0, h, w, h},
		}, nil
	case PlacementBottom:
		return PagePlan{
			Page:      Size{w, 2 * h},
			Content:   Rect{0, 0, w, h},
			Notes:     Rect{0, h, w, 2 * h},
			Separator: Segment{0, h, w, h},
		}, nil
	}
	return PagePlan{}, errors.NewConfigurationError("placement", string(placement), "unknown placement")
}
