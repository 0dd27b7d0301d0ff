package notes

// Canvas is the drawing surface a composed page is rendered onto.
// Coordinates follow the conventions of PagePlan.
type Canvas interface {
	// BeginPage starts a new output page of the given size.
	BeginPage(size Size)

	// PlaceSource draws source page number page (1-based) unscaled into dst.
	PlaceSource(page int, dst Rect) error

	FillRect(r Rect, c Color)
	StrokeRect(r Rect, c Color, width float64)
	Line(s Segment, c Color, width float64)
	Dot(x, y, radius float64, c Color)

	// Text draws s with its baseline starting at (x, y).
	Text(x, y float64, s string, font Font, size float64, c Color)
}
