package notes

import "math"

const (
	strokeWidth = 1.0
	dotRadius   = 1.0

	// headerRows is the gap, in spacing units, between the top of the panel
	// and the first pattern row. It clears the title and date line.
	headerRows = 3

	// eps absorbs float error when counting whole spacing steps.
	eps = 1e-9
)

// steps returns how many whole steps of size s fit into length.
func steps(length, s float64) int {
	if length < 0 {
		return 0
	}
	return int(math.Floor(length/s + eps))
}

// drawLined rules horizontal lines from top+3s down to the bottom margin
// at bottom-s. When the last regular line stops at least half a spacing
// unit short of the margin, one more line is drawn on the margin itself.
func drawLined(cv Canvas, r Rect, c Color, s float64) {
	left, right := r.X0+s, r.X1-s
	if right <= left {
		return
	}
	first := r.Y0 + headerRows*s
	margin := r.Y1 - s
	if first >= margin {
		return
	}

	last := first
	for i := 0; ; i++ {
		y := first + float64(i)*s
		if y >= margin-eps {
			break
		}
		cv.Line(Segment{left, y, right, y}, c, strokeWidth)
		last = y
	}
	if margin-last >= s/2 {
		cv.Line(Segment{left, margin, right, margin}, c, strokeWidth)
	}
}

// drawGrid tiles whole squares of side s inside the margins. Partial
// squares at the right and bottom are never drawn.
func drawGrid(cv Canvas, r Rect, c Color, s float64) {
	x0 := r.X0 + s
	y0 := r.Y0 + headerRows*s
	cols := steps(r.Width()-2*s, s)
	rows := steps(r.Height()-(headerRows+1)*s, s)

	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			x := x0 + float64(i)*s
			y := y0 + float64(j)*s
			cv.StrokeRect(Rect{x, y, x + s, y + s}, c, strokeWidth)
		}
	}
}

// drawDotted places a dot at every lattice point inside the margins. If
// the last lattice column (row) stops short of the right (bottom) margin
// with room for another dot, an extra column (row) is placed on the
// margin so the field reaches the edge.
func drawDotted(cv Canvas, r Rect, c Color, s float64) {
	xStart := math.Floor(r.X0 + s)
	xEnd := math.Floor(r.X1 - s)
	yStart := math.Floor(r.Y0 + headerRows*s)
	yEnd := math.Floor(r.Y1 - s)
	if xStart > xEnd || yStart > yEnd {
		return
	}

	nx := steps(xEnd-xStart, s)
	ny := steps(yEnd-yStart, s)
	xs := make([]float64, 0, nx+1)
	for i := 0; i <= nx; i++ {
		xs = append(xs, xStart+float64(i)*s)
	}
	ys := make([]float64, 0, ny+1)
	for j := 0; j <= ny; j++ {
		ys = append(ys, yStart+float64(j)*s)
	}

	for _, y := range ys {
		for _, x := range xs {
			cv.Dot(x, y, dotRadius, c)
		}
	}

	extraCol := xEnd-xs[len(xs)-1] >= 2*dotRadius
	extraRow := yEnd-ys[len(ys)-1] >= 2*dotRadius
	if extraCol {
		for _, y := range ys {
			cv.Dot(xEnd, y, dotRadius, c)
		}
	}
	if extraRow {
		for _, x := range xs {
			cv.Dot(x, yEnd, dotRadius, c)
		}
	}
	if extraCol && extraRow {
		cv.Dot(xEnd, yEnd, dotRadius, c)
	}
}
