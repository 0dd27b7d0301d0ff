package notes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var letter = Size{612, 792}

func layoutWith(mod func(*Layout)) Layout {
	l := DefaultLayout()
	mod(&l)
	return l
}

func TestComposePageLinedRight(t *testing.T) {
	l := layoutWith(func(l *Layout) { l.Style = StyleLined })
	cv := &recorder{}

	plan, err := ComposePage(cv, 1, letter, l)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Page != (Size{1224, 792}) {
		t.Errorf("page = %v, want 1224x792", plan.Page)
	}

	src := cv.kind("source")
	if len(src) != 1 || src[0].Rect != (Rect{0, 0, 612, 792}) || src[0].Page != 1 {
		t.Errorf("source placement = %+v", src)
	}
	fill := cv.kind("fill")
	if len(fill) != 1 || fill[0].Rect != (Rect{612, 0, 1224, 792}) {
		t.Errorf("panel fill = %+v", fill)
	}

	lines := cv.kind("line")
	sep := lines[len(lines)-1]
	pattern := lines[:len(lines)-1]

	first := pattern[0].Seg
	if first != (Segment{632, 60, 1204, 60}) {
		t.Errorf("first stroke = %+v, want y=60 x 632..1204", first)
	}
	// Regular lines at 60, 80, ... 760, then one more flush on the 772 margin.
	if len(pattern) != 37 {
		t.Errorf("got %d pattern lines, want 37", len(pattern))
	}
	if last := pattern[len(pattern)-1].Seg; last.Y0 != 772 {
		t.Errorf("last stroke at y=%g, want 772", last.Y0)
	}
	for _, ln := range pattern {
		if ln.Seg.Y0 < 60 || ln.Seg.Y0 > 772 || ln.Width != 1 || ln.Color != l.LineColor {
			t.Errorf("stroke %+v escapes the margin or has wrong style", ln)
		}
	}

	if sep.Seg != (Segment{612, 0, 612, 792}) || sep.Color != Black || sep.Width != 1 {
		t.Errorf("separator = %+v", sep)
	}
}

func TestLinedSkipsShortFinalGap(t *testing.T) {
	// Interior from y=60 to the margin at y=765: lines at 60..760 leave a
	// 5pt gap, less than half a spacing unit.
	cv := &recorder{}
	drawLined(cv, Rect{0, 0, 200, 785}, Black, 20)

	lines := cv.kind("line")
	if got := lines[len(lines)-1].Seg.Y0; got != 760 {
		t.Errorf("last line at y=%g, want 760", got)
	}
}

func TestComposePageBlankTopWithoutDate(t *testing.T) {
	l := layoutWith(func(l *Layout) {
		l.Style = StyleBlank
		l.Placement = PlacementTop
		l.IncludeDate = false
	})
	cv := &recorder{}

	plan, err := ComposePage(cv, 1, letter, l)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Page != (Size{612, 1584}) {
		t.Errorf("page = %v, want 612x1584", plan.Page)
	}

	want := []string{"page", "source", "fill", "text", "line"}
	if diff := cmp.Diff(want, cv.kinds()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	title := cv.kind("text")[0]
	if title.Text != "Notes" || title.X != 20 || title.Y != 35 || title.Size != 15 {
		t.Errorf("title = %+v", title)
	}
	if src := cv.kind("source")[0]; src.Rect != (Rect{0, 792, 612, 1584}) {
		t.Errorf("content at %v, want (0,792)-(612,1584)", src.Rect)
	}
	if sep := cv.kind("line")[0]; sep.Seg != (Segment{0, 792, 612, 792}) {
		t.Errorf("separator = %+v", sep.Seg)
	}
}

func TestDateOffsetPerFont(t *testing.T) {
	cases := map[Font]float64{
		FontMono:  1224 - 236,
		FontSerif: 1224 - 170,
		FontSans:  1224 - 185,
	}
	for font, wantX := range cases {
		l := layoutWith(func(l *Layout) {
			l.Font = font
			l.Style = StyleBlank
		})
		cv := &recorder{}
		if _, err := ComposePage(cv, 1, letter, l); err != nil {
			t.Fatal(err)
		}
		texts := cv.kind("text")
		if len(texts) != 2 {
			t.Fatalf("%s: got %d text ops, want title and date", font, len(texts))
		}
		date := texts[1]
		if date.Text != DateLabel || date.X != wantX || date.Y != 35 || date.Font != font {
			t.Errorf("%s: date = %+v, want x=%g", font, date, wantX)
		}
	}
}

func TestGridStaysInsideMargins(t *testing.T) {
	for _, s := range []float64{7, 20, 33.3, 50} {
		r := Rect{612, 0, 1224, 792}
		cv := &recorder{}
		drawGrid(cv, r, Black, s)

		squares := cv.kind("rect")
		wantCols := steps(612-2*s, s)
		wantRows := steps(792-4*s, s)
		if len(squares) != wantCols*wantRows {
			t.Errorf("spacing %g: %d squares, want %d", s, len(squares), wantCols*wantRows)
		}
		interior := Rect{r.X0 + s, r.Y0 + 3*s, r.X1 - s, r.Y1 - s}
		for _, sq := range squares {
			if sq.Rect.X1 > interior.X1+eps || sq.Rect.Y1 > interior.Y1+eps ||
				sq.Rect.X0 < interior.X0-eps || sq.Rect.Y0 < interior.Y0-eps {
				t.Errorf("spacing %g: square %v exceeds interior %v", s, sq.Rect, interior)
				break
			}
		}
	}
}

func TestGridLetterCounts(t *testing.T) {
	cv := &recorder{}
	drawGrid(cv, Rect{612, 0, 1224, 792}, Black, 20)
	squares := cv.kind("rect")
	if len(squares) != 28*35 {
		t.Fatalf("got %d squares, want %d", len(squares), 28*35)
	}
	if first := squares[0].Rect; first != (Rect{632, 60, 652, 80}) {
		t.Errorf("first square = %v", first)
	}
}

func TestDottedReachesEdges(t *testing.T) {
	cv := &recorder{}
	drawDotted(cv, Rect{612, 0, 1224, 792}, Black, 20)
	dots := cv.kind("dot")

	// 29x36 lattice plus a supplemental column at x=1204, a row at y=772
	// and their corner.
	if want := 29*36 + 36 + 29 + 1; len(dots) != want {
		t.Errorf("got %d dots, want %d", len(dots), want)
	}

	var maxX, maxY float64
	seen := map[[2]float64]bool{}
	for _, d := range dots {
		if d.Radius != 1 {
			t.Fatalf("dot radius %g, want 1", d.Radius)
		}
		if d.X < 632 || d.X > 1204 || d.Y < 60 || d.Y > 772 {
			t.Errorf("dot (%g,%g) outside the interior", d.X, d.Y)
		}
		key := [2]float64{d.X, d.Y}
		if seen[key] {
			t.Errorf("dot (%g,%g) drawn twice", d.X, d.Y)
		}
		seen[key] = true
		if d.X > maxX {
			maxX = d.X
		}
		if d.Y > maxY {
			maxY = d.Y
		}
	}
	if maxX != 1204 || maxY != 772 {
		t.Errorf("dotted field stops at (%g,%g), want (1204,772)", maxX, maxY)
	}
}

func TestDottedNoSupplementWhenFlush(t *testing.T) {
	// Interior 20..180 horizontally is an exact multiple of the spacing.
	cv := &recorder{}
	drawDotted(cv, Rect{0, 0, 200, 200}, Black, 20)
	dots := cv.kind("dot")
	// Columns 20..180 (9), rows 60..180 (7).
	if len(dots) != 9*7 {
		t.Errorf("got %d dots, want %d", len(dots), 9*7)
	}
}

func TestSeparatorDrawnOnceForEveryPlacement(t *testing.T) {
	for _, p := range []Placement{PlacementRight, PlacementLeft, PlacementTop, PlacementBottom} {
		for _, s := range []Style{StyleGrid, StyleLined, StyleDotted, StyleBlank} {
			l := layoutWith(func(l *Layout) {
				l.Placement = p
				l.Style = s
			})
			cv := &recorder{}
			plan, err := ComposePage(cv, 1, letter, l)
			if err != nil {
				t.Fatal(err)
			}
			count := 0
			for _, o := range cv.kind("line") {
				if o.Seg == plan.Separator && o.Color == Black {
					count++
				}
			}
			if count != 1 {
				t.Errorf("%s/%s: separator drawn %d times", p, s, count)
			}
			if last := cv.ops[len(cv.ops)-1]; last.Kind != "line" || last.Seg != plan.Separator {
				t.Errorf("%s/%s: separator is not the final operation", p, s)
			}
		}
	}
}

func TestPatternsConfinedToNotesRegion(t *testing.T) {
	for _, p := range []Placement{PlacementRight, PlacementLeft, PlacementTop, PlacementBottom} {
		for _, s := range []Style{StyleGrid, StyleLined, StyleDotted} {
			l := layoutWith(func(l *Layout) {
				l.Placement = p
				l.Style = s
			})
			cv := &recorder{}
			plan, err := ComposePage(cv, 1, Size{595.28, 841.89}, l)
			if err != nil {
				t.Fatal(err)
			}
			for _, o := range cv.ops {
				var r Rect
				switch o.Kind {
				case "rect":
					r = o.Rect
				case "dot":
					r = Rect{o.X - o.Radius, o.Y - o.Radius, o.X + o.Radius, o.Y + o.Radius}
				case "line":
					if o.Seg == plan.Separator {
						continue
					}
					r = Rect{o.Seg.X0, o.Seg.Y0, o.Seg.X1, o.Seg.Y1}
				default:
					continue
				}
				if !plan.Notes.Contains(r) {
					t.Errorf("%s/%s: %s at %v escapes notes %v", p, s, o.Kind, r, plan.Notes)
					break
				}
			}
		}
	}
}
