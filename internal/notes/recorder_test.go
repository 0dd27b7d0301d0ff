package notes

import "fmt"

// op is one recorded drawing call.
type op struct {
	Kind   string
	Rect   Rect
	Seg    Segment
	X, Y   float64
	Radius float64
	Text   string
	Font   Font
	Size   float64
	Color  Color
	Width  float64
	Page   int
	Dims   Size
}

// recorder is a Canvas that keeps every call in order.
type recorder struct {
	ops       []op
	failPlace bool
}

func (r *recorder) BeginPage(size Size) {
	r.ops = append(r.ops, op{Kind: "page", Dims: size})
}

func (r *recorder) PlaceSource(page int, dst Rect) error {
	if r.failPlace {
		return fmt.Errorf("cannot import page %d", page)
	}
	r.ops = append(r.ops, op{Kind: "source", Page: page, Rect: dst})
	return nil
}

func (r *recorder) FillRect(rect Rect, c Color) {
	r.ops = append(r.ops, op{Kind: "fill", Rect: rect, Color: c})
}

func (r *recorder) StrokeRect(rect Rect, c Color, width float64) {
	r.ops = append(r.ops, op{Kind: "rect", Rect: rect, Color: c, Width: width})
}

func (r *recorder) Line(s Segment, c Color, width float64) {
	r.ops = append(r.ops, op{Kind: "line", Seg: s, Color: c, Width: width})
}

func (r *recorder) Dot(x, y, radius float64, c Color) {
	r.ops = append(r.ops, op{Kind: "dot", X: x, Y: y, Radius: radius, Color: c})
}

func (r *recorder) Text(x, y float64, s string, font Font, size float64, c Color) {
	r.ops = append(r.ops, op{Kind: "text", X: x, Y: y, Text: s, Font: font, Size: size, Color: c})
}

func (r *recorder) Err() error { return nil }

func (r *recorder) Bytes() ([]byte, error) {
	return []byte(fmt.Sprintf("%d ops", len(r.ops))), nil
}

func (r *recorder) kind(k string) []op {
	var out []op
	for _, o := range r.ops {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}

func (r *recorder) kinds() []string {
	out := make([]string, len(r.ops))
	for i, o := range r.ops {
		out[i] = o.Kind
	}
	return out
}
