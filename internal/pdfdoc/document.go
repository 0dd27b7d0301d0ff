/**
 * Page-dictionary access on top of pdfcpu
 *
 * Reads page boxes and rotation (resolving inheritance from the page
 * tree), rewrites them, and prepends coordinate transforms to page
 * content. Output uses classic xref tables without object streams so any
 * downstream reader can import the pages.
 */

package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var disableConfigDir sync.Once

// Page is the geometry-relevant part of a page dictionary, with inherited
// values resolved. Boxes are [llx lly urx ury].
type Page struct {
	Number     int
	MediaBox   [4]float64
	CropBox    [4]float64
	HasCropBox bool
	Rotate     int
}

// Document is an editable PDF.
type Document struct {
	ctx *model.Context
}

func configuration() *model.Configuration {
	// Keep pdfcpu from creating a config directory under $HOME.
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// Read parses and validates a PDF.
func Read(r io.ReadSeeker) (*Document, error) {
	ctx, err := api.ReadContext(r, configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// ReadBytes is Read for an in-memory PDF.
func ReadBytes(data []byte) (*Document, error) {
	return Read(bytes.NewReader(data))
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

func (d *Document) pageDict(n int) (types.Dict, *model.InheritedPageAttrs, error) {
	if n < 1 || n > d.ctx.PageCount {
		return nil, nil, fmt.Errorf("page %d out of range 1..%d", n, d.ctx.PageCount)
	}
	dict, _, inh, err := d.ctx.PageDict(n, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get page dict for page %d: %w", n, err)
	}
	if dict == nil {
		return nil, nil, fmt.Errorf("page %d has no page dict", n)
	}
	return dict, inh, nil
}

// Page returns page n (1-based).
func (d *Document) Page(n int) (Page, error) {
	dict, inh, err := d.pageDict(n)
	if err != nil {
		return Page{}, err
	}
	p := Page{Number: n}

	media, ok, err := d.box(dict, "MediaBox")
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	switch {
	case ok:
		p.MediaBox = media
	case inh != nil && inh.MediaBox != nil:
		p.MediaBox = fromRectangle(inh.MediaBox)
	default:
		return Page{}, fmt.Errorf("page %d: no media box", n)
	}

	crop, ok, err := d.box(dict, "CropBox")
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	switch {
	case ok:
		p.CropBox, p.HasCropBox = crop, true
	case inh != nil && inh.CropBox != nil:
		p.CropBox, p.HasCropBox = fromRectangle(inh.CropBox), true
	default:
		p.CropBox = p.MediaBox
	}

	rotate, ok, err := d.integer(dict, "Rotate")
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	switch {
	case ok:
		p.Rotate = rotate
	case inh != nil:
		p.Rotate = inh.Rotate
	}
	return p, nil
}

// Pages returns all pages in order.
func (d *Document) Pages() ([]Page, error) {
	pages := make([]Page, 0, d.ctx.PageCount)
	for n := 1; n <= d.ctx.PageCount; n++ {
		p, err := d.Page(n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// SetGeometry writes explicit boxes and rotation onto page n, overriding
// anything inherited from the page tree.
func (d *Document) SetGeometry(n int, media, crop [4]float64, rotate int) error {
	dict, _, err := d.pageDict(n)
	if err != nil {
		return err
	}
	dict["MediaBox"] = boxArray(media)
	dict["CropBox"] = boxArray(crop)
	dict["Rotate"] = types.Integer(rotate)
	return nil
}

// SetPageEntries writes raw box/rotation entries on page n. Nil values
// are left untouched. Used to build defective fixtures.
func (d *Document) SetPageEntries(n int, media, crop *[4]float64, rotate *int) error {
	dict, _, err := d.pageDict(n)
	if err != nil {
		return err
	}
	if media != nil {
		dict["MediaBox"] = boxArray(*media)
	}
	if crop != nil {
		dict["CropBox"] = boxArray(*crop)
	}
	if rotate != nil {
		dict["Rotate"] = types.Integer(*rotate)
	}
	return nil
}

// SetInheritedRotate sets /Rotate on the root of the page tree.
func (d *Document) SetInheritedRotate(rotate int) error {
	root, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}
	pages, err := d.ctx.DereferenceDict(root["Pages"])
	if err != nil || pages == nil {
		return fmt.Errorf("failed to get page tree root: %v", err)
	}
	pages["Rotate"] = types.Integer(rotate)
	return nil
}

// Transform applies the matrix [a b c d e f] to everything page n draws by
// wrapping its content streams in "q <m> cm ... Q".
func (d *Document) Transform(n int, m [6]float64) error {
	dict, _, err := d.pageDict(n)
	if err != nil {
		return err
	}

	prefix, err := d.newContentStream("q " + formatMatrix(m) + " cm\n")
	if err != nil {
		return err
	}
	suffix, err := d.newContentStream("\nQ\n")
	if err != nil {
		return err
	}

	contents := types.Array{*prefix}
	if obj, found := dict["Contents"]; found && obj != nil {
		switch c := obj.(type) {
		case types.IndirectRef:
			target, err := d.ctx.Dereference(c)
			if err != nil {
				return fmt.Errorf("page %d: failed to resolve contents: %w", n, err)
			}
			if arr, ok := target.(types.Array); ok {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, c)
			}
		case types.Array:
			contents = append(contents, c...)
		default:
			return fmt.Errorf("page %d: unsupported /Contents of type %T", n, obj)
		}
	}
	contents = append(contents, *suffix)
	dict["Contents"] = contents
	return nil
}

// DropMetadata removes the document information dictionary and the
// catalog's XMP stream, both of which may describe the old geometry.
func (d *Document) DropMetadata() error {
	d.ctx.Info = nil
	root, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}
	delete(root, "Metadata")
	return nil
}

// Write serializes the document.
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// Bytes serializes the document to memory.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) newContentStream(content string) (*types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to create content stream: %w", err)
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode content stream: %w", err)
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, fmt.Errorf("failed to register content stream: %w", err)
	}
	return ref, nil
}

func (d *Document) box(dict types.Dict, key string) ([4]float64, bool, error) {
	obj, found := dict[key]
	if !found || obj == nil {
		return [4]float64{}, false, nil
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return [4]float64{}, false, fmt.Errorf("failed to resolve /%s: %w", key, err)
	}
	arr, ok := obj.(types.Array)
	if !ok || len(arr) != 4 {
		return [4]float64{}, false, fmt.Errorf("/%s is not a 4-element array", key)
	}

	var b [4]float64
	for i, el := range arr {
		v, err := d.number(el)
		if err != nil {
			return [4]float64{}, false, fmt.Errorf("/%s[%d]: %w", key, i, err)
		}
		b[i] = v
	}
	// Boxes may be given with any two opposite corners.
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b, true, nil
}

func (d *Document) number(obj types.Object) (float64, error) {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return 0, err
	}
	switch v := obj.(type) {
	case types.Integer:
		return float64(v), nil
	case types.Float:
		return float64(v), nil
	}
	return 0, fmt.Errorf("expected number, got %T", obj)
}

func (d *Document) integer(dict types.Dict, key string) (int, bool, error) {
	obj, found := dict[key]
	if !found || obj == nil {
		return 0, false, nil
	}
	v, err := d.number(obj)
	if err != nil {
		return 0, false, fmt.Errorf("/%s: %w", key, err)
	}
	return int(v), true, nil
}

func fromRectangle(r *types.Rectangle) [4]float64 {
	return [4]float64{r.LL.X, r.LL.Y, r.UR.X, r.UR.Y}
}

func boxArray(b [4]float64) types.Array {
	return types.Array{
		types.Float(b[0]),
		types.Float(b[1]),
		types.Float(b[2]),
		types.Float(b[3]),
	}
}

func formatMatrix(m [6]float64) string {
	parts := make([]string, len(m))
	for i, v := range m {
		if v == 0 {
			v = 0 // avoid "-0"
		}
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
