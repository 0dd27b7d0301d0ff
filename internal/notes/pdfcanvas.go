package notes

import (
	"bytes"
	"fmt"
	"io"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
)

// pdfCanvas renders onto a new fpdf document and imports source pages from
// an existing PDF through gofpdi. Units are points, origin top-left.
type pdfCanvas struct {
	pdf      *fpdf.Fpdf
	importer *gofpdi.Importer
	source   io.ReadSeeker
	encode   func(string) string
}

func newPDFCanvas(source []byte) *pdfCanvas {
	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCreator("pdfnotes-worker", true)

	return &pdfCanvas{
		pdf:      pdf,
		importer: gofpdi.NewImporter(),
		source:   bytes.NewReader(source),
		// Core fonts are cp1252-encoded.
		encode: pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

func (c *pdfCanvas) BeginPage(size Size) {
	c.pdf.AddPageFormat("P", fpdf.SizeType{Wd: size.Width, Ht: size.Height})
}

// PlaceSource imports the page's media box as a template. gofpdi panics on
// malformed input, which is turned into an IO error here.
func (c *pdfCanvas) PlaceSource(page int, dst Rect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewIOError(fmt.Sprintf("import source page %d", page), fmt.Errorf("%v", r))
		}
	}()

	tpl := c.importer.ImportPageFromStream(c.pdf, &c.source, page, "/MediaBox")
	c.importer.UseImportedTemplate(c.pdf, tpl, dst.X0, dst.Y0, dst.Width(), dst.Height())
	if c.pdf.Err() {
		return errors.NewIOError(fmt.Sprintf("import source page %d", page), c.pdf.Error())
	}
	return nil
}

func (c *pdfCanvas) FillRect(r Rect, col Color) {
	c.pdf.SetFillColor(col.RGB255())
	c.pdf.Rect(r.X0, r.Y0, r.Width(), r.Height(), "F")
}

func (c *pdfCanvas) StrokeRect(r Rect, col Color, width float64) {
	c.pdf.SetDrawColor(col.RGB255())
	c.pdf.SetLineWidth(width)
	c.pdf.Rect(r.X0, r.Y0, r.Width(), r.Height(), "D")
}

func (c *pdfCanvas) Line(s Segment, col Color, width float64) {
	c.pdf.SetDrawColor(col.RGB255())
	c.pdf.SetLineWidth(width)
	c.pdf.Line(s.X0, s.Y0, s.X1, s.Y1)
}

func (c *pdfCanvas) Dot(x, y, radius float64, col Color) {
	c.pdf.SetFillColor(col.RGB255())
	c.pdf.Circle(x, y, radius, "F")
}

func (c *pdfCanvas) Text(x, y float64, s string, font Font, size float64, col Color) {
	c.pdf.SetFont(font.family(), "", size)
	c.pdf.SetTextColor(col.RGB255())
	c.pdf.Text(x, y, c.encode(s))
}

// Err returns the first error recorded by the document, if any.
func (c *pdfCanvas) Err() error {
	if c.pdf.Err() {
		return c.pdf.Error()
	}
	return nil
}

// Bytes serializes the document.
func (c *pdfCanvas) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.pdf.Output(&buf); err != nil {
		return nil, errors.NewIOError("write output PDF", err)
	}
	return buf.Bytes(), nil
}
