// Package testpdf builds small PDFs for tests: plain pages of given sizes,
// and copies of those with rewritten page geometry.
package testpdf

import (
	"bytes"
	"fmt"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"github.com/adverant/nexus/pdfnotes-worker/internal/pdfdoc"
)

// Size is a page size in points.
type Size struct {
	Width, Height float64
}

var (
	Letter = Size{612, 792}
	A4     = Size{595.28, 841.89}
)

// Build returns a PDF with one page per size. Each page carries a framed
// border and its page number so imported pages are visibly distinct.
func Build(sizes ...Size) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCompression(false)

	for i, s := range sizes {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: s.Width, Ht: s.Height})
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(2)
		pdf.Rect(10, 10, s.Width-20, s.Height-20, "D")
		pdf.SetFont("Helvetica", "", 24)
		pdf.Text(30, 60, fmt.Sprintf("page %d", i+1))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustBuild is Build for tests.
func MustBuild(tb testing.TB, sizes ...Size) []byte {
	tb.Helper()
	data, err := Build(sizes...)
	if err != nil {
		tb.Fatalf("build fixture: %v", err)
	}
	return data
}

// Edit describes raw geometry entries to write onto one page. Nil fields
// are left as they are.
type Edit struct {
	MediaBox *[4]float64
	CropBox  *[4]float64
	Rotate   *int
}

// Box is a helper for Edit literals.
func Box(llx, lly, urx, ury float64) *[4]float64 {
	return &[4]float64{llx, lly, urx, ury}
}

// Rotate is a helper for Edit literals.
func Rotate(deg int) *int {
	return &deg
}

// Mutate returns a copy of data with the given page entries rewritten.
// Keys are 1-based page numbers.
func Mutate(data []byte, edits map[int]Edit) ([]byte, error) {
	doc, err := pdfdoc.ReadBytes(data)
	if err != nil {
		return nil, err
	}
	for page, e := range edits {
		if err := doc.SetPageEntries(page, e.MediaBox, e.CropBox, e.Rotate); err != nil {
			return nil, err
		}
	}
	return doc.Bytes()
}

// MustMutate is Mutate for tests.
func MustMutate(tb testing.TB, data []byte, edits map[int]Edit) []byte {
	tb.Helper()
	out, err := Mutate(data, edits)
	if err != nil {
		tb.Fatalf("mutate fixture: %v", err)
	}
	return out
}

// MustInheritRotate sets /Rotate on the page tree root so every page
// inherits it.
func MustInheritRotate(tb testing.TB, data []byte, rotate int) []byte {
	tb.Helper()
	doc, err := pdfdoc.ReadBytes(data)
	if err != nil {
		tb.Fatalf("read fixture: %v", err)
	}
	if err := doc.SetInheritedRotate(rotate); err != nil {
		tb.Fatalf("inherit rotate: %v", err)
	}
	out, err := doc.Bytes()
	if err != nil {
		tb.Fatalf("write fixture: %v", err)
	}
	return out
}

// MustPages reads the resolved geometry of every page.
func MustPages(tb testing.TB, data []byte) []pdfdoc.Page {
	tb.Helper()
	doc, err := pdfdoc.ReadBytes(data)
	if err != nil {
		tb.Fatalf("read PDF: %v", err)
	}
	pages, err := doc.Pages()
	if err != nil {
		tb.Fatalf("read pages: %v", err)
	}
	return pages
}
