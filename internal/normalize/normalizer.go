/**
 * Geometry Normalizer
 *
 * Repairs pages whose rendered geometry differs from their nominal
 * geometry (crop box != media box, or a /Rotate flag) so that every page
 * of the result is unrotated with equal, zero-origin boxes:
 * - Stage 1: box repair, written to a temporary file
 * - Stage 2: rotation bake-in, pairing each original page with its
 *   box-repaired counterpart
 *
 * Documents without defects are returned byte-for-byte unchanged.
 */

package normalize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/pdfdoc"
)

// Options configures a Normalizer.
type Options struct {
	// TempDir holds the intermediate document. Empty means os.TempDir().
	TempDir string
	Policy  Policy
	Logger  *logging.Logger
}

// Normalizer repairs page geometry. It holds no per-document state and is
// safe for concurrent use.
type Normalizer struct {
	tempDir string
	policy  Policy
	logger  *logging.Logger
}

// Report summarizes one normalization.
type Report struct {
	PageCount   int          `json:"pageCount"`
	Repaired    int          `json:"repaired"`
	Policy      string       `json:"policy"`
	Unchanged   bool         `json:"unchanged"`
	Corrections []Correction `json:"corrections,omitempty"`
	DurationMs  int64        `json:"durationMs"`
}

// Result is a normalized document and the final geometry of its pages.
type Result struct {
	Data   []byte
	Pages  []PageGeometry
	Report Report
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("normalizer")
	}
	return &Normalizer{tempDir: opts.TempDir, policy: opts.Policy, logger: opts.Logger}
}

// Describe returns the geometry of every page of data.
func Describe(data []byte) ([]PageGeometry, error) {
	doc, err := pdfdoc.ReadBytes(data)
	if err != nil {
		return nil, errors.NewIOError("read PDF", err)
	}
	return describe(doc)
}

func describe(doc *pdfdoc.Document) ([]PageGeometry, error) {
	if doc.PageCount() == 0 {
		return nil, errors.NewGeometryError(0, "document has no pages")
	}
	pages := make([]PageGeometry, 0, doc.PageCount())
	for n := 1; n <= doc.PageCount(); n++ {
		p, err := doc.Page(n)
		if err != nil {
			return nil, errors.NewGeometryError(n, "unreadable page box: "+err.Error())
		}
		pages = append(pages, PageGeometry{
			Page:     n,
			MediaBox: boxFromArray(p.MediaBox),
			CropBox:  boxFromArray(p.CropBox),
			Rotate:   p.Rotate,
		})
	}
	return pages, nil
}

// Normalize repairs data. The input slice is never modified.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	doc, err := pdfdoc.ReadBytes(data)
	if err != nil {
		return nil, errors.NewIOError("read input PDF", err)
	}
	original, err := describe(doc)
	if err != nil {
		return nil, err
	}

	defective := 0
	for _, g := range original {
		if g.Defective() {
			defective++
		}
	}
	if defective == 0 {
		n.logger.Debug("No geometry defects", "pages", len(original))
		return &Result{
			Data:  data,
			Pages: original,
			Report: Report{
				PageCount:  len(original),
				Policy:     n.policy.String(),
				Unchanged:  true,
				DurationMs: time.Since(start).Milliseconds(),
			},
		}, nil
	}

	if err := boxRepair(doc, original); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(n.tempDir, "normalize-*.pdf")
	if err != nil {
		return nil, errors.NewIOError("create intermediate file", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := doc.Write(tmp); err != nil {
		return nil, errors.NewIOError("write intermediate PDF", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(0, len(original), err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, errors.NewIOError("rewind intermediate PDF", err)
	}
	boxed, err := pdfdoc.Read(tmp)
	if err != nil {
		return nil, errors.NewIOError("read intermediate PDF", err)
	}

	out, pages, corrections, err := n.bake(ctx, original, boxed)
	if err != nil {
		return nil, err
	}

	report := Report{
		PageCount:   len(original),
		Repaired:    len(corrections),
		Policy:      n.policy.String(),
		Corrections: corrections,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	n.logger.Info("Normalized page geometry",
		"pages", report.PageCount,
		"repaired", report.Repaired,
		"policy", report.Policy,
		"durationMs", report.DurationMs)

	return &Result{Data: out, Pages: pages, Report: report}, nil
}

// boxRepair applies BoxRepair to every page of doc and drops metadata that
// may describe the old geometry.
func boxRepair(doc *pdfdoc.Document, original []PageGeometry) error {
	for _, g := range original {
		boxed, err := BoxRepair(g)
		if err != nil {
			return err
		}
		if err := doc.SetGeometry(g.Page, boxed.MediaBox.array(), boxed.CropBox.array(), 0); err != nil {
			return errors.NewGeometryError(g.Page, err.Error())
		}
	}
	if err := doc.DropMetadata(); err != nil {
		return errors.NewIOError("drop metadata", err)
	}
	return nil
}

// bake runs the second stage against the box-repaired document and
// serializes it.
func (n *Normalizer) bake(ctx context.Context, original []PageGeometry, boxed *pdfdoc.Document) ([]byte, []PageGeometry, []Correction, error) {
	if boxed.PageCount() != len(original) {
		return nil, nil, nil, errors.NewIntegrityError(len(original), boxed.PageCount())
	}
	intermediate, err := describe(boxed)
	if err != nil {
		return nil, nil, nil, err
	}

	pages := make([]PageGeometry, len(original))
	var corrections []Correction
	for i := range original {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, errors.NewCancelledError(i, len(original), err)
		}

		c, err := Repair(original[i], intermediate[i], n.policy)
		if err != nil {
			return nil, nil, nil, err
		}
		pages[i] = PageGeometry{Page: i + 1, MediaBox: c.To, CropBox: c.To}
		if !c.Changed() {
			continue
		}

		if err := boxed.Transform(i+1, [6]float64(c.Matrix)); err != nil {
			return nil, nil, nil, errors.NewGeometryError(i+1, err.Error())
		}
		if err := boxed.SetGeometry(i+1, c.To.array(), c.To.array(), 0); err != nil {
			return nil, nil, nil, errors.NewGeometryError(i+1, err.Error())
		}
		corrections = append(corrections, c)

		n.logger.Debug("Page repaired",
			"page", i+1,
			"defects", fmt.Sprint(c.Defects),
			"rotation", c.Rotation,
			"from", c.From.String(),
			"to", c.To.String())
	}

	var buf bytes.Buffer
	if err := boxed.Write(&buf); err != nil {
		return nil, nil, nil, errors.NewIOError("write normalized PDF", err)
	}
	return buf.Bytes(), pages, corrections, nil
}
