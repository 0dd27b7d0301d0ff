/**
 * Page Composer
 *
 * Builds the output document: one composed page per source page, in
 * source order. Each composed page holds an unscaled copy of the source
 * page next to a generated notes panel.
 */

package notes

import (
	"context"

	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
)

// PageFunc is called after each page is fully composed.
type PageFunc func(page, pageCount int)

// Composer turns normalized PDFs into notes-augmented PDFs for one layout.
type Composer struct {
	layout Layout
	logger *logging.Logger
}

// NewComposer validates l up front so no page is touched with a bad layout.
func NewComposer(l Layout, logger *logging.Logger) (*Composer, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger("composer")
	}
	return &Composer{layout: l, logger: logger}, nil
}

// Layout returns the composer's layout.
func (c *Composer) Layout() Layout {
	return c.layout
}

// Compose renders src, whose page sizes are given in order by pages. The
// context is checked between pages; a cancelled run returns no output.
func (c *Composer) Compose(ctx context.Context, src []byte, pages []Size, onPage PageFunc) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.NewGeometryError(0, "document has no pages")
	}
	// Fail on a degenerate page before drawing anything.
	for i, size := range pages {
		if _, err := PlanPage(c.layout.Placement, size); err != nil {
			if errors.HasCode(err, errors.ErrorGeometryInvalid) {
				return nil, errors.NewGeometryError(i+1, "zero-area page box")
			}
			return nil, err
		}
	}

	return c.render(ctx, newPDFCanvas(src), pages, onPage)
}

type documentCanvas interface {
	Canvas
	Err() error
	Bytes() ([]byte, error)
}

func (c *Composer) render(ctx context.Context, cv documentCanvas, pages []Size, onPage PageFunc) ([]byte, error) {
	for i, size := range pages {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError(i, len(pages), err)
		}

		plan, err := ComposePage(cv, i+1, size, c.layout)
		if err != nil {
			return nil, err
		}
		if err := cv.Err(); err != nil {
			return nil, errors.NewIOError("render page", err)
		}

		c.logger.Debug("Page composed",
			"page", i+1,
			"pageCount", len(pages),
			"width", plan.Page.Width,
			"height", plan.Page.Height)

		if onPage != nil {
			onPage(i+1, len(pages))
		}
	}
	return cv.Bytes()
}
