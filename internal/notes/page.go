package notes

import "fmt"

const (
	// Title and date share one baseline, 35pt below the panel's top edge.
	titleInsetX   = 20
	titleBaseline = 35
	titleFontSize = 15

	separatorWidth = 1.0
)

// DateLabel is the fill-in date stamp drawn when Layout.IncludeDate is set.
const DateLabel = "Date: ___ / ___ / ______"

// renderPanel draws the notes region: background, title, optional date,
// then the background pattern.
func renderPanel(cv Canvas, r Rect, l Layout) error {
	cv.FillRect(r, l.BackgroundColor)
	cv.Text(r.X0+titleInsetX, r.Y0+titleBaseline, l.Title, l.Font, titleFontSize, l.TextColor)
	if l.IncludeDate {
		cv.Text(r.X1-l.Font.DateOffset(), r.Y0+titleBaseline, DateLabel, l.Font, titleFontSize, l.TextColor)
	}

	switch l.Style {
	case StyleLined:
		drawLined(cv, r, l.LineColor, l.Spacing)
	case StyleGrid:
		drawGrid(cv, r, l.LineColor, l.Spacing)
	case StyleDotted:
		drawDotted(cv, r, l.LineColor, l.Spacing)
	case StyleBlank:
	default:
		return fmt.Errorf("unknown style %q", l.Style)
	}
	return nil
}

// ComposePage renders source page number page (1-based) of size src onto
// a fresh page of cv. The separator is drawn last, so it is never covered
// by the panel background.
func ComposePage(cv Canvas, page int, src Size, l Layout) (PagePlan, error) {
	plan, err := PlanPage(l.Placement, src)
	if err != nil {
		return PagePlan{}, err
	}

	cv.BeginPage(plan.Page)
	if err := cv.PlaceSource(page, plan.Content); err != nil {
		return PagePlan{}, err
	}
	if err := renderPanel(cv, plan.Notes, l); err != nil {
		return PagePlan{}, err
	}
	cv.Line(plan.Separator, Black, separatorWidth)
	return plan, nil
}
