package main

import (
	"flag"

	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
)

// layoutFlags registers the layout options shared by compose and enqueue.
type layoutFlags struct {
	fs              *flag.FlagSet
	style           string
	placement       string
	font            string
	lineColor       string
	backgroundColor string
	textColor       string
	spacing         float64
	title           string
	date            bool
}

func newLayoutFlags(fs *flag.FlagSet) *layoutFlags {
	lf := &layoutFlags{fs: fs}
	fs.StringVar(&lf.style, "style", "", "notes pattern: Grid, Lined, Dotted or Blank")
	fs.StringVar(&lf.placement, "placement", "", "panel side: Right, Left, Top or Bottom")
	fs.StringVar(&lf.font, "font", "", "title font: Helvetica, Courier or Times-Roman")
	fs.StringVar(&lf.lineColor, "line-color", "", "pattern color as #RRGGBB")
	fs.StringVar(&lf.backgroundColor, "background-color", "", "panel color as #RRGGBB")
	fs.StringVar(&lf.textColor, "text-color", "", "title and date color as #RRGGBB")
	fs.Float64Var(&lf.spacing, "spacing", 0, "pattern spacing in points")
	fs.StringVar(&lf.title, "title", "", "panel title; empty for none")
	fs.BoolVar(&lf.date, "date", true, "print today's date under the title")
	return lf
}

// raw returns the flags that were set on the command line, or nil when
// none were, so unset fields keep the configured defaults.
func (lf *layoutFlags) raw() *notes.RawLayout {
	set := map[string]bool{}
	lf.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	r := &notes.RawLayout{
		Style:           lf.style,
		Placement:       lf.placement,
		Font:            lf.font,
		LineColor:       lf.lineColor,
		BackgroundColor: lf.backgroundColor,
		TextColor:       lf.textColor,
		Spacing:         lf.spacing,
	}
	if set["title"] {
		title := lf.title
		r.Title = &title
	}
	if set["date"] {
		date := lf.date
		r.IncludeDate = &date
	}

	for _, name := range []string{"style", "placement", "font", "line-color", "background-color", "text-color", "spacing", "title", "date"} {
		if set[name] {
			return r
		}
	}
	return nil
}
