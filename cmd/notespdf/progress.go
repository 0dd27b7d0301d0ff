package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
)

// progressBar draws a single updating line on a terminal. On anything
// else it prints one line per finished document.
type progressBar struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	width int
}

func newProgressBar(f *os.File) *progressBar {
	fd := int(f.Fd())
	bar := &progressBar{out: f, tty: term.IsTerminal(fd), width: 80}
	if bar.tty {
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			bar.width = w
		}
	}
	return bar
}

// OnProgress implements processor.ProgressObserver.
func (b *progressBar) OnProgress(e processor.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tty {
		if e.Stage == processor.StageCompleted {
			fmt.Fprintf(b.out, "[%d/%d] %s done\n", e.Document, e.DocumentCount, e.Filename)
		}
		return
	}
	fmt.Fprint(b.out, "\r"+renderBar(e, b.width))
}

// finish ends the bar's line.
func (b *progressBar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tty {
		fmt.Fprintln(b.out)
	}
}

// renderBar formats e to exactly width columns.
func renderBar(e processor.ProgressEvent, width int) string {
	label := fmt.Sprintf(" %3d%% %d/%d %s", e.Percent(), e.Document, e.DocumentCount, e.Filename)
	if e.PageCount > 0 {
		label += fmt.Sprintf(" p%d/%d", e.Page, e.PageCount)
	} else {
		label += " " + string(e.Stage)
	}

	barWidth := width / 3
	if barWidth < 10 {
		barWidth = 10
	}
	filled := int(e.Fraction * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	line := "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]" + label

	if len(line) > width {
		return line[:width]
	}
	return line + strings.Repeat(" ", width-len(line))
}
