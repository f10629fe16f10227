package service

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Progress reports how far a driver got through its selection.
type Progress interface {
	Start(label string, total int)
	Advance(n int)
	Finish()
}

type noopProgress struct{}

func (noopProgress) Start(string, int) {}
func (noopProgress) Advance(int)       {}
func (noopProgress) Finish()           {}

// NoProgress discards progress updates.
var NoProgress Progress = noopProgress{}

const barWidth = 40

// ProgressBar draws a single-line bar when writing to a terminal and one
// line per tenth of the work otherwise, so log files stay readable.
type ProgressBar struct {
	w      io.Writer
	redraw bool

	mu     sync.Mutex
	label  string
	total  int
	done   int
	tenths int
}

// NewProgressBar returns a bar on f that redraws in place when f is a
// terminal.
func NewProgressBar(f *os.File) *ProgressBar {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return NewProgressWriter(f, tty)
}

// NewProgressWriter returns a bar on w.
func NewProgressWriter(w io.Writer, redraw bool) *ProgressBar {
	return &ProgressBar{w: w, redraw: redraw}
}

func (p *ProgressBar) Start(label string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label, p.total, p.done, p.tenths = label, total, 0, 0
	if p.redraw {
		p.draw()
	}
}

func (p *ProgressBar) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = min(p.done+n, p.total)

	if p.redraw {
		p.draw()
		return
	}
	if p.total == 0 {
		return
	}
	if tenths := p.done * 10 / p.total; tenths > p.tenths {
		p.tenths = tenths
		fmt.Fprintf(p.w, "%s: %s/%s (%d%%)\n", p.label,
			humanize.Comma(int64(p.done)), humanize.Comma(int64(p.total)), tenths*10)
	}
}

func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.redraw {
		p.draw()
		fmt.Fprintln(p.w)
		return
	}
	if p.total == 0 {
		fmt.Fprintf(p.w, "%s: nothing to do\n", p.label)
	}
}

func (p *ProgressBar) draw() {
	filled := barWidth
	if p.total > 0 {
		filled = p.done * barWidth / p.total
	}
	fmt.Fprintf(p.w, "\r%-10s [%s%s] %s/%s", p.label,
		strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled),
		humanize.Comma(int64(p.done)), humanize.Comma(int64(p.total)))
}
