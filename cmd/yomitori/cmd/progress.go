package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// progressPrinter draws batch progress on a terminal line.
type progressPrinter struct {
	w      io.Writer
	quiet  bool
	start  time.Time
	failed int

	ok   *color.Color
	bad  *color.Color
	dim  *color.Color
	bold *color.Color
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{
		w:     w,
		quiet: quiet,
		ok:    color.New(color.FgGreen),
		bad:   color.New(color.FgRed),
		dim:   color.New(color.Faint),
		bold:  color.New(color.Bold),
	}
}

func (p *progressPrinter) OnStart(total int) {
	p.start = time.Now()
	p.failed = 0
	if p.quiet {
		return
	}
	_, _ = p.bold.Fprintf(p.w, "Processing %d image(s)\n", total)
}

func (p *progressPrinter) OnProgress(current, total int) {
	if p.quiet || total == 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(p.w, "\r[%s] %d/%d %s", p.bar(current, total, 30), current, total,
		p.dim.Sprintf("%.0f%% %s", pct, time.Since(p.start).Round(time.Second)))
}

func (p *progressPrinter) OnComplete() {
	if p.quiet {
		return
	}
	_, _ = fmt.Fprintln(p.w)
	if p.failed > 0 {
		_, _ = p.bad.Fprintf(p.w, "Finished with %d failure(s) in %v\n", p.failed, time.Since(p.start).Round(time.Millisecond))
		return
	}
	_, _ = p.ok.Fprintf(p.w, "Done in %v\n", time.Since(p.start).Round(time.Millisecond))
}

func (p *progressPrinter) OnError(current int, err error) {
	p.failed++
	if p.quiet {
		return
	}
	_, _ = fmt.Fprintf(p.w, "\r%s %s\n", p.bad.Sprintf("image %d failed:", current), err)
}

func (p *progressPrinter) bar(current, total, width int) string {
	filled := current * width / total
	out := make([]byte, width)
	for i := range out {
		if i < filled {
			out[i] = '='
		} else {
			out[i] = ' '
		}
	}
	return p.ok.Sprint(string(out))
}
