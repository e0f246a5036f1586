package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
)

var _ batch.Progress = (*barProgress)(nil)

// barProgress draws one terminal progress bar per SetTotal call, so a
// multi-stage pass shows a bar per stage.
type barProgress struct {
	w     io.Writer
	label string
	bar   *progressbar.ProgressBar
}

func newBarProgress(w io.Writer, label string) *barProgress {
	return &barProgress{w: w, label: label}
}

// Stage renames the bar drawn by the next SetTotal.
func (p *barProgress) Stage(label string) {
	p.finish()
	p.label = label
}

func (p *barProgress) SetTotal(total int) {
	p.finish()

	if total <= 0 {
		fmt.Fprintf(p.w, "%s: nothing to do\n", p.label)
		return
	}

	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]%s[reset]", p.label)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(p.w)
		}),
	)
}

func (p *barProgress) Advance() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *barProgress) finish() {
	if p.bar == nil {
		return
	}

	if !p.bar.IsFinished() {
		// Interrupted pass: leave the partial bar on screen.
		fmt.Fprintln(p.w)
	}

	p.bar = nil
}
