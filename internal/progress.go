package internal

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progress wraps an optional bar; the zero value is a no-op.
type progress struct {
	bar *progressbar.ProgressBar
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newProgress(enabled bool, w io.Writer, total int, description string) progress {
	if !enabled || total <= 0 {
		return progress{}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	return progress{bar: bar}
}

func (p progress) Set(n int) {
	if p.bar != nil {
		_ = p.bar.Set(n)
	}
}

func (p progress) Add() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p progress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
