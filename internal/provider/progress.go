package provider

import (
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

type confirmBar struct {
	bar *progressbar.ProgressBar
}

// newConfirmBar returns a spinner shown while polling; disabled yields a no-op.
func newConfirmBar(enabled bool, commitment string, w io.Writer) *confirmBar {
	if !enabled {
		return &confirmBar{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("Awaiting "+commitment+" confirmation..."),
	)
	if err := bar.RenderBlank(); err != nil {
		slog.Warn("Failed to render progress bar", "error", err)
	}
	return &confirmBar{bar: bar}
}

func (b *confirmBar) tick() {
	if b.bar == nil {
		return
	}
	if err := b.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func (b *confirmBar) finish() {
	if b.bar == nil {
		return
	}
	if err := b.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
