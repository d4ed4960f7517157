// Package progress renders terminal progress for catalog paging and file
// transfers. Everything is silent when --quiet is set.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// CLIProgress implements Reporter with a single progressbar line.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a reporter drawing on stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// NewCLIProgressTo creates a reporter drawing on w.
func NewCLIProgressTo(w io.Writer) *CLIProgress {
	return &CLIProgress{out: w}
}

// Start initializes the bar with its total and description.
func (p *CLIProgress) Start(total int64, description string) {
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar == nil {
		return
	}
	if limit := p.bar.GetMax64(); current > limit {
		// The catalog count can grow while we page.
		p.bar.ChangeMax64(current)
	}
	_ = p.bar.Set64(current)
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// SetDescription updates the bar's label.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// NoOpProgress is a Reporter that does nothing.
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                               {}
func (p *NoOpProgress) SetDescription(desc string)            {}

// NoOpUI is a TransferUI that draws nothing.
type NoOpUI struct{}

// NewNoOpUI creates a silent transfer UI.
func NewNoOpUI() *NoOpUI {
	return &NoOpUI{}
}

func (u *NoOpUI) AddFileBar(index, total int, localPath, format string, size int64) FileBar {
	return noOpBar{}
}
func (u *NoOpUI) Writer() io.Writer { return io.Discard }
func (u *NoOpUI) IsTerminal() bool  { return false }
func (u *NoOpUI) Wait()             {}

type noOpBar struct{}

func (noOpBar) Add(n int)          {}
func (noOpBar) SetRetry(count int) {}
func (noOpBar) Complete(err error) {}

// ProgressReader wraps an io.Reader and feeds every read into a FileBar.
type ProgressReader struct {
	reader io.Reader
	bar    FileBar
}

// NewProgressReader creates a new progress-reporting reader.
func NewProgressReader(reader io.Reader, bar FileBar) *ProgressReader {
	return &ProgressReader{reader: reader, bar: bar}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.bar.Add(n)
	}
	return n, err
}
