package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// DownloadUI draws one mpb bar per file on a terminal and falls back to one
// line per event otherwise.
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	completed  atomic.Int32
	done       atomic.Bool
}

// DownloadFileBar is the bar for a single file
type DownloadFileBar struct {
	bar       *mpb.Bar
	ui        *DownloadUI
	label     string
	size      int64
	written   atomic.Int64
	retries   atomic.Int32
	startTime time.Time
	lastAdd   time.Time
}

// NewDownloadUI creates a UI on stderr, drawing bars only when stderr is a
// terminal.
func NewDownloadUI() *DownloadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return NewDownloadUIWithOutput(os.Stderr, isTerminal)
}

// NewDownloadUIWithOutput creates a UI on out. Bars are drawn only when
// isTerminal is set.
func NewDownloadUIWithOutput(out io.Writer, isTerminal bool) *DownloadUI {
	u := &DownloadUI{out: out, isTerminal: isTerminal}
	if isTerminal {
		u.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(200*time.Millisecond),
			mpb.WithWidth(80),
			// isTerminal was decided by the caller; mpb would otherwise stop
			// rendering for any writer that is not an *os.File.
			mpb.WithAutoRefresh(),
		)
	}
	return u
}

// AddFileBar creates the bar for one transfer.
func (u *DownloadUI) AddFileBar(index, total int, localPath, format string, size int64) FileBar {
	fb := &DownloadFileBar{
		ui:        u,
		label:     fmt.Sprintf("[%d/%d] %s", index, total, truncatePath(localPath, 2)),
		size:      size,
		startTime: time.Now(),
		lastAdd:   time.Now(),
	}

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Downloading %s (%s, %s)\n", fb.label, format, formatSize(size))
		return fb
	}

	barTotal := size
	if barTotal < 0 {
		barTotal = 0
	}
	fb.bar = u.progress.New(barTotal,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(s decor.Statistics) string {
				if r := fb.retries.Load(); r > 0 {
					return fmt.Sprintf("%s (retry %d)", fb.label, r)
				}
				return fb.label
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			decor.Name("  "),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 60), "done"),
		),
		mpb.BarRemoveOnComplete(),
	)
	return fb
}

// Add records n more bytes.
func (f *DownloadFileBar) Add(n int) {
	f.written.Add(int64(n))
	if f.bar != nil {
		now := time.Now()
		f.bar.EwmaIncrBy(n, now.Sub(f.lastAdd))
		f.lastAdd = now
	}
}

// SetRetry resets the bar for a new attempt.
func (f *DownloadFileBar) SetRetry(count int) {
	f.retries.Store(int32(count))
	f.written.Store(0)
	f.startTime = time.Now()
	f.lastAdd = f.startTime
	if f.bar != nil {
		f.bar.SetCurrent(0)
	} else {
		fmt.Fprintf(f.ui.out, "Retrying %s (attempt %d)\n", f.label, count+1)
	}
}

// Complete finishes the bar and prints a one-line summary.
func (f *DownloadFileBar) Complete(err error) {
	defer f.ui.completed.Add(1)

	written := f.written.Load()
	if err != nil {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		fmt.Fprintf(f.ui.Writer(), "✗ %s: %v\n", f.label, err)
		return
	}

	if f.bar != nil {
		f.bar.SetTotal(-1, true)
	}
	elapsed := time.Since(f.startTime)
	speed := float64(written) / max(elapsed.Seconds(), 0.001) / (1024 * 1024)
	fmt.Fprintf(f.ui.Writer(), "✓ %s (%s, %s, %.1f MiB/s)\n",
		f.label, formatSize(written), elapsed.Round(time.Second), speed)
}

// Wait blocks until all bars complete. Writes through Writer go straight to
// the underlying output afterwards.
func (u *DownloadUI) Wait() {
	if u.progress != nil && !u.done.Load() {
		u.progress.Wait()
	}
	u.done.Store(true)
}

// Writer returns a writer that prints above the bars while they are drawn.
func (u *DownloadUI) Writer() io.Writer {
	if u.progress != nil {
		return uiWriter{u: u}
	}
	return u.out
}

// uiWriter routes lines through the mpb container until it has finished.
type uiWriter struct {
	u *DownloadUI
}

func (w uiWriter) Write(p []byte) (int, error) {
	if w.u.done.Load() {
		return w.u.out.Write(p)
	}
	n, err := w.u.progress.Write(p)
	if errors.Is(err, mpb.ErrDone) {
		return w.u.out.Write(p)
	}
	return n, err
}

// IsTerminal reports whether bars are drawn.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// finished returns the number of completed bars.
func (u *DownloadUI) finished() int {
	return int(u.completed.Load())
}

// truncatePath keeps the last maxComponents elements of path.
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}

func formatSize(n int64) string {
	if n < 0 {
		return "size unknown"
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
}
