package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/packtdl/packt-dl/internal/logging"
)

type countingBar struct {
	added    int
	retries  int
	complete bool
	err      error
}

func (b *countingBar) Add(n int)          { b.added += n }
func (b *countingBar) SetRetry(count int) { b.retries = count }
func (b *countingBar) Complete(err error) { b.complete, b.err = true, err }

func TestProgressReader(t *testing.T) {
	bar := &countingBar{}
	src := strings.NewReader(strings.Repeat("x", 10000))

	n, err := io.Copy(io.Discard, NewProgressReader(src, bar))
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 10000 || bar.added != 10000 {
		t.Errorf("copied %d, bar saw %d, want 10000", n, bar.added)
	}
}

func TestDownloadUI_NonTerminal(t *testing.T) {
	var out bytes.Buffer
	ui := NewDownloadUIWithOutput(&out, false)

	if ui.IsTerminal() {
		t.Fatal("expected non-terminal UI")
	}
	if ui.Writer() != &out {
		t.Error("non-terminal writer should be the output itself")
	}

	bar := ui.AddFileBar(1, 2, "/books/Mastering Go/Mastering Go.pdf", "pdf", 2*1024*1024)
	bar.Add(1024)
	bar.SetRetry(1)
	bar.Add(2 * 1024 * 1024)
	bar.Complete(nil)

	failed := ui.AddFileBar(2, 2, "/books/Rust.epub", "epub", -1)
	failed.Complete(errors.New("connection reset"))
	ui.Wait()

	got := out.String()
	for _, want := range []string{
		"Downloading [1/2] …/Mastering Go/Mastering Go.pdf (pdf, 2.0 MiB)",
		"Retrying [1/2]",
		"✓ [1/2]",
		"(epub, size unknown)",
		"✗ [2/2] …/books/Rust.epub: connection reset",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if ui.finished() != 2 {
		t.Errorf("finished() = %d, want 2", ui.finished())
	}
}

func TestDownloadUI_Terminal(t *testing.T) {
	var out bytes.Buffer
	ui := NewDownloadUIWithOutput(&out, true)

	bar := ui.AddFileBar(1, 1, "/books/Go.pdf", "pdf", 4096)
	bar.Add(4096)
	bar.Complete(nil)

	unknown := ui.AddFileBar(1, 1, "/books/Go.zip", "code", -1)
	unknown.Add(100)
	unknown.Complete(nil)
	ui.Wait()

	if ui.finished() != 2 {
		t.Errorf("finished() = %d, want 2", ui.finished())
	}
	got := out.String()
	for _, want := range []string{"✓ [1/1] …/books/Go.pdf", "✓ [1/1] …/books/Go.zip"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestDownloadUI_LoggerAfterWait(t *testing.T) {
	var out bytes.Buffer
	ui := NewDownloadUIWithOutput(&out, true)
	logger, err := logging.NewLogger(logging.Options{Out: &out})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.SetOutput(ui.Writer())

	bar := ui.AddFileBar(1, 1, "/books/Go.pdf", "pdf", 10)
	bar.Add(10)
	logger.Info().Msg("above the bars")
	bar.Complete(nil)
	ui.Wait()

	logger.Info().Int("downloaded", 1).Msg("Run complete")
	if _, err := ui.Writer().Write([]byte("tail\n")); err != nil {
		t.Errorf("Write after Wait failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"above the bars", "Run complete", "tail"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestNoOpUI(t *testing.T) {
	ui := NewNoOpUI()
	bar := ui.AddFileBar(1, 1, "/x", "pdf", 10)
	bar.Add(10)
	bar.Complete(nil)
	ui.Wait()
	if ui.IsTerminal() || ui.Writer() != io.Discard {
		t.Error("NoOpUI should be silent")
	}
}

func TestCLIProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIProgressTo(&out)
	p.Start(2, "Fetching catalog")
	p.Update(1)
	p.Update(3)
	p.SetDescription("Fetched catalog")
	p.Finish()

	if !strings.Contains(out.String(), "Fetch") {
		t.Errorf("expected bar output, got %q", out.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"Go.pdf", 2, "Go.pdf"},
		{"/books/Go/Go.pdf", 2, "…/Go/Go.pdf"},
		{"books/Go.pdf", 2, "Go.pdf"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.n); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
	}
}
