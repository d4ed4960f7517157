package progress

import "io"

// Reporter tracks a single counted task, such as catalog pages.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	SetDescription(desc string)
}

// TransferUI shows one bar per file transfer.
type TransferUI interface {
	// AddFileBar creates a bar for a transfer into localPath. size is the
	// expected byte count, or <= 0 when unknown.
	AddFileBar(index, total int, localPath, format string, size int64) FileBar

	// Writer returns an io.Writer that prints above the bars.
	Writer() io.Writer

	// IsTerminal reports whether bars are being drawn.
	IsTerminal() bool

	// Wait blocks until every bar has completed.
	Wait()
}

// FileBar is the handle for one transfer
type FileBar interface {
	// Add records n more bytes written
	Add(n int)

	// SetRetry restarts the bar after a failed attempt
	SetRetry(count int)

	// Complete marks the transfer finished, successfully or not
	Complete(err error)
}
