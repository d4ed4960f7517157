// packt-dl mirrors the e-books, code archives and videos of a Packt account
// into a local directory.
//
// Exit codes: 0 success (per-file failures included), 1 catalog failure or
// cancellation, 2 usage, credential, login or output directory errors.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/packtdl/packt-dl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(cli.ExitFailure)
	}
}
