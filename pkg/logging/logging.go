// Package logging builds the process logger.
package logging

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
)

// New creates the application logger. Messages are emitted to stdout, one
// JSON object per line, or pretty-printed for local development.
func New(pretty bool) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var (
			out []byte
			err error
		)
		if pretty {
			out, err = json.MarshalIndent(msg, "", "  ")
		} else {
			out, err = json.Marshal(msg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: marshal message: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stdout, string(out))
	})
}
