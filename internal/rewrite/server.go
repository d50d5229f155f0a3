package rewrite

import (
	"bufio"
	"fmt"

	"fwdproxy-go/internal/lineio"
	"fwdproxy-go/internal/model"
)

// ServerHeaders copies the server's status line and headers verbatim to
// the client until the terminating blank line, which is also forwarded
// (spec.md §4.H). A peer disconnect before the blank line is an error.
func ServerHeaders(conn *model.Connection, r *bufio.Reader) error {
	for {
		line, err := lineio.ReadLine(r)
		if err != nil {
			return fmt.Errorf("rewrite: read server header line: %w", err)
		}
		if _, err := fmt.Fprintf(conn.Client, "%s\r\n", line); err != nil {
			return fmt.Errorf("rewrite: write server header line: %w", err)
		}
		if line == "" {
			return nil
		}
	}
}
