// Package headers implements the HTTP header collector: reading a block
// of CRLF-terminated header lines from a socket into an ordered,
// case-insensitive model.HeaderMap.
package headers

import (
	"bufio"
	"fmt"

	"fwdproxy-go/internal/lineio"
	"fwdproxy-go/internal/model"
)

// MalformedHeaderError marks a header line with no ':' separator.
type MalformedHeaderError struct {
	Line string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("headers: malformed header line %q", e.Line)
}

// Collect reads lines from r until a blank line, splitting each into a
// name/value pair and inserting it into the returned HeaderMap. It stops
// at (and consumes) the terminating blank line.
func Collect(r *bufio.Reader) (*model.HeaderMap, error) {
	h := model.NewHeaderMap()
	for {
		line, err := lineio.ReadLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, &MalformedHeaderError{Line: line}
		}
		h.Set(name, value)
	}
}

// splitHeaderLine splits "Name:   value" into ("Name", "value"). The
// separator is the first ':' plus any run of further ':', ' ' or '\t'
// characters that follows it.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	j := idx
	for j < len(line) && isSeparatorByte(line[j]) {
		j++
	}
	value = line[j:]
	return name, value, true
}

func isSeparatorByte(b byte) bool {
	return b == ':' || b == ' ' || b == '\t'
}
