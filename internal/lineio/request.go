package lineio

import (
	"fmt"
	"strconv"
	"strings"

	"fwdproxy-go/internal/model"
)

// BadRequestError marks a request-line parse failure that must be
// reported to the client as an HTTP 400 by the caller.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("lineio: bad request: %s", e.Reason)
}

// ParsedRequest is the result of parsing a client request line.
type ParsedRequest struct {
	Request       *model.Request
	Version       model.Version
	ConnectMethod bool
}

// ParseRequestLine splits "METHOD SP URL SP VERSION" into its request,
// classifying the URL as an http:// origin form or a CONNECT target.
func ParseRequestLine(line string) (*ParsedRequest, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, &BadRequestError{Reason: "no request found"}
	}

	method := fields[0]
	url := fields[1]
	protocol := ""
	if len(fields) >= 3 {
		protocol = fields[2]
	}

	var (
		req     *model.Request
		connect bool
		err     error
	)

	switch {
	case len(url) >= 7 && strings.EqualFold(url[:7], "http://"):
		normalized := "http" + url[4:]
		req, err = ExtractHTTPURL(normalized)
		if err != nil {
			return nil, &BadRequestError{Reason: "could not parse URL"}
		}
	case strings.EqualFold(method, "CONNECT"):
		req, err = ExtractSSLURL(url)
		if err != nil {
			return nil, &BadRequestError{Reason: "could not parse URL"}
		}
		connect = true
	default:
		return nil, &BadRequestError{Reason: "unknown URL type"}
	}

	req.Method = method
	req.Protocol = protocol

	version := model.Version{Major: 1, Minor: 0}
	if len(protocol) >= 4 && strings.EqualFold(protocol[:4], "http") {
		req.Protocol = "HTTP" + protocol[4:]
		if maj, min, ok := parseVersion(req.Protocol); ok {
			version = model.Version{Major: maj, Minor: min}
		}
	}

	return &ParsedRequest{Request: req, Version: version, ConnectMethod: connect}, nil
}

func parseVersion(protocol string) (major, minor uint, ok bool) {
	rest, found := strings.CutPrefix(protocol, "HTTP/")
	if !found {
		return 0, 0, false
	}
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.ParseUint(rest[:dot], 10, 32)
	min, err2 := strconv.ParseUint(rest[dot+1:], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint(maj), uint(min), true
}
