package lineio

import (
	"fmt"
	"regexp"
	"strconv"

	"fwdproxy-go/internal/model"
)

// httpURLPatterns are tried in order; the first match wins, mirroring the
// four-way sscanf fallback in the original C parser. HOST excludes ':'
// and '/'; PATH includes its leading '/'.
var httpURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^http://([^:/]+):(\d+)(/.*)$`), // host:port/path
	regexp.MustCompile(`^http://([^:/]+)(/.*)$`),       // host/path (port 80)
	regexp.MustCompile(`^http://([^:/]+):(\d+)$`),      // host:port (path /)
	regexp.MustCompile(`^http://([^:/]+)$`),            // host (port 80, path /)
}

// ExtractHTTPURL parses the four http:// URL forms accepted by an
// HTTP/1.0 forward proxy request line.
func ExtractHTTPURL(url string) (*model.Request, error) {
	if m := httpURLPatterns[0].FindStringSubmatch(url); m != nil {
		port, err := parsePort(m[2])
		if err != nil {
			return nil, err
		}
		return &model.Request{Host: m[1], Port: port, Path: m[3]}, nil
	}
	if m := httpURLPatterns[1].FindStringSubmatch(url); m != nil {
		return &model.Request{Host: m[1], Port: 80, Path: m[2]}, nil
	}
	if m := httpURLPatterns[2].FindStringSubmatch(url); m != nil {
		port, err := parsePort(m[2])
		if err != nil {
			return nil, err
		}
		return &model.Request{Host: m[1], Port: port, Path: "/"}, nil
	}
	if m := httpURLPatterns[3].FindStringSubmatch(url); m != nil {
		return &model.Request{Host: m[1], Port: 80, Path: "/"}, nil
	}
	return nil, fmt.Errorf("lineio: cannot parse URL %q", url)
}

// sslURLPattern matches the CONNECT target "host:port" form. HOST
// excludes ':'.
var sslURLPattern = regexp.MustCompile(`^([^:]+):(\d+)$`)

// ExtractSSLURL parses a CONNECT target, either "host:port" or a bare
// host defaulting to port 443.
func ExtractSSLURL(url string) (*model.Request, error) {
	if url == "" {
		return nil, fmt.Errorf("lineio: empty CONNECT target")
	}
	if m := sslURLPattern.FindStringSubmatch(url); m != nil {
		port, err := parsePort(m[2])
		if err != nil {
			return nil, err
		}
		return &model.Request{Host: m[1], Port: port}, nil
	}
	return &model.Request{Host: url, Port: 443}, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("lineio: invalid port %q: %w", s, err)
	}
	return uint16(n), nil
}
