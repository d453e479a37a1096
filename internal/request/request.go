// Package request parses and routes the HTTP request of a pending relay
// connection. Only the request line is interpreted; header lines are consumed
// for framing and discarded.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Limits applied while reading a request head.
const (
	MaxLineLength  = 8 * 1024
	MaxHeaderLines = 100
)

var (
	// ErrParse marks a malformed request line or an oversized head.
	ErrParse = errors.New("malformed request")
	// ErrTimeout marks a request that did not complete before its deadline.
	ErrTimeout = errors.New("request read timed out")
	// ErrClosed marks a peer that disconnected before finishing its request.
	ErrClosed = errors.New("connection closed before request completed")
)

// Request is the parsed request line of one connection.
type Request struct {
	Method   string
	Target   string
	Path     string
	RawQuery string
	Params   map[string]string
}

// Head accumulates a request head that arrives in arbitrary pieces. The
// zero value is ready to use and never expires.
type Head struct {
	deadline time.Time
	line     []byte
	req      Request
	started  bool
	headers  int
	received int
}

// NewHead returns a Head that expires at deadline.
func NewHead(deadline time.Time) *Head {
	return &Head{deadline: deadline}
}

// Received returns the number of bytes fed so far.
func (h *Head) Received() int {
	return h.received
}

// Expired returns ErrTimeout once now has reached the deadline.
func (h *Head) Expired(now time.Time) error {
	if h.deadline.IsZero() || now.Before(h.deadline) {
		return nil
	}
	return fmt.Errorf("%w: %d bytes received", ErrTimeout, h.received)
}

// Feed appends p and reports whether the terminating empty line has arrived.
// Bytes after it are ignored. Limit violations fail with ErrParse as soon as
// they are visible, even before the line ends.
func (h *Head) Feed(p []byte) (Request, bool, error) {
	h.received += len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			h.line = append(h.line, p...)
			if len(h.line) >= MaxLineLength {
				return Request{}, false, fmt.Errorf("%w: line longer than %d bytes", ErrParse, MaxLineLength)
			}
			return Request{}, false, nil
		}
		h.line = append(h.line, p[:i]...)
		p = p[i+1:]
		if len(h.line) >= MaxLineLength {
			return Request{}, false, fmt.Errorf("%w: line longer than %d bytes", ErrParse, MaxLineLength)
		}
		line := string(bytes.TrimSuffix(h.line, []byte("\r")))
		h.line = h.line[:0]

		done, err := h.consume(line)
		if err != nil {
			return Request{}, false, err
		}
		if done {
			return h.req, true, nil
		}
	}
	return Request{}, false, nil
}

func (h *Head) consume(line string) (bool, error) {
	if !h.started {
		req, err := ParseRequestLine(line)
		if err != nil {
			return false, err
		}
		h.req = req
		h.started = true
		return false, nil
	}
	if line == "" {
		return true, nil
	}
	h.headers++
	if h.headers > MaxHeaderLines {
		return false, fmt.Errorf("%w: more than %d header lines", ErrParse, MaxHeaderLines)
	}
	return false, nil
}

// ParseRequestLine parses "METHOD TARGET[ VERSION]". The method is recorded
// but not validated.
func ParseRequestLine(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return Request{}, fmt.Errorf("%w: request line %q", ErrParse, line)
	}
	target := fields[1]
	if !strings.HasPrefix(target, "/") {
		return Request{}, fmt.Errorf("%w: target %q", ErrParse, target)
	}
	path, query := SplitTarget(target)
	return Request{
		Method:   fields[0],
		Target:   target,
		Path:     path,
		RawQuery: query,
		Params:   ParseQuery(query),
	}, nil
}

// SplitTarget splits a request target on the first '?'. The query is empty
// when there is none.
func SplitTarget(target string) (path, query string) {
	path, query, _ = strings.Cut(target, "?")
	return path, query
}

// ParseQuery splits query on '&' and each pair on its first '='. Pairs without
// '=', with an empty key, or with invalid percent escapes are skipped. Keys and
// values are unescaped; a repeated key keeps its last value.
func ParseQuery(query string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		rawKey, rawValue, ok := strings.Cut(pair, "=")
		if !ok || rawKey == "" {
			continue
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil || key == "" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		params[key] = value
	}
	return params
}
