package request

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantPath  string
		wantQuery string
		wantErr   bool
	}{
		{name: "plain path", line: "GET /video0 HTTP/1.1", wantPath: "/video0"},
		{name: "with query", line: "GET /video1?width=320&height=240 HTTP/1.1", wantPath: "/video1", wantQuery: "width=320&height=240"},
		{name: "empty query", line: "GET /still0? HTTP/1.0", wantPath: "/still0"},
		{name: "second question mark stays in query", line: "GET /a?b=1?c HTTP/1.1", wantPath: "/a", wantQuery: "b=1?c"},
		{name: "no version", line: "GET /info", wantPath: "/info"},
		{name: "other method accepted", line: "HEAD / HTTP/1.1", wantPath: "/"},
		{name: "empty line", line: "", wantErr: true},
		{name: "method only", line: "GET", wantErr: true},
		{name: "too many fields", line: "GET / HTTP/1.1 extra", wantErr: true},
		{name: "absolute form rejected", line: "GET http://host/video0 HTTP/1.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequestLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("expected ErrParse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", req.Path, tt.wantPath)
			}
			if req.RawQuery != tt.wantQuery {
				t.Errorf("RawQuery = %q, want %q", req.RawQuery, tt.wantQuery)
			}
		})
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  map[string]string
	}{
		{name: "empty", query: "", want: map[string]string{}},
		{name: "two pairs", query: "width=320&height=240", want: map[string]string{"width": "320", "height": "240"}},
		{name: "last occurrence wins", query: "width=1&width=2", want: map[string]string{"width": "2"}},
		{name: "pair without equals skipped", query: "flag&width=5", want: map[string]string{"width": "5"}},
		{name: "empty key skipped", query: "=3&height=4", want: map[string]string{"height": "4"}},
		{name: "empty value kept", query: "width=", want: map[string]string{"width": ""}},
		{name: "split on first equals", query: "a=b=c", want: map[string]string{"a": "b=c"}},
		{name: "percent decoding", query: "name=a%20b&x=1+2", want: map[string]string{"name": "a b", "x": "1 2"}},
		{name: "bad escape skipped", query: "bad=%zz&ok=1", want: map[string]string{"ok": "1"}},
		{name: "stray ampersands", query: "&&width=8&", want: map[string]string{"width": "8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuery(tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseQuery(%q) = %v, want %v", tt.query, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseQuery(%q)[%q] = %q, want %q", tt.query, k, got[k], v)
				}
			}
		})
	}
}

// feedBytes feeds input one byte at a time.
func feedBytes(input string) (Request, bool, error) {
	var h Head
	for i := 0; i < len(input); i++ {
		req, done, err := h.Feed([]byte{input[i]})
		if err != nil || done {
			return req, done, err
		}
	}
	return Request{}, false, nil
}

func TestHeadFeed(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantPath   string
		incomplete bool
		wantErr    error
	}{
		{
			name:     "crlf request",
			input:    "GET /video0?width=320 HTTP/1.1\r\nHost: cam\r\nUser-Agent: test\r\n\r\n",
			wantPath: "/video0",
		},
		{
			name:     "bare lf request",
			input:    "GET /still2 HTTP/1.1\nHost: cam\n\n",
			wantPath: "/still2",
		},
		{
			name:     "malformed header line is ignored",
			input:    "GET /info HTTP/1.1\r\nthis is not a header\r\nHost: cam\r\n\r\n",
			wantPath: "/info",
		},
		{
			name:     "bytes after the head are ignored",
			input:    "GET /video1 HTTP/1.1\r\n\r\ngarbage",
			wantPath: "/video1",
		},
		{
			name:       "no blank line yet",
			input:      "GET /video0 HTTP/1.1\r\nHost: cam\r\n",
			incomplete: true,
		},
		{
			name:       "nothing yet",
			input:      "",
			incomplete: true,
		},
		{
			name:    "bad request line",
			input:   "garbage\r\n\r\n",
			wantErr: ErrParse,
		},
		{
			name:    "oversized line",
			input:   "GET /" + strings.Repeat("a", MaxLineLength) + " HTTP/1.1\r\n\r\n",
			wantErr: ErrParse,
		},
		{
			name:    "oversized line without terminator",
			input:   strings.Repeat("a", MaxLineLength),
			wantErr: ErrParse,
		},
		{
			name:     "header limit",
			input:    "GET / HTTP/1.1\r\n" + strings.Repeat("X-A: b\r\n", MaxHeaderLines) + "\r\n",
			wantPath: "/",
		},
		{
			name:    "too many headers",
			input:   "GET / HTTP/1.1\r\n" + strings.Repeat("X-A: b\r\n", MaxHeaderLines+1) + "\r\n",
			wantErr: ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, done, err := feedBytes(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Feed() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Feed() error = %v", err)
			}
			if done == tt.incomplete {
				t.Fatalf("Feed() done = %v, want %v", done, !tt.incomplete)
			}
			if req.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", req.Path, tt.wantPath)
			}
		})
	}
}

func TestHeadFeedWhole(t *testing.T) {
	var h Head
	req, done, err := h.Feed([]byte("GET /still0?width=800&height=600 HTTP/1.0\r\n\r\n"))
	if err != nil || !done {
		t.Fatalf("Feed() = done %v, err %v", done, err)
	}
	if req.Method != "GET" || req.Params["width"] != "800" || req.Params["height"] != "600" {
		t.Errorf("request = %+v", req)
	}
	if h.Received() != 45 {
		t.Errorf("Received() = %d, want 45", h.Received())
	}
}
