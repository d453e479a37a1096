package mjpeg

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"
	"testing"
)

func TestAppendFrameHeader(t *testing.T) {
	got := string(AppendFrameHeader(nil, 1234))
	want := "--MULTIPART_BOUNDARY\r\nContent-Type: image/jpeg\r\nContent-Length: 1234\r\n\r\n"
	if got != want {
		t.Errorf("AppendFrameHeader() = %q, want %q", got, want)
	}
}

func TestStreamParsesAsMultipart(t *testing.T) {
	frames := [][]byte{
		[]byte("\xff\xd8first\xff\xd9"),
		[]byte("\xff\xd8second frame with \r\n inside\xff\xd9"),
		{},
	}

	var stream []byte
	for _, f := range frames {
		stream = AppendFrame(stream, f)
	}
	// a closing delimiter lets mime/multipart report io.EOF cleanly
	stream = append(stream, "--"+Boundary+"--\r\n"...)

	reader := multipart.NewReader(bytes.NewReader(stream), Boundary)
	for i, want := range frames {
		part, err := reader.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part %d content type = %q", i, ct)
		}
		if cl := part.Header.Get("Content-Length"); cl != strconv.Itoa(len(want)) {
			t.Errorf("part %d content length = %q, want %d", i, cl, len(want))
		}
		got, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("part %d read: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("part %d payload = %q, want %q", i, got, want)
		}
	}
	if _, err := reader.NextPart(); err != io.EOF {
		t.Errorf("expected io.EOF after last part, got %v", err)
	}
}

func TestStreamPreamble(t *testing.T) {
	if !strings.HasPrefix(StreamPreamble, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("preamble status line: %q", StreamPreamble)
	}
	if !strings.HasSuffix(StreamPreamble, "\r\n\r\n") {
		t.Error("preamble must end with a blank line")
	}

	var contentType string
	for _, line := range strings.Split(StreamPreamble, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Content-Type: "); ok {
			contentType = v
		}
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType(%q): %v", contentType, err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		t.Errorf("media type = %q", mediaType)
	}
	if params["boundary"] != Boundary {
		t.Errorf("boundary = %q, want %q", params["boundary"], Boundary)
	}
}

func TestNotFoundResponse(t *testing.T) {
	if !strings.HasPrefix(NotFoundResponse, "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("unexpected status line: %q", NotFoundResponse)
	}
	if strings.Contains(NotFoundResponse, Boundary) {
		t.Error("404 response must not carry the multipart boundary")
	}
	if !strings.HasSuffix(NotFoundResponse, "\r\n\r\nApologies. Not Found") {
		t.Errorf("unexpected body: %q", NotFoundResponse)
	}
}
