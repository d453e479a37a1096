// Package mjpeg holds the fixed HTTP responses and the per-frame multipart
// encoding written to relay clients.
package mjpeg

import "strconv"

// Boundary separates frames in the multipart stream.
const Boundary = "MULTIPART_BOUNDARY"

// StreamPreamble is sent once to every client before its first frame.
const StreamPreamble = "HTTP/1.1 200 OK\r\n" +
	"Cache-Control: no-cache, no-store, max-age=0, must-revalidate\r\n" +
	"Connection: keep-alive\r\n" +
	"Content-Type: multipart/x-mixed-replace;boundary=\"" + Boundary + "\"\r\n" +
	"Expires: Thu, Jan 01 1970 00:00:00 GMT\r\n" +
	"Pragma: no-cache\r\n" +
	"\r\n"

// NotFoundResponse is the complete reply to an unroutable request.
const NotFoundResponse = "HTTP/1.1 404 Not Found\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Apologies. Not Found"

// InfoHeader precedes the capability listing body.
const InfoHeader = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: application/javascript\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"Pragma: no-cache\r\n" +
	"\r\n"

// FrameTrailer terminates each frame payload.
const FrameTrailer = "\r\n"

const partPrefix = "--" + Boundary + "\r\nContent-Type: image/jpeg\r\nContent-Length: "

// AppendFrameHeader appends the part header for a JPEG payload of size bytes
// to dst. The payload and FrameTrailer follow it on the wire.
func AppendFrameHeader(dst []byte, size int) []byte {
	dst = append(dst, partPrefix...)
	dst = strconv.AppendInt(dst, int64(size), 10)
	return append(dst, "\r\n\r\n"...)
}

// AppendFrame appends one complete multipart chunk carrying jpeg to dst.
func AppendFrame(dst, jpeg []byte) []byte {
	dst = AppendFrameHeader(dst, len(jpeg))
	dst = append(dst, jpeg...)
	return append(dst, FrameTrailer...)
}
