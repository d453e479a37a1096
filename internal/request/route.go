package request

import (
	"strconv"
	"strings"
)

// Kind classifies a routed request.
type Kind int

// Route kinds.
const (
	KindNotFound Kind = iota
	KindStream
	KindStill
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindStill:
		return "still"
	case KindInfo:
		return "info"
	default:
		return "not_found"
	}
}

// Path prefixes understood by the router.
const (
	StreamPrefix = "/video"
	StillPrefix  = "/still"
	InfoPath     = "/info"
	RootAlias    = StreamPrefix + "0"
)

// Route is where a request should be served.
type Route struct {
	Kind       Kind
	DevicePath string
	Width      uint32
	Height     uint32
}

// Router maps request paths onto capture devices.
type Router struct {
	DevicePrefix  string // e.g. "/dev/video"
	DefaultWidth  uint32
	DefaultHeight uint32
}

// DefaultRouter serves /dev/videoN at 640x480 unless asked otherwise.
func DefaultRouter() Router {
	return Router{DevicePrefix: "/dev/video", DefaultWidth: 640, DefaultHeight: 480}
}

// Resolve routes req. "/" is an alias for the first device's stream and
// "/info" never touches a device. For /videoN and /stillN the suffix must be
// decimal digits; it replaces the prefix in the device namespace.
func (rt Router) Resolve(req Request) Route {
	path := req.Path
	if path == "/" {
		path = RootAlias
	}
	if path == InfoPath {
		return Route{Kind: KindInfo}
	}

	var kind Kind
	var index string
	switch {
	case strings.HasPrefix(path, StreamPrefix):
		kind, index = KindStream, path[len(StreamPrefix):]
	case strings.HasPrefix(path, StillPrefix):
		kind, index = KindStill, path[len(StillPrefix):]
	default:
		return Route{Kind: KindNotFound}
	}
	if !isDigits(index) {
		return Route{Kind: KindNotFound}
	}

	return Route{
		Kind:       kind,
		DevicePath: rt.DevicePrefix + index,
		Width:      dimension(req.Params["width"], rt.DefaultWidth),
		Height:     dimension(req.Params["height"], rt.DefaultHeight),
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// dimension parses a positive decimal size, falling back to def.
func dimension(v string, def uint32) uint32 {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return def
	}
	return uint32(n)
}
