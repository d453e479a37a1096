package request

import "testing"

func TestRouterResolve(t *testing.T) {
	rt := DefaultRouter()

	tests := []struct {
		name   string
		target string
		want   Route
	}{
		{name: "root aliases first stream", target: "/", want: Route{Kind: KindStream, DevicePath: "/dev/video0", Width: 640, Height: 480}},
		{name: "stream with size", target: "/video1?width=320&height=240", want: Route{Kind: KindStream, DevicePath: "/dev/video1", Width: 320, Height: 240}},
		{name: "still", target: "/still3", want: Route{Kind: KindStill, DevicePath: "/dev/video3", Width: 640, Height: 480}},
		{name: "multi digit index", target: "/video12", want: Route{Kind: KindStream, DevicePath: "/dev/video12", Width: 640, Height: 480}},
		{name: "non numeric size falls back", target: "/video0?width=abc&height=-5", want: Route{Kind: KindStream, DevicePath: "/dev/video0", Width: 640, Height: 480}},
		{name: "zero size falls back", target: "/video0?width=0&height=0", want: Route{Kind: KindStream, DevicePath: "/dev/video0", Width: 640, Height: 480}},
		{name: "only width given", target: "/video0?width=1280", want: Route{Kind: KindStream, DevicePath: "/dev/video0", Width: 1280, Height: 480}},
		{name: "info", target: "/info", want: Route{Kind: KindInfo}},
		{name: "info ignores query", target: "/info?x=1", want: Route{Kind: KindInfo}},
		{name: "bogus", target: "/bogus", want: Route{Kind: KindNotFound}},
		{name: "prefix without index", target: "/video", want: Route{Kind: KindNotFound}},
		{name: "traversal suffix", target: "/video0/../../etc/passwd", want: Route{Kind: KindNotFound}},
		{name: "letters after prefix", target: "/videox", want: Route{Kind: KindNotFound}},
		{name: "case sensitive", target: "/Video0", want: Route{Kind: KindNotFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequestLine("GET " + tt.target + " HTTP/1.1")
			if err != nil {
				t.Fatalf("ParseRequestLine: %v", err)
			}
			if got := rt.Resolve(req); got != tt.want {
				t.Errorf("Resolve(%q) = %+v, want %+v", tt.target, got, tt.want)
			}
		})
	}
}

func TestRouterCustomNamespace(t *testing.T) {
	rt := Router{DevicePrefix: "/tmp/cams/cam", DefaultWidth: 1920, DefaultHeight: 1080}
	req, err := ParseRequestLine("GET /still7 HTTP/1.1")
	if err != nil {
		t.Fatal(err)
	}
	want := Route{Kind: KindStill, DevicePath: "/tmp/cams/cam7", Width: 1920, Height: 1080}
	if got := rt.Resolve(req); got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindStream:   "stream",
		KindStill:    "still",
		KindInfo:     "info",
		KindNotFound: "not_found",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
