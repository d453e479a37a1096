package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/smazurov/camrelay/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// quietPaths are polled by supervisors and dashboards.
var quietPaths = map[string]bool{
	"/api/health":   true,
	"/api/sessions": true,
}

// accessLevel picks the log level of an access line: debug for preflights
// and successful polls, then by status class.
func accessLevel(method, path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == http.MethodOptions, quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// HTTPLoggingMiddleware tags each request with an X-Request-ID, reusing the
// caller's when present, and writes one access line after it completes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()

	id := ctx.Header(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.SetHeader(requestIDHeader, id)

	next(ctx)

	u := ctx.URL()
	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("request_id", id),
		slog.String("method", ctx.Method()),
		slog.String("path", u.Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}
	if u.RawQuery != "" {
		attrs = append(attrs, slog.String("query", redactQuery(u.Query())))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logging.GetLogger("http").LogAttrs(ctx.Context(), accessLevel(ctx.Method(), u.Path, status), "HTTP request completed", attrs...)
}

// redactQuery hides the ?auth= credentials EventSource clients send.
func redactQuery(q url.Values) string {
	if q.Has("auth") {
		q.Set("auth", "REDACTED")
	}
	return q.Encode()
}
