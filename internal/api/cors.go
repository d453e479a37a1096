package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// corsPolicy is the admin API's cross-origin policy. Every route is a
// read-only GET, so any origin may call it.
type corsPolicy struct {
	header http.Header
}

func newCORSPolicy() corsPolicy {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", strings.Join([]string{http.MethodGet, http.MethodOptions}, ", "))
	h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Last-Event-ID, "+requestIDHeader)
	h.Set("Access-Control-Expose-Headers", requestIDHeader)
	h.Set("Access-Control-Max-Age", strconv.Itoa(24*60*60))
	return corsPolicy{header: h}
}

func (p corsPolicy) each(set func(name, value string)) {
	for name, values := range p.header {
		set(name, values[0])
	}
}

// middleware stamps the policy on every huma response.
func (p corsPolicy) middleware(ctx huma.Context, next func(huma.Context)) {
	p.each(ctx.SetHeader)
	if ctx.Method() == http.MethodOptions {
		ctx.SetStatus(http.StatusNoContent)
		return
	}
	next(ctx)
}

// preflight answers OPTIONS for every path. huma registers only the
// operations' own methods, so preflights never reach its middleware.
func (p corsPolicy) preflight(w http.ResponseWriter, _ *http.Request) {
	p.each(w.Header().Set)
	w.WriteHeader(http.StatusNoContent)
}
