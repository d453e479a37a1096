// Package exporters serves the relay's Prometheus collectors over HTTP.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/camrelay/internal/logging"
)

// HTTPHandler returns the /metrics handler for every promauto-registered
// collector. Gather errors are logged and the partial result is served.
func HTTPHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          errorLogger{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	)
}

type errorLogger struct{}

func (errorLogger) Println(v ...any) {
	logging.GetLogger("metrics").Warn("metrics gather failed", "error", v)
}
