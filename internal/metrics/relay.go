// Package metrics provides Prometheus metrics for the relay reactor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camrelay"

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Capture devices currently streaming",
	})

	clientsAttached = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clients_attached",
		Help:      "Clients attached to a device session",
	}, []string{"device"})

	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_captured_total",
		Help:      "Frames dequeued from a capture device",
	}, []string{"device"})

	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_delivered_total",
		Help:      "Frames written completely to a client",
	}, []string{"device"})

	framesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_skipped_total",
		Help:      "Frames not sent to a client that was still draining an earlier write",
	}, []string{"device"})

	bytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_sent_total",
		Help:      "Multipart bytes written to clients",
	}, []string{"device"})

	clientDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_drops_total",
		Help:      "Connections closed by the relay, by reason",
	}, []string{"reason"})

	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests routed, by route kind",
	}, []string{"route"})

	deviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_errors_total",
		Help:      "Capture device open or streaming failures",
	}, []string{"device"})
)

// SessionOpened counts a newly streaming device.
func SessionOpened(device string) {
	sessionsActive.Inc()
	clientsAttached.WithLabelValues(device).Set(0)
}

// SessionClosed removes a device's per-session series.
func SessionClosed(device string) {
	sessionsActive.Dec()
	clientsAttached.DeleteLabelValues(device)
}

// SetClientsAttached records the current client count of a session.
func SetClientsAttached(device string, n int) {
	clientsAttached.WithLabelValues(device).Set(float64(n))
}

// FrameCaptured counts one dequeued frame.
func FrameCaptured(device string) {
	framesCaptured.WithLabelValues(device).Inc()
}

// FrameDelivered counts one frame written completely to one client.
func FrameDelivered(device string) {
	framesDelivered.WithLabelValues(device).Inc()
}

// FrameSkipped counts one frame a busy client did not get.
func FrameSkipped(device string) {
	framesSkipped.WithLabelValues(device).Inc()
}

// BytesSent counts bytes written to a client of device.
func BytesSent(device string, n int) {
	bytesSent.WithLabelValues(device).Add(float64(n))
}

// ClientDropped counts a connection closed for reason.
func ClientDropped(reason string) {
	clientDrops.WithLabelValues(reason).Inc()
}

// RequestRouted counts a request by the route it resolved to.
func RequestRouted(route string) {
	requests.WithLabelValues(route).Inc()
}

// DeviceError counts a device failure.
func DeviceError(device string) {
	deviceErrors.WithLabelValues(device).Inc()
}
