package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionLifecycleMetrics(t *testing.T) {
	device := "/dev/video-metrics-test"
	before := testutil.ToFloat64(sessionsActive)

	SessionOpened(device)
	SetClientsAttached(device, 3)

	if got := testutil.ToFloat64(sessionsActive); got != before+1 {
		t.Errorf("sessions_active = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(clientsAttached.WithLabelValues(device)); got != 3 {
		t.Errorf("clients_attached = %v, want 3", got)
	}

	SessionClosed(device)
	if got := testutil.ToFloat64(sessionsActive); got != before {
		t.Errorf("sessions_active after close = %v, want %v", got, before)
	}
	if clientsAttached.DeleteLabelValues(device) {
		t.Errorf("clients_attached series for %s survived SessionClosed", device)
	}
}

func TestFrameCounters(t *testing.T) {
	device := "/dev/video-frames-test"

	FrameCaptured(device)
	FrameCaptured(device)
	FrameDelivered(device)
	FrameDelivered(device)
	FrameSkipped(device)
	BytesSent(device, 100)
	BytesSent(device, 50)

	if got := testutil.ToFloat64(framesCaptured.WithLabelValues(device)); got != 2 {
		t.Errorf("frames_captured_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesDelivered.WithLabelValues(device)); got != 2 {
		t.Errorf("frames_delivered_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesSkipped.WithLabelValues(device)); got != 1 {
		t.Errorf("frames_skipped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(bytesSent.WithLabelValues(device)); got != 150 {
		t.Errorf("bytes_sent_total = %v, want 150", got)
	}
}

func TestDropAndRequestCounters(t *testing.T) {
	before := testutil.ToFloat64(clientDrops.WithLabelValues("metrics_test"))
	ClientDropped("metrics_test")
	if got := testutil.ToFloat64(clientDrops.WithLabelValues("metrics_test")); got != before+1 {
		t.Errorf("client_drops_total = %v, want %v", got, before+1)
	}

	beforeReq := testutil.ToFloat64(requests.WithLabelValues("metrics_test"))
	RequestRouted("metrics_test")
	if got := testutil.ToFloat64(requests.WithLabelValues("metrics_test")); got != beforeReq+1 {
		t.Errorf("requests_total = %v, want %v", got, beforeReq+1)
	}

	DeviceError("/dev/video-error-test")
	if got := testutil.ToFloat64(deviceErrors.WithLabelValues("/dev/video-error-test")); got != 1 {
		t.Errorf("device_errors_total = %v, want 1", got)
	}
}
