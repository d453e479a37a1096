package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		var zero T
		t.Fatalf("no %T delivered", zero)
		return zero
	}
}

func nothing[T any](t *testing.T, ch <-chan T, why string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("%s: got %+v", why, v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := New()
	opened := make(chan SessionOpenedEvent, 1)
	closed := make(chan SessionClosedEvent, 1)
	defer bus.Subscribe(func(e SessionOpenedEvent) { opened <- e })()
	defer bus.Subscribe(func(e SessionClosedEvent) { closed <- e })()

	bus.Publish(SessionOpenedEvent{DevicePath: "/dev/video0", Width: 640, Height: 480})
	if got := receive(t, opened); got.DevicePath != "/dev/video0" || got.Width != 640 {
		t.Errorf("opened = %+v", got)
	}
	nothing(t, closed, "closed subscriber saw an open")

	bus.Publish(SessionClosedEvent{DevicePath: "/dev/video0", Reason: "no_clients", Frames: 12})
	if got := receive(t, closed); got.Reason != "no_clients" || got.Frames != 12 {
		t.Errorf("closed = %+v", got)
	}
	nothing(t, opened, "open subscriber saw a close")
}

func TestBusEveryEventType(t *testing.T) {
	bus := New()
	got := make(chan uint32, 8)
	unsubs := []func(){
		bus.Subscribe(func(e SessionOpenedEvent) { got <- e.Type() }),
		bus.Subscribe(func(e SessionClosedEvent) { got <- e.Type() }),
		bus.Subscribe(func(e ClientAttachedEvent) { got <- e.Type() }),
		bus.Subscribe(func(e ClientDetachedEvent) { got <- e.Type() }),
		bus.Subscribe(func(e DeviceErrorEvent) { got <- e.Type() }),
		bus.Subscribe(func(e DeviceHotplugEvent) { got <- e.Type() }),
		bus.Subscribe(func(e LogEntryEvent) { got <- e.Type() }),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	for _, ev := range []Event{
		SessionOpenedEvent{},
		SessionClosedEvent{},
		ClientAttachedEvent{},
		ClientDetachedEvent{},
		DeviceErrorEvent{},
		DeviceHotplugEvent{},
		LogEntryEvent{},
	} {
		bus.Publish(ev)
		if typ := receive(t, got); typ != ev.Type() {
			t.Errorf("published %T, subscriber for type %d fired", ev, typ)
		}
	}
}

func TestBusFanOutAndUnsubscribe(t *testing.T) {
	bus := New()
	first := make(chan ClientAttachedEvent, 1)
	second := make(chan ClientAttachedEvent, 1)
	unsubFirst := bus.Subscribe(func(e ClientAttachedEvent) { first <- e })
	defer bus.Subscribe(func(e ClientAttachedEvent) { second <- e })()

	bus.Publish(ClientAttachedEvent{ClientID: "c1", Mode: "stream"})
	receive(t, first)
	receive(t, second)

	unsubFirst()
	bus.Publish(ClientAttachedEvent{ClientID: "c2", Mode: "still"})
	if got := receive(t, second); got.ClientID != "c2" {
		t.Errorf("second = %+v", got)
	}
	nothing(t, first, "unsubscribed handler still called")
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := New()
	const publishers, each = 8, 50
	got := make(chan struct{}, publishers*each)
	defer bus.Subscribe(func(ClientDetachedEvent) { got <- struct{}{} })()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				bus.Publish(ClientDetachedEvent{Reason: "write_failed"})
			}
		}()
	}
	wg.Wait()

	for range publishers * each {
		receive(t, got)
	}
}

func TestBusUnknownHandler(t *testing.T) {
	unsub := New().Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe function")
	}
	unsub()
}

func TestStream(t *testing.T) {
	bus := New()
	stream := NewStream(4)
	Forward[DeviceErrorEvent](stream, bus)
	Forward[DeviceHotplugEvent](stream, bus)

	bus.Publish(DeviceErrorEvent{DevicePath: "/dev/video0", Error: "EIO"})
	if ev, ok := receive(t, stream.C()).(DeviceErrorEvent); !ok || ev.Error != "EIO" {
		t.Errorf("stream delivered %+v", ev)
	}
	bus.Publish(DeviceHotplugEvent{DevicePath: "/dev/video0", Action: "remove"})
	if _, ok := receive(t, stream.C()).(DeviceHotplugEvent); !ok {
		t.Error("hotplug event not forwarded")
	}

	bus.Publish(LogEntryEvent{Message: "not forwarded"})
	nothing(t, stream.C(), "unforwarded type reached the stream")

	stream.Close()
	stream.Close()
	Forward[LogEntryEvent](stream, bus)
	bus.Publish(DeviceErrorEvent{DevicePath: "/dev/video1"})
	bus.Publish(LogEntryEvent{Message: "after close"})
	nothing(t, stream.C(), "closed stream received")
}

func TestStreamDropsWhenFull(t *testing.T) {
	bus := New()
	stream := NewStream(1)
	defer stream.Close()
	Forward[SessionOpenedEvent](stream, bus)

	const published = 5
	for range published {
		bus.Publish(SessionOpenedEvent{DevicePath: "/dev/video0"})
	}

	deadline := time.Now().Add(time.Second)
	for stream.Dropped() < published-1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := stream.Dropped(); got != published-1 {
		t.Errorf("Dropped() = %d, want %d", got, published-1)
	}
	if len(stream.C()) != 1 {
		t.Errorf("buffered = %d, want 1", len(stream.C()))
	}
}

func TestEventJSONKeys(t *testing.T) {
	tests := []struct {
		event Event
		keys  []string
	}{
		{SessionOpenedEvent{Width: 320}, []string{"device_path", "width", "requested_width", "timestamp"}},
		{SessionClosedEvent{}, []string{"reason", "frames"}},
		{ClientAttachedEvent{}, []string{"client_id", "remote", "mode"}},
		{ClientDetachedEvent{}, []string{"client_id", "reason", "frames"}},
		{DeviceErrorEvent{}, []string{"device_path", "error"}},
		{DeviceHotplugEvent{}, []string{"action"}},
		{LogEntryEvent{Seq: 1}, []string{"seq", "level", "module", "message"}},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.event)
		if err != nil {
			t.Fatalf("marshal %T: %v", tt.event, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("unmarshal %T: %v", tt.event, err)
		}
		for _, key := range tt.keys {
			if _, ok := fields[key]; !ok {
				t.Errorf("%T JSON %s lacks %q", tt.event, data, key)
			}
		}
	}

	data, _ := json.Marshal(LogEntryEvent{})
	if containsKey(data, "attributes") {
		t.Errorf("empty attributes should be omitted: %s", data)
	}
}

func containsKey(data []byte, key string) bool {
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	_, ok := fields[key]
	return ok
}
