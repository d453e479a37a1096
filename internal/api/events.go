package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camrelay/internal/api/models"
	"github.com/smazurov/camrelay/internal/events"
)

// sseBuffer is how many events an SSE client may fall behind before events
// are dropped for it.
const sseBuffer = 100

func newSSEStream() *events.Stream {
	return events.NewStream(sseBuffer)
}

// registerSSERoutes registers the relay event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session, client, and device lifecycle events. The first message is a sessions snapshot.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"sessions":        models.SessionsData{},
		"session-opened":  events.SessionOpenedEvent{},
		"session-closed":  events.SessionClosedEvent{},
		"client-attached": events.ClientAttachedEvent{},
		"client-detached": events.ClientDetachedEvent{},
		"device-error":    events.DeviceErrorEvent{},
		"device-hotplug":  events.DeviceHotplugEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		stream := newSSEStream()
		events.Forward[events.SessionOpenedEvent](stream, s.eventBus)
		events.Forward[events.SessionClosedEvent](stream, s.eventBus)
		events.Forward[events.ClientAttachedEvent](stream, s.eventBus)
		events.Forward[events.ClientDetachedEvent](stream, s.eventBus)
		events.Forward[events.DeviceErrorEvent](stream, s.eventBus)
		events.Forward[events.DeviceHotplugEvent](stream, s.eventBus)
		defer s.closeStream(stream, "events")

		sessions := s.tracker.Snapshot()
		if err := send.Data(models.SessionsData{Sessions: sessions, Count: len(sessions)}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-stream.C():
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

// closeStream ends an SSE subscription, noting events the client was too
// slow to take.
func (s *Server) closeStream(stream *events.Stream, name string) {
	stream.Close()
	if n := stream.Dropped(); n > 0 {
		s.logger.Debug("SSE client fell behind", "stream", name, "dropped", n)
	}
}
