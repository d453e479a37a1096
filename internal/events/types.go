package events

// Event type constants for kelindar/event.
const (
	TypeSessionOpened uint32 = iota + 1
	TypeSessionClosed
	TypeClientAttached
	TypeClientDetached
	TypeDeviceError
	TypeDeviceHotplug
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionOpenedEvent is published when a capture device is opened for its first client.
type SessionOpenedEvent struct {
	DevicePath      string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Width           uint32 `json:"width" example:"640" doc:"Negotiated frame width"`
	Height          uint32 `json:"height" example:"480" doc:"Negotiated frame height"`
	RequestedWidth  uint32 `json:"requested_width" example:"640" doc:"Width asked for by the first client"`
	RequestedHeight uint32 `json:"requested_height" example:"480" doc:"Height asked for by the first client"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionOpenedEvent.
func (e SessionOpenedEvent) Type() uint32 { return TypeSessionOpened }

// SessionClosedEvent is published after a session's device has been closed.
type SessionClosedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Reason     string `json:"reason" example:"no_clients" doc:"Why the session ended: no_clients, device_error, unplugged, shutdown"`
	Frames     uint64 `json:"frames" example:"1200" doc:"Frames captured during the session"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// ClientAttachedEvent is published when a viewer starts receiving a device's frames.
type ClientAttachedEvent struct {
	ClientID   string `json:"client_id" example:"3f1c1e9e-8f0b-4a55-9b8f-1f2d3c4b5a69" doc:"Connection identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Remote     string `json:"remote" example:"192.168.1.20:51544" doc:"Peer address"`
	Mode       string `json:"mode" example:"stream" doc:"stream or still"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientAttachedEvent.
func (e ClientAttachedEvent) Type() uint32 { return TypeClientAttached }

// ClientDetachedEvent is published when a viewer is removed from a session.
type ClientDetachedEvent struct {
	ClientID   string `json:"client_id" example:"3f1c1e9e-8f0b-4a55-9b8f-1f2d3c4b5a69" doc:"Connection identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Reason     string `json:"reason" example:"write_failed" doc:"still_delivered, write_failed, write_stalled, session_closed"`
	Frames     uint64 `json:"frames" example:"300" doc:"Frames delivered to this client"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientDetachedEvent.
func (e ClientDetachedEvent) Type() uint32 { return TypeClientDetached }

// DeviceErrorEvent is published when a device cannot be opened or fails while streaming.
type DeviceErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Error      string `json:"error" example:"VIDIOC_S_FMT 640x480: device or resource busy" doc:"Error description"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceErrorEvent.
func (e DeviceErrorEvent) Type() uint32 { return TypeDeviceError }

// DeviceHotplugEvent represents a video4linux add or remove uevent.
type DeviceHotplugEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Action     string `json:"action" example:"remove" doc:"Kernel uevent action"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"streaming" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
