package models

import (
	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/events"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-01T00:00:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	Modified  bool   `json:"modified" example:"false" doc:"Built from a tree with uncommitted changes"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS/architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type ClientInfo struct {
	ID       string `json:"id" example:"3f1c1e9e-8f0b-4a55-9b8f-1f2d3c4b5a69" doc:"Connection identifier"`
	Remote   string `json:"remote" example:"192.168.1.20:51544" doc:"Peer address"`
	Mode     string `json:"mode" example:"stream" doc:"stream or still"`
	Attached string `json:"attached" example:"2025-01-27T10:30:00Z" doc:"When the client joined the session"`
}

type SessionInfo struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the capture device"`
	Width      uint32       `json:"width" example:"640" doc:"Negotiated frame width"`
	Height     uint32       `json:"height" example:"480" doc:"Negotiated frame height"`
	Opened     string       `json:"opened,omitempty" example:"2025-01-27T10:30:00Z" doc:"When the device was opened"`
	Clients    []ClientInfo `json:"clients" doc:"Attached viewers"`
}

type SessionsData struct {
	Sessions []SessionInfo `json:"sessions" doc:"Open capture sessions"`
	Count    int           `json:"count" example:"1" doc:"Number of open sessions"`
}

type SessionsResponse struct {
	Body SessionsData
}

// Device models
type DevicesData struct {
	Devices []capture.DeviceListing `json:"devices" doc:"Capture devices and their formats"`
	Count   int                     `json:"count" example:"2" doc:"Number of devices"`
}

type DevicesResponse struct {
	Body DevicesData
}

// Log models
type LogsInput struct {
	Level  string `query:"level" enum:"debug,info,warn,error" doc:"Only return entries at or above this level"`
	Module string `query:"module" doc:"Only return entries logged by this module"`
	Limit  int    `query:"limit" minimum:"0" default:"0" doc:"Return at most this many of the newest entries (0 for all)"`
}

type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                    `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
