// Package logging provides slog loggers with per-module levels that can be
// changed while the relay runs.
//
// Call Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text", // or "json"
//		Modules: map[string]string{"streaming": "debug"},
//	})
//	logger := logging.GetLogger("streaming").With("device", "/dev/video0")
//	logger.Info("Session opened", "width", 640, "height", 480)
//
// Loggers are cached per module and hold a *slog.LevelVar, so [SetLevels]
// (driven by config file reloads) reaches loggers already handed out.
//
// # Outputs
//
// Every record goes to stdout when it is attached, to the systemd journal
// when journald is reachable, and always to an in-memory [RingBuffer] read
// through [GetBuffer]. The callback set with [SetLogCallback] sees the same
// entries as the buffer; the relay uses it to mirror logs onto its event bus.
//
// Journal entries carry upper-case fields, so they can be filtered with
//
//	journalctl -t camrelay MODULE=streaming
//	journalctl -t camrelay DEVICE=/dev/video0 -p warning
//
// # Configuration
//
// In TOML, module levels go either directly in [logging] or in
// [logging.modules]; the latter wins:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	streaming = "debug"
//	api = "warn"
package logging
