package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// syslogIdentifier tags every entry, so `journalctl -t camrelay` selects the relay.
const syslogIdentifier = "camrelay"

// JournalHandler is a slog.Handler that sends logs to systemd journal.
type JournalHandler struct {
	state handlerState
}

// NewJournalHandler creates a new journal handler. level is consulted on
// every record, so a *slog.LevelVar changes it at runtime.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{state: handlerState{level: level}}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.enabled(level)
}

// Handle sends the record to the journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	if err := journal.Send(r.Message, journalPriority(r.Level), h.fields(r)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send to journal: %v\n", err)
		return err
	}
	return nil
}

// fields builds the structured fields of one journal entry. Field names are
// upper case with groups joined by underscores, e.g. CLIENT_ID.
func (h *JournalHandler) fields(r slog.Record) map[string]string {
	fields := map[string]string{
		"PRIORITY":          strconv.Itoa(int(journalPriority(r.Level))),
		"MESSAGE":           r.Message,
		"SYSLOG_IDENTIFIER": syslogIdentifier,
	}
	h.state.each(r, func(prefix []string, a slog.Attr) {
		addJournalField(fields, prefix, a)
	})
	return fields
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{state: h.state.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	return &JournalHandler{state: h.state.withGroup(name)}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addJournalField(fields map[string]string, prefix []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	path := append(slices.Clip(prefix), a.Key)

	v := a.Value
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			addJournalField(fields, path, child)
		}
		return
	}

	key := strings.ToUpper(strings.Join(path, "_"))
	switch v.Kind() {
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		fields[key] = v.Time().Format("2006-01-02T15:04:05.000Z07:00")
	default:
		// String, Int64, Uint64, Bool and Duration format as expected.
		fields[key] = v.String()
	}
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
