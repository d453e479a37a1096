package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camrelay/internal/api/models"
	"github.com/smazurov/camrelay/internal/events"
)

// SessionTracker maintains a view of open sessions and their viewers from
// lifecycle events. The bus delivers each event type on its own goroutine,
// so a client may be seen before its session: unknown paths are created
// on demand and filled in when the open event arrives.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionInfo
	unsubs   []func()
	once     sync.Once
}

// NewSessionTracker subscribes to bus and starts tracking.
func NewSessionTracker(bus *events.Bus) *SessionTracker {
	t := &SessionTracker{sessions: make(map[string]*models.SessionInfo)}
	t.unsubs = []func(){
		bus.Subscribe(t.sessionOpened),
		bus.Subscribe(t.sessionClosed),
		bus.Subscribe(t.clientAttached),
		bus.Subscribe(t.clientDetached),
	}
	return t
}

// Close stops tracking. Safe to call more than once.
func (t *SessionTracker) Close() {
	t.once.Do(func() {
		for _, unsub := range t.unsubs {
			unsub()
		}
	})
}

// Snapshot returns a copy of the tracked sessions sorted by device path.
func (t *SessionTracker) Snapshot() []models.SessionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.SessionInfo, 0, len(t.sessions))
	for _, s := range t.sessions {
		cp := *s
		cp.Clients = slices.Clone(s.Clients)
		if cp.Clients == nil {
			cp.Clients = []models.ClientInfo{}
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b models.SessionInfo) int {
		return strings.Compare(a.DevicePath, b.DevicePath)
	})
	return out
}

func (t *SessionTracker) session(path string) *models.SessionInfo {
	s, ok := t.sessions[path]
	if !ok {
		s = &models.SessionInfo{DevicePath: path}
		t.sessions[path] = s
	}
	return s
}

func (t *SessionTracker) sessionOpened(e events.SessionOpenedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(e.DevicePath)
	s.Width, s.Height = e.Width, e.Height
	s.Opened = e.Timestamp
}

func (t *SessionTracker) sessionClosed(e events.SessionClosedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, e.DevicePath)
}

func (t *SessionTracker) clientAttached(e events.ClientAttachedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(e.DevicePath)
	s.Clients = append(s.Clients, models.ClientInfo{
		ID:       e.ClientID,
		Remote:   e.Remote,
		Mode:     e.Mode,
		Attached: e.Timestamp,
	})
}

func (t *SessionTracker) clientDetached(e events.ClientDetachedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[e.DevicePath]
	if !ok {
		return
	}
	s.Clients = slices.DeleteFunc(s.Clients, func(c models.ClientInfo) bool {
		return c.ID == e.ClientID
	})
}

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "Open capture sessions with their negotiated size and attached viewers",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionsResponse, error) {
		sessions := s.tracker.Snapshot()
		return &models.SessionsResponse{
			Body: models.SessionsData{
				Sessions: sessions,
				Count:    len(sessions),
			},
		}, nil
	})
}
