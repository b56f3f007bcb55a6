package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/core"
)

// ViewerMode is the deployment-wide concurrency policy for viewers.
type ViewerMode int

const (
	// MultiViewer allows any number of concurrent viewers; no preemption.
	MultiViewer ViewerMode = iota
	// SingleViewer preempts the current viewer when a new one connects.
	SingleViewer
)

func ParseViewerMode(s string) ViewerMode {
	if s == "single" {
		return SingleViewer
	}
	return MultiViewer
}

// Registry tracks currently live viewer sessions. It holds non-owning
// references: sessions are added on connect, removed on every disconnect
// path, and enumerated for live configuration fan-out. The registry has no
// protocol knowledge.
type Registry struct {
	mu       sync.RWMutex
	mode     ViewerMode
	sessions map[core.Session]struct{}
}

func NewRegistry(mode ViewerMode) *Registry {
	return &Registry{
		mode:     mode,
		sessions: make(map[core.Session]struct{}),
	}
}

// Register adds a session. In single-viewer mode any existing session is
// best-effort stopped and removed first; its own teardown also unregisters
// it, which is a no-op by then.
func (r *Registry) Register(s core.Session) {
	var evicted []core.Session
	r.mu.Lock()
	if r.mode == SingleViewer {
		for old := range r.sessions {
			evicted = append(evicted, old)
			delete(r.sessions, old)
		}
	}
	r.sessions[s] = struct{}{}
	n := len(r.sessions)
	r.mu.Unlock()

	// Stop outside the lock: teardown re-enters Unregister.
	for _, old := range evicted {
		log.Info().Str("module", "app.registry").Msg("preempting previous viewer")
		old.Stop()
	}
	log.Info().Str("module", "app.registry").Int("active", n).Msg("registered session")
}

// Unregister removes a session. Removing a session that is not present is a
// no-op.
func (r *Registry) Unregister(s core.Session) {
	r.mu.Lock()
	_, ok := r.sessions[s]
	delete(r.sessions, s)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Int("active", n).Msg("unregistered session")
	}
}

// ForEachActive calls fn for every session in a momentary snapshot of the
// registry. A session that disconnects mid-iteration is simply still visited;
// one that connects mid-iteration may not be.
func (r *Registry) ForEachActive(fn func(core.Session)) {
	r.mu.RLock()
	snapshot := make([]core.Session, 0, len(r.sessions))
	for s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
