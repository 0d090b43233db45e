package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/tank-siting/internal/domain"
	"github.com/couchcryptid/tank-siting/internal/geo"
	"github.com/couchcryptid/tank-siting/internal/observability"
	"github.com/couchcryptid/tank-siting/internal/store"
)

// ErrUnknownSession is returned for snapshot reads of a session no stage has
// ever referenced.
var ErrUnknownSession = errors.New("unknown session")

// StoreParams tells the manager how to open a session's store. For the
// document backend Path is a directory holding one blob per session; for the
// sqlite backend it is the database file shared by all sessions.
type StoreParams struct {
	Backend string
	Path    string
}

// Manager owns one aggregator (and store) per session and holds the
// per-session write lock the store contract requires of its callers. Stage
// events for different sessions proceed independently.
type Manager struct {
	params  StoreParams
	calc    geo.Calculator
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	mu  sync.Mutex // serializes merges for this session
	agg *Aggregator
	st  store.Store
}

// NewManager creates a session manager over the configured store backend.
func NewManager(params StoreParams, calc geo.Calculator, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		params:   params,
		calc:     calc,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*managedSession),
	}
}

func (m *Manager) storePath(session string) string {
	if m.params.Backend == store.BackendDocument {
		return filepath.Join(m.params.Path, session+".json")
	}
	return m.params.Path
}

// get returns the session's managed aggregator, opening its store on first
// reference.
func (m *Manager) get(session string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.sessions[session]; ok {
		return ms, nil
	}

	st, err := store.Open(store.Config{
		Backend: m.params.Backend,
		Session: session,
		Path:    m.storePath(session),
	})
	if err != nil {
		return nil, fmt.Errorf("open store for session %q: %w", session, err)
	}

	ms := &managedSession{
		agg: NewAggregator(st, m.calc, m.logger.With("session", session), m.metrics),
		st:  st,
	}
	m.sessions[session] = ms
	m.logger.Info("session opened", "session", session, "backend", m.params.Backend)
	return ms, nil
}

// Apply decodes a stage event's envelope and routes it to the owning
// session's aggregator under that session's lock. It returns the session
// name so the caller can publish the refreshed snapshot.
func (m *Manager) Apply(ctx context.Context, ev domain.StageEvent) (string, error) {
	env, err := DecodeEnvelope(ev.Value)
	if err != nil {
		return "", err
	}

	ms, err := m.get(env.Session)
	if err != nil {
		return env.Session, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err := ms.agg.Apply(ctx, env, ev.Value); err != nil {
		return env.Session, fmt.Errorf("apply %s stage: %w", env.Stage, err)
	}
	return env.Session, nil
}

// Snapshot reads a session's current state. Snapshot readers do not take the
// session write lock; the store backends guarantee consistent reads.
func (m *Manager) Snapshot(session string) (domain.SessionSnapshot, error) {
	m.mu.Lock()
	ms, ok := m.sessions[session]
	m.mu.Unlock()
	if !ok {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownSession, session)
	}
	return ms.agg.Snapshot()
}

// Close flushes and closes every open session store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, ms := range m.sessions {
		ms.mu.Lock()
		if err := ms.st.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", name, err)
		}
		ms.mu.Unlock()
	}
	return firstErr
}
