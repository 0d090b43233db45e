package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

// documentStore keeps the whole session in memory and serializes it as one
// JSON blob. Persist writes to a temp file in the same directory and renames
// it over the old blob, so readers of the file never observe a partial write.
type documentStore struct {
	path string

	mu    sync.Mutex
	state domain.SessionSnapshot
	byKey map[string]int // normalized name -> index into state.Tanks
}

func openDocumentStore(session, path string) (*documentStore, error) {
	if path == "" {
		return nil, errors.New("document store: path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("document store: create directory: %w", err)
	}

	s := &documentStore{
		path:  path,
		state: domain.SessionSnapshot{Session: session},
		byKey: make(map[string]int),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("document store: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("document store: decode %s: %w", path, err)
	}
	s.state.Session = session
	for i, rec := range s.state.Tanks {
		s.byKey[domain.NormalizeName(rec.Name)] = i
	}
	return s, nil
}

// upsertLocked returns a pointer into state.Tanks for the name, creating the
// record with the next sequential ID on first reference. Caller holds mu.
func (s *documentStore) upsertLocked(name string) *domain.TankRecord {
	key := domain.NormalizeName(name)
	if i, ok := s.byKey[key]; ok {
		return &s.state.Tanks[i]
	}
	s.state.Tanks = append(s.state.Tanks, domain.TankRecord{
		ID:   len(s.state.Tanks) + 1,
		Name: name,
	})
	i := len(s.state.Tanks) - 1
	s.byKey[key] = i
	return &s.state.Tanks[i]
}

func (s *documentStore) touchLocked() {
	s.state.UpdatedAt = domain.Now().UTC()
}

func (s *documentStore) UpsertByName(name string) (domain.TankRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.upsertLocked(name)
	s.touchLocked()
	return copyRecord(*rec), nil
}

func (s *documentStore) MergeConfig(entries []ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		applyConfig(s.upsertLocked(e.Name), e)
	}
	s.touchLocked()
	return nil
}

func (s *documentStore) MergeRequiredDistances(entries []RequiredDistanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		applyRequiredDistances(s.upsertLocked(e.Name), e)
	}
	s.touchLocked()
	return nil
}

func (s *documentStore) MergeCoordinates(entries []CoordinateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		applyCoordinates(s.upsertLocked(e.Name), e)
	}
	s.touchLocked()
	return nil
}

func (s *documentStore) MergeFieldStudy(entries []FieldStudyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		applyFieldStudy(s.upsertLocked(e.Name), e)
	}
	s.touchLocked()
	return nil
}

func (s *documentStore) MergeBoundaryResults(entries []BoundaryResultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		applyBoundaryResult(s.upsertLocked(e.Name), e)
	}
	s.touchLocked()
	return nil
}

func (s *documentStore) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Meta == nil {
		s.state.Meta = make(map[string]string)
	}
	s.state.Meta[key] = value
	s.touchLocked()
	return nil
}

func (s *documentStore) Snapshot() (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.SessionSnapshot{
		Session:   s.state.Session,
		Tanks:     make([]domain.TankRecord, len(s.state.Tanks)),
		UpdatedAt: s.state.UpdatedAt,
	}
	for i, rec := range s.state.Tanks {
		snap.Tanks[i] = copyRecord(rec)
	}
	if len(s.state.Meta) > 0 {
		snap.Meta = make(map[string]string, len(s.state.Meta))
		for k, v := range s.state.Meta {
			snap.Meta[k] = v
		}
	}
	return snap, nil
}

// Persist rewrites the blob atomically: marshal, write a temp file alongside,
// fsync, rename. I/O failures surface to the caller as-is.
func (s *documentStore) Persist() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("document store: encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("document store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("document store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("document store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("document store: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("document store: rename into place: %w", err)
	}
	return nil
}

func (s *documentStore) Close() error {
	return s.Persist()
}
