// Package memory provides an in-memory Store. Reads return deep copies so
// callers can mutate what they get back without touching shared state.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/store"
)

var _ store.Store = (*Store)(nil)

type member struct {
	entityID string
	record   entity.NormalizedRecord
}

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*entity.Entity
	records  map[string]member              // source ID -> owning entity + record
	keys     map[string]map[string]struct{} // blocking key -> entity IDs
	reports  map[string][]entity.UserReport
	closed   bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entities: make(map[string]*entity.Entity),
		records:  make(map[string]member),
		keys:     make(map[string]map[string]struct{}),
		reports:  make(map[string][]entity.UserReport),
	}
}

func (s *Store) check() error {
	if s.closed {
		return errors.NewStoreError("read", errors.New("store closed"))
	}
	return nil
}

// Get returns a copy of the entity.
func (s *Store) Get(_ context.Context, id string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	e, ok := s.entities[id]
	if !ok {
		return nil, errors.NewNotFoundError("entity", id)
	}
	return e.Clone(), nil
}

// List returns every entity ordered by ID.
func (s *Store) List(_ context.Context) ([]*entity.Entity, error) {
	return s.collect(func(*entity.Entity) bool { return true })
}

// FindBySource returns the entities owning any of the source IDs.
func (s *Store) FindBySource(_ context.Context, sourceIDs ...string) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for _, src := range sourceIDs {
		if m, ok := s.records[src]; ok {
			ids[m.entityID] = struct{}{}
		}
	}
	return s.byIDs(ids), nil
}

// FindByBlockingKey returns the entities indexed under any of the keys.
func (s *Store) FindByBlockingKey(_ context.Context, keys ...string) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for _, k := range keys {
		for id := range s.keys[k] {
			ids[id] = struct{}{}
		}
	}
	return s.byIDs(ids), nil
}

// FindByStatus returns the entities in any of the statuses.
func (s *Store) FindByStatus(_ context.Context, statuses ...entity.Status) ([]*entity.Entity, error) {
	return s.collect(func(e *entity.Entity) bool { return slices.Contains(statuses, e.Status) })
}

// FindByScore returns scored entities within [min, max], highest first.
func (s *Store) FindByScore(_ context.Context, min, max float64) ([]*entity.Entity, error) {
	out, err := s.collect(func(e *entity.Entity) bool { return store.InScoreRange(e, min, max) })
	if err != nil {
		return nil, err
	}
	store.SortByScore(out)
	return out, nil
}

// Members returns the records merged into an entity, ordered by source ID.
func (s *Store) Members(_ context.Context, entityID string) ([]entity.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, ok := s.entities[entityID]; !ok {
		return nil, errors.NewNotFoundError("entity", entityID)
	}
	var out []entity.NormalizedRecord
	for _, m := range s.records {
		if m.entityID == entityID {
			out = append(out, m.record)
		}
	}
	slices.SortFunc(out, func(a, b entity.NormalizedRecord) int {
		switch {
		case a.SourceID < b.SourceID:
			return -1
		case a.SourceID > b.SourceID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Commit applies the batch atomically after checking every version.
func (s *Store) Commit(_ context.Context, batch *store.Batch) error {
	if batch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	for _, e := range batch.Entities {
		var actual int64
		if cur, ok := s.entities[e.ID]; ok {
			actual = cur.Version
		}
		if actual != e.Version {
			return errors.NewStoreWriteConflict(e.ID, e.Version, actual)
		}
	}

	for _, e := range batch.Entities {
		e.Version++
		stored := e.Clone()
		if old, ok := s.entities[e.ID]; ok {
			s.unindex(old)
		}
		s.entities[e.ID] = stored
		s.index(stored)
	}

	for entityID, members := range batch.Members {
		for src, m := range s.records {
			if m.entityID == entityID {
				delete(s.records, src)
			}
		}
		for _, rec := range members {
			s.records[rec.SourceID] = member{entityID: entityID, record: rec}
		}
	}
	return nil
}

// AddReport stores a user dispute, replacing one with the same ID.
func (s *Store) AddReport(_ context.Context, report entity.UserReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.entities[report.EntityID]; !ok {
		return errors.NewNotFoundError("entity", report.EntityID)
	}
	reports := s.reports[report.EntityID]
	for i := range reports {
		if reports[i].ID == report.ID {
			reports[i] = report
			return nil
		}
	}
	s.reports[report.EntityID] = append(reports, report)
	return nil
}

// Reports returns the disputes filed against an entity, oldest first.
func (s *Store) Reports(_ context.Context, entityID string) ([]entity.UserReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := slices.Clone(s.reports[entityID])
	slices.SortStableFunc(out, func(a, b entity.UserReport) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return out, nil
}

// Close marks the store closed; further calls fail as unavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) index(e *entity.Entity) {
	for _, k := range e.BlockingKeys {
		if s.keys[k] == nil {
			s.keys[k] = make(map[string]struct{})
		}
		s.keys[k][e.ID] = struct{}{}
	}
}

func (s *Store) unindex(e *entity.Entity) {
	for _, k := range e.BlockingKeys {
		delete(s.keys[k], e.ID)
		if len(s.keys[k]) == 0 {
			delete(s.keys, k)
		}
	}
}

func (s *Store) collect(keep func(*entity.Entity) bool) ([]*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []*entity.Entity
	for _, e := range s.entities {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	store.SortByID(out)
	return out, nil
}

func (s *Store) byIDs(ids map[string]struct{}) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(ids))
	for id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, e.Clone())
		}
	}
	store.SortByID(out)
	return out
}
