// Package memstore provides an in-memory implementation of the orchestrator's
// store boundary, used by the CLI and tests. Durable persistence lives behind
// the same interface in external systems.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
)

type record struct {
	ID      string
	Kind    string
	Phase   cycle.Phase
	Content any
	Meta    map[string]any
}

// Store is a thread-safe in-memory cycle.Store. It also implements
// cycle.HistoryProvider by exposing stored HISTORICAL_PATTERN records.
type Store struct {
	logger *zap.Logger

	mu      sync.Mutex
	records []record
	pending []any
	hooks   []cycle.SyncHook
}

// New returns an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger.Named("memstore")}
}

// StoreWithPhase records content and buffers it for the next flush.
func (s *Store) StoreWithPhase(ctx context.Context, content any, kind string, phase cycle.Phase, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.records = append(s.records, record{
		ID:      id,
		Kind:    kind,
		Phase:   phase,
		Content: content,
		Meta:    meta,
	})
	s.pending = append(s.pending, content)
	return id, nil
}

// RetrieveWithPhase returns records matching kind, phase, and the metadata
// subset, newest last, under an "items" key.
func (s *Store) RetrieveWithPhase(ctx context.Context, kind string, phase cycle.Phase, meta map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []any
	for _, r := range s.records {
		if r.Kind != kind || r.Phase != phase {
			continue
		}
		if !metaMatches(r.Meta, meta) {
			continue
		}
		items = append(items, r.Content)
	}
	return map[string]any{"items": items}, nil
}

// FlushUpdates delivers buffered items to the registered sync hooks. Hooks
// run isolated: a panicking hook is logged and skipped.
func (s *Store) FlushUpdates(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	hooks := make([]cycle.SyncHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, item := range pending {
		for _, hook := range hooks {
			s.runHook(hook, item)
		}
	}
	return nil
}

func (s *Store) runHook(hook cycle.SyncHook, item any) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn("sync hook panicked", zap.Any("panic", rec))
		}
	}()
	hook(item)
}

// RegisterSyncHook subscribes fn to flushed items.
func (s *Store) RegisterSyncHook(fn cycle.SyncHook) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// RetrieveHistoricalPatterns returns stored HISTORICAL_PATTERN contents,
// implementing cycle.HistoryProvider.
func (s *Store) RetrieveHistoricalPatterns(ctx context.Context) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, r := range s.records {
		if r.Kind != cycle.KindHistoricalPattern {
			continue
		}
		if m, ok := r.Content.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func metaMatches(have, want map[string]any) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
