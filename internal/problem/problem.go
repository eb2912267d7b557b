package problem

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrNotFound = errors.New("problem not found")

// TestCase is one hidden (input, expected output) pair. Order matters:
// the judge runs cases in the order they appear here.
type TestCase struct {
	Input    string
	Expected string
}

// Problem is owned by the challenge service; the battle engine only reads it.
type Problem struct {
	ID          string
	Title       string
	TestCases   []TestCase
	Languages   []string
	StarterCode map[string]string
	TimeLimit   time.Duration // per test case
}

func (p Problem) SupportsLanguage(lang string) bool {
	return slices.Contains(p.Languages, lang)
}

// Store is the lookup interface this engine consumes from the challenge
// collaborator.
type Store interface {
	Get(ctx context.Context, id string) (Problem, error)
}

// MemoryStore is a mutex-guarded in-memory Store, used standalone and in
// tests. A production deployment would back Store with the challenge
// service's database instead.
type MemoryStore struct {
	mu       sync.RWMutex
	problems map[string]Problem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{problems: make(map[string]Problem)}
}

func (s *MemoryStore) Put(p Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[p.ID] = p
}

func (s *MemoryStore) Get(_ context.Context, id string) (Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.problems[id]
	if !ok {
		return Problem{}, ErrNotFound
	}
	return p, nil
}
