package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
)

// MemoryStore keeps todos in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	todos  map[int64]contractx.Todo
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		todos:  make(map[int64]contractx.Todo, 16),
		now:    time.Now,
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]contractx.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(contractx.Todo) bool { return true }), nil
}

func (s *MemoryStore) Create(ctx context.Context, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id := s.nextID
	s.nextID++
	s.todos[id] = contractx.Todo{
		ID:        id,
		Todo:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *MemoryStore) Search(ctx context.Context, search string) ([]contractx.Todo, error) {
	needle := strings.ToLower(search)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(t contractx.Todo) bool {
		return strings.Contains(strings.ToLower(t.Todo), needle)
	}), nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.todos, id)
	return nil
}

func (s *MemoryStore) sortedLocked(keep func(contractx.Todo) bool) []contractx.Todo {
	out := make([]contractx.Todo, 0, len(s.todos))
	for _, t := range s.todos {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
