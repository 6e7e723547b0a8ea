package domain

import (
	"context"
	"sort"
	"sync"
)

type fakeStore struct {
	mu    sync.Mutex
	todos map[int64]Todo
	err   error // returned by every write when set

	inserts int
	updates int
	deletes int
}

func newFakeStore(todos ...Todo) *fakeStore {
	f := &fakeStore{todos: map[int64]Todo{}}
	for _, t := range todos {
		f.todos[t.ID] = t
	}
	return f
}

func (f *fakeStore) matching(filter StatusFilter) []Todo {
	want, filtered := filter.Status()
	out := make([]Todo, 0, len(f.todos))
	for _, t := range f.todos {
		if filtered && t.Status != want {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (f *fakeStore) Count(ctx context.Context, filter StatusFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matching(filter)), nil
}

func (f *fakeStore) List(ctx context.Context, filter StatusFilter, key SortKey) ([]Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.matching(filter)
	sort.Slice(out, func(i, j int) bool {
		switch key {
		case SortByTitle:
			return out[i].Title < out[j].Title
		case SortByDueDate:
			return out[i].DueDate < out[j].DueDate
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out, nil
}

func (f *fakeStore) TitleExists(ctx context.Context, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.todos {
		if t.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Get(ctx context.Context, id int64) (Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.todos[id]
	if !ok {
		return Todo{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) Status(ctx context.Context, id int64) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.todos[id]
	if !ok {
		return "", ErrNotFound
	}
	return t.Status, nil
}

func (f *fakeStore) Insert(ctx context.Context, t Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserts++
	f.todos[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates++
	if t, ok := f.todos[id]; ok {
		t.Status = status
		f.todos[id] = t
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes++
	delete(f.todos, id)
	return nil
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type recordingRepairer struct {
	repairs []Repair
	refuse  bool
}

func (r *recordingRepairer) Schedule(rep Repair) bool {
	if r.refuse {
		return false
	}
	r.repairs = append(r.repairs, rep)
	return true
}

type setReserver struct {
	mu    sync.Mutex
	held  map[string]struct{}
	calls int
}

func (s *setReserver) Reserve(ctx context.Context, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.held == nil {
		s.held = map[string]struct{}{}
	}
	if _, ok := s.held[title]; ok {
		return false, nil
	}
	s.held[title] = struct{}{}
	return true, nil
}

func (s *setReserver) Release(ctx context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, title)
	return nil
}
