package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/EliorMigdal/kaplat-ex7/logging"
)

// Service applies the todo business rules on top of the two stores.
//
// Every request names the backend that answers it. That backend is consulted
// for existence checks and counts and its write failures fail the request.
// The other backend is written best-effort; see write.
type Service struct {
	stores map[Backend]Store
	order  []Backend
	repair Repairer
	titles Reserver
	log    *log.Logger
	now    func() time.Time
}

// NewService creates a Service over the relational and document stores.
// repair and titles may be nil.
func NewService(relational, document Store, repair Repairer, titles Reserver, logger *log.Logger) *Service {
	if relational == nil || document == nil {
		panic("domain.NewService: both stores are required")
	}
	if logger == nil {
		panic("domain.NewService: logger is required")
	}
	return &Service{
		stores: map[Backend]Store{BackendPostgres: relational, BackendMongo: document},
		order:  []Backend{BackendPostgres, BackendMongo},
		repair: repair,
		titles: titles,
		log:    logger,
		now:    time.Now,
	}
}

func (s *Service) store(b Backend) Store {
	return s.stores[s.resolve(b)]
}

// Create stores a new PENDING todo in both stores and returns its id. The id
// is the number of todos in b plus one.
func (s *Service) Create(ctx context.Context, b Backend, nt NewTodo) (int64, error) {
	entry := logging.Entry(ctx, s.log)
	if nt.Title == "" {
		return 0, fmt.Errorf("%w: empty title", ErrInvalidTodo)
	}

	if s.titles != nil {
		ok, err := s.titles.Reserve(ctx, nt.Title)
		if err != nil {
			return 0, fmt.Errorf("reserve title: %w", err)
		}
		if !ok {
			entry.Error(TitleExistsMessage(nt.Title))
			return 0, ErrTitleExists
		}
		defer func() {
			if err := s.titles.Release(context.WithoutCancel(ctx), nt.Title); err != nil {
				entry.Errorf("release title reservation [%s]: %v", nt.Title, err)
			}
		}()
	}

	st := s.store(b)
	exists, err := st.TitleExists(ctx, nt.Title)
	if err != nil {
		return 0, fmt.Errorf("check title: %w", err)
	}
	if exists {
		entry.Error(TitleExistsMessage(nt.Title))
		return 0, ErrTitleExists
	}
	if s.now().UnixMilli() > nt.DueDate {
		entry.Error(DueDateInPastMessage)
		return 0, ErrDueDateInPast
	}

	count, err := st.Count(ctx, FilterAll)
	if err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	entry.Infof("Creating new TODO with Title [%s]", nt.Title)
	entry.Debugf("Currently there are %d TODOs in the system. New TODO will be assigned with id %d", count, count+1)

	todo := Todo{
		ID:      int64(count) + 1,
		Title:   nt.Title,
		Content: nt.Content,
		Status:  StatusPending,
		DueDate: nt.DueDate,
	}
	err = s.write(ctx, b, "insert", todo.ID, func(ctx context.Context, st Store) error {
		return st.Insert(ctx, todo)
	})
	if err != nil {
		return 0, err
	}
	return todo.ID, nil
}

// Count returns the number of todos in b matching filter.
func (s *Service) Count(ctx context.Context, b Backend, filter StatusFilter) (int, error) {
	n, err := s.store(b).Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	logging.Entry(ctx, s.log).Infof("Total TODOs count for state %s is %d", filter, n)
	return n, nil
}

// List returns the todos in b matching filter in ascending key order.
func (s *Service) List(ctx context.Context, b Backend, filter StatusFilter, key SortKey) ([]Todo, error) {
	entry := logging.Entry(ctx, s.log)
	entry.Infof("Extracting todos content. Filter: %s | Sorting by: %s", filter, key)

	st := s.store(b)
	todos, err := st.List(ctx, filter, key)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if s.log.IsLevelEnabled(log.DebugLevel) {
		if total, err := st.Count(ctx, FilterAll); err == nil {
			entry.Debugf("There are a total of %d todos in the system. The result holds %d todos", total, len(todos))
		}
	}
	return todos, nil
}

// SetStatus overwrites the status of todo id in both stores and returns the
// status it had in b.
func (s *Service) SetStatus(ctx context.Context, b Backend, id int64, status Status) (Status, error) {
	entry := logging.Entry(ctx, s.log)
	old, err := s.store(b).Status(ctx, id)
	if errors.Is(err, ErrNotFound) {
		entry.Error(NotFoundMessage(id))
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}

	err = s.write(ctx, b, "update", id, func(ctx context.Context, st Store) error {
		return st.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return "", err
	}
	entry.Infof("Update TODO id [%d] state to %s", id, status)
	entry.Debugf("Todo id [%d] state change: %s --> %s", id, old, status)
	return old, nil
}

// Delete removes todo id from both stores and returns the number of todos
// left in b. Only emptiness of b is checked, not the existence of id.
func (s *Service) Delete(ctx context.Context, b Backend, id int64) (int, error) {
	entry := logging.Entry(ctx, s.log)
	st := s.store(b)
	n, err := st.Count(ctx, FilterAll)
	if err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	if n < 1 {
		entry.Error(NotFoundMessage(id))
		return 0, ErrEmpty
	}

	entry.Infof("Removing todo id %d", id)
	err = s.write(ctx, b, "delete", id, func(ctx context.Context, st Store) error {
		return st.Delete(ctx, id)
	})
	if err != nil {
		return 0, err
	}

	remaining, err := st.Count(ctx, FilterAll)
	if err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	entry.Debugf("After removing todo id [%d] there are %d TODOs in the system", id, remaining)
	return remaining, nil
}
