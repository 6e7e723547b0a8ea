package domain

import "context"

// Store is implemented by each persistence backend. Updates and deletes
// matching no todo are not errors.
type Store interface {
	Count(ctx context.Context, filter StatusFilter) (int, error)
	List(ctx context.Context, filter StatusFilter, key SortKey) ([]Todo, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	// Get and Status return ErrNotFound when no todo has the given id.
	Get(ctx context.Context, id int64) (Todo, error)
	Status(ctx context.Context, id int64) (Status, error)
	Insert(ctx context.Context, t Todo) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
}

// Repair is a mirror write that failed and may be retried later. Run copies
// the current state of the todo from the primary, so a repair that runs after
// later writes never rolls them back.
type Repair struct {
	Backend Backend
	Op      string
	TodoID  int64
	Run     func(ctx context.Context) error
}

// Repairer accepts failed mirror writes. Schedule reports false when the
// repair was not accepted.
type Repairer interface {
	Schedule(r Repair) bool
}

// Reserver guards titles against concurrent creation.
type Reserver interface {
	// Reserve returns false if the title is already reserved.
	Reserve(ctx context.Context, title string) (bool, error)
	Release(ctx context.Context, title string) error
}
