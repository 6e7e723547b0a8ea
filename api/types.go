package api

import (
	"context"
	"math"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

// TodoService abstracts the business layer for handlers.
type TodoService interface {
	Create(ctx context.Context, b domain.Backend, nt domain.NewTodo) (int64, error)
	Count(ctx context.Context, b domain.Backend, filter domain.StatusFilter) (int, error)
	List(ctx context.Context, b domain.Backend, filter domain.StatusFilter, key domain.SortKey) ([]domain.Todo, error)
	SetStatus(ctx context.Context, b domain.Backend, id int64, status domain.Status) (domain.Status, error)
	Delete(ctx context.Context, b domain.Backend, id int64) (int, error)
}

// LogLevels is implemented by logging.Registry.
type LogLevels interface {
	Level(name string) (string, error)
	SetLevel(name, level string) error
}

// createRequest is the body of POST /todo. dueDate is any JSON number of
// epoch milliseconds; fractions are truncated.
type createRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	DueDate float64 `json:"dueDate"`
}

func (r createRequest) todo() domain.NewTodo {
	due := r.DueDate
	switch {
	case due >= math.MaxInt64:
		due = math.MaxInt64
	case due <= math.MinInt64:
		due = math.MinInt64
	}
	return domain.NewTodo{Title: r.Title, Content: r.Content, DueDate: int64(due)}
}

// response is the envelope of every /todo JSON reply.
type response struct {
	Result       any    `json:"result"`
	ErrorMessage string `json:"errorMessage"`
}
