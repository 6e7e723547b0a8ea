package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no todo exists with the requested id.
	ErrNotFound = errors.New("todo not found")
	// ErrEmpty is returned by deletes against a store holding no todos.
	ErrEmpty = errors.New("no todos stored")
	// ErrTitleExists indicates that a todo with the same title already exists
	// or is being created concurrently.
	ErrTitleExists = errors.New("title already exists")
	// ErrDueDateInPast rejects todos whose due date precedes their creation.
	ErrDueDateInPast = errors.New("due date in the past")
	ErrInvalidTodo   = errors.New("invalid todo")
)

// DueDateInPastMessage is reported to clients and logged on ErrDueDateInPast.
const DueDateInPastMessage = "Error: Can't create new TODO that its due date is in the past"

// TitleExistsMessage is reported to clients and logged on ErrTitleExists.
func TitleExistsMessage(title string) string {
	return "Error: TODO with the title [" + title + "] already exists in the system"
}

// NotFoundMessage is reported to clients and logged on ErrNotFound and ErrEmpty.
func NotFoundMessage(id int64) string {
	return fmt.Sprintf("Error: no such TODO with id %d", id)
}
