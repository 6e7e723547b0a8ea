package domain

// Todo represents a single list item as returned to clients.
type Todo struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  Status `json:"status"`
	DueDate int64  `json:"dueDate"`
}

// NewTodo carries the client supplied fields of a todo being created.
type NewTodo struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	DueDate int64  `json:"dueDate"`
}

// Status is the lifecycle state of a todo. Transitions are unrestricted.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusLate    Status = "LATE"
	StatusDone    Status = "DONE"
)

// ParseStatus accepts only concrete states; ALL is a filter, not a state.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusLate, StatusDone:
		return Status(s), true
	}
	return "", false
}

// StatusFilter selects todos by state. FilterAll matches every todo.
type StatusFilter string

const FilterAll StatusFilter = "ALL"

func ParseStatusFilter(s string) (StatusFilter, bool) {
	if StatusFilter(s) == FilterAll {
		return FilterAll, true
	}
	if st, ok := ParseStatus(s); ok {
		return StatusFilter(st), true
	}
	return "", false
}

// Status returns the state matched by the filter and false for FilterAll.
func (f StatusFilter) Status() (Status, bool) {
	if f == FilterAll {
		return "", false
	}
	return Status(f), true
}

// SortKey orders content listings. All listings are ascending.
type SortKey string

const (
	SortByID      SortKey = "ID"
	SortByDueDate SortKey = "DUE_DATE"
	SortByTitle   SortKey = "TITLE"
)

// ParseSortKey defaults to SortByID when s is empty.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case "":
		return SortByID, true
	case SortByID, SortByDueDate, SortByTitle:
		return SortKey(s), true
	}
	return "", false
}

// Field is the persisted field name both stores sort on.
func (k SortKey) Field() string {
	switch k {
	case SortByTitle:
		return "title"
	case SortByDueDate:
		return "duedate"
	default:
		return "rawid"
	}
}

// Backend names one of the two stores.
type Backend string

const (
	BackendPostgres Backend = "POSTGRES"
	BackendMongo    Backend = "MONGO"
)

// ParseBackend maps the persistenceMethod query value to a store. Anything
// other than POSTGRES, including an empty value, selects the document store.
func ParseBackend(s string) Backend {
	if Backend(s) == BackendPostgres {
		return BackendPostgres
	}
	return BackendMongo
}
