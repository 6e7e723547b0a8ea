package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/EliorMigdal/kaplat-ex7/logging"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	pg       *fakeStore
	mongo    *fakeStore
	repairs  *recordingRepairer
	titles   *setReserver
	logHook  *test.Hook
	ctx      context.Context
	dueLater int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	f := &fixture{
		pg:       newFakeStore(),
		mongo:    newFakeStore(),
		repairs:  &recordingRepairer{},
		titles:   &setReserver{},
		logHook:  hook,
		ctx:      logging.WithRequest(context.Background(), 7),
		dueLater: fixedNow.Add(time.Hour).UnixMilli(),
	}
	f.svc = NewService(f.pg, f.mongo, f.repairs, f.titles, logger)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) create(t *testing.T, title string) int64 {
	t.Helper()
	id, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: title, Content: "c", DueDate: f.dueLater})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return id
}

func TestCreateWritesBothStores(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: "A", Content: "x", DueDate: f.dueLater})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	for name, st := range map[string]*fakeStore{"postgres": f.pg, "mongo": f.mongo} {
		got, ok := st.todos[1]
		if !ok {
			t.Fatalf("todo missing from %s", name)
		}
		if got.Status != StatusPending || got.Title != "A" || got.DueDate != f.dueLater {
			t.Fatalf("unexpected todo in %s: %+v", name, got)
		}
	}
	if len(f.titles.held) != 0 {
		t.Fatalf("expected reservation to be released, still held: %v", f.titles.held)
	}
}

func TestCreateAssignsCountPlusOne(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A")
	f.create(t, "B")
	if id := f.create(t, "C"); id != 3 {
		t.Fatalf("expected id 3, got %d", id)
	}
}

func TestCreateDuplicateTitleConflicts(t *testing.T) {
	for _, b := range []Backend{BackendPostgres, BackendMongo} {
		t.Run(string(b), func(t *testing.T) {
			f := newFixture(t)
			f.create(t, "A")

			_, err := f.svc.Create(f.ctx, b, NewTodo{Title: "A", DueDate: f.dueLater})
			if !errors.Is(err, ErrTitleExists) {
				t.Fatalf("expected ErrTitleExists, got %v", err)
			}
			entry := f.logHook.LastEntry()
			if entry == nil || entry.Level != log.ErrorLevel || entry.Message != TitleExistsMessage("A") {
				t.Fatalf("unexpected log entry: %#v", entry)
			}
			if entry.Data[logging.RequestField] != uint64(7) {
				t.Fatalf("expected request number on entry, got %#v", entry.Data)
			}
			if f.pg.inserts != 1 || f.mongo.inserts != 1 {
				t.Fatalf("duplicate must not be inserted: pg=%d mongo=%d", f.pg.inserts, f.mongo.inserts)
			}
		})
	}
}

func TestCreateHeldReservationConflicts(t *testing.T) {
	f := newFixture(t)
	f.titles.held = map[string]struct{}{"A": {}}

	_, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: "A", DueDate: f.dueLater})
	if !errors.Is(err, ErrTitleExists) {
		t.Fatalf("expected ErrTitleExists, got %v", err)
	}
	if _, held := f.titles.held["A"]; !held {
		t.Fatal("reservation held by another request must not be released")
	}
}

func TestCreateDueDateInPast(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: "A", DueDate: fixedNow.Add(-time.Second).UnixMilli()})
	if !errors.Is(err, ErrDueDateInPast) {
		t.Fatalf("expected ErrDueDateInPast, got %v", err)
	}
	if len(f.mongo.todos) != 0 || len(f.pg.todos) != 0 {
		t.Fatal("no store should be written")
	}
}

func TestCreateDueDateNowAccepted(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: "A", DueDate: fixedNow.UnixMilli()}); err != nil {
		t.Fatalf("due date equal to now should be accepted: %v", err)
	}
}

func TestCreateEmptyTitleInvalid(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{DueDate: f.dueLater}); !errors.Is(err, ErrInvalidTodo) {
		t.Fatalf("expected ErrInvalidTodo, got %v", err)
	}
	if f.titles.calls != 0 {
		t.Fatal("invalid todo must not reserve a title")
	}
}

func TestCreatePrimaryFailureFailsRequest(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection refused")
	f.pg.setErr(boom)

	_, err := f.svc.Create(f.ctx, BackendPostgres, NewTodo{Title: "A", DueDate: f.dueLater})
	if !errors.Is(err, boom) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "postgres insert") {
		t.Fatalf("expected error to name the store, got %q", err)
	}
	if len(f.mongo.todos) != 0 {
		t.Fatal("mirror must not be written after primary failure")
	}
	if len(f.repairs.repairs) != 0 {
		t.Fatal("primary failures are not repaired")
	}
}

func TestCreateMirrorFailureSchedulesRepair(t *testing.T) {
	f := newFixture(t)
	f.pg.setErr(errors.New("timeout"))

	id, err := f.svc.Create(f.ctx, BackendMongo, NewTodo{Title: "A", DueDate: f.dueLater})
	if err != nil {
		t.Fatalf("mirror failure must not fail the request: %v", err)
	}
	if len(f.repairs.repairs) != 1 {
		t.Fatalf("expected one repair, got %d", len(f.repairs.repairs))
	}
	rep := f.repairs.repairs[0]
	if rep.Backend != BackendPostgres || rep.Op != "insert" || rep.TodoID != id {
		t.Fatalf("unexpected repair: %+v", rep)
	}

	f.pg.setErr(nil)
	if err := rep.Run(context.Background()); err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if _, ok := f.pg.todos[id]; !ok {
		t.Fatal("repair should have written the mirror")
	}
}

func TestMirrorFailureLoggedWhenRepairRefused(t *testing.T) {
	f := newFixture(t)
	f.repairs.refuse = true
	f.mongo.setErr(errors.New("down"))

	if _, err := f.svc.Create(f.ctx, BackendPostgres, NewTodo{Title: "A", DueDate: f.dueLater}); err != nil {
		t.Fatalf("create: %v", err)
	}
	entry := f.logHook.LastEntry()
	if entry == nil || !strings.Contains(entry.Message, "dropped") {
		t.Fatalf("expected dropped repair to be logged, got %#v", entry)
	}
}

func TestRepairKeepsLaterStatus(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "A")

	f.pg.setErr(errors.New("timeout"))
	if _, err := f.svc.SetStatus(f.ctx, BackendMongo, id, StatusDone); err != nil {
		t.Fatalf("set DONE: %v", err)
	}
	if len(f.repairs.repairs) != 1 {
		t.Fatalf("expected one repair, got %d", len(f.repairs.repairs))
	}

	f.pg.setErr(nil)
	if _, err := f.svc.SetStatus(f.ctx, BackendMongo, id, StatusLate); err != nil {
		t.Fatalf("set LATE: %v", err)
	}
	if err := f.repairs.repairs[0].Run(context.Background()); err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if got := f.pg.todos[id].Status; got != StatusLate {
		t.Fatalf("repair rolled back the mirror to %s", got)
	}
	if got := f.mongo.todos[id].Status; got != StatusLate {
		t.Fatalf("primary changed to %s", got)
	}
}

func TestRepairAfterDeleteDoesNotResurrect(t *testing.T) {
	f := newFixture(t)
	f.pg.setErr(errors.New("timeout"))
	id := f.create(t, "A")
	if len(f.repairs.repairs) != 1 {
		t.Fatalf("expected one repair, got %d", len(f.repairs.repairs))
	}

	f.pg.setErr(nil)
	if _, err := f.svc.Delete(f.ctx, BackendMongo, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.repairs.repairs[0].Run(context.Background()); err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if len(f.pg.todos) != 0 || len(f.mongo.todos) != 0 {
		t.Fatalf("deleted todo came back: pg=%v mongo=%v", f.pg.todos, f.mongo.todos)
	}
}

func TestRepairInsertsTodoMissingFromMirror(t *testing.T) {
	f := newFixture(t)
	f.mongo.setErr(errors.New("down"))
	id, err := f.svc.Create(f.ctx, BackendPostgres, NewTodo{Title: "A", Content: "x", DueDate: f.dueLater})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.SetStatus(f.ctx, BackendPostgres, id, StatusDone); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if len(f.repairs.repairs) != 2 {
		t.Fatalf("expected two repairs, got %d", len(f.repairs.repairs))
	}

	f.mongo.setErr(nil)
	for _, rep := range f.repairs.repairs {
		if err := rep.Run(context.Background()); err != nil {
			t.Fatalf("repair %s: %v", rep.Op, err)
		}
	}
	want := Todo{ID: id, Title: "A", Content: "x", Status: StatusDone, DueDate: f.dueLater}
	if got := f.mongo.todos[id]; got != want {
		t.Fatalf("mirror holds %+v, want %+v", got, want)
	}
}

func TestCountByFilter(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A")
	f.create(t, "B")
	if _, err := f.svc.SetStatus(f.ctx, BackendMongo, 2, StatusDone); err != nil {
		t.Fatalf("set status: %v", err)
	}

	tests := []struct {
		filter StatusFilter
		want   int
	}{
		{FilterAll, 2},
		{StatusFilter(StatusPending), 1},
		{StatusFilter(StatusDone), 1},
		{StatusFilter(StatusLate), 0},
	}
	for _, tt := range tests {
		for _, b := range []Backend{BackendPostgres, BackendMongo} {
			got, err := f.svc.Count(f.ctx, b, tt.filter)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Count(%s, %s) = %d, want %d", b, tt.filter, got, tt.want)
			}
		}
	}
}

func TestCountAfterCreatesAndDeletes(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"A", "B", "C", "D"} {
		f.create(t, title)
	}
	for _, id := range []int64{1, 3} {
		if _, err := f.svc.Delete(f.ctx, BackendMongo, id); err != nil {
			t.Fatalf("delete %d: %v", id, err)
		}
	}
	got, err := f.svc.Count(f.ctx, BackendMongo, FilterAll)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 todos, got %d", got)
	}
}

func TestListSortsAscending(t *testing.T) {
	f := newFixture(t)
	f.pg.todos = map[int64]Todo{
		1: {ID: 1, Title: "c", DueDate: 30, Status: StatusPending},
		2: {ID: 2, Title: "a", DueDate: 10, Status: StatusDone},
		3: {ID: 3, Title: "b", DueDate: 20, Status: StatusPending},
	}

	tests := []struct {
		key  SortKey
		want []int64
	}{
		{SortByID, []int64{1, 2, 3}},
		{SortByTitle, []int64{2, 3, 1}},
		{SortByDueDate, []int64{2, 3, 1}},
	}
	for _, tt := range tests {
		todos, err := f.svc.List(f.ctx, BackendPostgres, FilterAll, tt.key)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(todos) != len(tt.want) {
			t.Fatalf("expected %d todos, got %d", len(tt.want), len(todos))
		}
		for i, id := range tt.want {
			if todos[i].ID != id {
				t.Fatalf("sort %s: position %d has id %d, want %d", tt.key, i, todos[i].ID, id)
			}
		}
	}
}

func TestSetStatusReturnsPrevious(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A")

	old, err := f.svc.SetStatus(f.ctx, BackendPostgres, 1, StatusLate)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if old != StatusPending {
		t.Fatalf("expected PENDING, got %s", old)
	}
	if f.pg.todos[1].Status != StatusLate || f.mongo.todos[1].Status != StatusLate {
		t.Fatal("both stores should reflect the new status")
	}

	old, err = f.svc.SetStatus(f.ctx, BackendMongo, 1, StatusPending)
	if err != nil || old != StatusLate {
		t.Fatalf("expected LATE, got %s/%v", old, err)
	}
}

func TestSetStatusUnknownID(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A")

	_, err := f.svc.SetStatus(f.ctx, BackendMongo, 42, StatusDone)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.pg.updates != 0 || f.mongo.updates != 0 {
		t.Fatal("no store should be updated")
	}
	if entry := f.logHook.LastEntry(); entry == nil || entry.Message != NotFoundMessage(42) {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
}

func TestDeleteEmptyStore(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Delete(f.ctx, BackendMongo, 1); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDeleteUnknownIDReturnsCount(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A")

	n, err := f.svc.Delete(f.ctx, BackendMongo, 99)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
	if f.pg.deletes != 1 || f.mongo.deletes != 1 {
		t.Fatal("delete should be attempted on both stores")
	}
}

func TestDebugLogsSuppressedAtInfo(t *testing.T) {
	f := newFixture(t)
	f.svc.log.SetLevel(log.InfoLevel)
	f.create(t, "A")

	for _, e := range f.logHook.AllEntries() {
		if e.Level == log.DebugLevel {
			t.Fatalf("unexpected debug entry at info level: %s", e.Message)
		}
	}
}
