package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/EliorMigdal/kaplat-ex7/domain"
	"github.com/EliorMigdal/kaplat-ex7/logging"
)

const postTodoMaxSize = 64 << 10

var (
	badRequest     = response{Result: "", ErrorMessage: "Bad Request"}
	internalFailed = response{Result: nil, ErrorMessage: "Internal Server Error"}
)

// Register wires up all API routes on the provided Echo instance. logger
// receives unexpected service failures.
func Register(e *echo.Echo, svc TodoService, levels LogLevels, logger *log.Logger) {
	e.GET("/todo/health", health())
	e.POST("/todo", createTodo(svc, logger))
	e.GET("/todo/size", countTodos(svc, logger))
	e.GET("/todo/content", listTodos(svc, logger))
	e.PUT("/todo", updateTodoStatus(svc, logger))
	e.DELETE("/todo", deleteTodo(svc, logger))
	e.GET("/logs/level", getLogLevel(levels))
	e.PUT("/logs/level", setLogLevel(levels))
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
}

// backend selects the store answering a read. Anything but POSTGRES reads
// from MONGO.
func backend(c echo.Context) domain.Backend {
	return domain.ParseBackend(c.QueryParam("persistenceMethod"))
}

// writeBackend selects the store whose checks and failures decide a
// mutation. Mutations default to POSTGRES and only MONGO overrides it.
func writeBackend(c echo.Context) domain.Backend {
	if domain.Backend(c.QueryParam("persistenceMethod")) == domain.BackendMongo {
		return domain.BackendMongo
	}
	return domain.BackendPostgres
}

func queryID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.QueryParam("id"), 10, 64)
	return id, err == nil
}

func invalid(c echo.Context) error {
	setErrorStage(c, "validation")
	return c.JSON(http.StatusBadRequest, badRequest)
}

func failed(c echo.Context, logger *log.Logger, err error) error {
	setErrorStage(c, "storage")
	logging.Entry(c.Request().Context(), logger).Errorf("%s %s failed: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, internalFailed)
}

func createTodo(svc TodoService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createRequest
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, postTodoMaxSize))
		if err := dec.Decode(&req); err != nil || req.Title == "" {
			return invalid(c)
		}
		nt := req.todo()

		id, err := svc.Create(c.Request().Context(), writeBackend(c), nt)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, response{Result: id})
		case errors.Is(err, domain.ErrInvalidTodo):
			return invalid(c)
		case errors.Is(err, domain.ErrTitleExists):
			setErrorStage(c, "conflict")
			return c.JSON(http.StatusConflict, response{Result: "", ErrorMessage: domain.TitleExistsMessage(nt.Title)})
		case errors.Is(err, domain.ErrDueDateInPast):
			setErrorStage(c, "conflict")
			return c.JSON(http.StatusConflict, response{Result: "", ErrorMessage: domain.DueDateInPastMessage})
		default:
			return failed(c, logger, err)
		}
	}
}

func countTodos(svc TodoService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		filter, ok := domain.ParseStatusFilter(c.QueryParam("status"))
		if !ok {
			return invalid(c)
		}
		n, err := svc.Count(c.Request().Context(), backend(c), filter)
		if err != nil {
			return failed(c, logger, err)
		}
		return c.JSON(http.StatusOK, response{Result: n})
	}
}

func listTodos(svc TodoService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		filter, ok := domain.ParseStatusFilter(c.QueryParam("status"))
		if !ok {
			return invalid(c)
		}
		key, ok := domain.ParseSortKey(c.QueryParam("sortBy"))
		if !ok {
			return invalid(c)
		}
		todos, err := svc.List(c.Request().Context(), backend(c), filter, key)
		if err != nil {
			return failed(c, logger, err)
		}
		return c.JSON(http.StatusOK, response{Result: todos})
	}
}

func updateTodoStatus(svc TodoService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, ok := domain.ParseStatus(c.QueryParam("status"))
		if !ok {
			return invalid(c)
		}
		id, ok := queryID(c)
		if !ok {
			return invalid(c)
		}
		old, err := svc.SetStatus(c.Request().Context(), writeBackend(c), id, status)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, response{Result: old})
		case errors.Is(err, domain.ErrNotFound):
			setErrorStage(c, "not_found")
			return c.JSON(http.StatusNotFound, response{Result: "", ErrorMessage: domain.NotFoundMessage(id)})
		default:
			return failed(c, logger, err)
		}
	}
}

func deleteTodo(svc TodoService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := queryID(c)
		if !ok {
			return invalid(c)
		}
		n, err := svc.Delete(c.Request().Context(), writeBackend(c), id)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, response{Result: n})
		case errors.Is(err, domain.ErrEmpty):
			setErrorStage(c, "not_found")
			return c.JSON(http.StatusNotFound, response{Result: "", ErrorMessage: domain.NotFoundMessage(id)})
		default:
			return failed(c, logger, err)
		}
	}
}

func getLogLevel(levels LogLevels) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.QueryParam("logger-name")
		level, err := levels.Level(name)
		if err != nil {
			setErrorStage(c, "validation")
			return c.String(http.StatusBadRequest, "Bad Request: No such logger named "+name)
		}
		return c.String(http.StatusOK, level)
	}
}

func setLogLevel(levels LogLevels) echo.HandlerFunc {
	return func(c echo.Context) error {
		name, level := c.QueryParam("logger-name"), c.QueryParam("logger-level")
		err := levels.SetLevel(name, level)
		switch {
		case err == nil:
			return c.String(http.StatusOK, level)
		case errors.Is(err, logging.ErrInvalidLevel):
			setErrorStage(c, "validation")
			return c.String(http.StatusBadRequest, "Bad Request: Invalid level "+level)
		default:
			setErrorStage(c, "validation")
			return c.String(http.StatusBadRequest, "Bad Request: No such logger named "+name)
		}
	}
}
