package dashboard

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/metrics"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/types"
)

// maxBodyBytes caps request bodies, imports included.
const maxBodyBytes = 8 << 20

// Notifier is the part of notify.Notifier the API uses for user feedback.
type Notifier interface {
	Success(text string, opts ...notify.Option) (notify.Notification, bool)
	Error(text string, opts ...notify.Option) (notify.Notification, bool)
}

// API serves the JSON routes under /api.
type API struct {
	manager  *manager.Manager
	notifier Notifier
	logger   *zap.Logger
	engine   *gin.Engine
}

// NewAPI returns the API over mgr with its routes registered.
func NewAPI(mgr *manager.Manager, notifier Notifier, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		manager:  mgr,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "api")),
	}
	a.engine = a.newRouter()
	return a
}

func (a *API) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLog(), limitBody(maxBodyBytes))

	api := r.Group("/api")
	{
		api.GET("/projects", a.listProjects)
		api.POST("/projects", a.createProject)
		api.GET("/projects/:id", a.getProject)
		api.PATCH("/projects/:id", a.updateProject)
		api.DELETE("/projects/:id", a.deleteProject)
		api.POST("/projects/:id/retry", a.retryProject)
		api.GET("/projects/:id/summary", a.summary)
		api.GET("/projects/:id/todos", a.listTodos)
		api.POST("/projects/:id/todos", a.createTodo)
		api.PATCH("/projects/:id/todos/:todoID", a.updateTodo)
		api.DELETE("/projects/:id/todos/:todoID", a.deleteTodo)
		api.POST("/projects/:id/todos/:todoID/retry", a.retryTodo)
		api.GET("/export", a.export)
		api.POST("/import", a.importProjects)
		api.POST("/refresh", a.refresh)
		api.GET("/todo-types", a.todoTypes)
	}
	return r
}

// Handler returns the router serving /api.
func (a *API) Handler() http.Handler {
	return a.engine
}

// Register mounts the API on s.
func (a *API) Register(s *Server) {
	s.Handle("/api/", a.engine)
}

// requestLog records the latency of every request and logs it.
func (a *API) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency)
		a.logger.Debug("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (a *API) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (a *API) listProjects(c *gin.Context) {
	c.JSON(http.StatusOK, NewProjectViews(a.manager.FilterProjects(c.Query("q"))))
}

func (a *API) createProject(c *gin.Context) {
	var req ProjectRequest
	if !a.bind(c, &req) {
		return
	}
	in := req.Input()
	p, err := a.manager.NewProject(in)
	if errors.Is(err, manager.ErrDuplicateName) {
		a.notifier.Error(fmt.Sprintf("A project named %q already exists", in.Name))
		abort(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	a.notifier.Success(fmt.Sprintf("Project %q created", p.Name))
	c.JSON(http.StatusCreated, NewProjectView(p))
}

func (a *API) getProject(c *gin.Context) {
	p, ok := a.manager.GetProject(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	c.JSON(http.StatusOK, NewProjectView(p))
}

func (a *API) updateProject(c *gin.Context) {
	var req ProjectRequest
	if !a.bind(c, &req) {
		return
	}
	if !a.manager.UpdateProject(c.Param("id"), req.Patch()) {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	a.getProject(c)
}

func (a *API) deleteProject(c *gin.Context) {
	if !a.manager.DeleteProject(c.Param("id")) {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) retryProject(c *gin.Context) {
	id := c.Param("id")
	if _, ok := a.manager.GetProject(id); !ok {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	if !a.manager.RetryProject(id) {
		abort(c, http.StatusConflict, "project is not in the error state")
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) summary(c *gin.Context) {
	s, ok := a.manager.Summary(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *API) listTodos(c *gin.Context) {
	todos, ok := a.manager.FilterTodos(c.Param("id"), c.Query("q"))
	if !ok {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	if c.Query("sort") == "finishDate" {
		manager.SortTodosByFinishDate(todos)
	}
	c.JSON(http.StatusOK, NewTodoViews(todos))
}

func (a *API) createTodo(c *gin.Context) {
	var req TodoRequest
	if !a.bind(c, &req) {
		return
	}
	in, err := req.Input()
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	t, ok := a.manager.AddTodo(c.Param("id"), in)
	if !ok {
		abort(c, http.StatusNotFound, "project not found")
		return
	}
	c.JSON(http.StatusCreated, NewTodoView(t))
}

// findTodo looks a todo up by the ids in the request path.
func (a *API) findTodo(c *gin.Context) (types.Todo, bool) {
	todos, ok := a.manager.Todos(c.Param("id"))
	if !ok {
		return types.Todo{}, false
	}
	id := a.manager.ResolveID(c.Param("todoID"))
	for _, t := range todos {
		if t.ID == id {
			return t, true
		}
	}
	return types.Todo{}, false
}

func (a *API) updateTodo(c *gin.Context) {
	var req TodoRequest
	if !a.bind(c, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if !a.manager.UpdateTodo(c.Param("id"), c.Param("todoID"), patch) {
		abort(c, http.StatusNotFound, "todo not found")
		return
	}
	t, ok := a.findTodo(c)
	if !ok {
		// Deleted concurrently.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, NewTodoView(t))
}

func (a *API) deleteTodo(c *gin.Context) {
	if !a.manager.DeleteTodo(c.Param("id"), c.Param("todoID")) {
		abort(c, http.StatusNotFound, "todo not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) retryTodo(c *gin.Context) {
	if _, ok := a.findTodo(c); !ok {
		abort(c, http.StatusNotFound, "todo not found")
		return
	}
	if !a.manager.RetryTodo(c.Param("id"), c.Param("todoID")) {
		abort(c, http.StatusConflict, "todo is not in the error state")
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) export(c *gin.Context) {
	format, err := schema.ParseFormat(c.Query("format"))
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	contentType := "application/json"
	if format == schema.FormatYAML {
		contentType = "application/yaml"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="projects.%s"`, format))
	c.Status(http.StatusOK)
	if err := a.manager.Export(c.Writer, format); err != nil {
		a.logger.Error("Export failed", zap.Error(err))
	}
}

func (a *API) importProjects(c *gin.Context) {
	format, err := schema.ParseFormat(c.Query("format"))
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.manager.Import(io.LimitReader(c.Request.Body, maxBodyBytes), format)
	if err != nil {
		a.notifier.Error(fmt.Sprintf("Import failed: %v", err))
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	a.notifier.Success(res.Message())
	c.JSON(http.StatusOK, res)
}

func (a *API) refresh(c *gin.Context) {
	err := a.manager.FetchAll(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"offline": false, "projects": len(a.manager.Projects())})
	case store.IsOffline(err):
		c.JSON(http.StatusOK, gin.H{"offline": true, "projects": len(a.manager.Projects())})
	default:
		abort(c, http.StatusBadGateway, err.Error())
	}
}

func (a *API) todoTypes(c *gin.Context) {
	c.JSON(http.StatusOK, types.TodoTypes())
}
