package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"lab-notebook/notebook_go/internal/app"
	"lab-notebook/notebook_go/pkg/errs"
	"lab-notebook/notebook_go/pkg/notebook"
)

type apiServer struct {
	app      *app.App
	dataRoot string
}

// ginEngine builds the JSON API. Route groups mirror the resources: projects
// (catalog + sharing), their experiments, and sessions (conversation state,
// ask, uploads, events).
func (s *apiServer) ginEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")

	projects := api.Group("/projects")
	{
		projects.POST("", s.createProject)
		projects.GET("", s.listProjects)
		projects.POST("/:id/share", s.shareProject)
		projects.GET("/:id/experiments", s.listExperiments)
		projects.POST("/:id/experiments", s.createExperiment)
	}

	sessions := api.Group("/sessions")
	{
		sessions.POST("", s.createSession)
		sessions.POST("/:id/location", s.updateLocation)
		sessions.POST("/:id/files", s.selectFiles)
		sessions.POST("/:id/ask", s.ask)
		sessions.POST("/:id/upload", s.upload)
		sessions.GET("/:id/events", s.pollEvents)
		sessions.DELETE("/:id", s.discardSession)
	}

	return engine
}

// writeError maps the typed error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var (
		notFound   *errs.NotFoundError
		escape     *errs.PathEscapeError
		permission *errs.PermissionError
		conflict   *errs.ConcurrentModificationError
		timeout    *errs.CollaboratorTimeoutError
		failure    *errs.CollaboratorFailureError
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &escape):
		status = http.StatusBadRequest
	case errors.As(err, &permission):
		status = http.StatusForbidden
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &timeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &failure):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *apiServer) createProject(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		User string `json:"user" binding:"required"`
		Root string `json:"root"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root := req.Root
	if root == "" {
		root = filepath.Join(s.dataRoot, req.Name)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project root: " + err.Error()})
		return
	}

	project, err := s.app.DB.CreateProject(c.Request.Context(), req.Name, root, req.User)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *apiServer) listProjects(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter is required"})
		return
	}
	projects, err := s.app.DB.ListProjectsForUser(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *apiServer) shareProject(c *gin.Context) {
	var req struct {
		Owner string `json:"owner" binding:"required"`
		User  string `json:"user" binding:"required"`
		Level string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Sharing runs through a session so the owner check applies.
	sessions := s.app.Notebook.Sessions()
	session, err := sessions.SelectProject(c.Request.Context(), req.Owner, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer sessions.Discard(session.ID)

	if err := sessions.Share(c.Request.Context(), session, req.User, req.Level); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared": req.User, "level": req.Level})
}

func (s *apiServer) listExperiments(c *gin.Context) {
	project, err := s.app.DB.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	summaries, err := s.app.Notebook.ListExperiments(c.Request.Context(), project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": summaries})
}

func (s *apiServer) createExperiment(c *gin.Context) {
	var req struct {
		User string `json:"user" binding:"required"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions := s.app.Notebook.Sessions()
	session, err := sessions.SelectProject(c.Request.Context(), req.User, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer sessions.Discard(session.ID)

	rec, err := s.app.Notebook.CreateExperiment(c.Request.Context(), session, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *apiServer) createSession(c *gin.Context) {
	var req struct {
		User    string `json:"user" binding:"required"`
		Project string `json:"project" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := s.app.Notebook.Sessions().SelectProject(c.Request.Context(), req.User, req.Project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"project":    session.Project.Name,
		"level":      session.Level,
	})
}

func (s *apiServer) session(c *gin.Context) (*notebook.Session, bool) {
	session, err := s.app.Notebook.Sessions().Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return session, true
}

func (s *apiServer) updateLocation(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Folder string `json:"folder"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.app.Notebook.Sessions().UpdateLocation(c.Request.Context(), session, req.Folder); err != nil {
		writeError(c, err)
		return
	}
	rec, _ := session.CurrentExperiment()
	resp := gin.H{"folder": req.Folder}
	if rec != nil {
		resp["experiment_id"] = rec.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) selectFiles(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Refs []string `json:"refs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.app.Notebook.Sessions().SelectFiles(c.Request.Context(), session, req.Refs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": session.SelectedFiles()})
}

func (s *apiServer) ask(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer, err := s.app.Notebook.Ask(c.Request.Context(), session, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":       answer.Text,
		"memory_diffs": answer.MemoryDiffs,
		"tool_calls":   answer.ToolCalls,
	})
}

func (s *apiServer) upload(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in the 'files' field"})
		return
	}

	var readers []notebook.NamedReader
	var closers []func() error
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload " + fh.Filename + ": " + err.Error()})
			return
		}
		closers = append(closers, f.Close)
		readers = append(readers, notebook.NamedReader{Name: fh.Filename, Content: f})
	}
	defer func() {
		for _, close := range closers {
			close()
		}
	}()

	entries, err := s.app.Notebook.UploadAll(c.Request.Context(), session, readers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"files": entries})
}

func (s *apiServer) pollEvents(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	events := s.app.Notebook.Events().After(session.ID, after)
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *apiServer) discardSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	s.app.Notebook.Sessions().Discard(session.ID)
	c.JSON(http.StatusOK, gin.H{"discarded": session.ID})
}
