package notebook

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/errs"
	"lab-notebook/notebook_go/pkg/events"
	"lab-notebook/notebook_go/pkg/logger"
	"lab-notebook/notebook_go/pkg/memory"
	"lab-notebook/notebook_go/pkg/paths"
)

// Turn is one remembered exchange in the session's bounded history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Session binds one conversation to one project. Every path-bearing field
// holds only resolver-validated values; destroying a session never touches
// files. State machine: Unbound -> Bound(project) -> Bound(project,
// experiment), transitions only via SelectProject and UpdateLocation.
type Session struct {
	ID      string
	User    string
	Project *database.Project
	Level   string

	resolver *paths.Resolver

	mu                sync.Mutex
	currentExperiment *memory.ExperimentRecord
	currentDir        string // validated absolute path, or "" when unbound
	selectedFiles     []string
	history           []Turn
	historyLimit      int
}

// Resolver returns the path resolver bound to this session's project root.
func (s *Session) Resolver() *paths.Resolver {
	return s.resolver
}

// CurrentExperiment returns the bound experiment record and its validated
// directory, or nil when the session points at the project root.
func (s *Session) CurrentExperiment() (*memory.ExperimentRecord, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentExperiment, s.currentDir
}

// SelectedFiles returns the root-relative refs currently pinned.
func (s *Session) SelectedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selectedFiles...)
}

// History returns a copy of the remembered turns, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// AppendTurn records one user/assistant exchange, dropping the oldest beyond
// the limit.
func (s *Session) AppendTurn(userMessage, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: "user", Content: userMessage}, Turn{Role: "assistant", Content: answer})
	if limit := s.historyLimit * 2; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// SessionManager holds the process-local session registry. Sessions have no
// durability beyond the process; the catalog's turn audit is the only thing
// that outlives them.
type SessionManager struct {
	db           database.Database
	events       *events.Store
	logger       logger.ExtendedLogger
	historyLimit int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager.
func NewSessionManager(db database.Database, ev *events.Store, historyLimit int, log logger.ExtendedLogger) *SessionManager {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &SessionManager{
		db:           db,
		events:       ev,
		logger:       log,
		historyLimit: historyLimit,
		sessions:     make(map[string]*Session),
	}
}

// SelectProject validates the user's access to the project (by name or id)
// and binds a fresh session to its root. Owner, collaborator and admin all
// have read access; anyone else gets *errs.PermissionError.
func (m *SessionManager) SelectProject(ctx context.Context, user, projectRef string) (*Session, error) {
	project, err := m.db.GetProjectByName(ctx, projectRef)
	if err != nil {
		project, err = m.db.GetProject(ctx, projectRef)
		if err != nil {
			return nil, err
		}
	}

	level, err := m.db.GetAccessLevel(ctx, project.ID, user)
	if err != nil {
		return nil, err
	}
	if level == "" {
		return nil, &errs.PermissionError{User: user, Action: "read", Project: project.Name}
	}

	resolver, err := paths.NewResolver(project.RootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root of %q: %w", project.Name, err)
	}

	session := &Session{
		ID:           uuid.NewString(),
		User:         user,
		Project:      project,
		Level:        level,
		resolver:     resolver,
		historyLimit: m.historyLimit,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.events.Emit(session.ID, events.SessionStarted, "", map[string]interface{}{
		"user":    user,
		"project": project.Name,
		"level":   level,
	})
	m.logger.Infof("session %s bound user %q to project %q as %s", session.ID, user, project.Name, level)
	return session, nil
}

// Get returns a live session by id.
func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "session", Name: sessionID}
	}
	return s, nil
}

// UpdateLocation re-resolves folderRef through the session's resolver and
// stores only the validated result plus the experiment's stable id. A ref of
// "" or "." returns the session to the project root (no current experiment).
func (m *SessionManager) UpdateLocation(ctx context.Context, session *Session, folderRef string) error {
	resolved, err := session.resolver.ResolveExisting(folderRef)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if resolved == session.resolver.Root() {
		session.currentExperiment = nil
		session.currentDir = ""
		session.selectedFiles = nil
		return nil
	}

	rec, err := memory.EnsureExperiment(resolved)
	if err != nil {
		return err
	}
	if err := m.db.UpsertExperiment(ctx, rec.ID, session.Project.ID, session.resolver.Rel(resolved)); err != nil {
		m.logger.Warnf("failed to refresh experiment index for %q: %v", rec.Name, err)
	}

	session.currentExperiment = rec
	session.currentDir = resolved
	session.selectedFiles = nil
	m.logger.Infof("session %s moved to experiment %q (%s)", session.ID, session.resolver.Rel(resolved), rec.ID)
	return nil
}

// SelectFiles validates each ref and pins it to the session. Only validated
// root-relative forms are stored, never raw caller strings.
func (m *SessionManager) SelectFiles(ctx context.Context, session *Session, refs []string) error {
	validated := make([]string, 0, len(refs))
	for _, ref := range refs {
		resolved, err := session.resolver.ResolveExisting(ref)
		if err != nil {
			return err
		}
		validated = append(validated, session.resolver.Rel(resolved))
	}

	session.mu.Lock()
	session.selectedFiles = validated
	session.mu.Unlock()
	return nil
}

// Share grants another user access to the session's project. Only an owner
// session may share; collaborator and admin sessions fail with
// *errs.PermissionError.
func (m *SessionManager) Share(ctx context.Context, session *Session, otherUser, level string) error {
	if session.Level != database.LevelOwner {
		return &errs.PermissionError{User: session.User, Action: "share", Project: session.Project.Name}
	}
	switch level {
	case database.LevelCollaborator, database.LevelAdmin:
	default:
		return fmt.Errorf("cannot grant level %q: only %q and %q can be shared", level, database.LevelCollaborator, database.LevelAdmin)
	}
	if err := m.db.GrantAccess(ctx, session.Project.ID, otherUser, level); err != nil {
		return err
	}
	m.logger.Infof("user %q shared project %q with %q as %s", session.User, session.Project.Name, otherUser, level)
	return nil
}

// Discard drops a session and its event stream. The underlying files are
// untouched.
func (m *SessionManager) Discard(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.events.Drop(sessionID)
}
