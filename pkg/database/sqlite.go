package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"lab-notebook/notebook_go/pkg/errs"
)

// SQLiteDB implements the Database interface using SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the catalog database and applies pending
// migrations.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := NewMigrationRunner(db).RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// CreateProject inserts the project row and grants the owner level in one
// transaction.
func (s *SQLiteDB) CreateProject(ctx context.Context, name, rootPath, owner string) (*Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO projects (id, name, root_path, owner)
		VALUES (?, ?, ?, ?)
		RETURNING id, name, root_path, owner, created_at
	`
	var p Project
	err = tx.QueryRowContext(ctx, query, uuid.NewString(), name, rootPath, owner).Scan(
		&p.ID, &p.Name, &p.RootPath, &p.Owner, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project %q: %w", name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_access (project_id, user_id, level) VALUES (?, ?, ?)`,
		p.ID, owner, LevelOwner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to grant owner access on project %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project creation: %w", err)
	}
	return &p, nil
}

// GetProject retrieves a project by id.
func (s *SQLiteDB) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.getProject(ctx, `SELECT id, name, root_path, owner, created_at FROM projects WHERE id = ?`, id)
}

// GetProjectByName retrieves a project by its unique name.
func (s *SQLiteDB) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return s.getProject(ctx, `SELECT id, name, root_path, owner, created_at FROM projects WHERE name = ?`, name)
}

func (s *SQLiteDB) getProject(ctx context.Context, query, key string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, query, key).Scan(&p.ID, &p.Name, &p.RootPath, &p.Owner, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &errs.NotFoundError{Kind: "project", Name: key}
		}
		return nil, fmt.Errorf("failed to get project %q: %w", key, err)
	}
	return &p, nil
}

// ListProjectsForUser lists projects the user appears on the access list of.
func (s *SQLiteDB) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	query := `
		SELECT p.id, p.name, p.root_path, p.owner, p.created_at
		FROM projects p
		JOIN project_access a ON a.project_id = p.id
		WHERE a.user_id = ?
		ORDER BY p.created_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects for user %q: %w", userID, err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &p.Owner, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GrantAccess upserts one access-list row.
func (s *SQLiteDB) GrantAccess(ctx context.Context, projectID, userID, level string) error {
	query := `
		INSERT INTO project_access (project_id, user_id, level)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET level = excluded.level, granted_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, projectID, userID, level); err != nil {
		return fmt.Errorf("failed to grant %q access to user %q: %w", level, userID, err)
	}
	return nil
}

// GetAccessLevel returns the user's level on a project, or "" when the user
// has no access at all.
func (s *SQLiteDB) GetAccessLevel(ctx context.Context, projectID, userID string) (string, error) {
	var level string
	err := s.db.QueryRowContext(ctx,
		`SELECT level FROM project_access WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	).Scan(&level)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get access level for user %q: %w", userID, err)
	}
	return level, nil
}

// UpsertExperiment refreshes the stable-id index entry for one experiment
// folder. A rename shows up as the same id with a new folder name.
func (s *SQLiteDB) UpsertExperiment(ctx context.Context, id, projectID, folderName string) error {
	query := `
		INSERT INTO experiments (id, project_id, folder_name)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET folder_name = excluded.folder_name, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, id, projectID, folderName); err != nil {
		return fmt.Errorf("failed to upsert experiment %q: %w", folderName, err)
	}
	return nil
}

// ListExperimentIndex lists the index rows of one project.
func (s *SQLiteDB) ListExperimentIndex(ctx context.Context, projectID string) ([]ExperimentIndexRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, folder_name, updated_at FROM experiments WHERE project_id = ? ORDER BY folder_name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiment index: %w", err)
	}
	defer rows.Close()

	var out []ExperimentIndexRow
	for rows.Next() {
		var r ExperimentIndexRow
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.FolderName, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experiment row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordTurn appends one turn to the audit trail.
func (s *SQLiteDB) RecordTurn(ctx context.Context, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	query := `
		INSERT INTO turns (id, session_id, project_id, experiment_id, user_id, message, answer, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		turn.ID, turn.SessionID, turn.ProjectID, turn.ExperimentID, turn.UserID, turn.Message, turn.Answer, turn.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record turn for session %q: %w", turn.SessionID, err)
	}
	return nil
}

// ListTurns returns the most recent turns of a session, oldest first.
func (s *SQLiteDB) ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, project_id, COALESCE(experiment_id, ''), user_id, message, COALESCE(answer, ''), status, created_at
		FROM (
			SELECT * FROM turns WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
		)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.ProjectID, &t.ExperimentID, &t.UserID, &t.Message, &t.Answer, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
