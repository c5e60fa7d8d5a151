package database

import "context"

// Database is the notebook catalog: projects, their access lists, the stable
// experiment id index, and the turn audit trail. Experiment content itself
// lives on disk, never here.
type Database interface {
	CreateProject(ctx context.Context, name, rootPath, owner string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]Project, error)

	GrantAccess(ctx context.Context, projectID, userID, level string) error
	GetAccessLevel(ctx context.Context, projectID, userID string) (string, error)

	UpsertExperiment(ctx context.Context, id, projectID, folderName string) error
	ListExperimentIndex(ctx context.Context, projectID string) ([]ExperimentIndexRow, error)

	RecordTurn(ctx context.Context, turn *Turn) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	Close() error
}
