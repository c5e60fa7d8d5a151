package database

import "time"

// Access level constants. "owner" may do everything including share; "admin"
// may read, write and upload; "collaborator" may read and write but not
// share further.
const (
	LevelOwner        = "owner"
	LevelCollaborator = "collaborator"
	LevelAdmin        = "admin"
)

// Project is the catalog row for one sandboxed project root. RootPath is
// resolved once at creation and trusted afterwards.
type Project struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	RootPath  string    `json:"root_path" db:"root_path"`
	Owner     string    `json:"owner" db:"owner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Access is one access-list row of a project.
type Access struct {
	ProjectID string    `json:"project_id" db:"project_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Level     string    `json:"level" db:"level"`
	GrantedAt time.Time `json:"granted_at" db:"granted_at"`
}

// ExperimentIndexRow maps a stable experiment id to its current folder name.
// Disk is authoritative; this index is refreshed on every scan and exists so
// renames can be detected (a known id under a new folder name).
type ExperimentIndexRow struct {
	ID         string    `json:"id" db:"id"`
	ProjectID  string    `json:"project_id" db:"project_id"`
	FolderName string    `json:"folder_name" db:"folder_name"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Turn is one audited conversational turn. Sessions themselves stay
// ephemeral; the audit trail outlives them.
type Turn struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	ProjectID    string    `json:"project_id" db:"project_id"`
	ExperimentID string    `json:"experiment_id" db:"experiment_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Message      string    `json:"message" db:"message"`
	Answer       string    `json:"answer" db:"answer"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
