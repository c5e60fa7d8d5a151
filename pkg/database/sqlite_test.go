package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lab-notebook/notebook_go/pkg/errs"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateProjectGrantsOwnerAccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, err := db.CreateProject(ctx, "plasmids", "/data/plasmids", "alice")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("project has no id")
	}

	level, err := db.GetAccessLevel(ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("GetAccessLevel failed: %v", err)
	}
	if level != LevelOwner {
		t.Errorf("owner level = %q, want %q", level, LevelOwner)
	}

	level, err = db.GetAccessLevel(ctx, p.ID, "mallory")
	if err != nil {
		t.Fatalf("GetAccessLevel for outsider failed: %v", err)
	}
	if level != "" {
		t.Errorf("outsider level = %q, want empty", level)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetProjectByName(context.Background(), "no-such-project")
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("GetProjectByName = %v, want *errs.NotFoundError", err)
	}
}

func TestListProjectsForUserFollowsAccessList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p1, _ := db.CreateProject(ctx, "proj-a", "/data/a", "alice")
	if _, err := db.CreateProject(ctx, "proj-b", "/data/b", "bob"); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := db.GrantAccess(ctx, p1.ID, "carol", LevelCollaborator); err != nil {
		t.Fatalf("GrantAccess failed: %v", err)
	}

	got, err := db.ListProjectsForUser(ctx, "carol")
	if err != nil {
		t.Fatalf("ListProjectsForUser failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "proj-a" {
		t.Errorf("carol sees %v, want only proj-a", got)
	}
}

func TestUpsertExperimentDetectsRename(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, "proj", "/data/proj", "alice")
	if err := db.UpsertExperiment(ctx, "exp-id-1", p.ID, "exp_001"); err != nil {
		t.Fatalf("UpsertExperiment failed: %v", err)
	}
	// Same stable id shows up under a new folder name after a user rename.
	if err := db.UpsertExperiment(ctx, "exp-id-1", p.ID, "pcr_optimization"); err != nil {
		t.Fatalf("UpsertExperiment after rename failed: %v", err)
	}

	rows, err := db.ListExperimentIndex(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListExperimentIndex failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("index holds %d rows, want 1", len(rows))
	}
	if rows[0].FolderName != "pcr_optimization" {
		t.Errorf("folder name = %q, want renamed value", rows[0].FolderName)
	}
}

func TestTurnAuditRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, "proj", "/data/proj", "alice")
	for _, msg := range []string{"first question", "second question"} {
		err := db.RecordTurn(ctx, &Turn{
			SessionID: "sess-1",
			ProjectID: p.ID,
			UserID:    "alice",
			Message:   msg,
			Answer:    "answer to " + msg,
			Status:    "completed",
		})
		if err != nil {
			t.Fatalf("RecordTurn failed: %v", err)
		}
	}

	turns, err := db.ListTurns(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("ListTurns returned %d turns, want 2", len(turns))
	}
	if turns[0].Message != "first question" {
		t.Errorf("turns not ordered oldest first: %q", turns[0].Message)
	}
}
