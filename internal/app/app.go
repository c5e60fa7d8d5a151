// Package app assembles a running notebook from configuration: catalog,
// job queue, model client and collaborators. Every command surface goes
// through here so they cannot drift apart in how they wire things.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lab-notebook/notebook_go/internal/convert"
	"lab-notebook/notebook_go/internal/llm"
	"lab-notebook/notebook_go/internal/llmtypes"
	"lab-notebook/notebook_go/internal/search"
	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/jobs"
	"lab-notebook/notebook_go/pkg/logger"
	"lab-notebook/notebook_go/pkg/notebook"
)

// Options is the resolved configuration of one notebook process.
type Options struct {
	DBPath    string // catalog database, default data/notebook.db
	QueuePath string // conversion queue database, default data/jobs.db

	Provider    string
	ModelID     string
	Temperature float64
	MaxTurns    int
	CallTimeout time.Duration

	SearchEndpoint string
	SearchAPIKey   string
	PandocBin      string
	Workers        int

	Logger logger.ExtendedLogger
}

// App owns the notebook plus the resources it must close.
type App struct {
	Notebook *notebook.Notebook
	DB       database.Database
	Queue    *jobs.Queue
	Logger   logger.ExtendedLogger
}

// New opens the databases, builds the model client and assembles the
// notebook core. Callers own Close.
func New(ctx context.Context, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.CreateDefaultLogger()
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = filepath.Join("data", "notebook.db")
	}
	queuePath := opts.QueuePath
	if queuePath == "" {
		queuePath = filepath.Join("data", "jobs.db")
	}
	for _, p := range []string{dbPath, queuePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory for %q: %w", p, err)
		}
	}

	db, err := database.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %q: %w", dbPath, err)
	}

	queue, err := jobs.NewQueue(queuePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open job queue %q: %w", queuePath, err)
	}

	model, err := llm.InitializeModel(ctx, llmtypes.Config{
		Provider:    llmtypes.Provider(opts.Provider),
		ModelID:     opts.ModelID,
		Temperature: opts.Temperature,
		Logger:      log,
	})
	if err != nil {
		queue.Close()
		db.Close()
		return nil, err
	}

	var searcher search.Searcher
	if opts.SearchEndpoint != "" {
		searcher = &search.HTTPSearcher{Endpoint: opts.SearchEndpoint, APIKey: opts.SearchAPIKey}
	}

	nb := notebook.New(notebook.Config{
		DB:          db,
		Model:       model,
		Searcher:    searcher,
		Converter:   convert.Auto{External: convert.Command{Bin: opts.PandocBin}},
		Queue:       queue,
		Logger:      log,
		MaxTurns:    opts.MaxTurns,
		Temperature: opts.Temperature,
		CallTimeout: opts.CallTimeout,
		Workers:     opts.Workers,
	})

	return &App{Notebook: nb, DB: db, Queue: queue, Logger: log}, nil
}

// Close stops the workers and releases the databases.
func (a *App) Close() {
	a.Notebook.StopWorkers()
	if err := a.Queue.Close(); err != nil {
		a.Logger.Warnf("failed to close job queue: %v", err)
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warnf("failed to close catalog: %v", err)
	}
}
