// Package notebook is the conversational core of the lab notebook: session
// management, context assembly, the tool-calling turn loop, uploads and
// experiment listing. It treats per-experiment README files as the single
// source of truth and delegates all natural-language understanding to the
// reasoning-step collaborator behind the Protocol interface.
package notebook

import (
	"context"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"lab-notebook/notebook_go/internal/convert"
	"lab-notebook/notebook_go/internal/search"
	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/events"
	"lab-notebook/notebook_go/pkg/jobs"
	"lab-notebook/notebook_go/pkg/logger"
	"lab-notebook/notebook_go/pkg/memory"
)

// Config wires the notebook's collaborators together.
type Config struct {
	DB        database.Database
	Model     llms.Model
	Protocol  Protocol // defaults to LLMProtocol over Model
	Searcher  search.Searcher
	Converter convert.Converter
	Queue     *jobs.Queue
	Logger    logger.ExtendedLogger

	MaxTurns     int           // tool-calling turns per Ask, default 8
	Temperature  float64       // default 0.2
	HistoryLimit int           // remembered exchanges per session, default 10
	TokenBudget  int           // context bundle budget, default 24000
	CallTimeout  time.Duration // per reasoning call, default DefaultProtocolTimeout
	Workers      int           // conversion workers, default 2
}

// Notebook is the exposed core API consumed by the HTTP, MCP and CLI
// surfaces.
type Notebook struct {
	db        database.Database
	store     *memory.Store
	events    *events.Store
	sessions  *SessionManager
	protocol  Protocol
	model     llms.Model
	searcher  search.Searcher
	converter convert.Converter
	queue     *jobs.Queue
	pool      *jobs.Pool
	logger    logger.ExtendedLogger

	// jobID -> session that uploaded it, for routing conversion events.
	// Jobs claimed after a restart have no session and emit nothing.
	jobSessions sync.Map

	maxTurns    int
	temperature float64
	tokenBudget int
	callTimeout time.Duration
}

// New assembles a notebook core from its collaborators.
func New(cfg Config) *Notebook {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 24000
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultProtocolTimeout
	}
	if cfg.Converter == nil {
		cfg.Converter = convert.Auto{}
	}

	ev := events.NewStore(0)
	store := memory.NewStore(cfg.Logger)

	protocol := cfg.Protocol
	if protocol == nil {
		protocol = &LLMProtocol{Model: cfg.Model, Timeout: cfg.CallTimeout, Logger: cfg.Logger}
	}

	n := &Notebook{
		db:          cfg.DB,
		store:       store,
		events:      ev,
		sessions:    NewSessionManager(cfg.DB, ev, cfg.HistoryLimit, cfg.Logger),
		protocol:    protocol,
		model:       cfg.Model,
		searcher:    cfg.Searcher,
		converter:   cfg.Converter,
		queue:       cfg.Queue,
		logger:      cfg.Logger,
		maxTurns:    cfg.MaxTurns,
		temperature: cfg.Temperature,
		tokenBudget: cfg.TokenBudget,
		callTimeout: cfg.CallTimeout,
	}

	if cfg.Queue != nil {
		n.pool = jobs.NewPool(cfg.Queue, n.handleConversionJob, cfg.Workers, cfg.Logger)
	}
	return n
}

// Sessions exposes the session manager.
func (n *Notebook) Sessions() *SessionManager {
	return n.sessions
}

// Events exposes the per-session event stream for polling.
func (n *Notebook) Events() *events.Store {
	return n.events
}

// Store exposes the memory store (used by the MCP surface for direct
// read_memory/update_memory tools).
func (n *Notebook) Store() *memory.Store {
	return n.store
}

// Protocol exposes the extraction/update protocol, the updater memory
// writes go through.
func (n *Notebook) Protocol() Protocol {
	return n.protocol
}

// StartWorkers launches the conversion worker pool, if a queue is wired.
func (n *Notebook) StartWorkers(ctx context.Context) error {
	if n.pool == nil {
		return nil
	}
	return n.pool.Start(ctx)
}

// StopWorkers stops the conversion worker pool.
func (n *Notebook) StopWorkers() {
	if n.pool != nil {
		n.pool.Stop()
	}
}
