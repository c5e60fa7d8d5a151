package notebook

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/logger"
)

// fakeModel replays a scripted sequence of responses and records every
// request it saw.
type fakeModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	requests  [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, messages)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("fake model: no scripted response for request %d", len(m.requests))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolCallResponse(name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}}}
}

// scriptedProtocol lets each test decide how the reasoning step behaves
// without going near a network.
type scriptedProtocol struct {
	extract        func(document, question string) (string, error)
	proposeUpdate  func(document, newInformation string) (string, error)
	selectRelevant func(message string, candidates []string) ([]string, error)
}

func (p *scriptedProtocol) Extract(ctx context.Context, document, question string) (string, error) {
	if p.extract == nil {
		return "", nil
	}
	return p.extract(document, question)
}

func (p *scriptedProtocol) ProposeUpdate(ctx context.Context, document, newInformation string) (string, error) {
	if p.proposeUpdate == nil {
		return strings.TrimRight(document, "\n") + "\n" + newInformation + "\n", nil
	}
	return p.proposeUpdate(document, newInformation)
}

func (p *scriptedProtocol) SelectRelevant(ctx context.Context, message string, candidates []string) ([]string, error) {
	if p.selectRelevant == nil {
		return nil, nil
	}
	return p.selectRelevant(message, candidates)
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

// newTestNotebook builds a notebook over a fresh project owned by alice,
// with a session already bound to it.
func newTestNotebook(t *testing.T, cfg Config) (*Notebook, *Session, string) {
	t.Helper()
	ctx := context.Background()

	root := t.TempDir()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.CreateProject(ctx, "thermal-study", root, "alice"); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	cfg.DB = db
	if cfg.Logger == nil {
		cfg.Logger = testLogger(t)
	}
	if cfg.Protocol == nil {
		cfg.Protocol = &scriptedProtocol{}
	}
	nb := New(cfg)

	session, err := nb.Sessions().SelectProject(ctx, "alice", "thermal-study")
	if err != nil {
		t.Fatalf("failed to bind session: %v", err)
	}
	return nb, session, root
}

// enterExperiment creates the named experiment and moves the session into it.
func enterExperiment(t *testing.T, nb *Notebook, session *Session, name string) {
	t.Helper()
	ctx := context.Background()
	if _, err := nb.CreateExperiment(ctx, session, name); err != nil {
		t.Fatalf("failed to create experiment %q: %v", name, err)
	}
	if err := nb.Sessions().UpdateLocation(ctx, session, name); err != nil {
		t.Fatalf("failed to enter experiment %q: %v", name, err)
	}
}
