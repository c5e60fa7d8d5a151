package notebook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"lab-notebook/notebook_go/pkg/database"
	"lab-notebook/notebook_go/pkg/errs"
	"lab-notebook/notebook_go/pkg/events"
)

// MemoryDiff reports one notes update made during a turn.
type MemoryDiff struct {
	Experiment string `json:"experiment"`
	Diff       string `json:"diff"`
}

// ToolCallRecord is the audit view of one tool invocation within a turn.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	Failed    bool   `json:"failed"`
}

// Answer is what one user turn produces.
type Answer struct {
	Text        string           `json:"text"`
	MemoryDiffs []MemoryDiff     `json:"memory_diffs,omitempty"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
}

const failedTurnText = "I could not complete that request; the reasoning step did not produce an answer. Nothing was recorded."

// Ask runs one conversation turn: assemble context, loop the reasoning step
// with tools until it answers in plain text or the turn cap is reached,
// then persist the exchange. A reasoning-step failure never leaves the
// notes half-written: updates happen only through the memory store's
// commit-if-unchanged write.
func (n *Notebook) Ask(ctx context.Context, session *Session, message string) (*Answer, error) {
	rec, _ := session.CurrentExperiment()
	expID := ""
	if rec != nil {
		expID = rec.ID
	}
	n.events.Emit(session.ID, events.TurnStarted, expID, map[string]interface{}{
		"message_chars": len(message),
	})

	bundle := n.BuildContext(ctx, session, message)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, n.systemPrompt(bundle)),
	}
	for _, t := range bundle.History {
		role := llms.ChatMessageTypeHuman
		if t.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, message))

	answer := &Answer{}
	tools := n.conversationTools()

	for turn := 0; turn < n.maxTurns; turn++ {
		resp, err := n.generateWithTimeout(ctx, messages, tools)
		if err != nil {
			n.events.Emit(session.ID, events.TurnFailed, expID, map[string]interface{}{
				"error": err.Error(),
			})
			return nil, err
		}

		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			answer.Text = strings.TrimSpace(choice.Content)
			break
		}

		// Echo the assistant's tool-call message back so the provider sees
		// a well-formed transcript.
		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: assistantParts})

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			name := tc.FunctionCall.Name
			args := tc.FunctionCall.Arguments

			n.events.Emit(session.ID, events.ToolCallStarted, expID, map[string]interface{}{
				"tool": name,
			})

			result, toolErr := n.executeTool(ctx, session, answer, name, args)
			record := ToolCallRecord{Name: name, Arguments: args}
			if toolErr != nil {
				// Failed calls go back to the model as the tool response;
				// the typed error messages tell it what to try instead.
				record.Failed = true
				record.Result = toolErr.Error()
				result = "Tool error: " + toolErr.Error()
				n.logger.Warnf("tool %s failed: %v", name, toolErr)
			} else {
				record.Result = result
			}
			answer.ToolCalls = append(answer.ToolCalls, record)

			n.events.Emit(session.ID, events.ToolCallCompleted, expID, map[string]interface{}{
				"tool":   name,
				"failed": record.Failed,
			})

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    result,
				}},
			})
		}
	}

	if answer.Text == "" {
		answer.Text = failedTurnText
	}

	session.AppendTurn(message, answer.Text)
	if err := n.db.RecordTurn(ctx, &database.Turn{
		SessionID:    session.ID,
		ProjectID:    session.Project.ID,
		ExperimentID: expID,
		UserID:       session.User,
		Message:      message,
		Answer:       answer.Text,
		Status:       "completed",
	}); err != nil {
		n.logger.Warnf("failed to record turn audit: %v", err)
	}

	n.events.Emit(session.ID, events.TurnCompleted, expID, map[string]interface{}{
		"tool_calls": len(answer.ToolCalls),
	})
	return answer, nil
}

// generateWithTimeout wraps one reasoning-step call with the configured
// deadline and maps failures to the collaborator error types.
func (n *Notebook) generateWithTimeout(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, n.callTimeout)
	defer cancel()

	opts := []llms.CallOption{
		llms.WithTemperature(n.temperature),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}

	start := time.Now()
	resp, err := n.model.GenerateContent(callCtx, messages, opts...)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &errs.CollaboratorTimeoutError{Collaborator: "reasoning step", Timeout: n.callTimeout}
		}
		return nil, &errs.CollaboratorFailureError{Collaborator: "reasoning step", Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &errs.CollaboratorFailureError{Collaborator: "reasoning step", Err: errors.New("empty response")}
	}
	n.logger.Debugf("reasoning step answered in %s", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

const systemPromptPreamble = `You are the assistant of a laboratory notebook. Each experiment keeps its
notes in a README document; that document is the only authoritative record.
Answer strictly from the notes and files you are shown or read through
tools. If something is not recorded, say it is not recorded in this
notebook. Never invent measurements, dates or outcomes.

When the user states a new fact, result or decision, record it with the
update_memory tool. When they correct an earlier value, record the
correction; the notes keep their own change history.`

func (n *Notebook) systemPrompt(bundle *Bundle) string {
	return systemPromptPreamble + "\n\n" + renderBundle(bundle)
}
