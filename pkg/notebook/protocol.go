package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"lab-notebook/notebook_go/pkg/errs"
	"lab-notebook/notebook_go/pkg/logger"
)

// Protocol is the contract with the reasoning step: plain text in, plain
// text out, tolerant of the document being in any structure or language.
// All natural-language understanding lives behind this interface; the rest
// of the system is plumbing around plain text files. Any text-in/text-out
// function satisfies it, which is what keeps the memory auditable and the
// model swappable.
type Protocol interface {
	// Extract answers a question from the full raw document. No pre-parsing,
	// no section lookup by heading.
	Extract(ctx context.Context, document, question string) (string, error)

	// ProposeUpdate merges new information into the document and returns the
	// complete replacement text. Concurrent-edit detection is the memory
	// store's job; semantic soundness of the merge is trusted to the
	// reasoning step.
	ProposeUpdate(ctx context.Context, document, newInformation string) (string, error)

	// SelectRelevant picks which of the candidate experiment names the
	// message actually concerns. This is how the context builder decides on
	// optional bundle pieces without ever keyword-matching the user message.
	SelectRelevant(ctx context.Context, message string, candidates []string) ([]string, error)
}

const extractSystemPrompt = `You answer questions about a laboratory notebook document.
You are given the full document and one question. The document may use any
structure and any language. Answer only from what the document states. If the
document does not contain the answer, say explicitly that it is not recorded
in this notebook. Never invent values.`

const updateSystemPrompt = `You maintain a laboratory notebook document.
You are given the full current document and a description of new information.
Return the complete updated document and nothing else. Merge the new
information where it belongs. Keep every piece of existing text that the new
information does not supersede, byte for byte where possible. When a fact is
corrected, present only the corrected value as current; the change history
section is maintained separately and must not be rewritten by you.`

const selectSystemPrompt = `You are given a user message and a list of experiment names.
Reply with a JSON array containing exactly those names the message asks about
or compares. Reply with [] if the message concerns none of them. Reply with
JSON only.`

// LLMProtocol implements Protocol over an llms.Model with a bounded timeout
// per call. Timeouts map to *errs.CollaboratorTimeoutError and other
// failures to *errs.CollaboratorFailureError so callers can decide retry vs.
// degrade.
type LLMProtocol struct {
	Model   llms.Model
	Timeout time.Duration
	Logger  logger.ExtendedLogger
}

// DefaultProtocolTimeout bounds one reasoning call.
const DefaultProtocolTimeout = 60 * time.Second

func (p *LLMProtocol) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProtocolTimeout
}

func (p *LLMProtocol) Extract(ctx context.Context, document, question string) (string, error) {
	prompt := fmt.Sprintf("Document:\n%s\n\nQuestion: %s", document, question)
	return p.generate(ctx, extractSystemPrompt, prompt)
}

func (p *LLMProtocol) ProposeUpdate(ctx context.Context, document, newInformation string) (string, error) {
	prompt := fmt.Sprintf("Current document:\n%s\n\nNew information: %s", document, newInformation)
	return p.generate(ctx, updateSystemPrompt, prompt)
}

func (p *LLMProtocol) SelectRelevant(ctx context.Context, message string, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	prompt := fmt.Sprintf("User message: %s\n\nExperiment names: %s", message, strings.Join(candidates, ", "))
	raw, err := p.generate(ctx, selectSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	// Models sometimes wrap the JSON in a code fence.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var names []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &names); err != nil {
		if p.Logger != nil {
			p.Logger.Warnf("relevance selection returned non-JSON answer, including no sibling documents: %q", raw)
		}
		return nil, nil
	}

	// Keep only real candidates; the model's word is not a path.
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c] = true
	}
	var out []string
	for _, n := range names {
		if valid[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p *LLMProtocol) generate(ctx context.Context, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := p.Model.GenerateContent(callCtx, messages)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &errs.CollaboratorTimeoutError{Collaborator: "reasoning step", Timeout: p.timeout()}
		}
		return "", &errs.CollaboratorFailureError{Collaborator: "reasoning step", Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", &errs.CollaboratorFailureError{
			Collaborator: "reasoning step",
			Err:          errors.New("empty response"),
		}
	}
	return resp.Choices[0].Content, nil
}
