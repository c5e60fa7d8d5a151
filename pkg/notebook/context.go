package notebook

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"lab-notebook/notebook_go/pkg/memory"
)

// SiblingInfo is the cheap always-included view of one sibling experiment.
type SiblingInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Bundle is exactly the information one turn hands to the reasoning step:
// current memory, sibling names (full sibling documents only when the
// reasoning step selected them as relevant), pinned registry entries and the
// recent history. Assembly is pure; it never writes.
type Bundle struct {
	ExperimentID    string
	ExperimentName  string
	MemoryText      string
	MemoryAvailable bool
	Siblings        []SiblingInfo
	SiblingDocs     map[string]string
	SelectedFiles   []memory.RegistryEntry
	History         []Turn
}

// BuildContext assembles the bundle for one incoming user turn. Which
// sibling documents to include is decided by asking the reasoning step with
// the candidate names; the user message is never keyword-matched here, so
// the system behaves identically in any language. A failing memory read
// degrades to an explicit memory-unavailable bundle instead of failing the
// turn.
func (n *Notebook) BuildContext(ctx context.Context, session *Session, message string) *Bundle {
	bundle := &Bundle{
		SiblingDocs: map[string]string{},
		History:     session.History(),
	}

	rec, expDir := session.CurrentExperiment()
	if rec != nil {
		bundle.ExperimentID = rec.ID
		bundle.ExperimentName = filepath.Base(expDir)
		snap, err := n.store.Read(ctx, expDir)
		if err != nil {
			n.logger.Warnf("memory read for %q failed, continuing with memory unavailable: %v", bundle.ExperimentName, err)
			bundle.MemoryAvailable = false
		} else {
			bundle.MemoryText = snap.Text
			bundle.MemoryAvailable = true
		}
	}

	bundle.Siblings = n.siblingInfos(ctx, session, expDir)

	if len(bundle.Siblings) > 0 {
		names := make([]string, len(bundle.Siblings))
		for i, s := range bundle.Siblings {
			names[i] = s.Name
		}
		relevant, err := n.protocol.SelectRelevant(ctx, message, names)
		if err != nil {
			// Optional enrichment: degrade, the model can still reach
			// siblings through the read_experiment_memory tool.
			n.logger.Warnf("sibling relevance selection failed, including names only: %v", err)
		}
		for _, name := range relevant {
			dir, rerr := session.Resolver().ResolveExisting(name)
			if rerr != nil {
				continue
			}
			snap, rerr := n.store.Read(ctx, dir)
			if rerr != nil {
				n.logger.Warnf("failed to read sibling memory of %q: %v", name, rerr)
				continue
			}
			bundle.SiblingDocs[name] = snap.Text
		}
	}

	bundle.SelectedFiles = n.selectedEntries(ctx, session, expDir)

	n.trimToBudget(bundle)
	return bundle
}

// siblingInfos lists the other experiments of the project with a one-line
// status each. Cheap by construction: no reasoning call on this path.
func (n *Notebook) siblingInfos(ctx context.Context, session *Session, currentDir string) []SiblingInfo {
	summaries, err := n.ListExperiments(ctx, session.Project)
	if err != nil {
		n.logger.Warnf("failed to list sibling experiments: %v", err)
		return nil
	}
	current := filepath.Base(currentDir)
	var out []SiblingInfo
	for _, s := range summaries {
		if currentDir != "" && s.Name == current {
			continue
		}
		out = append(out, SiblingInfo{ID: s.ID, Name: s.Name, Status: s.Status})
	}
	return out
}

// selectedEntries maps the session's pinned file refs to registry entries.
func (n *Notebook) selectedEntries(ctx context.Context, session *Session, expDir string) []memory.RegistryEntry {
	refs := session.SelectedFiles()
	if len(refs) == 0 || expDir == "" {
		return nil
	}
	reg, err := n.store.LoadRegistry(ctx, expDir)
	if err != nil {
		n.logger.Warnf("failed to load registry for selected files: %v", err)
		return nil
	}
	var out []memory.RegistryEntry
	for _, ref := range refs {
		base := filepath.Base(ref)
		for _, e := range reg.Files {
			if e.OriginalName == base {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// trimToBudget drops oldest history first, then sibling documents (names
// stay). The current experiment's memory is never trimmed.
func (n *Notebook) trimToBudget(bundle *Bundle) {
	for bundleTokens(bundle) > n.tokenBudget && len(bundle.History) > 2 {
		bundle.History = bundle.History[2:]
	}
	for name := range bundle.SiblingDocs {
		if bundleTokens(bundle) <= n.tokenBudget {
			break
		}
		delete(bundle.SiblingDocs, name)
	}
}

// bundleTokens counts everything the bundle will put in front of the model:
// the rendered sections plus the history turns sent as messages.
func bundleTokens(b *Bundle) int {
	total := countTokens(renderBundle(b))
	for _, t := range b.History {
		total += countTokens(t.Content)
	}
	return total
}

// renderBundle lays the bundle out as the plain-text sections of the system
// prompt.
func renderBundle(b *Bundle) string {
	var sb strings.Builder

	if b.ExperimentName != "" {
		fmt.Fprintf(&sb, "Current experiment: %s\n\n", b.ExperimentName)
		if b.MemoryAvailable {
			fmt.Fprintf(&sb, "Experiment notes (the authoritative record):\n%s\n\n", b.MemoryText)
		} else {
			sb.WriteString("The experiment's notes could not be read right now; say so if asked about recorded facts.\n\n")
		}
	} else {
		sb.WriteString("No experiment is currently selected; the session points at the project root.\n\n")
	}

	if len(b.Siblings) > 0 {
		sb.WriteString("Other experiments in this project:\n")
		for _, s := range b.Siblings {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Status)
		}
		sb.WriteString("\n")
	}

	for name, doc := range b.SiblingDocs {
		fmt.Fprintf(&sb, "Notes of experiment %s:\n%s\n\n", name, doc)
	}

	if len(b.SelectedFiles) > 0 {
		sb.WriteString("Files the user selected:\n")
		for _, f := range b.SelectedFiles {
			fmt.Fprintf(&sb, "- %s (status %s) %s\n", f.OriginalName, f.Status, f.Summary)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// countTokens counts with the cl100k_base encoding, falling back to a
// character heuristic when the encoding is unavailable (e.g. offline).
func countTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
