package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"

	"lab-notebook/notebook_go/pkg/events"
	"lab-notebook/notebook_go/pkg/memory"
)

// Tool argument payloads. Schemas are reflected from these structs so the
// wire format and the decode target cannot drift apart.

type listDirectoryArgs struct {
	Path string `json:"path,omitempty" jsonschema_description:"Folder to list, relative to the project root. Empty lists the root."`
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required" jsonschema_description:"File to read, relative to the project root."`
}

type readExperimentMemoryArgs struct {
	Experiment string `json:"experiment" jsonschema:"required" jsonschema_description:"Experiment folder name whose notes to read."`
}

type updateMemoryArgs struct {
	NewInformation string `json:"new_information" jsonschema:"required" jsonschema_description:"The new facts or results to record, stated plainly."`
	Experiment     string `json:"experiment,omitempty" jsonschema_description:"Experiment folder to update. Defaults to the current experiment."`
}

type searchLiteratureArgs struct {
	Query      string `json:"query" jsonschema:"required" jsonschema_description:"What to search the literature for."`
	MaxResults int    `json:"max_results,omitempty" jsonschema_description:"Maximum number of results, default 5."`
}

// toolParameters reflects a flat JSON schema for one argument struct.
func toolParameters(v interface{}) map[string]interface{} {
	reflector := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

func toolDef(name, description string, args interface{}) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  toolParameters(args),
		},
	}
}

// conversationTools lists the tools offered to the reasoning step. The
// literature search tool is offered only when a searcher is configured.
func (n *Notebook) conversationTools() []llms.Tool {
	tools := []llms.Tool{
		toolDef("list_directory",
			"List folders and files under a path inside the project.",
			listDirectoryArgs{}),
		toolDef("read_file",
			"Read a file inside the project. Uploaded instrument files are served as their extracted text when available.",
			readFileArgs{}),
		toolDef("read_experiment_memory",
			"Read the full notes document of a named experiment in this project.",
			readExperimentMemoryArgs{}),
		toolDef("update_memory",
			"Record new information in an experiment's notes. Use this whenever the user states a fact, result or decision worth keeping.",
			updateMemoryArgs{}),
	}
	if n.searcher != nil {
		tools = append(tools, toolDef("search_literature",
			"Search external scientific literature.",
			searchLiteratureArgs{}))
	}
	return tools
}

// executeTool dispatches one tool call. Errors come back as (result, err)
// where err's message is fed to the model as the tool response, so a failed
// call steers the conversation instead of ending it.
func (n *Notebook) executeTool(ctx context.Context, session *Session, answer *Answer, name, rawArgs string) (string, error) {
	switch name {
	case "list_directory":
		var args listDirectoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid list_directory arguments: %w", err)
		}
		return n.toolListDirectory(session, args)
	case "read_file":
		var args readFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid read_file arguments: %w", err)
		}
		return n.toolReadFile(ctx, session, args)
	case "read_experiment_memory":
		var args readExperimentMemoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid read_experiment_memory arguments: %w", err)
		}
		return n.toolReadExperimentMemory(ctx, session, args)
	case "update_memory":
		var args updateMemoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid update_memory arguments: %w", err)
		}
		return n.toolUpdateMemory(ctx, session, answer, args)
	case "search_literature":
		var args searchLiteratureArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid search_literature arguments: %w", err)
		}
		return n.toolSearchLiterature(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (n *Notebook) toolListDirectory(session *Session, args listDirectoryArgs) (string, error) {
	dir, err := session.Resolver().ResolveExisting(args.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %q: %w", args.Path, err)
	}
	var lines []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
		} else {
			lines = append(lines, e.Name())
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return "(empty)", nil
	}
	return strings.Join(lines, "\n"), nil
}

// toolReadFile reads a project file. When the file is a registered original
// with a completed conversion, the extracted text is returned instead of the
// raw bytes.
func (n *Notebook) toolReadFile(ctx context.Context, session *Session, args readFileArgs) (string, error) {
	path, err := session.Resolver().ResolveExisting(args.Path)
	if err != nil {
		return "", err
	}

	if converted := n.convertedTextFor(ctx, session, path); converted != "" {
		return converted, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", args.Path, err)
	}
	if info.Size() > maxReadFileBytes {
		return "", fmt.Errorf("%q is %d bytes, larger than the %d byte read limit; upload it so it gets converted instead", args.Path, info.Size(), maxReadFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", args.Path, err)
	}
	return string(data), nil
}

// maxReadFileBytes caps raw reads handed to the model.
const maxReadFileBytes = 256 * 1024

// convertedTextFor looks the file up in its experiment's registry and returns
// the extracted text of an analyzed original, or "".
func (n *Notebook) convertedTextFor(ctx context.Context, session *Session, absPath string) string {
	// originals live at <experiment>/originals/<name>
	origDir := filepath.Dir(absPath)
	if filepath.Base(origDir) != memory.OriginalsDirName {
		return ""
	}
	expDir := filepath.Dir(origDir)
	reg, err := n.store.LoadRegistry(ctx, expDir)
	if err != nil {
		return ""
	}
	name := filepath.Base(absPath)
	for _, entry := range reg.Files {
		if entry.OriginalName != name || entry.Status != memory.StatusAnalyzed || entry.ConvertedPath == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(expDir, entry.ConvertedPath))
		if err != nil {
			n.logger.Warnf("registry points at missing conversion for %q: %v", name, err)
			return ""
		}
		return string(data)
	}
	return ""
}

func (n *Notebook) toolReadExperimentMemory(ctx context.Context, session *Session, args readExperimentMemoryArgs) (string, error) {
	dir, err := session.Resolver().ResolveExisting(args.Experiment)
	if err != nil {
		return "", err
	}
	snap, err := n.store.Read(ctx, dir)
	if err != nil {
		return "", err
	}
	if !snap.Exists {
		return fmt.Sprintf("Experiment %q has no recorded notes yet.", args.Experiment), nil
	}
	return snap.Text, nil
}

func (n *Notebook) toolUpdateMemory(ctx context.Context, session *Session, answer *Answer, args updateMemoryArgs) (string, error) {
	var expDir, expID, expName string
	if args.Experiment != "" {
		dir, err := session.Resolver().ResolveExisting(args.Experiment)
		if err != nil {
			return "", err
		}
		expDir = dir
		expName = args.Experiment
		if rec, err := memory.LoadExperiment(dir); err == nil {
			expID = rec.ID
		}
	} else {
		rec, dir := session.CurrentExperiment()
		if rec == nil {
			return "", fmt.Errorf("no experiment is selected; name one in the experiment argument or select a folder first")
		}
		expDir, expID = dir, rec.ID
		expName = filepath.Base(dir)
	}

	result, err := n.store.WriteSection(ctx, expDir, args.NewInformation, n.protocol)
	if err != nil {
		return "", err
	}
	if answer != nil {
		answer.MemoryDiffs = append(answer.MemoryDiffs, MemoryDiff{
			Experiment: expName,
			Diff:       result.Diff,
		})
	}
	n.events.Emit(session.ID, events.MemoryUpdated, expID, map[string]interface{}{
		"experiment": expName,
	})
	return fmt.Sprintf("Recorded in the notes of %s.", expName), nil
}

func (n *Notebook) toolSearchLiterature(ctx context.Context, args searchLiteratureArgs) (string, error) {
	max := args.MaxResults
	if max <= 0 {
		max = 5
	}
	results, err := n.searcher.Search(ctx, args.Query, max)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results.", nil
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return sb.String(), nil
}
