// Package mcp exposes the notebook as MCP tools over stdio so an external
// agent host can ask questions, browse experiments and record results. The
// process carries one implicit session bound at startup.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"lab-notebook/notebook_go/internal/app"
	"lab-notebook/notebook_go/pkg/notebook"
)

var (
	projectRef string
	user       string
)

// MCPCmd groups the MCP subcommands.
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the notebook over the Model Context Protocol",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve notebook tools over stdio for one project and user",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&projectRef, "project", "", "project name or id (required)")
	serveCmd.Flags().StringVar(&user, "user", "", "acting user (required)")
	serveCmd.MarkFlagRequired("project")
	serveCmd.MarkFlagRequired("user")

	MCPCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := app.New(ctx, app.OptionsFromViper())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Notebook.StartWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start conversion workers: %w", err)
	}

	session, err := a.Notebook.Sessions().SelectProject(ctx, user, projectRef)
	if err != nil {
		return err
	}
	defer a.Notebook.Sessions().Discard(session.ID)

	s := server.NewMCPServer(
		"Lab Notebook",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	registerTools(s, a.Notebook, session)

	a.Logger.Infof("serving notebook MCP tools for project %q as %q over stdio", session.Project.Name, user)
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("stdio server failed: %w", err)
	}
	return nil
}

func registerTools(s *server.MCPServer, nb *notebook.Notebook, session *notebook.Session) {
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the lab notebook a question or tell it a result to record. Answers come strictly from the recorded notes."),
			mcp.WithString("message", mcp.Required(), mcp.Description("The question or statement")),
			mcp.WithString("experiment", mcp.Description("Experiment folder to work in; keeps the previous one when empty")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			message, err := req.RequireString("message")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if exp := req.GetString("experiment", ""); exp != "" {
				if err := nb.Sessions().UpdateLocation(ctx, session, exp); err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
			}
			answer, err := nb.Ask(ctx, session, message)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(answer.Text), nil
		},
	)

	s.AddTool(
		mcp.NewTool("list_experiments",
			mcp.WithDescription("List the experiments of the bound project with a one-line status each."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			summaries, err := nb.ListExperiments(ctx, session.Project)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(summaries) == 0 {
				return mcp.NewToolResultText("No experiments yet."), nil
			}
			out := ""
			for _, sum := range summaries {
				out += fmt.Sprintf("%s (%s): %s\n", sum.Name, sum.ID, sum.Status)
			}
			return mcp.NewToolResultText(out), nil
		},
	)

	s.AddTool(
		mcp.NewTool("read_memory",
			mcp.WithDescription("Read the full notes document of one experiment."),
			mcp.WithString("experiment", mcp.Required(), mcp.Description("Experiment folder name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			exp, err := req.RequireString("experiment")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dir, err := session.Resolver().ResolveExisting(exp)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			snap, err := nb.Store().Read(ctx, dir)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if !snap.Exists {
				return mcp.NewToolResultText(fmt.Sprintf("Experiment %q has no recorded notes yet.", exp)), nil
			}
			return mcp.NewToolResultText(snap.Text), nil
		},
	)

	s.AddTool(
		mcp.NewTool("update_memory",
			mcp.WithDescription("Record new information in an experiment's notes. The notes keep a change history."),
			mcp.WithString("experiment", mcp.Required(), mcp.Description("Experiment folder name")),
			mcp.WithString("new_information", mcp.Required(), mcp.Description("The fact, result or decision to record")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			exp, err := req.RequireString("experiment")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			info, err := req.RequireString("new_information")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dir, err := session.Resolver().ResolveExisting(exp)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := nb.Store().WriteSection(ctx, dir, info, nb.Protocol())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("Recorded.\n\n" + result.Diff), nil
		},
	)
}
