// Package project implements project administration: create, list, share.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lab-notebook/notebook_go/internal/app"
)

var (
	user     string
	rootPath string
	level    string
)

// ProjectCmd groups the project subcommands.
var ProjectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, list and share notebook projects",
}

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project over a folder and become its owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, app.OptionsFromViper())
		if err != nil {
			return err
		}
		defer a.Close()

		root := rootPath
		if root == "" {
			root = filepath.Join("data", "projects", args[0])
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("failed to create project root %q: %w", root, err)
		}

		p, err := a.DB.CreateProject(ctx, args[0], root, user)
		if err != nil {
			return err
		}
		fmt.Printf("created project %q (%s) at %s, owned by %s\n", p.Name, p.ID, p.RootPath, p.Owner)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects visible to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, app.OptionsFromViper())
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.DB.ListProjectsForUser(ctx, user)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROOT\tOWNER")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.RootPath, p.Owner)
		}
		return w.Flush()
	},
}

var shareCmd = &cobra.Command{
	Use:   "share [project] [other-user]",
	Short: "Grant another user access to a project (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, app.OptionsFromViper())
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.Notebook.Sessions().SelectProject(ctx, user, args[0])
		if err != nil {
			return err
		}
		defer a.Notebook.Sessions().Discard(session.ID)

		if err := a.Notebook.Sessions().Share(ctx, session, args[1], level); err != nil {
			return err
		}
		fmt.Printf("shared %q with %s as %s\n", args[0], args[1], level)
		return nil
	},
}

func init() {
	ProjectCmd.PersistentFlags().StringVar(&user, "user", "", "acting user (required)")
	ProjectCmd.MarkPersistentFlagRequired("user")

	createCmd.Flags().StringVar(&rootPath, "root", "", "project root folder (default data/projects/<name>)")
	shareCmd.Flags().StringVar(&level, "level", "collaborator", "access level to grant (collaborator, admin)")

	ProjectCmd.AddCommand(createCmd)
	ProjectCmd.AddCommand(listCmd)
	ProjectCmd.AddCommand(shareCmd)
}
