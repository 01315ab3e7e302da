package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/sandbox"
	"github.com/spf13/cobra"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func (a *app) projectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List your projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			projects, err := a.api.Projects(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tFILES")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", p.ID, p.Name, len(p.Members), len(p.FileTree.Data()))
			}
			return w.Flush()
		},
	}
}

func (a *app) createCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			project, err := a.api.CreateProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", project.Name, project.ID)
			return nil
		},
	}
}

func (a *app) addUserCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-user PROJECT_ID USER...",
		Short: "Add collaborators by id or email",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ids, err := a.resolveUsers(cmd, args[1:])
			if err != nil {
				return err
			}
			project, err := a.api.AddUsers(cmd.Context(), args[0], ids)
			if err != nil {
				return err
			}
			emails := make([]string, 0, len(project.Members))
			for _, m := range project.Members {
				emails = append(emails, m.Email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s members: %s\n", project.Name, strings.Join(emails, ", "))
			return nil
		},
	}
}

// resolveUsers maps email arguments to ids; other arguments pass through.
func (a *app) resolveUsers(cmd *cobra.Command, refs []string) ([]string, error) {
	var byEmail map[string]string
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !strings.Contains(ref, "@") {
			ids = append(ids, ref)
			continue
		}
		if byEmail == nil {
			users, err := a.api.Users(cmd.Context())
			if err != nil {
				return nil, err
			}
			byEmail = make(map[string]string, len(users))
			for _, u := range users {
				byEmail[strings.ToLower(u.Email)] = u.ID
			}
		}
		id, ok := byEmail[strings.ToLower(ref)]
		if !ok {
			return nil, fmt.Errorf("no user with email %s", ref)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *app) treeCommand() *cobra.Command {
	var exportDir, pushDir string
	cmd := &cobra.Command{
		Use:   "tree PROJECT_ID",
		Short: "Show, export or replace a project's file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if exportDir != "" && pushDir != "" {
				return errors.New("--export and --push are mutually exclusive")
			}

			if pushDir != "" {
				tree, err := readTree(pushDir)
				if err != nil {
					return err
				}
				project, err := a.api.UpdateFileTree(cmd.Context(), args[0], tree)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d file(s) to %s\n", len(project.FileTree.Data()), project.Name)
				return nil
			}

			project, err := a.api.Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tree := project.FileTree.Data()
			if exportDir != "" {
				rt, err := sandbox.NewLocalRuntime(exportDir)
				if err != nil {
					return err
				}
				if err := rt.Mount(cmd.Context(), tree); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d file(s) to %s\n", len(tree), rt.Dir)
				return nil
			}
			for _, p := range tree.Paths() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportDir, "export", "", "write the tree into this directory")
	cmd.Flags().StringVar(&pushDir, "push", "", "replace the tree with the files in this directory")
	return cmd
}

// readTree collects the files under dir, skipping dot entries and node_modules.
func readTree(dir string) (models.FileTree, error) {
	tree := models.FileTree{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, tree.Validate()
}

func (a *app) aiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ai PROMPT...",
		Short: "Ask the AI assistant directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.api.Generate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
