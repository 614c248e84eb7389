// Package tree implements the commands creating and listing revision trees.
package tree

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/treemig/cmd/internal/cmdutil"
	"github.com/stokaro/treemig/migration/generator"
	"github.com/stokaro/treemig/migration/revision"
)

const (
	dependsOnFlag = "depends-on"
	messageFlag   = "message"
	verboseFlag   = "verbose"
)

var addRevisionFlags = map[string]cobraflags.Flag{
	dependsOnFlag: &cobraflags.StringFlag{
		Name:  dependsOnFlag,
		Value: "",
		Usage: "Comma separated revisions of other trees the new revision requires",
	},
	messageFlag: &cobraflags.StringFlag{
		Name:  messageFlag,
		Value: "",
		Usage: "Description of the revision (defaults to the tree and version)",
	},
}

var showFlags = map[string]cobraflags.Flag{
	verboseFlag: &cobraflags.BoolFlag{
		Name:  verboseFlag,
		Value: false,
		Usage: "Show parent, dependencies, message and creation time",
	},
}

// NewCommands returns add-tree, add-revision, show-trees and show-history.
func NewCommands() []*cobra.Command {
	return []*cobra.Command{
		newAddTreeCommand(),
		newAddRevisionCommand(),
		newShowTreesCommand(),
		newShowHistoryCommand(),
	}
}

func newAddTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-tree <name>",
		Short: "Create a new tree with its root revision",
		Long: `Create the folder of a new tree in the migrations folder and write the
manifest of its root revision. The root carries no version and no step.`,
		Args: cobra.ExactArgs(1),
		RunE: addTreeCommand,
	}
}

func newAddRevisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-revision <tree> <version>",
		Short: "Add a revision on top of the head of a tree",
		Long: `Write the manifest of a new revision bringing the tree to version, plus
empty up and down SQL step files to edit.

Examples:
  treemig add-revision schema 1.1.0
  treemig add-revision componentA 2.0.0 --depends-on schema_1.1.0 --message "Split tables"`,
		Args: cobra.ExactArgs(2),
		RunE: addRevisionCommand,
	}
	cobraflags.RegisterMap(cmd, addRevisionFlags)
	return cmd
}

func newShowTreesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-trees",
		Short: "List the trees with their base and head revisions",
		Args:  cobra.NoArgs,
		RunE:  showTreesCommand,
	}
	cobraflags.RegisterMap(cmd, showFlags)
	return cmd
}

func newShowHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-history [tree]",
		Short: "List the revisions of one or all trees, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showHistoryCommand,
	}
	cobraflags.RegisterMap(cmd, showFlags)
	return cmd
}

func addTreeCommand(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Settings()
	if err != nil {
		return err
	}
	files, err := generator.GenerateTree(s.MigPath, args[0])
	if err != nil {
		return fmt.Errorf("error creating tree: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created tree %s\n", files.Revision.Tree)
	fmt.Fprintf(out, "  ROOT: %s\n", files.Manifest)
	return nil
}

func addRevisionCommand(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Settings()
	if err != nil {
		return err
	}
	dependsOn, _ := cmd.Flags().GetString(dependsOnFlag)
	message, _ := cmd.Flags().GetString(messageFlag)

	files, err := generator.GenerateRevision(generator.RevisionOptions{
		MigPath:   s.MigPath,
		Tree:      args[0],
		Version:   args[1],
		DependsOn: splitList(dependsOn),
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("error generating revision: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated revision %s\n", files.Revision.ID)
	fmt.Fprintf(out, "  MANIFEST: %s\n", files.Manifest)
	fmt.Fprintf(out, "  UP:       %s\n", files.UpFile)
	fmt.Fprintf(out, "  DOWN:     %s\n", files.DownFile)
	return nil
}

func showTreesCommand(cmd *cobra.Command, _ []string) error {
	graph, _, err := cmdutil.Graph()
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool(verboseFlag)

	out := cmd.OutOrStdout()
	trees := graph.Trees()
	if len(trees) == 0 {
		fmt.Fprintln(out, "No trees defined.")
		return nil
	}
	for _, name := range trees {
		root, err := graph.Root(name)
		if err != nil {
			return err
		}
		head, err := graph.Head(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: base %s, head %s\n", name, root.ID, head.ID)
		if verbose {
			describe(out, head, true, "  ")
		}
	}
	return nil
}

func showHistoryCommand(cmd *cobra.Command, args []string) error {
	graph, _, err := cmdutil.Graph()
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool(verboseFlag)

	trees := graph.Trees()
	if len(args) == 1 {
		trees = []string{args[0]}
	}

	out := cmd.OutOrStdout()
	for _, name := range trees {
		chain, err := graph.History(name)
		if err != nil {
			return err
		}
		for i := len(chain) - 1; i >= 0; i-- {
			rev := chain[i]
			if verbose {
				describe(out, rev, i == len(chain)-1, "")
				continue
			}
			fmt.Fprintln(out, summary(rev, i == len(chain)-1))
		}
	}
	return nil
}

// summary renders "parent -> id (tree) (head), message".
func summary(rev *revision.Revision, head bool) string {
	parent := rev.Parent
	if parent == "" {
		parent = "<base>"
	}
	line := fmt.Sprintf("%s -> %s (%s)", parent, rev.ID, rev.Tree)
	if head {
		line += " (head)"
	}
	if rev.Message != "" {
		line += ", " + rev.Message
	}
	return line
}

func describe(w io.Writer, rev *revision.Revision, head bool, indent string) {
	marker := ""
	if head {
		marker = " (head)"
	}
	parent := rev.Parent
	if parent == "" {
		parent = "<base>"
	}
	fmt.Fprintf(w, "%sRevision: %s%s\n", indent, rev.ID, marker)
	fmt.Fprintf(w, "%sTree: %s\n", indent, rev.Tree)
	if rev.Version != "" {
		fmt.Fprintf(w, "%sVersion: %s\n", indent, rev.Version)
	}
	fmt.Fprintf(w, "%sParent: %s\n", indent, parent)
	if len(rev.DependsOn) > 0 {
		fmt.Fprintf(w, "%sDepends on: %s\n", indent, strings.Join(rev.DependsOn, ", "))
	}
	if !rev.Created.IsZero() {
		fmt.Fprintf(w, "%sCreated: %s\n", indent, rev.Created.Format("2006-01-02 15:04:05 MST"))
	}
	if rev.Message != "" {
		fmt.Fprintf(w, "\n%s    %s\n", indent, rev.Message)
	}
	fmt.Fprintln(w)
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
