package transcriptcmder

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/promptline/cmd/promptline/sqlitepath"
	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

const listLongDesc string = `List the sessions recorded in a transcript database.

Each line is the last turn of one session: its hash, the number of
turns leading to it, how many of them failed and a preview of the
last prompt. Pass a hash to "promptline transcript show" to replay it.

Examples:
  promptline transcript list --sqlite ~/.promptline/transcript.db`

const listShortDesc string = "List transcript sessions"

type listCommander struct {
	sqlitePath string
}

func NewListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to transcript database")

	return cmd
}

func (c *listCommander) run(ctx context.Context, cmd *cobra.Command) error {
	store, err := openStore(c.sqlitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	leaves, err := store.Leaves(ctx)
	if err != nil {
		return fmt.Errorf("could not list sessions: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tTURNS\tFAILED\tLAST PROMPT")
	for _, leaf := range leaves {
		chain, err := transcript.Ancestry(ctx, store, leaf.Hash)
		if err != nil {
			return fmt.Errorf("could not walk session %s: %w", leaf.Hash, err)
		}
		failed := 0
		for _, e := range chain {
			if e.Turn.Failed() {
				failed++
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", shortHash(leaf.Hash), len(chain), failed, preview(prompt(leaf.Turn), 48))
	}
	return w.Flush()
}

func openStore(flagValue string) (*transcript.SQLiteStorer, error) {
	path, err := sqlitepath.ResolveSQLitePath(flagValue)
	if err != nil {
		return nil, fmt.Errorf("could not resolve database: %w", err)
	}
	store, err := transcript.NewSQLiteStorer(path)
	if err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", path, err)
	}
	return store, nil
}

func prompt(t llm.Turn) string {
	if t.Request == nil {
		return t.Raw
	}
	return t.Request[llm.KeyInputText]
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

func preview(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return string(r)
}
