package transcriptcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

const showLongDesc string = `Replay a session up to the given entry.

The hash may be abbreviated to any unique prefix, as printed by
"promptline transcript list".

Examples:
  promptline transcript show 3f2a9c01b7d4e8aa`

const showShortDesc string = "Show a transcript session"

type showCommander struct {
	sqlitePath string
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <hash>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to transcript database")

	return cmd
}

func (c *showCommander) run(ctx context.Context, cmd *cobra.Command, prefix string) error {
	store, err := openStore(c.sqlitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	hash, err := resolveHash(ctx, store, prefix)
	if err != nil {
		return err
	}

	chain, err := transcript.Lineage(ctx, store, hash)
	if err != nil {
		return fmt.Errorf("could not walk session %s: %w", hash, err)
	}

	out := cmd.OutOrStdout()
	for i, e := range chain {
		fmt.Fprintf(out, "#%d %s", i+1, shortHash(e.Hash))
		if e.Turn.Seed != 0 {
			fmt.Fprintf(out, " seed=%d", e.Turn.Seed)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "> %s\n", indent(prompt(e.Turn)))
		if msg, ok := e.Turn.Response[llm.KeyError]; ok {
			fmt.Fprintf(out, "! %s\n", msg)
		} else {
			fmt.Fprintf(out, "< %s\n", indent(e.Turn.Response[llm.KeyOutput]))
		}
	}
	return nil
}

// resolveHash expands a unique hash prefix.
func resolveHash(ctx context.Context, store transcript.Storer, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("empty hash")
	}

	entries, err := store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("could not list entries: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Hash, prefix) {
			matches = append(matches, e.Hash)
		}
	}
	switch len(matches) {
	case 0:
		return "", transcript.ErrNotFound{Hash: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("hash prefix %s is ambiguous (%d entries)", prefix, len(matches))
	}
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
