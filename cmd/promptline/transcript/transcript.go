// Package transcriptcmder holds the "promptline transcript" commands that
// inspect and merge transcript databases.
package transcriptcmder

import (
	"github.com/spf13/cobra"
)

const transcriptLongDesc string = `Inspect and merge transcript databases.

A driver started with --transcript appends every request it serves,
together with its response, to a SQLite database. Entries are
content-addressed and chained per session.`

const transcriptShortDesc string = "Inspect and merge transcripts"

func NewTranscriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: transcriptShortDesc,
		Long:  transcriptLongDesc,
	}

	cmd.AddCommand(NewMergeCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewShowCmd())

	return cmd
}
