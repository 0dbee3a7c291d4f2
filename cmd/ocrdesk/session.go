package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/cli"
	"github.com/ocrdesk/ocrdesk/internal/desk"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

var sessionCell string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Edit a saved session in place",
	Long: `Session commands open a saved session, change it and save it back under the
same id. ENTRY is an entry id or its position as listed by "session entries".`,
}

var sessionEntriesCmd = &cobra.Command{
	Use:   "entries ID",
	Short: "List the entries of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer d.Close()
		return cli.PrintEntryList(os.Stdout, d.Workspace().Entries())
	},
}

var sessionEditCmd = &cobra.Command{
	Use:   "edit ID ENTRY TEXT",
	Short: "Change a table cell or the body of a text entry",
	Long: `Edit replaces one cell of a table entry (--cell ROW,COL, counted from 1 with
header rows first) or the whole body of a text entry. Use - as TEXT to read
it from standard input.`,
	Args: cobra.ExactArgs(3),
	RunE: runSessionEdit,
}

var sessionMergeCmd = &cobra.Command{
	Use:   "merge ID ENTRY ENTRY...",
	Short: "Append the rows of several tables to the first one",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer d.Close()

		entries := d.Workspace().Entries()
		for _, ref := range args[1:] {
			e, err := cli.ResolveEntry(entries, ref)
			if err != nil {
				return err
			}
			if err := d.Select(e.ID, true); err != nil {
				return err
			}
		}
		if err := d.Merge(cmd.Context()); err != nil {
			return err
		}
		return cli.PrintEntryList(os.Stdout, d.Workspace().Entries())
	},
}

var sessionRemoveCmd = &cobra.Command{
	Use:   "remove ID ENTRY...",
	Short: "Remove entries from a saved session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer d.Close()

		// Positions refer to the list before anything is removed
		entries := d.Workspace().Entries()
		ids := make([]string, 0, len(args)-1)
		for _, ref := range args[1:] {
			e, err := cli.ResolveEntry(entries, ref)
			if err != nil {
				return err
			}
			ids = append(ids, e.ID)
		}
		for _, id := range ids {
			if err := d.Remove(cmd.Context(), id); err != nil {
				return err
			}
		}
		return cli.PrintEntryList(os.Stdout, d.Workspace().Entries())
	},
}

func init() {
	sessionEditCmd.Flags().StringVarP(&sessionCell, "cell", "c", "", "table cell as ROW,COL")
	sessionCmd.AddCommand(sessionEntriesCmd, sessionEditCmd, sessionMergeCmd, sessionRemoveCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionEdit(cmd *cobra.Command, args []string) error {
	text := args[2]
	if text == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		text = strings.TrimSuffix(string(b), "\n")
	}

	d, err := loadSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer d.Close()

	e, err := cli.ResolveEntry(d.Workspace().Entries(), args[1])
	if err != nil {
		return err
	}

	switch {
	case e.Kind == models.SessionTypeText:
		if sessionCell != "" {
			return fmt.Errorf("entry %s is text; --cell does not apply", e.ID)
		}
		err = d.EditText(e.ID, text)
	case sessionCell == "":
		return fmt.Errorf("entry %s is a table; pass --cell ROW,COL", e.ID)
	default:
		row, col, perr := cli.ParseCell(sessionCell)
		if perr != nil {
			return perr
		}
		err = d.EditCell(e.ID, row, col, text)
	}
	if err != nil {
		return fmt.Errorf("edit %s: %w", e.Title, err)
	}

	// The edit scheduled a debounced save; run it now instead of waiting
	if !d.Flush() {
		return fmt.Errorf("edit %s: %w", e.Title, workspace.ErrNotEditable)
	}
	return nil
}

// loadSession opens a desk on a saved session with edit listeners attached.
func loadSession(ctx context.Context, id string) (*desk.Desk, error) {
	d, err := openDesk()
	if err != nil {
		return nil, err
	}
	if err := d.Load(ctx, id); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
