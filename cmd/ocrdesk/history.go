package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/cli"
	"github.com/ocrdesk/ocrdesk/internal/desk"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDesk()
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := d.History(cmd.Context())
		if err != nil {
			return err
		}
		summaries := make([]models.SessionSummary, len(rows))
		for i, r := range rows {
			summaries[i] = r.SessionSummary
		}
		return cli.PrintHistory(os.Stdout, summaries)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDesk()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Load(cmd.Context(), args[0]); err != nil {
			return err
		}
		ws := d.Workspace()
		color.New(color.Bold).Fprintf(os.Stdout, "%s\n\n", ws.Name())
		return cli.PrintEntries(os.Stdout, ws.Entries())
	},
}

var historyRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDesk()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Load(cmd.Context(), args[0]); err != nil {
			return err
		}
		return d.Rename(cmd.Context(), args[1])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDesk()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyRenameCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

// openDesk builds a desk for one-shot commands that do not upload.
func openDesk() (*desk.Desk, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	return desk.New(c, desk.Options{
		QuietPeriod: cfg.QuietPeriod,
		SaveTimeout: cfg.SaveTimeout,
		Notifier:    cli.NewNotifier(os.Stderr, false),
		Logger:      logger,
	}), nil
}
