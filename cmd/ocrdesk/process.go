package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/cli"
	"github.com/ocrdesk/ocrdesk/internal/desk"
	"github.com/ocrdesk/ocrdesk/internal/editor"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/queue"
)

var (
	processType    string
	processName    string
	processSession string
	processNoEdit  bool
)

var processCmd = &cobra.Command{
	Use:   "process FILE...",
	Short: "Recognise images and add them to a session",
	Long: `Process uploads each image in turn and streams the recognised table or text
into the session. Unless --no-edit is given, each image can first be rotated
or cropped. Press Ctrl-C once to cancel the running upload and everything
still queued.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processType, "type", "t", "", "session type: table or text (default from config)")
	processCmd.Flags().StringVarP(&processName, "name", "n", "", "session name")
	processCmd.Flags().StringVar(&processSession, "session", "", "append to a saved session instead of starting a new one")
	processCmd.Flags().BoolVar(&processNoEdit, "no-edit", false, "upload images without the editor")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	files, err := loadImages(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files given")
	}

	typeName := cfg.DefaultType
	if processType != "" {
		typeName = processType
	}
	typ, err := models.ParseSessionType(typeName)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	opts := desk.Options{
		Type:        typ,
		QuietPeriod: cfg.QuietPeriod,
		SaveTimeout: cfg.SaveTimeout,
		Indicator:   cli.NewSpinner(os.Stderr, "Processing..."),
		Notifier:    cli.NewNotifier(os.Stderr, false),
		Logger:      logger,
	}
	if typ == models.SessionTypeText {
		opts.Renderer = cli.NewStreamRenderer(os.Stdout)
	}
	if cfg.Editor.Enabled && !processNoEdit {
		opts.PreProcessor = editor.NewInteractive(
			cli.NewLinePrompter(os.Stdin, os.Stderr),
			editor.Options{Quality: cfg.Editor.JPEGQuality, MaxDimension: cfg.Editor.MaxDimension},
			logger,
		)
	} else {
		opts.PreProcessor = queue.SkipEditing
	}

	d := desk.New(c, opts)
	defer d.Close()

	ctx := cmd.Context()

	if processSession != "" {
		if err := d.Load(ctx, processSession); err != nil {
			return err
		}
	}

	stop := cancelOnInterrupt(d)
	defer stop()

	d.Enqueue(files...)
	if err := d.WaitIdle(ctx); err != nil {
		return err
	}

	if processName != "" {
		if err := d.Rename(ctx, processName); err != nil {
			return err
		}
	} else {
		d.Flush()
	}

	ws := d.Workspace()
	if typ == models.SessionTypeTable {
		if err := cli.PrintEntries(os.Stdout, ws.Entries()); err != nil {
			return err
		}
	}
	if id := ws.SessionID(); id != "" {
		color.New(color.FgGreen).Fprintf(os.Stderr, "Session %s (%s)\n", id, ws.Name())
	}
	return nil
}

// cancelOnInterrupt turns the first Ctrl-C into a desk cancel. A second one
// exits.
func cancelOnInterrupt(d *desk.Desk) func() {
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sig, os.Interrupt)
	go func() {
		cancelled := false
		for {
			select {
			case <-sig:
				if cancelled {
					os.Exit(130)
				}
				cancelled = true
				color.New(color.FgYellow).Fprintln(os.Stderr, "\nCancelling...")
				d.Cancel()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// loadImages reads every image among paths. Other files are skipped with a
// warning.
func loadImages(paths []string) ([]models.PendingFile, error) {
	var files []models.PendingFile
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		if !strings.HasPrefix(ct, "image/") {
			logger.Warn().Str("file", p).Str("type", ct).Msg("not an image, skipped")
			continue
		}
		files = append(files, models.PendingFile{Name: filepath.Base(p), Data: data, ContentType: ct})
	}
	return files, nil
}
