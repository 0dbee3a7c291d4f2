package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ocrdesk/ocrdesk/internal/client"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/logging"
)

var (
	cfgFile   string
	serverURL string
	verbose   bool
	noColor   bool

	cfg    *config.ClientConfig
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ocrdesk",
	Short:         "OCR desk client",
	Long:          "ocrdesk uploads images to an ocrdesk server, streams the recognised tables or text into a session, and manages saved sessions.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadClientConfig(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			c.Server = serverURL
		}
		if verbose {
			c.LogLevel = "debug"
		}
		if noColor {
			color.NoColor = true
		}
		cfg = c
		logger = logging.New(logging.Config{
			Level:   c.LogLevel,
			Format:  c.LogFormat,
			Output:  os.Stderr,
			Service: "ocrdesk",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithLogger(logger)}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.RequestTimeout))
	}
	return client.New(cfg.Server, opts...)
}
