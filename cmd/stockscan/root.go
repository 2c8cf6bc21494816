package main

import (
	"github.com/spf13/cobra"

	"github.com/erazemk/stockscan/internal/config"
	"github.com/erazemk/stockscan/internal/logging"
)

// rootOptions holds the global flags and the configuration they resolve to.
type rootOptions struct {
	ConfigFile string
	EnvFile    string
	DBPath     string
	LogFile    string
	Debug      bool

	cfg      config.Config
	closeLog func()
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "stockscan",
		Short:         "Barcode-driven stock movements",
		Long:          "Scan products into a review queue and commit them as stock movements.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.closeLog != nil {
				opts.closeLog()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with STOCKSCAN_* variables")
	flags.StringVarP(&opts.DBPath, "db", "d", "", "SQLite database path (default: stockscan.sqlite3)")
	flags.StringVarP(&opts.LogFile, "log", "l", "", "log file path, rotated by size (default: stdout/stderr only)")
	flags.BoolVar(&opts.Debug, "debug", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newLabelCommand(opts))

	return cmd
}

// load resolves the configuration and installs the logger. Flags given on the
// command line override every other source.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Sources{File: o.ConfigFile, EnvFile: o.EnvFile})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = o.DBPath
	}
	if flags.Changed("log") {
		cfg.Log.File = o.LogFile
	}
	if flags.Changed("debug") {
		cfg.Log.Debug = o.Debug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	o.closeLog = logging.Setup(cfg.Log)
	return nil
}
