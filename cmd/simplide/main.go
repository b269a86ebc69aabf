package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"simplide/internal/config"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

var log = commonlog.GetLogger("simplide")

var (
	configPath string
	logFile    string
	verbosity  int

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:               "simplide",
		Short:             "Editor core with incremental syntax tracking and analyzer sessions",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (.json, .yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "logfile", "", "path to log file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")

	rootCmd.AddCommand(analyzerCmd, highlightCmd, diagnoseCmd, journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and points logging at stderr or a file.
// Stdout stays clean for the analyzer protocol.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Log.Verbosity
	if verbosity > 0 {
		level = verbosity
	}
	path := cfg.Log.File
	if logFile != "" {
		path = logFile
	}
	if path != "" {
		commonlog.Configure(level, &path)
	} else {
		commonlog.Configure(level, nil)
	}
	log.Debugf("simplide %s", Version)
	return nil
}
