package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagesweep/internal/config"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "imagesweep",
	Short: "Find duplicate images and move them aside",
	Long: `imagesweep is a CLI tool for finding duplicate images in a folder.

Byte-identical files are matched by content hash. Visually identical files are
matched by an average-brightness hash of a small thumbnail, then confirmed at a
higher resolution. Of each duplicate pair the file created first is kept; the
other one is moved to a destination folder, and every move is journaled so a
run can be undone.

Example usage:
  imagesweep scan ./photos              # Move duplicates to ./photos/Duplicates
  imagesweep scan ./photos -r -s 0.95   # Recurse and allow 5% differing bits
  imagesweep history                    # List previous runs
  imagesweep restore 3                  # Move the files of run 3 back`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: !verbose,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultJournalPath(), "Path to the SQLite move journal")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every file and comparison")
}
