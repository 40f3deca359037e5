package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagesweep/internal/fileutil"
	"imagesweep/internal/journal"
)

var (
	restoreDryRun    bool
	restoreNoConfirm bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <run-id>",
	Short: "Move the files of a run back",
	Long: `Move every file a run took out of its folder back to where it was.

Files whose original location is occupied again are left where they are.

Example:
  imagesweep restore 3 --dry-run   # Preview
  imagesweep restore 3 -y          # Restore without asking`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Preview without moving")
	restoreCmd.Flags().BoolVarP(&restoreNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	j, err := journal.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	run, err := j.Run(id)
	if err != nil {
		return err
	}
	moves, err := j.Moves(id)
	if err != nil {
		return fmt.Errorf("failed to get moves: %w", err)
	}

	var pending []journal.Move
	for _, m := range moves {
		if !m.Restored() {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		fmt.Printf("Nothing to restore for run %d.\n", id)
		return nil
	}

	fmt.Printf("Will move %d files back into %s\n\n", len(pending), run.Source)

	if restoreDryRun {
		for _, m := range pending {
			fmt.Printf("  %s → %s\n", m.Current, m.Original)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were moved)")
		return nil
	}

	if !restoreNoConfirm {
		fmt.Printf("Restore %d files? [y/N]: ", len(pending))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	restored, skipped, failed := restoreMoves(j, pending)

	fmt.Println()
	fmt.Printf("Restored %d files\n", restored)
	if skipped > 0 {
		fmt.Printf("Skipped: %d files (original path is taken)\n", skipped)
	}
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
	}
	return nil
}

func restoreMoves(j *journal.Journal, moves []journal.Move) (restored, skipped, failed int) {
	for _, m := range moves {
		err := fileutil.MoveBack(m.Current, m.Original)
		switch {
		case errors.Is(err, fs.ErrExist):
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", m.Original, err)
			skipped++
			continue
		case err != nil:
			fmt.Fprintf(os.Stderr, "Failed to restore %s: %v\n", m.Original, err)
			failed++
			continue
		}

		restored++
		if err := j.MarkRestored(m.ID); err != nil {
			logrus.WithError(err).WithField("path", m.Original).Warn("failed to journal restore")
		}
	}
	return restored, skipped, failed
}
