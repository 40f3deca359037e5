package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagesweep/internal/journal"
)

var (
	historyLimit int
	historyMoves bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous runs",
	Long: `Display the runs recorded in the journal, newest first.

Example:
  imagesweep history          # Show the last 10 runs
  imagesweep history -n 0     # Show all runs
  imagesweep history -m       # Also list the files each run moved`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Limit number of runs to display (0 = all)")
	historyCmd.Flags().BoolVarP(&historyMoves, "moves", "m", false, "List moved files")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	j, err := journal.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	runs, err := j.Runs(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println("Run 'imagesweep scan <folder>' to find duplicates.")
		return nil
	}

	for _, r := range runs {
		printRun(r)
		if !historyMoves {
			continue
		}
		moves, err := j.Moves(r.ID)
		if err != nil {
			return fmt.Errorf("failed to get moves of run %d: %w", r.ID, err)
		}
		for _, m := range moves {
			mark := "→"
			if m.Restored() {
				mark = "↺"
			}
			fmt.Printf("    %s %s %s (%s)\n", m.Original, mark, m.Current, humanize.IBytes(uint64(m.Size)))
		}
	}
	return nil
}

func printRun(r journal.Run) {
	status := "unfinished"
	if r.Finished() {
		status = fmt.Sprintf("%d scanned, %d moved, %s", r.Scanned, r.Moved, humanize.IBytes(uint64(r.Bytes)))
	}
	fmt.Printf("#%d  %s  %s\n", r.ID, humanize.Time(r.StartedAt), r.Source)
	fmt.Printf("    to %s, similarity %g: %s\n", r.Destination, r.Similarity, status)
}
