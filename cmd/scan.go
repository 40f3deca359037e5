package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagesweep/internal/config"
	"imagesweep/internal/dedup"
	"imagesweep/internal/fileutil"
	"imagesweep/internal/hash"
	"imagesweep/internal/index"
	"imagesweep/internal/ingest"
	"imagesweep/internal/journal"
	"imagesweep/internal/models"
)

var scanCfg = config.Default()

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Find duplicate images in a folder and move them aside",
	Long: `Scan a folder for duplicate images and move the duplicates out of it.

The scan will:
1. Find all supported images (jpg, png, gif, webp, bmp, tiff)
2. Fingerprint each image by content and by a small brightness thumbnail
3. Compare every pair, confirming thumbnail matches at a higher resolution
4. Keep the file created first and move the other one to the destination,
   mirroring its path relative to the scanned folder

Nothing is moved unless the whole scan succeeds.

Example:
  imagesweep scan ./photos
  imagesweep scan ./photos -r -d ./dupes --similarity 0.9
  imagesweep scan ./photos --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.BoolVarP(&scanCfg.Recursive, "recursive", "r", false, "Scan subfolders too")
	f.StringVarP(&scanCfg.Destination, "dest", "d", "", "Folder to move duplicates to (default <folder>/Duplicates)")
	f.IntVarP(&scanCfg.ImagesPerTask, "images-per-task", "i", scanCfg.ImagesPerTask, "Images fingerprinted by one worker")
	f.IntVarP(&scanCfg.ThumbnailSize, "thumbnail-size", "t", scanCfg.ThumbnailSize, "Thumbnail width in pixels")
	f.Float64VarP(&scanCfg.Similarity, "similarity", "s", scanCfg.Similarity, "Fraction of matching thumbnail bits (0-1, higher = stricter)")
	f.IntVar(&scanCfg.Workers, "workers", scanCfg.Workers, "Maximum concurrent workers (0 = one per task)")
	f.BoolVar(&scanCfg.PreferExif, "exif-time", false, "Use the EXIF capture time as the creation time when present")
	f.BoolVar(&scanCfg.DryRun, "dry-run", false, "Report duplicates without moving anything")
	f.BoolVar(&scanCfg.NoJournal, "no-journal", false, "Do not record moves in the journal")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := scanCfg
	cfg.JournalPath = dbPath
	if err := cfg.Validate(); err != nil {
		return err
	}

	absFolder, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absFolder)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absFolder)
	}
	dest, err := filepath.Abs(cfg.DestinationFor(absFolder))
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("Scanning:    %s\n", absFolder)
	fmt.Printf("Destination: %s\n", dest)
	fmt.Printf("Similarity:  %g\n\n", cfg.Similarity)

	res, err := findDuplicates(ctx, cfg, absFolder, dest, true)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Println("Interrupted, no files were moved.")
		return nil
	}

	fmt.Println()
	fmt.Printf("Scanned:    %s images\n", humanize.Comma(int64(res.scanned)))
	fmt.Printf("Duplicates: %s\n", humanize.Comma(int64(len(res.duplicates))))
	if len(res.duplicates) == 0 {
		return nil
	}

	if cfg.DryRun {
		fmt.Println()
		fmt.Println("Files that would be moved:")
		for _, rec := range res.duplicates {
			fmt.Printf("  %s\n", rec.SourceID)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were moved)")
		return nil
	}

	var j *journal.Journal
	if !cfg.NoJournal {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
	}

	sum := moveDuplicates(cfg, j, absFolder, dest, res)

	fmt.Println()
	fmt.Printf("Moved %d files (%s) to %s\n", sum.moved, humanize.IBytes(uint64(sum.bytes)), dest)
	if sum.failed > 0 {
		fmt.Printf("Failed: %d files\n", sum.failed)
	}
	if sum.runID > 0 {
		fmt.Printf("Run 'imagesweep restore %d' to undo\n", sum.runID)
	}
	return nil
}

type scanResult struct {
	scanned    int
	duplicates []models.ImageRecord
}

// findDuplicates fingerprints every image under root and returns the
// records discarded by the duplicate scan. A cancelled ctx returns what was
// found so far without an error; callers must not act on it.
func findDuplicates(ctx context.Context, cfg config.Config, root, dest string, showProgress bool) (scanResult, error) {
	paths, err := fileutil.ListImages(root, cfg.Recursive, dest)
	if err != nil {
		return scanResult{}, fmt.Errorf("failed to list images: %w", err)
	}

	hasher := hash.NewHasher(fileutil.OS{PreferExif: cfg.PreferExif})
	idx := index.New()

	bar := newBar(len(paths), "Fingerprinting", showProgress)
	pipeline := ingest.New(ctx, hasher, paths,
		ingest.WithBatchSize(cfg.ImagesPerTask),
		ingest.WithThumbnailWidth(cfg.ThumbnailSize),
		ingest.WithWorkers(cfg.Workers),
		ingest.WithIndex(idx),
	)
	var res scanResult
	for rec, err := range pipeline.All() {
		if err != nil {
			return scanResult{}, fmt.Errorf("scan failed: %w", err)
		}
		res.scanned++
		bar.Add(1)
		logrus.WithField("path", rec.SourceID).Debug("processed")
	}
	bar.Finish()
	if ctx.Err() != nil {
		return res, nil
	}

	bar = newBar(max(idx.Len()-1, 0), "Comparing", showProgress)
	scanner := dedup.NewScanner(idx, hasher,
		dedup.WithSimilarity(cfg.Similarity),
		dedup.WithProgress(func(models.ImageRecord) { bar.Add(1) }),
	)
	for rec, err := range scanner.Find(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			return scanResult{}, fmt.Errorf("duplicate scan failed: %w", err)
		}
		res.duplicates = append(res.duplicates, rec)
	}
	bar.Finish()
	return res, nil
}

func newBar(total int, description string, visible bool) *progressbar.ProgressBar {
	if !visible {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.Default(int64(total), description)
}

type moveSummary struct {
	runID  int64
	moved  int
	failed int
	bytes  int64
}

// moveDuplicates moves every duplicate under dest. Failures to move a file
// or to journal a move are reported and skipped.
func moveDuplicates(cfg config.Config, j *journal.Journal, root, dest string, res scanResult) moveSummary {
	var sum moveSummary
	if j != nil {
		id, err := j.BeginRun(journal.Run{
			Source:        root,
			Destination:   dest,
			Similarity:    cfg.Similarity,
			ThumbnailSize: cfg.ThumbnailSize,
			ImagesPerTask: cfg.ImagesPerTask,
		})
		if err != nil {
			logrus.WithError(err).Warn("failed to journal run, moves will not be restorable")
			j = nil
		} else {
			sum.runID = id
		}
	}

	for _, rec := range res.duplicates {
		var size int64
		if info, err := os.Stat(rec.SourceID); err == nil {
			size = info.Size()
		}

		moved, err := fileutil.MoveInto(rec.SourceID, root, dest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to move %s: %v\n", rec.SourceID, err)
			sum.failed++
			continue
		}
		sum.moved++
		sum.bytes += size
		logrus.WithFields(logrus.Fields{"path": rec.SourceID, "dest": moved}).Debug("moved")

		if j == nil {
			continue
		}
		err = j.RecordMove(journal.Move{
			RunID:       sum.runID,
			Original:    rec.SourceID,
			Current:     moved,
			ContentHash: rec.Original.Hash,
			CreatedAt:   rec.CreatedAt,
			Size:        size,
		})
		if err != nil {
			logrus.WithError(err).WithField("path", rec.SourceID).Warn("failed to journal move")
		}
	}

	if j != nil {
		if err := j.FinishRun(sum.runID, res.scanned, sum.moved, sum.bytes); err != nil {
			logrus.WithError(err).Warn("failed to finish journal run")
		}
	}
	return sum
}
