package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/gallery"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Upload every image in a directory",
	Long: `Upload every image file in a directory, exactly as the upload endpoint would.

Examples:
  # Extract faces while importing
  face-search import ./event-photos

  # Only queue the images; 'face-search worker' extracts the faces
  face-search import ./event-photos --mode deferred`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("mode", "", "Ingestion mode: inline or deferred (defaults to INGEST_MODE)")
}

var importExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// listImageFiles returns the image files directly inside dir, sorted by name.
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !importExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// importSummary tallies upload results by outcome
type importSummary struct {
	Uploaded int
	Faces    int
	NoFaces  int
	Queued   int
	Failed   []gallery.UploadResult
}

func (s *importSummary) add(res gallery.UploadResult) {
	switch {
	case res.Error != "":
		s.Failed = append(s.Failed, res)
	case res.FaceCount == nil:
		s.Uploaded++
		s.Queued++
	case *res.FaceCount == 0:
		s.Uploaded++
		s.NoFaces++
	default:
		s.Uploaded++
		s.Faces += *res.FaceCount
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	files, err := listImageFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no image files found")
	}

	cfg := config.Load()
	ctx := context.Background()
	a, err := newApp(ctx, cfg, mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Importing images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var summary importSummary
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			summary.add(gallery.UploadResult{Filename: filepath.Base(path), Status: "failed", Error: err.Error()})
		} else {
			summary.add(a.gallery.Upload(ctx, filepath.Base(path), data))
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nImported %d of %d images (%s mode)\n", summary.Uploaded, len(files), cfg.Ingest.Mode)
	if summary.Queued > 0 {
		fmt.Printf("  Queued for ingestion: %d\n", summary.Queued)
	} else {
		fmt.Printf("  Faces stored:         %d\n", summary.Faces)
		fmt.Printf("  Images without faces: %d\n", summary.NoFaces)
	}
	for _, f := range summary.Failed {
		fmt.Printf("  FAILED %s: %s\n", f.Filename, f.Error)
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d image(s) failed to import", len(summary.Failed))
	}
	return nil
}
