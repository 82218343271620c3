package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find images containing a face similar to the one in an image",
	Long: `Find stored images containing a face similar to the first face in the given image.

Lower distance values indicate more similar faces.

Examples:
  face-search search query.jpg
  face-search search query.jpg --tolerance 0.3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64("tolerance", 0, "Maximum distance for a match, 0.1-1.0 (defaults to SEARCH_DEFAULT_TOLERANCE)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read query image: %w", err)
	}

	cfg := config.Load()
	tolerance := mustGetFloat64(cmd, "tolerance")
	if tolerance == 0 {
		tolerance = cfg.Search.DefaultTolerance
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer a.Close()

	images, err := a.gallery.Search(ctx, data, tolerance)
	if errors.Is(err, extractor.ErrNoFace) {
		return errors.New("no face found in search image")
	}
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"images": images, "total": len(images)})
	}

	fmt.Printf("Found %d image(s) within tolerance %.2f\n\n", len(images), tolerance)
	if len(images) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tFILENAME\tFACES\tDISTANCE")
	for i, img := range images {
		var dist float64
		if img.Distance != nil {
			dist = *img.Distance
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%.4f\n", i+1, img.ID, img.Filename, img.FaceCount, dist)
	}
	return w.Flush()
}
