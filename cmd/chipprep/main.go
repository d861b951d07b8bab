// Command chipprep runs the training-batch pipeline over a chip directory and
// reports what it produced. It is used to check a dataset and its config
// before training, and can dump annotated previews of augmented chips.
//
// Usage: chipprep -images <dir> -labels <file> [-config cfg.json] [-epochs 1] [-seed 0]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"chipprep/internal/config"
	"chipprep/internal/dataset"
	"chipprep/internal/version"

	"gocv.io/x/gocv"
)

var (
	flagImages       = flag.String("images", "", "Directory of training chips")
	flagLabels       = flag.String("labels", "", "Annotation file (.json or .geojson)")
	flagConfig       = flag.String("config", "", "JSON config file, empty=defaults")
	flagSaveConfig   = flag.String("save-config", "", "Write the effective config to this path and exit")
	flagEpochs       = flag.Int("epochs", 1, "Number of epochs to run")
	flagSeed         = flag.Int64("seed", 0, "Seed of the first epoch; epoch i uses seed+i")
	flagBatch        = flag.Int("batch", 0, "Override batch size")
	flagMode         = flag.String("mode", "", "Override augmentation mode (crop, crop_affine)")
	flagLegacy       = flag.Bool("legacy", false, "Reproduce historical axis pairing and always-on flips")
	flagPreview      = flag.String("preview", "", "Write annotated preview PNGs to this directory")
	flagPreviewCount = flag.Int("preview-count", 8, "Number of chips to preview")
	flagVerbose      = flag.Bool("v", false, "Verbose output")
	flagVersion      = flag.Bool("version", false, "Print version and exit")
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	flag.Parse()

	if *flagVersion {
		fmt.Println(version.String("chipprep"))
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *flagSaveConfig != "" {
		if err := cfg.Save(*flagSaveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *flagSaveConfig)
		return
	}

	if *flagImages == "" || *flagLabels == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -images <dir> -labels <file> [options]\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("Loading chips from %s\n", *flagImages)
	ds, err := dataset.Open(cfg, *flagImages, *flagLabels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening dataset: %v\n", err)
		os.Exit(1)
	}
	eff := ds.Config()
	fmt.Printf("  %d chips, %d batches of %d, %dx%d %s, axes %s\n",
		ds.Chips(), ds.Len(), eff.BatchSize, eff.TargetSize, eff.TargetSize, eff.Mode, eff.Axes)

	if *flagPreview != "" {
		if err := writePreviews(ds, *flagPreview, *flagPreviewCount, *flagSeed); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing previews: %v\n", err)
			os.Exit(1)
		}
	}

	for epoch := 0; epoch < *flagEpochs; epoch++ {
		if err := runEpoch(ds, epoch, *flagSeed+int64(epoch)); err != nil {
			fmt.Fprintf(os.Stderr, "Error in epoch %d: %v\n", epoch, err)
			os.Exit(1)
		}
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.Load(*flagConfig); err != nil {
			return cfg, err
		}
	}
	if *flagBatch > 0 {
		cfg = cfg.WithBatchSize(*flagBatch)
	}
	if *flagMode != "" {
		cfg = cfg.WithMode(*flagMode)
	}
	if *flagLegacy {
		cfg = cfg.WithLegacyBehavior()
	}
	return cfg, cfg.Validate()
}

type epochSummary struct {
	batches, samples, boxes, skipped int
	classes                          map[int]int
}

func runEpoch(ds *dataset.Dataset, epoch int, seed int64) error {
	start := time.Now()
	sum := epochSummary{classes: make(map[int]int)}

	for b, err := range ds.Batches(seed) {
		if err != nil {
			return err
		}
		sum.batches++
		sum.samples += b.Len()
		sum.skipped += len(b.Skipped)
		for _, labels := range b.Labels {
			sum.boxes += len(labels)
			for _, l := range labels {
				sum.classes[l.Class]++
			}
		}
		if *flagVerbose {
			fmt.Printf("  batch %d/%d: %d samples, %d skipped\n", b.Index+1, ds.Len(), b.Len(), len(b.Skipped))
		}
	}

	fmt.Printf("Epoch %d (seed %d): %d batches, %d samples, %d boxes, %d skipped in %v\n",
		epoch, seed, sum.batches, sum.samples, sum.boxes, sum.skipped, time.Since(start).Round(time.Millisecond))
	if *flagVerbose {
		classes := make([]int, 0, len(sum.classes))
		for c := range sum.classes {
			classes = append(classes, c)
		}
		sort.Ints(classes)
		for _, c := range classes {
			fmt.Printf("  class %2d: %d\n", c, sum.classes[c])
		}
	}
	return nil
}

// writePreviews augments the first n chips and draws their labelled boxes.
func writePreviews(ds *dataset.Dataset, dir string, n int, seed int64) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))
	ids := ds.IDs()
	if n < len(ids) {
		ids = ids[:n]
	}

	boxColor := color.RGBA{R: 0, G: 255, B: 0, A: 255}
	for _, id := range ids {
		samples, err := ds.Augment(rng, id)
		if err != nil {
			fmt.Printf("  preview %s: %v\n", id, err)
			continue
		}
		for i := range samples {
			s := &samples[i]
			s.Draw(boxColor)
			path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", id, i))
			if !gocv.IMWrite(path, s.Image) {
				log.Printf("Failed to write preview %s", path)
			}
			s.Close()
		}
	}
	fmt.Printf("Previews written to %s\n", dir)
	return nil
}
