// Command chipstats measures the per-channel RGB and HSV mean and standard
// deviation of a chip directory. The output feeds the rgb_* and hsv_*
// normalization constants of the pipeline config.
//
// Usage: chipstats [-ext .bmp] [-limit 0] [-json out.json] <chip-dir>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"chipprep/internal/chip"
	"chipprep/internal/version"
	"chipprep/pkg/colorutil"
)

// Report is the JSON output of chipstats.
type Report struct {
	Chips int                       `json:"chips"`
	RGB   [3]colorutil.ChannelStats `json:"rgb"`
	HSV   [3]colorutil.ChannelStats `json:"hsv"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ext := flag.String("ext", ".bmp", "Chip file extension")
	limit := flag.Int("limit", 0, "Measure at most this many chips, 0=all")
	out := flag.String("json", "", "Write results to this JSON file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("chipstats"))
		return
	}
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <chip-dir>\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	dir, err := chip.OpenDir(flag.Arg(0), *ext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ids := dir.IDs()
	if *limit > 0 && *limit < len(ids) {
		ids = ids[:*limit]
	}
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no %s chips in %s\n", *ext, flag.Arg(0))
		os.Exit(1)
	}

	var stats chip.Stats
	for i, id := range ids {
		img, err := dir.Load(id)
		if err != nil {
			log.Printf("Skipping %s: %v", id, err)
			continue
		}
		if err := stats.Add(img); err != nil {
			log.Printf("Skipping %s: %v", id, err)
		}
		img.Close()
		if (i+1)%100 == 0 {
			fmt.Printf("  %d/%d chips\n", i+1, len(ids))
		}
	}

	report := Report{Chips: stats.Chips, RGB: stats.RGB.Stats(), HSV: stats.HSV.Stats()}
	fmt.Printf("Measured %d chips\n", report.Chips)
	for i, name := range []string{"R", "G", "B"} {
		fmt.Printf("  %s: mean %.3f std %.3f\n", name, report.RGB[i].Mean, report.RGB[i].Std)
	}
	for i, name := range []string{"H", "S", "V"} {
		fmt.Printf("  %s: mean %.3f std %.3f\n", name, report.HSV[i].Mean, report.HSV[i].Std)
	}

	if *out != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error serializing results: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Results written to %s\n", *out)
	}
}
