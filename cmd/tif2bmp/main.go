// Command tif2bmp converts the TIFF chips under a directory to BMP, the
// format the pipeline reads.
//
// Usage: tif2bmp [-keep] <dir>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"chipprep/internal/convert"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	keep := flag.Bool("keep", false, "Keep the source TIFF files")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-keep] <dir>\n", os.Args[0])
		os.Exit(1)
	}

	n, err := convert.TIFFToBMP(flag.Arg(0), !*keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error after %d files: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("Converted %d files\n", n)
}
