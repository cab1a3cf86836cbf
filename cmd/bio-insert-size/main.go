package main

/*
  bio-insert-size collects insert-size distribution metrics from a
  SAM/BAM file at one or more aggregation levels, in the manner of
  Picard CollectInsertSizeMetrics. For more information, see
  github.com/grailbio/samutil/insertsize/doc.go
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/samutil/insertsize"
)

var (
	bamFile           = flag.String("bam", "", "Input BAM filename")
	indexFile         = flag.String("index", "", "Input BAM index filename. By default, set to input BAM filename + .bai")
	outputPath        = flag.String("output", "", "Output metrics filename. A .gz suffix compresses the output.")
	minimumPct        = flag.Float64("minimum-pct", 0.05, "Discard any orientation category holding less than this fraction of a unit's inserts")
	histogramWidth    = flag.Int("histogram-width", 0, "Explicit histogram trim width. 0 derives the width from the median absolute deviation.")
	deviations        = flag.Float64("deviations", 10.0, "Trim the histogram to median + deviations*MAD before computing mean and stdev")
	includeDuplicates = flag.Bool("include-duplicates", false, "Also count records flagged as duplicates")
	levels            = flag.String("levels", "all-reads", "Comma-separated aggregation levels: all-reads, sample, library, read-group")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}
	if *bamFile == "" || *outputPath == "" {
		log.Fatalf("both -bam and -output must be specified")
	}
	parsedLevels, err := insertsize.ParseLevels(*levels)
	if err != nil {
		log.Fatalf(err.Error())
	}
	opts := insertsize.Opts{
		MinimumPct:        *minimumPct,
		HistogramWidth:    *histogramWidth,
		Deviations:        *deviations,
		IncludeDuplicates: *includeDuplicates,
		Levels:            parsedLevels,
	}

	provider := bamprovider.NewProvider(*bamFile, bamprovider.ProviderOpts{Index: *indexFile})
	collector, err := insertsize.Scan(provider, opts)
	if err != nil {
		log.Fatalf(err.Error())
	}
	if err := provider.Close(); err != nil {
		log.Fatalf(err.Error())
	}

	collector.Finish()
	metricsFile := &insertsize.MetricsFile{}
	if err := collector.Emit(metricsFile); err != nil {
		log.Fatalf(err.Error())
	}
	ctx := vcontext.Background()
	if err := metricsFile.Write(ctx, *outputPath); err != nil {
		log.Fatalf(err.Error())
	}
	log.Debug.Printf("exiting")
}
