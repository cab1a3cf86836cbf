package main

/*
  bio-downsample retains a random subset of the templates in a SAM/BAM
  file. Reads in a mate pair are either both kept or both discarded;
  secondary and supplementary alignments are discarded. For more
  information, see github.com/grailbio/samutil/downsample/doc.go
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/samutil/downsample"
)

var (
	bamFile     = flag.String("bam", "", "Input BAM filename")
	indexFile   = flag.String("index", "", "Input BAM index filename. By default, set to input BAM filename + .bai")
	outputPath  = flag.String("output", "", "Output BAM filename")
	strategy    = flag.String("strategy", "constant-memory", "Downsampling strategy: constant-memory, high-accuracy, or chained")
	probability = flag.Float64("probability", 1.0, "Probability of keeping any individual template, between 0 and 1")
	numReads    = flag.Int64("num-reads", -1, "Keep approximately this many records instead of using -probability")
	seed        = flag.Int64("seed", 1, "Random seed for deterministic behavior")
	accuracy    = flag.Float64("accuracy", 0.0001, "Accuracy the downsampler should try to achieve if the selected strategy supports it. Higher accuracy will generally require more memory.")
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

	opts := &downsample.Opts{
		BAMFile:     *bamFile,
		IndexFile:   *indexFile,
		OutputPath:  *outputPath,
		Strategy:    downsample.Strategy(*strategy),
		Probability: *probability,
		NumReads:    *numReads,
		Seed:        seed,
		Accuracy:    *accuracy,
	}

	ctx := vcontext.Background()
	if _, err := downsample.Downsample(ctx, opts); err != nil {
		log.Fatalf(err.Error())
	}
	log.Debug.Printf("exiting")
}
