package downsample

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// defaultSeed is applied when Opts.Seed is nil. Leaving the seed unset
// does not mean nondeterministic: callers rely on unseeded runs being
// reproducible.
const defaultSeed = 42

// Opts configures a downsampling run.
type Opts struct {
	// BAMFile is the input BAM pathname.
	BAMFile string
	// IndexFile is the BAM index pathname. If "", BAMFile + ".bai".
	IndexFile string
	// OutputPath is the downsampled output BAM pathname.
	OutputPath string

	// Strategy selects the decider implementation. Empty means
	// ConstantMemory.
	Strategy Strategy

	// Probability is the chance of keeping any one template, between 0
	// and 1. Mutually exclusive with NumReads.
	Probability float64
	// NumReads, when positive, requests approximately this many retained
	// records instead of a fixed probability; the probability is derived
	// from the eligible record count.
	NumReads int64
	// Seed drives the pseudorandom verdicts. Nil applies defaultSeed.
	Seed *int64
	// Accuracy is a convergence hint for the strategies that support it.
	Accuracy float64
}

func (opts *Opts) validate() error {
	if opts.Probability < 0 || opts.Probability > 1 {
		return fmt.Errorf("downsample: probability %v is not between 0 and 1", opts.Probability)
	}
	if opts.NumReads > 0 && opts.Probability != 1 {
		return fmt.Errorf("downsample: probability and num-reads are mutually exclusive")
	}
	return nil
}

// Downsample streams opts.BAMFile through a decider and writes the
// retained records to opts.OutputPath in input order. Secondary and
// supplementary records are dropped unconditionally; all other records
// of a template share one verdict. The decider is returned so the caller
// can report the seen and accepted totals.
func Downsample(ctx context.Context, opts *Opts) (Decider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	probability := opts.Probability
	if opts.NumReads > 0 {
		total, err := countEligibleRecords(ctx, opts.BAMFile, opts.IndexFile)
		if err != nil {
			return nil, err
		}
		if opts.NumReads > total {
			log.Error.Printf("downsample: requested %d reads but the input has only %d, keeping everything", opts.NumReads, total)
			probability = 1.0
		} else {
			probability = float64(opts.NumReads) / float64(total)
		}
	}
	if probability == 1.0 {
		log.Printf("downsample: probability is 1.0, the output will likely recreate the input")
	}

	seed := uint64(defaultSeed)
	if opts.Seed != nil {
		seed = uint64(*opts.Seed)
	}
	decider, err := NewDecider(opts.Strategy, probability, opts.Accuracy, seed)
	if err != nil {
		return nil, err
	}
	if err := run(ctx, opts, decider); err != nil {
		return nil, err
	}
	log.Printf("downsample: kept %d out of %d reads (%.2f%%)",
		decider.AcceptedCount(), decider.SeenCount(), 100*AcceptedFraction(decider))
	return decider, nil
}

func run(ctx context.Context, opts *Opts, decider Decider) (err error) {
	in, err := file.Open(ctx, opts.BAMFile)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := in.Close(ctx); err == nil && err2 != nil {
			err = err2
		}
	}()
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "error opening BAM file:", opts.BAMFile)
	}

	out, err := file.Create(ctx, opts.OutputPath)
	if err != nil {
		return errors.E(err, "Couldn't create output file:", opts.OutputPath)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = err2
		}
	}()
	writer, err := bam.NewWriter(out.Writer(ctx), reader.Header(), 1)
	if err != nil {
		return errors.E(err, "error creating BAM writer:", opts.OutputPath)
	}

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "error reading:", opts.BAMFile)
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		if decider.Decide(rec.Name) {
			if err := writer.Write(rec); err != nil {
				return errors.E(err, "error writing to:", opts.OutputPath)
			}
		}
	}
	if err := writer.Close(); err != nil {
		return errors.E(err, "error closing BAM writer:", opts.OutputPath)
	}
	return reader.Close()
}
