package downsample

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	gbam "github.com/grailbio/bio/encoding/bam"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// countEligibleRecords returns the number of records that participate in
// downsampling decisions. When a .bai index is readable the count comes
// from its metadata: the mapped plus unmapped counts of every reference,
// plus the no-coordinate count. Otherwise the BAM is scanned, skipping
// secondary and supplementary records. Index counts may include
// secondary and supplementary records, so the index total can be an
// overestimate of the scan total.
func countEligibleRecords(ctx context.Context, bamPath, indexPath string) (int64, error) {
	if indexPath == "" {
		indexPath = bamPath + ".bai"
	}
	n, err := countFromIndex(ctx, indexPath)
	if err == nil {
		return n, nil
	}
	log.Debug.Printf("downsample: no usable index at %s (%v), counting by scan", indexPath, err)
	return countByScan(ctx, bamPath)
}

func countFromIndex(ctx context.Context, path string) (int64, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	index, err := gbam.ReadIndex(in.Reader(ctx))
	if err != nil {
		return 0, err
	}
	var n int64
	for _, ref := range index.Refs {
		n += int64(ref.Meta.MappedCount) + int64(ref.Meta.UnmappedCount)
	}
	if index.UnmappedCount != nil {
		n += int64(*index.UnmappedCount)
	}
	return n, nil
}

func countByScan(ctx context.Context, path string) (int64, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return 0, errors.E(err, "error opening BAM file:", path)
	}
	var n int64
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.E(err, "error counting records in:", path)
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) == 0 {
			n++
		}
	}
	if err := reader.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
