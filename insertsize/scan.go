package insertsize

import (
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bio/encoding/bamprovider"
)

// Scan streams every record in provider through per-shard collectors in
// parallel and merges the partial histograms into one collector. Each
// shard's collector is touched by exactly one goroutine, so the
// histogram hot loop needs no synchronization. The returned collector is
// not finished; the caller calls Finish and Emit once.
func Scan(provider bamprovider.Provider, opts Opts) (*Collector, error) {
	header, err := provider.GetHeader()
	if err != nil {
		return nil, err
	}
	shards, err := provider.GenerateShards(bamprovider.GenerateShardsOpts{
		Strategy: bamprovider.ByteBased,
	})
	if err != nil {
		return nil, err
	}
	collectors := make([]*Collector, len(shards))
	err = traverse.Each(len(shards), func(i int) error {
		c, err := NewCollector(header, opts)
		if err != nil {
			return err
		}
		iter := provider.NewIterator(shards[i])
		for iter.Scan() {
			c.AcceptRecord(iter.Record())
		}
		if err := iter.Close(); err != nil {
			return err
		}
		collectors[i] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	total, err := NewCollector(header, opts)
	if err != nil {
		return nil, err
	}
	for _, c := range collectors {
		if err := total.Merge(c); err != nil {
			return nil, err
		}
	}
	return total, nil
}
