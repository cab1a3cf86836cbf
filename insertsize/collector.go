package insertsize

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Level selects one aggregation granularity for metrics collection. A
// collector maintains an independent set of histograms per active level,
// so one accepted record fans out to one unit in every level.
type Level int

const (
	// LevelAllReads aggregates every record into a single unit.
	LevelAllReads Level = iota
	// LevelSample aggregates per sample.
	LevelSample
	// LevelLibrary aggregates per (sample, library).
	LevelLibrary
	// LevelReadGroup aggregates per (sample, library, read group).
	LevelReadGroup
)

// ParseLevels converts a comma-separated list such as
// "all-reads,library" into aggregation levels.
func ParseLevels(s string) ([]Level, error) {
	var levels []Level
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "all-reads":
			levels = append(levels, LevelAllReads)
		case "sample":
			levels = append(levels, LevelSample)
		case "library":
			levels = append(levels, LevelLibrary)
		case "read-group":
			levels = append(levels, LevelReadGroup)
		default:
			return nil, fmt.Errorf("unknown aggregation level: %q", name)
		}
	}
	return levels, nil
}

// Opts configures a Collector.
type Opts struct {
	// MinimumPct drops an orientation category holding less than this
	// fraction of a unit's total inserts. Range 0 to 1.
	MinimumPct float64

	// HistogramWidth, when positive, is the exact width around the
	// median to trim each histogram to before computing the mean and
	// standard deviation, overriding the deviation-based width.
	HistogramWidth int

	// Deviations sets the automatic trim width to
	// median + Deviations*MAD when HistogramWidth is unset.
	Deviations float64

	// IncludeDuplicates counts records flagged as duplicates.
	IncludeDuplicates bool

	// Levels lists the aggregation levels to maintain. Empty means
	// LevelAllReads only.
	Levels []Level
}

type unitKey struct {
	sample, library, readGroup string
}

// unitCollector owns the per-orientation histograms of one aggregation
// unit.
type unitCollector struct {
	sample, library, readGroup string
	histograms                 [numOrientations]*Histogram
}

func newUnitCollector(key unitKey) *unitCollector {
	prefix := "All_Reads."
	switch {
	case key.readGroup != "":
		prefix = key.readGroup + "."
	case key.library != "":
		prefix = key.library + "."
	case key.sample != "":
		prefix = key.sample + "."
	}
	u := &unitCollector{
		sample:    key.sample,
		library:   key.library,
		readGroup: key.readGroup,
	}
	for o := FR; o < numOrientations; o++ {
		u.histograms[o] = NewHistogram(prefix + o.histogramSuffix())
	}
	return u
}

func (u *unitCollector) totalInserts() int64 {
	var total int64
	for _, h := range u.histograms {
		total += h.Total()
	}
	return total
}

// finish computes the surviving categories of the unit. Categories whose
// share of the unit's inserts falls under minimumPct are noise and
// excluded.
func (u *unitCollector) finish(opts *Opts, metrics *[]*Metrics, histograms *[]*Histogram) {
	grandTotal := u.totalInserts()
	if grandTotal == 0 {
		return
	}
	for o := FR; o < numOrientations; o++ {
		h := u.histograms[o]
		total := h.Total()
		if float64(total) < float64(grandTotal)*opts.MinimumPct {
			continue
		}
		m := &Metrics{
			Sample:      u.sample,
			Library:     u.library,
			ReadGroup:   u.readGroup,
			Orientation: o,
		}
		if !h.Empty() {
			m.ReadPairs = total
			m.calculateDerivedFields(h, opts.HistogramWidth, opts.Deviations)
		}
		*histograms = append(*histograms, h)
		*metrics = append(*metrics, m)
	}
}

// levelCollector routes accepted records to the units of one aggregation
// level, creating units as they are first seen. order remembers
// discovery order so output is deterministic for a given input order.
type levelCollector struct {
	level Level
	units map[unitKey]*unitCollector
	order []unitKey
}

func newLevelCollector(level Level) *levelCollector {
	return &levelCollector{level: level, units: make(map[unitKey]*unitCollector)}
}

func (l *levelCollector) key(sample, library, readGroup string) unitKey {
	switch l.level {
	case LevelSample:
		return unitKey{sample: sample}
	case LevelLibrary:
		return unitKey{sample: sample, library: library}
	case LevelReadGroup:
		return unitKey{sample: sample, library: library, readGroup: readGroup}
	}
	return unitKey{}
}

func (l *levelCollector) unit(key unitKey) *unitCollector {
	u := l.units[key]
	if u == nil {
		u = newUnitCollector(key)
		l.units[key] = u
		l.order = append(l.order, key)
	}
	return u
}

func (l *levelCollector) accept(sample, library, readGroup string, insertSize int, o Orientation) {
	l.unit(l.key(sample, library, readGroup)).histograms[o].Increment(insertSize)
}

// Sink receives the finished metrics and the histograms they were
// derived from.
type Sink interface {
	AddMetric(m *Metrics)
	AddHistogram(h *Histogram)
}

var rgTag = sam.Tag{'R', 'G'}

// Collector accumulates per-orientation insert-size histograms at the
// configured aggregation levels. It is streamed records by a single
// goroutine; partial collectors from a parallel scan are combined with
// Merge before Finish.
type Collector struct {
	opts      Opts
	rgSample  map[string]string
	rgLibrary map[string]string
	levels    []*levelCollector

	finished   bool
	metrics    []*Metrics
	histograms []*Histogram
}

// NewCollector creates a Collector for records carrying read groups
// declared in header. A nil header is allowed when no sample, library or
// read-group aggregation is requested.
func NewCollector(header *sam.Header, opts Opts) (*Collector, error) {
	if opts.MinimumPct < 0 || opts.MinimumPct > 1 {
		return nil, fmt.Errorf("minimum percentage %v is not between 0 and 1", opts.MinimumPct)
	}
	levels := opts.Levels
	if len(levels) == 0 {
		levels = []Level{LevelAllReads}
	}
	c := &Collector{
		opts:      opts,
		rgSample:  make(map[string]string),
		rgLibrary: make(map[string]string),
	}
	for _, level := range levels {
		c.levels = append(c.levels, newLevelCollector(level))
	}
	if header != nil {
		for _, rg := range header.RGs() {
			c.rgLibrary[rg.Name()] = rg.Library()
		}
		c.rgSample = readGroupSamples(header)
	}
	return c, nil
}

// readGroupSamples maps read-group name to the SM field of its @RG
// header line. The hts ReadGroup type does not expose the sample, so it
// is recovered from the header text.
func readGroupSamples(header *sam.Header) map[string]string {
	samples := make(map[string]string)
	text, err := header.MarshalText()
	if err != nil {
		return samples
	}
	for _, line := range strings.Split(string(text), "\n") {
		if !strings.HasPrefix(line, "@RG") {
			continue
		}
		var id, sample string
		for _, field := range strings.Split(line, "\t") {
			switch {
			case strings.HasPrefix(field, "ID:"):
				id = field[len("ID:"):]
			case strings.HasPrefix(field, "SM:"):
				sample = field[len("SM:"):]
			}
		}
		if id != "" {
			samples[id] = sample
		}
	}
	return samples
}

// AcceptRecord accumulates one record. Only the second read of a mapped
// pair with a nonzero inferred insert size is counted, so each pair
// contributes exactly one insert. Secondary, supplementary and (unless
// configured otherwise) duplicate records are ignored.
func (c *Collector) AcceptRecord(r *sam.Record) {
	flags := r.Flags
	if flags&sam.Paired == 0 ||
		flags&sam.Unmapped != 0 ||
		flags&sam.MateUnmapped != 0 ||
		flags&sam.Read1 != 0 ||
		flags&(sam.Secondary|sam.Supplementary) != 0 ||
		(flags&sam.Duplicate != 0 && !c.opts.IncludeDuplicates) ||
		r.TempLen == 0 {
		return
	}
	insertSize := r.TempLen
	if insertSize < 0 {
		insertSize = -insertSize
	}
	orientation := OrientationOf(r)
	readGroup := recordReadGroup(r)
	sample := c.rgSample[readGroup]
	library := c.rgLibrary[readGroup]
	for _, l := range c.levels {
		l.accept(sample, library, readGroup, insertSize, orientation)
	}
}

func recordReadGroup(r *sam.Record) string {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return ""
	}
	rg, _ := aux.Value().(string)
	return rg
}

// Merge folds the histograms of other, a collector built with the same
// options and header, into c. Both collectors must not be finished.
func (c *Collector) Merge(other *Collector) error {
	if c.finished || other.finished {
		return errors.New("insertsize: cannot merge finished collectors")
	}
	for i, l := range c.levels {
		ol := other.levels[i]
		for _, key := range ol.order {
			u := l.unit(key)
			ou := ol.units[key]
			for o := FR; o < numOrientations; o++ {
				u.histograms[o].Merge(ou.histograms[o])
			}
		}
	}
	return nil
}

// Finish freezes the collector and computes the derived statistics for
// every surviving (unit, orientation) category. It must be called
// exactly once, after the full stream has been consumed; calling it
// again is a no-op.
func (c *Collector) Finish() {
	if c.finished {
		return
	}
	c.finished = true
	for _, l := range c.levels {
		for _, key := range l.order {
			l.units[key].finish(&c.opts, &c.metrics, &c.histograms)
		}
	}
}

// Emit hands every surviving metrics record and its histogram to sink.
// Finish must have been called.
func (c *Collector) Emit(sink Sink) error {
	if !c.finished {
		return errors.New("insertsize: Emit called before Finish")
	}
	for _, m := range c.metrics {
		sink.AddMetric(m)
	}
	for _, h := range c.histograms {
		sink.AddHistogram(h)
	}
	return nil
}
