package downsample

import (
	"encoding/binary"
	"fmt"
	"math"

	"blainsmith.com/go/seahash"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/unsafe"
)

// Strategy names a downsampling implementation.
type Strategy string

const (
	// ConstantMemory decides each template from a hash of its name, in
	// constant memory. Per-template determinism is exact; the realized
	// global fraction is approximate, noticeably so for very small
	// probabilities.
	ConstantMemory Strategy = "constant-memory"
	// HighAccuracy caches per-template verdicts and adapts its admission
	// threshold so the realized fraction converges toward the target, at
	// the cost of memory proportional to the number of templates seen.
	HighAccuracy Strategy = "high-accuracy"
	// Chained runs a constant-memory pass at a coarser probability to
	// bound the state the high-accuracy stage must hold, then lets the
	// high-accuracy stage pick the final fraction from the survivors.
	Chained Strategy = "chained"
)

// A Decider chooses, once per template, whether the records bearing that
// template name are kept or dropped. Implementations are deterministic
// for a fixed seed: the same name always receives the same verdict
// within a run, and re-running over the same input in the same order
// reproduces the verdicts exactly.
type Decider interface {
	// Decide returns the verdict for the template name. Call it once per
	// eligible record; it maintains the seen and accepted totals.
	Decide(name string) bool
	// SeenCount returns the number of eligible records examined.
	SeenCount() int64
	// AcceptedCount returns the number of eligible records retained.
	AcceptedCount() int64
}

// AcceptedFraction returns the fraction of eligible records d retained,
// or 0 before any record was seen.
func AcceptedFraction(d Decider) float64 {
	if d.SeenCount() == 0 {
		return 0
	}
	return float64(d.AcceptedCount()) / float64(d.SeenCount())
}

// NewDecider creates a decider retaining templates with the given
// probability. Accuracy is a hint honored by the strategies that buffer
// state; the constant-memory strategy ignores it.
func NewDecider(strategy Strategy, probability, accuracy float64, seed uint64) (Decider, error) {
	if probability < 0 || probability > 1 {
		return nil, fmt.Errorf("downsample: probability %v is not between 0 and 1", probability)
	}
	switch strategy {
	case "", ConstantMemory:
		return &constantMemoryDecider{probability: probability, seed: seed}, nil
	case HighAccuracy:
		return newHighAccuracyDecider(probability, accuracy, seed), nil
	case Chained:
		// The first stage keeps roughly chainFanout times the target
		// fraction so the second stage's verdict cache stays small.
		first := math.Min(1, probability*chainFanout)
		second := 0.0
		if first > 0 {
			second = probability / first
		}
		return &chainedDecider{
			first:  &constantMemoryDecider{probability: first, seed: seed},
			second: newHighAccuracyDecider(second, accuracy, seed),
		}, nil
	}
	return nil, fmt.Errorf("downsample: unknown strategy %q", strategy)
}

const chainFanout = 100

type counters struct {
	seen     int64
	accepted int64
}

func (c *counters) SeenCount() int64     { return c.seen }
func (c *counters) AcceptedCount() int64 { return c.accepted }

// unitFloat maps a 64-bit hash to a uniform value in [0, 1).
func unitFloat(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

type constantMemoryDecider struct {
	counters
	probability float64
	seed        uint64
}

// Decide maps the template name through a seeded hash to a uniform value
// in [0, 1) and keeps the template when the value falls under the target
// probability. The verdict is a pure function of (seed, name), so every
// record of a template agrees without any cached state.
func (d *constantMemoryDecider) Decide(name string) bool {
	d.seen++
	keep := unitFloat(farm.Hash64WithSeed(unsafe.StringToBytes(name), d.seed)) < d.probability
	if keep {
		d.accepted++
	}
	return keep
}

type highAccuracyDecider struct {
	counters
	probability float64
	accuracy    float64
	seedBytes   [8]byte

	verdicts  map[string]bool
	templates int64 // templates decided so far
	kept      int64 // templates kept so far
}

func newHighAccuracyDecider(probability, accuracy float64, seed uint64) *highAccuracyDecider {
	d := &highAccuracyDecider{
		probability: probability,
		accuracy:    accuracy,
		verdicts:    make(map[string]bool),
	}
	binary.LittleEndian.PutUint64(d.seedBytes[:], seed)
	return d
}

// Decide scores new templates against an adaptive threshold and caches
// the verdict, so a template's later records repeat its first verdict
// even after the threshold has moved.
func (d *highAccuracyDecider) Decide(name string) bool {
	d.seen++
	keep, decided := d.verdicts[name]
	if !decided {
		keep = d.score(name) < d.threshold()
		d.verdicts[name] = keep
		d.templates++
		if keep {
			d.kept++
		}
	}
	if keep {
		d.accepted++
	}
	return keep
}

// score derives the template's pseudorandom value from a seeded seahash
// of its name. Independent from the farmhash used by the constant-memory
// stage, so chaining the two does not correlate their draws.
func (d *highAccuracyDecider) score(name string) float64 {
	h := seahash.New()
	h.Write(d.seedBytes[:])
	h.Write(unsafe.StringToBytes(name))
	return unitFloat(h.Sum64())
}

// threshold returns the admission probability for the next undecided
// template. While the kept fraction of templates tracks the target
// within the accuracy bound the threshold stays at the target; once it
// drifts out, the threshold moves to cancel the accumulated error.
func (d *highAccuracyDecider) threshold() float64 {
	if d.templates == 0 {
		return d.probability
	}
	drift := float64(d.kept)/float64(d.templates) - d.probability
	if math.Abs(drift) <= d.accuracy {
		return d.probability
	}
	t := d.probability*float64(d.templates+1) - float64(d.kept)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

type chainedDecider struct {
	counters
	first  Decider
	second Decider
}

// Decide consults the second stage only for templates the first stage
// keeps. Both stages are deterministic per name, so a template either
// always short-circuits at the first stage or is always scored by both,
// and its verdict is stable.
func (d *chainedDecider) Decide(name string) bool {
	d.seen++
	keep := d.first.Decide(name) && d.second.Decide(name)
	if keep {
		d.accepted++
	}
	return keep
}
