package insertsize

import (
	"math"
	"sort"
)

// Histogram is a frequency count of non-negative integer insert sizes.
// It is mutated by a single goroutine while records stream in, then
// frozen and summarized once the stream ends. Use NewHistogram to create
// instances.
type Histogram struct {
	// Label identifies the histogram in metrics output, for example
	// "All_Reads.fr_count".
	Label string

	counts map[int]int64
	total  int64
}

// NewHistogram returns an empty histogram with the given output label.
func NewHistogram(label string) *Histogram {
	return &Histogram{
		Label:  label,
		counts: make(map[int]int64),
	}
}

// Increment adds one occurrence of value.
func (h *Histogram) Increment(value int) {
	h.counts[value]++
	h.total++
}

// Add adds count occurrences of value.
func (h *Histogram) Add(value int, count int64) {
	if count == 0 {
		return
	}
	h.counts[value] += count
	h.total += count
}

// Merge adds all of other's counts into h. Used to combine per-shard
// partial histograms after a parallel scan.
func (h *Histogram) Merge(other *Histogram) {
	for v, c := range other.counts {
		h.counts[v] += c
	}
	h.total += other.total
}

// Count returns the number of occurrences of value.
func (h *Histogram) Count(value int) int64 {
	return h.counts[value]
}

// Total returns the sum of all counts.
func (h *Histogram) Total() int64 {
	return h.total
}

// Empty returns true if the histogram holds no mass.
func (h *Histogram) Empty() bool {
	return h.total == 0
}

// Min returns the smallest value with a nonzero count, or 0 if the
// histogram is empty.
func (h *Histogram) Min() int {
	min, first := 0, true
	for v := range h.counts {
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}

// Max returns the largest value with a nonzero count, or 0 if the
// histogram is empty.
func (h *Histogram) Max() int {
	max, first := 0, true
	for v := range h.counts {
		if first || v > max {
			max = v
			first = false
		}
	}
	return max
}

// Values returns the distinct values with nonzero counts in ascending
// order.
func (h *Histogram) Values() []int {
	values := make([]int, 0, len(h.counts))
	for v := range h.counts {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}

type weightedValue struct {
	value float64
	count int64
}

// medianOf returns the median of a distribution given as ascending
// (value, count) pairs. When the mass splits evenly at a bin boundary the
// median is the midpoint of the two straddling values.
func medianOf(values []weightedValue, total int64) float64 {
	if total == 0 {
		return 0
	}
	half := float64(total) / 2
	var cumulative int64
	for i, wv := range values {
		cumulative += wv.count
		c := float64(cumulative)
		if c > half {
			return wv.value
		}
		if c == half {
			return (wv.value + values[i+1].value) / 2
		}
	}
	return 0
}

func (h *Histogram) weightedValues() []weightedValue {
	values := h.Values()
	wvs := make([]weightedValue, len(values))
	for i, v := range values {
		wvs[i] = weightedValue{value: float64(v), count: h.counts[v]}
	}
	return wvs
}

// Median returns the median value, or 0 if the histogram is empty.
func (h *Histogram) Median() float64 {
	return medianOf(h.weightedValues(), h.total)
}

// MedianAbsoluteDeviation returns the median of the absolute deviations
// of all values from the median. Deviations may be fractional when the
// median falls between two bins.
func (h *Histogram) MedianAbsoluteDeviation() float64 {
	if h.total == 0 {
		return 0
	}
	median := h.Median()
	deviations := make(map[float64]int64)
	for v, c := range h.counts {
		deviations[math.Abs(float64(v)-median)] += c
	}
	wvs := make([]weightedValue, 0, len(deviations))
	for d, c := range deviations {
		wvs = append(wvs, weightedValue{value: d, count: c})
	}
	sort.Slice(wvs, func(i, j int) bool { return wvs[i].value < wvs[j].value })
	return medianOf(wvs, h.total)
}

// Mean returns the arithmetic mean, or 0 if the histogram is empty.
func (h *Histogram) Mean() float64 {
	if h.total == 0 {
		return 0
	}
	var sum float64
	for v, c := range h.counts {
		sum += float64(v) * float64(c)
	}
	return sum / float64(h.total)
}

// StandardDeviation returns the sample standard deviation, or 0 if the
// histogram holds fewer than two observations.
func (h *Histogram) StandardDeviation() float64 {
	if h.total < 2 {
		return 0
	}
	mean := h.Mean()
	var squares float64
	for v, c := range h.counts {
		squares += float64(v) * float64(v) * float64(c)
	}
	n := float64(h.total)
	variance := (squares - n*mean*mean) / (n - 1)
	if variance < 0 {
		// Cancellation can leave a tiny negative residue.
		variance = 0
	}
	return math.Sqrt(variance)
}

// TrimByWidth discards all values farther than width from the median.
// The removed mass is gone for good: call this only after statistics that
// need the full distribution have been computed.
func (h *Histogram) TrimByWidth(width int) {
	median := h.Median()
	for v, c := range h.counts {
		if math.Abs(float64(v)-median) > float64(width) {
			delete(h.counts, v)
			h.total -= c
		}
	}
}
