/*
Package insertsize accumulates insert-size distribution statistics from
aligned read pairs. Records stream into per-orientation frequency
histograms, maintained independently at each configured aggregation
level (all reads, sample, library, read group). After the stream ends,
each surviving (unit, orientation) category is summarized into a metrics
record: min, max, median, median absolute deviation, percentile widths
around the median, and mean and standard deviation of the distribution
core after outlier mass is trimmed away.
*/
package insertsize
