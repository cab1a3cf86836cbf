package insertsize

/**
* MIT License
*
* Copyright (c) 2009 The Broad Institute
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

import (
	"fmt"
	"strconv"
	"strings"
)

// numWidths is the number of percentile-width columns reported per
// category.
const numWidths = 10

// percentileThresholds lists the covered-mass fractions at which a
// percentile width is latched, in reporting order.
var percentileThresholds = [numWidths]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.99}

// Metrics summarizes the insert-size distribution of one (aggregation
// unit, orientation) category. Field meanings match the columns of the
// Picard CollectInsertSizeMetrics output.
type Metrics struct {
	// Sample, Library and ReadGroup identify the aggregation unit. An
	// empty field means the metrics were accumulated above that level;
	// all three empty means all reads in the input.
	Sample    string
	Library   string
	ReadGroup string

	// Orientation is the pair orientation of this data category.
	Orientation Orientation

	// MedianInsertSize is the median insert size of all examined pairs.
	MedianInsertSize float64
	// MedianAbsoluteDeviation is a robust spread estimate; for a roughly
	// normal distribution the standard deviation is ~1.4826 * MAD.
	MedianAbsoluteDeviation float64
	// MinInsertSize and MaxInsertSize are the extremes actually
	// observed, before any trimming.
	MinInsertSize int
	MaxInsertSize int
	// MeanInsertSize and StandardDeviation describe the core of the
	// distribution after trimming away outlier mass; untrimmed values
	// are grossly misleading on real libraries because of chimeras and
	// other artifacts.
	MeanInsertSize    float64
	StandardDeviation float64
	// ReadPairs is the number of pairs examined for this category.
	ReadPairs int64

	// Widths[i] is the size of the smallest symmetric window around the
	// median that covers at least percentileThresholds[i] of all pairs.
	Widths [numWidths]int
}

// WidthToTrimTo returns the histogram trim width derived from the median
// and MAD. Meaningful only after the derived fields are computed.
func (m *Metrics) WidthToTrimTo(deviations float64) int {
	return int(m.MedianInsertSize + deviations*m.MedianAbsoluteDeviation)
}

// calculateDerivedFields fills in the statistics fields from h, which
// must be untrimmed. ReadPairs must be set beforehand. When
// explicitWidth is positive the histogram is trimmed to that width
// around the median before the mean and standard deviation are computed;
// otherwise the width comes from WidthToTrimTo(deviations). Trimming is
// destructive, so h is unusable for further statistics afterward.
func (m *Metrics) calculateDerivedFields(h *Histogram, explicitWidth int, deviations float64) {
	if !h.Empty() {
		m.MinInsertSize = h.Min()
		m.MaxInsertSize = h.Max()
		m.MedianInsertSize = h.Median()
		m.MedianAbsoluteDeviation = h.MedianAbsoluteDeviation()

		// Expand a window symmetrically from the median, one unit per
		// side per step, latching each percentile width the first time
		// its threshold is covered. The median bin is counted once, not
		// twice, while low == high.
		var covered int64
		low, high := m.MedianInsertSize, m.MedianInsertSize
		for low >= float64(m.MinInsertSize) || high <= float64(m.MaxInsertSize) {
			covered += h.Count(int(low))
			if low != high {
				covered += h.Count(int(high))
			}
			if m.ReadPairs > 0 {
				fraction := float64(covered) / float64(m.ReadPairs)
				distance := int(high-low) + 1
				for i, threshold := range percentileThresholds {
					if fraction >= threshold && m.Widths[i] == 0 {
						m.Widths[i] = distance
					}
				}
			}
			low--
			high++
		}
	}

	width := explicitWidth
	if width <= 0 {
		width = m.WidthToTrimTo(deviations)
	}
	h.TrimByWidth(width)

	if !h.Empty() {
		m.MeanInsertSize = h.Mean()
		m.StandardDeviation = h.StandardDeviation()
	}
}

// MetricsColumns is the header row matching Metrics.String.
const MetricsColumns = "MEDIAN_INSERT_SIZE\tMEDIAN_ABSOLUTE_DEVIATION\t" +
	"MIN_INSERT_SIZE\tMAX_INSERT_SIZE\tMEAN_INSERT_SIZE\tSTANDARD_DEVIATION\t" +
	"READ_PAIRS\tPAIR_ORIENTATION\t" +
	"WIDTH_OF_10_PERCENT\tWIDTH_OF_20_PERCENT\tWIDTH_OF_30_PERCENT\t" +
	"WIDTH_OF_40_PERCENT\tWIDTH_OF_50_PERCENT\tWIDTH_OF_60_PERCENT\t" +
	"WIDTH_OF_70_PERCENT\tWIDTH_OF_80_PERCENT\tWIDTH_OF_90_PERCENT\t" +
	"WIDTH_OF_99_PERCENT\tSAMPLE\tLIBRARY\tREAD_GROUP"

// String returns a tab-separated row of the metrics, in the column order
// of MetricsColumns. The string can be used as metrics file output.
func (m *Metrics) String() string {
	fields := []string{
		formatFloat(m.MedianInsertSize),
		formatFloat(m.MedianAbsoluteDeviation),
		strconv.Itoa(m.MinInsertSize),
		strconv.Itoa(m.MaxInsertSize),
		formatFloat(m.MeanInsertSize),
		formatFloat(m.StandardDeviation),
		strconv.FormatInt(m.ReadPairs, 10),
		m.Orientation.String(),
	}
	for _, w := range m.Widths {
		fields = append(fields, strconv.Itoa(w))
	}
	fields = append(fields, m.Sample, m.Library, m.ReadGroup)
	return strings.Join(fields, "\t")
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
