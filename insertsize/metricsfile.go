package insertsize

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// MetricsFile is a Sink that renders the collected metrics and
// histograms as a two-section tab-separated file, in the column layout
// of a Picard insert_size_metrics file.
type MetricsFile struct {
	metrics    []*Metrics
	histograms []*Histogram
}

// AddMetric implements Sink.
func (f *MetricsFile) AddMetric(m *Metrics) {
	f.metrics = append(f.metrics, m)
}

// AddHistogram implements Sink.
func (f *MetricsFile) AddHistogram(h *Histogram) {
	f.histograms = append(f.histograms, h)
}

// WriteTo writes the metrics section followed by the histogram section.
func (f *MetricsFile) WriteTo(w io.Writer) error {
	var buf strings.Builder
	buf.WriteString("# bio-insert-size\n" + MetricsColumns + "\n")
	for _, m := range f.metrics {
		buf.WriteString(m.String() + "\n")
	}
	buf.WriteString("\n## HISTOGRAM\nlabel\tinsert_size\tcount\n")
	for _, h := range f.histograms {
		for _, v := range h.Values() {
			fmt.Fprintf(&buf, "%s\t%d\t%d\n", h.Label, v, h.Count(v))
		}
	}
	_, err := io.WriteString(w, buf.String())
	return err
}

// Write stores the file at path, gzip-compressed when path ends in .gz.
func (f *MetricsFile) Write(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "Couldn't create metrics file:", path)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = err2
		}
	}()

	var w io.Writer = out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		if err = f.WriteTo(gz); err != nil {
			return errors.E(err, "error writing to metrics file:", path)
		}
		return gz.Close()
	}
	if err = f.WriteTo(w); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	return nil
}
