package downsample

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dsRef, _    = sam.NewReference("chr1", "", "", 1000000, nil, nil)
	dsHeader, _ = sam.NewHeader(nil, []*sam.Reference{dsRef})
)

func newTestRecord(name string, flags sam.Flags, pos int) *sam.Record {
	return &sam.Record{
		Name:    name,
		Ref:     dsRef,
		Pos:     pos,
		MapQ:    60,
		Flags:   flags,
		Cigar:   sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 10)},
		Seq:     sam.NewSeq([]byte("ACGTACGTAC")),
		Qual:    []byte("??????????"),
		MateRef: nil,
		MatePos: -1,
	}
}

// testPairs returns n read pairs in coordinate order, read1s first.
func testPairs(n int) []*sam.Record {
	var records []*sam.Record
	for i := 0; i < n; i++ {
		records = append(records, newTestRecord(fmt.Sprintf("pair%d", i), sam.Paired|sam.Read1, 100+10*i))
	}
	for i := 0; i < n; i++ {
		records = append(records, newTestRecord(fmt.Sprintf("pair%d", i), sam.Paired|sam.Read2, 5000+10*i))
	}
	return records
}

func writeTestBAM(t *testing.T, path string, records []*sam.Record) {
	out, err := os.Create(path)
	require.NoError(t, err)
	writer, err := bam.NewWriter(out, dsHeader, 1)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, writer.Write(rec))
	}
	require.NoError(t, writer.Close())
	require.NoError(t, out.Close())
}

func readBAMNames(t *testing.T, path string) []string {
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	reader, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	defer reader.Close()
	var names []string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, rec.Name)
	}
	return names
}

func TestDownsampleKeepAll(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	outPath := filepath.Join(tempDir, "out.bam")

	records := testPairs(10)
	records = append(records,
		newTestRecord("pair0", sam.Paired|sam.Read1|sam.Secondary, 9000),
		newTestRecord("pair1", sam.Paired|sam.Read2|sam.Supplementary, 9100))
	writeTestBAM(t, bamPath, records)

	ctx := vcontext.Background()
	decider, err := Downsample(ctx, &Opts{
		BAMFile:     bamPath,
		OutputPath:  outPath,
		Probability: 1.0,
	})
	require.NoError(t, err)

	// Secondary and supplementary records never reach the decider.
	assert.Equal(t, int64(20), decider.SeenCount())
	assert.Equal(t, int64(20), decider.AcceptedCount())
	assert.Equal(t, 20, len(readBAMNames(t, outPath)))
}

func TestDownsampleKeepNone(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	outPath := filepath.Join(tempDir, "out.bam")
	writeTestBAM(t, bamPath, testPairs(10))

	ctx := vcontext.Background()
	decider, err := Downsample(ctx, &Opts{
		BAMFile:     bamPath,
		OutputPath:  outPath,
		Probability: 0.0,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20), decider.SeenCount())
	assert.Equal(t, int64(0), decider.AcceptedCount())
	assert.Empty(t, readBAMNames(t, outPath))
}

func TestDownsampleMateConsistency(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	writeTestBAM(t, bamPath, testPairs(200))

	ctx := vcontext.Background()
	for _, strategy := range []Strategy{ConstantMemory, HighAccuracy, Chained} {
		outPath := filepath.Join(tempDir, string(strategy)+".bam")
		seed := int64(3)
		decider, err := Downsample(ctx, &Opts{
			BAMFile:     bamPath,
			OutputPath:  outPath,
			Strategy:    strategy,
			Probability: 0.5,
			Seed:        &seed,
			Accuracy:    0.01,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(400), decider.SeenCount())
		assert.True(t, decider.AcceptedCount() > 0 && decider.AcceptedCount() < 400,
			"strategy %s kept %d", strategy, decider.AcceptedCount())

		// Both mates of a kept template must survive together.
		seen := make(map[string]int)
		for _, name := range readBAMNames(t, outPath) {
			seen[name]++
		}
		for name, n := range seen {
			assert.Equal(t, 2, n, "strategy %s template %s", strategy, name)
		}
	}
}

func TestDownsampleReproducible(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	writeTestBAM(t, bamPath, testPairs(100))

	ctx := vcontext.Background()
	run := func(out string) []string {
		// Seed left nil: the default must give the same selection
		// every run.
		_, err := Downsample(ctx, &Opts{
			BAMFile:     bamPath,
			OutputPath:  filepath.Join(tempDir, out),
			Probability: 0.5,
		})
		require.NoError(t, err)
		return readBAMNames(t, filepath.Join(tempDir, out))
	}
	assert.Equal(t, run("a.bam"), run("b.bam"))
}

func TestDownsampleNumReads(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	outPath := filepath.Join(tempDir, "out.bam")
	writeTestBAM(t, bamPath, testPairs(500))

	// No index next to the BAM, so the count falls back to a scan.
	ctx := vcontext.Background()
	decider, err := Downsample(ctx, &Opts{
		BAMFile:     bamPath,
		OutputPath:  outPath,
		Probability: 1.0,
		NumReads:    100,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100, decider.AcceptedCount(), 40)
}

func TestDownsampleNumReadsExceedsInput(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	outPath := filepath.Join(tempDir, "out.bam")
	writeTestBAM(t, bamPath, testPairs(10))

	ctx := vcontext.Background()
	decider, err := Downsample(ctx, &Opts{
		BAMFile:     bamPath,
		OutputPath:  outPath,
		Probability: 1.0,
		NumReads:    10000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), decider.AcceptedCount())
}

func TestDownsampleOptValidation(t *testing.T) {
	ctx := vcontext.Background()
	_, err := Downsample(ctx, &Opts{Probability: 1.5})
	assert.Error(t, err)
	_, err = Downsample(ctx, &Opts{Probability: 0.5, NumReads: 100})
	assert.Error(t, err)
}

func TestCountEligibleRecords(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := filepath.Join(tempDir, "in.bam")
	records := testPairs(7)
	records = append(records, newTestRecord("pair0", sam.Paired|sam.Read1|sam.Secondary, 9000))
	writeTestBAM(t, bamPath, records)

	ctx := vcontext.Background()
	n, err := countEligibleRecords(ctx, bamPath, "")
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
}
