package downsample

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("E00489:44:H2GVYCCXY:6:2102:%d:%d", 1000+i, 70000+i)
	}
	return names
}

func TestDeciderProbabilityBounds(t *testing.T) {
	for _, strategy := range []Strategy{ConstantMemory, HighAccuracy, Chained} {
		_, err := NewDecider(strategy, -0.1, 0.0001, 1)
		assert.Error(t, err, "strategy %s", strategy)
		_, err = NewDecider(strategy, 1.1, 0.0001, 1)
		assert.Error(t, err, "strategy %s", strategy)
	}
	_, err := NewDecider("bogus", 0.5, 0.0001, 1)
	assert.Error(t, err)
}

func TestDeciderAllOrNothing(t *testing.T) {
	names := templateNames(1000)
	for _, strategy := range []Strategy{ConstantMemory, HighAccuracy, Chained} {
		keepAll, err := NewDecider(strategy, 1.0, 0.0001, 1)
		require.NoError(t, err)
		keepNone, err := NewDecider(strategy, 0.0, 0.0001, 1)
		require.NoError(t, err)
		for _, name := range names {
			assert.True(t, keepAll.Decide(name), "strategy %s", strategy)
			assert.False(t, keepNone.Decide(name), "strategy %s", strategy)
		}
		assert.Equal(t, int64(1000), keepAll.SeenCount())
		assert.Equal(t, int64(1000), keepAll.AcceptedCount())
		assert.Equal(t, 1.0, AcceptedFraction(keepAll))
		assert.Equal(t, int64(0), keepNone.AcceptedCount())
		assert.Equal(t, 0.0, AcceptedFraction(keepNone))
	}
}

func TestDeciderStableWithinRun(t *testing.T) {
	names := templateNames(500)
	for _, strategy := range []Strategy{ConstantMemory, HighAccuracy, Chained} {
		d, err := NewDecider(strategy, 0.5, 0.0001, 7)
		require.NoError(t, err)
		first := make(map[string]bool)
		for _, name := range names {
			first[name] = d.Decide(name)
		}
		// Later records of the same template (mates, repeats) must get
		// the identical verdict.
		for _, name := range names {
			assert.Equal(t, first[name], d.Decide(name), "strategy %s name %s", strategy, name)
		}
	}
}

func TestDeciderReproducibleAcrossRuns(t *testing.T) {
	names := templateNames(500)
	for _, strategy := range []Strategy{ConstantMemory, HighAccuracy, Chained} {
		a, err := NewDecider(strategy, 0.3, 0.0001, 99)
		require.NoError(t, err)
		b, err := NewDecider(strategy, 0.3, 0.0001, 99)
		require.NoError(t, err)
		for _, name := range names {
			assert.Equal(t, a.Decide(name), b.Decide(name), "strategy %s name %s", strategy, name)
		}
		assert.Equal(t, a.AcceptedCount(), b.AcceptedCount())
	}
}

func TestDeciderSeedChangesSelection(t *testing.T) {
	names := templateNames(2000)
	a, err := NewDecider(ConstantMemory, 0.5, 0, 1)
	require.NoError(t, err)
	b, err := NewDecider(ConstantMemory, 0.5, 0, 2)
	require.NoError(t, err)
	differ := 0
	for _, name := range names {
		if a.Decide(name) != b.Decide(name) {
			differ++
		}
	}
	assert.True(t, differ > 0, "different seeds should select different templates")
}

func TestConstantMemoryFraction(t *testing.T) {
	names := templateNames(20000)
	for _, p := range []float64{0.1, 0.5, 0.9} {
		d, err := NewDecider(ConstantMemory, p, 0, 1)
		require.NoError(t, err)
		for _, name := range names {
			d.Decide(name)
		}
		assert.InDelta(t, p, AcceptedFraction(d), 0.02, "p=%v", p)
	}
}

func TestHighAccuracyConvergence(t *testing.T) {
	names := templateNames(20000)
	d, err := NewDecider(HighAccuracy, 0.25, 0.001, 1)
	require.NoError(t, err)
	for _, name := range names {
		d.Decide(name)
	}
	// The adaptive threshold should hold the realized fraction much
	// tighter than the raw hash would.
	assert.InDelta(t, 0.25, AcceptedFraction(d), 0.005)
}

func TestChainedFraction(t *testing.T) {
	names := templateNames(20000)
	d, err := NewDecider(Chained, 0.01, 0.001, 1)
	require.NoError(t, err)
	for _, name := range names {
		d.Decide(name)
	}
	assert.InDelta(t, 0.01, AcceptedFraction(d), 0.005)
}

func TestUnitFloat(t *testing.T) {
	assert.Equal(t, 0.0, unitFloat(0))
	v := unitFloat(^uint64(0))
	assert.True(t, v < 1.0 && v > 0.999999)
}
