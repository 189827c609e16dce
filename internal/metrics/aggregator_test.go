package metrics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSample(name string, rt int64, success bool) Sample {
	return Sample{Name: name, ResponseTime: rt, Success: success}
}

func synSample(name string, rt, offset int64) Sample {
	return Sample{Name: name, ResponseTime: rt, Success: true, CoordinatedOmissionElapsed: offset}
}

func findRow(t *testing.T, snap *Snapshot, name string) Row {
	t.Helper()
	for _, row := range snap.Rows {
		if row.Name == name {
			return row
		}
	}
	t.Fatalf("row %q not found", name)
	return Row{}
}

func TestRawSamplesAppearInBothHistograms(t *testing.T) {
	a := NewAggregator()
	a.Record(rawSample("GET /", 100, true), RawAndAdjusted)
	a.Record(rawSample("GET /", 200, true), RawAndAdjusted)

	row := findRow(t, a.Snapshot(), "GET /")
	assert.Equal(t, int64(2), row.Raw.Count)
	assert.Equal(t, int64(2), row.Adjusted.Count)
}

func TestSyntheticsAppearInAdjustedOnly(t *testing.T) {
	a := NewAggregator()
	a.Record(rawSample("GET /", 100, true), RawAndAdjusted)
	a.Record(rawSample("GET /", 2100, true), RawAndAdjusted)
	for _, rt := range []int64{1600, 1100, 600} {
		a.Record(synSample("GET /", rt, 10000), AdjustedOnly)
	}

	snap := a.Snapshot()
	row := findRow(t, snap, "GET /")
	assert.Equal(t, int64(2), row.Raw.Count)
	assert.Equal(t, int64(5), row.Adjusted.Count)
	assert.True(t, snap.HasAdjusted)

	// Back-fill never introduces values below the raw minimum, and the
	// largest value is always the real one.
	assert.GreaterOrEqual(t, row.Adjusted.Min, row.Raw.Min)
	assert.Equal(t, row.Raw.Max, row.Adjusted.Max)
}

func TestDisabledModeCountsMatch(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 50; i++ {
		a.Record(rawSample("GET /", int64(10+i), true), RawAndAdjusted)
	}

	snap := a.Snapshot()
	row := findRow(t, snap, "GET /")
	assert.Equal(t, row.Raw.Count, row.Adjusted.Count)
	assert.False(t, snap.HasAdjusted)
	assert.Equal(t, row.Raw.Avg, row.Adjusted.Avg)
}

func TestAggregatedRowIsWeightedMean(t *testing.T) {
	a := NewAggregator()
	// 3 samples averaging 100 and 1 sample of 500: weighted mean 200.
	for _, rt := range []int64{90, 100, 110} {
		a.Record(rawSample("GET /fast", rt, true), RawAndAdjusted)
	}
	a.Record(rawSample("GET /slow", 500, true), RawAndAdjusted)

	snap := a.Snapshot()
	fast := findRow(t, snap, "GET /fast")
	slow := findRow(t, snap, "GET /slow")
	want := (fast.Raw.Avg*float64(fast.Raw.Count) + slow.Raw.Avg*float64(slow.Raw.Count)) /
		float64(fast.Raw.Count+slow.Raw.Count)
	assert.InDelta(t, want, snap.Aggregated.Raw.Avg, 1e-9)
	assert.Equal(t, int64(4), snap.Aggregated.Raw.Count)
}

func TestStdDevColumn(t *testing.T) {
	a := NewAggregator()
	a.Record(rawSample("GET /", 80, true), RawAndAdjusted)
	for _, rt := range []int64{3000, 2500, 2000, 1500, 1000, 500} {
		a.Record(synSample("GET /", rt, 9000), AdjustedOnly)
	}

	// Raw mean is 80; adjusted samples are {80, 3000, 2500, 2000, 1500,
	// 1000, 500}.
	var sumSq float64
	for _, v := range []int64{80, 3000, 2500, 2000, 1500, 1000, 500} {
		d := float64(v) - 80
		sumSq += d * d
	}
	want := sumSq / 7

	row := findRow(t, a.Snapshot(), "GET /")
	assert.InDelta(t, want, row.StdDev*row.StdDev, 1e-6)
}

func TestRequestAndFailureCounters(t *testing.T) {
	a := NewAggregator()
	a.Record(rawSample("GET /", 10, true), RawAndAdjusted)
	a.Record(rawSample("GET /", 20, false), RawAndAdjusted)
	a.Record(synSample("GET /", 15, 100), AdjustedOnly)

	assert.Equal(t, int64(2), a.Requests(), "synthetics are not issued requests")
	assert.Equal(t, int64(1), a.Failures())
}

func TestSnapshotRowsSorted(t *testing.T) {
	a := NewAggregator()
	for _, name := range []string{"c", "a", "b"} {
		a.Record(rawSample(name, 10, true), RawAndAdjusted)
	}
	snap := a.Snapshot()
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, "a", snap.Rows[0].Name)
	assert.Equal(t, "b", snap.Rows[1].Name)
	assert.Equal(t, "c", snap.Rows[2].Name)
	assert.Equal(t, AggregatedName, snap.Aggregated.Name)
}

func TestConcurrentRecord(t *testing.T) {
	a := NewAggregator()
	const (
		workers = 8
		each    = 500
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("GET /%d", w%4)
			for i := 0; i < each; i++ {
				a.Record(rawSample(name, int64(1+i%100), true), RawAndAdjusted)
			}
		}(w)
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.Equal(t, int64(workers*each), snap.Aggregated.Raw.Count)
	assert.Equal(t, int64(workers*each), a.Requests())
}

func TestPercentileOrderingAfterBackfill(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 99; i++ {
		a.Record(rawSample("GET /", 100, true), RawAndAdjusted)
	}
	a.Record(rawSample("GET /", 3000, true), RawAndAdjusted)
	// Back-fill shifts mass into the tail; adjusted percentiles can only
	// move up.
	for _, rt := range []int64{2900, 2800, 2700, 2600, 2500, 2400, 2300, 2200} {
		a.Record(synSample("GET /", rt, 5000), AdjustedOnly)
	}

	row := findRow(t, a.Snapshot(), "GET /")
	for i := range row.Raw.Percentiles {
		assert.GreaterOrEqual(t, row.Adjusted.Percentiles[i], row.Raw.Percentiles[i])
	}
	assert.GreaterOrEqual(t, row.Adjusted.Percentiles[1], row.Raw.Percentiles[1], "adjusted p75 >= raw p75")
}
