package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Quantiles reported by the percentile table, as fractions.
var Quantiles = []float64{0.5, 0.75, 0.98, 0.99, 0.999, 0.9999}

// AggregatedName labels the merged row in reports.
const AggregatedName = "Aggregated"

// pair is the raw/adjusted histogram pair for one request name. Every raw
// sample is recorded into both histograms; synthetics only into adjusted.
type pair struct {
	raw      *Histogram
	adjusted *Histogram
}

func newPair() *pair {
	return &pair{raw: NewHistogram(), adjusted: NewHistogram()}
}

// Aggregator collects samples from all virtual users, keyed by request
// name. The map is guarded by a read-write mutex; the histograms themselves
// carry their own locks, so concurrent records on existing names only
// contend per-name.
type Aggregator struct {
	mu    sync.RWMutex
	pairs map[string]*pair

	requests atomic.Int64
	failures atomic.Int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{pairs: make(map[string]*pair)}
}

func (a *Aggregator) pair(name string) *pair {
	a.mu.RLock()
	p, ok := a.pairs[name]
	a.mu.RUnlock()
	if ok {
		return p
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok = a.pairs[name]; ok {
		return p
	}
	p = newPair()
	a.pairs[name] = p
	return p
}

// Record inserts a sample's response time under its request name. The
// target selects raw-and-adjusted (issued request) or adjusted-only
// (back-filled synthetic).
func (a *Aggregator) Record(s Sample, target Target) {
	p := a.pair(s.Name)
	if target == RawAndAdjusted {
		p.raw.Record(s.ResponseTime)
		a.requests.Add(1)
		if !s.Success {
			a.failures.Add(1)
		}
	}
	p.adjusted.Record(s.ResponseTime)
}

// Requests returns the count of issued (raw) samples recorded so far.
func (a *Aggregator) Requests() int64 {
	return a.requests.Load()
}

// Failures returns how many issued samples were unsuccessful.
func (a *Aggregator) Failures() int64 {
	return a.failures.Load()
}

// Stats is one side (raw or adjusted) of a report row.
type Stats struct {
	Count       int64
	Avg         float64
	Min         int64
	Max         int64
	Median      int64
	Percentiles []int64
}

func statsOf(h *Histogram) Stats {
	ps := make([]int64, len(Quantiles))
	for i, q := range Quantiles {
		ps[i] = h.Percentile(q)
	}
	return Stats{
		Count:       h.Count(),
		Avg:         h.Mean(),
		Min:         h.Min(),
		Max:         h.Max(),
		Median:      h.Percentile(0.5),
		Percentiles: ps,
	}
}

// Row is the snapshot of one request name.
type Row struct {
	Name     string
	Raw      Stats
	Adjusted Stats
	// StdDev is the RMS deviation of the adjusted samples from the raw
	// mean; it fills the Min column slot in the adjusted table.
	StdDev   float64
	Overflow int64
}

// Snapshot is a point-in-time view of all rows plus the merged Aggregated
// row. Safe to read without further locking.
type Snapshot struct {
	Rows       []Row
	Aggregated Row
	// HasAdjusted is true when any back-filled sample exists anywhere,
	// which is what makes the adjusted tables worth printing.
	HasAdjusted bool
}

// Snapshot merges the per-name histograms into the Aggregated pair and
// returns the full report state. Recording may continue concurrently;
// rows are internally consistent per name.
func (a *Aggregator) Snapshot() *Snapshot {
	a.mu.RLock()
	names := make([]string, 0, len(a.pairs))
	for name := range a.pairs {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)

	agg := newPair()
	snap := &Snapshot{Rows: make([]Row, 0, len(names))}
	for _, name := range names {
		p := a.pair(name)
		rawMean := p.raw.Mean()
		row := Row{
			Name:     name,
			Raw:      statsOf(p.raw),
			Adjusted: statsOf(p.adjusted),
			StdDev:   p.adjusted.DeviationFrom(rawMean),
			Overflow: p.raw.Overflow() + p.adjusted.Overflow(),
		}
		snap.Rows = append(snap.Rows, row)
		if row.Adjusted.Count > row.Raw.Count {
			snap.HasAdjusted = true
		}
		agg.raw.Merge(p.raw)
		agg.adjusted.Merge(p.adjusted)
	}

	snap.Aggregated = Row{
		Name:     AggregatedName,
		Raw:      statsOf(agg.raw),
		Adjusted: statsOf(agg.adjusted),
		StdDev:   agg.adjusted.DeviationFrom(agg.raw.Mean()),
		Overflow: agg.raw.Overflow() + agg.adjusted.Overflow(),
	}
	return snap
}
