package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Histograms track 1 ms up to one hour. Values beyond the upper bound
	// are clamped and counted as overflow.
	minTrackableMs = 1
	maxTrackableMs = int64(time.Hour / time.Millisecond)
)

// Histogram is a thread-safe latency histogram in integer milliseconds.
// Beside the hdrhistogram buckets it keeps exact running moments (count,
// sum, sum of squares, min, max) so averages and the cross-distribution
// standard deviation are not subject to bucket resolution.
type Histogram struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	count    int64
	sum      int64
	sumSq    float64
	min      int64
	max      int64
	overflow int64
}

func NewHistogram() *Histogram {
	// 3 significant figures keeps bucket error well under the 5% contract.
	return &Histogram{
		hist: hdrhistogram.New(minTrackableMs, maxTrackableMs, 3),
	}
}

// Record inserts one latency value. Values above the trackable maximum are
// clamped into the top bucket and tallied in Overflow.
func (h *Histogram) Record(v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recordLocked(v)
}

func (h *Histogram) recordLocked(v int64) {
	if v < 0 {
		v = 0
	}
	if v > maxTrackableMs {
		v = maxTrackableMs
		h.overflow++
	}
	// The hdr histogram cannot represent values below its lowest bucket;
	// the exact moments below keep the true value either way.
	bucketed := v
	if bucketed < minTrackableMs {
		bucketed = minTrackableMs
	}
	h.hist.RecordValue(bucketed)

	if h.count == 0 || v < h.min {
		h.min = v
	}
	if v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
	h.sumSq += float64(v) * float64(v)
}

func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) Overflow() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overflow
}

// Mean returns the exact average of recorded values, 0 when empty.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

func (h *Histogram) Min() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.min
}

func (h *Histogram) Max() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.max
}

// Percentile returns the value at quantile p, where p is a fraction in
// (0, 1], e.g. 0.999 for the 99.9th percentile.
func (h *Histogram) Percentile(p float64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.hist.ValueAtQuantile(p * 100)
}

// DeviationFrom returns the RMS deviation of the recorded values from an
// externally supplied mean: sqrt(mean((x - from)^2)). With from equal to
// this histogram's own mean it is the population standard deviation.
func (h *Histogram) DeviationFrom(from float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	n := float64(h.count)
	variance := (h.sumSq - 2*from*float64(h.sum) + n*from*from) / n
	if variance < 0 {
		// Guard against float cancellation on near-zero variance.
		variance = 0
	}
	return math.Sqrt(variance)
}

// Merge folds other into h. Used at snapshot time to build the Aggregated
// row; other keeps recording independently.
func (h *Histogram) Merge(other *Histogram) {
	other.mu.Lock()
	defer other.mu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if other.count == 0 {
		return
	}
	h.hist.Merge(other.hist)
	if h.count == 0 || other.min < h.min {
		h.min = other.min
	}
	if other.max > h.max {
		h.max = other.max
	}
	h.count += other.count
	h.sum += other.sum
	h.sumSq += other.sumSq
	h.overflow += other.overflow
}
