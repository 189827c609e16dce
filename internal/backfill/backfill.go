// Package backfill synthesizes the latency samples a virtual user would
// have produced while it was stalled behind one abnormally slow request.
// Generation is a pure function of the real sample and the cadence, so a
// recorded run replays byte-identically.
package backfill

import (
	"github.com/BegleyBrothers/swanling/internal/metrics"
)

// Count returns how many synthetics Generate will produce for a real
// response time t under cadence c. The synthetic response times descend
// from t-c in steps of c and must stay strictly above c.
func Count(t, c int64) int64 {
	if c <= 0 || t <= c {
		return 0
	}
	return (t - c - 1) / c
}

// Generate expands one slow real sample into its synthetic back-fill
// samples. The real sample itself is the k=0 term and is not duplicated
// here; synthetic k carries response_time = t - k*c and a
// coordinated_omission_elapsed shifted k*c before the real dispatch.
// The caller records the result into the adjusted histogram only.
func Generate(s metrics.Sample, cadenceMs int64) []metrics.Sample {
	n := Count(s.ResponseTime, cadenceMs)
	if n == 0 {
		return nil
	}

	out := make([]metrics.Sample, 0, n)
	for k := int64(1); k <= n; k++ {
		syn := s
		syn.ResponseTime = s.ResponseTime - k*cadenceMs
		co := s.Elapsed - k*cadenceMs
		if co < 1 {
			// The shifted dispatch moment cannot precede the start of the
			// test; keep the marker that distinguishes synthetics from
			// raw samples.
			co = 1
		}
		syn.CoordinatedOmissionElapsed = co
		out = append(out, syn)
	}
	return out
}
