package stats

import (
	"fmt"
)

// TestH0Result is the outcome of one run of a sequential risk test
type TestH0Result struct {
	Status                Status           `json:"status"`
	SampleCount           int              `json:"sample_count"`
	SampleFirstUnderLimit int              `json:"sample_first_under_limit"` // 1-based, 0 if never
	PValueMin             float64          `json:"pvalue_min"`
	PValueLast            float64          `json:"pvalue_last"`
	TStatLast             float64          `json:"tstat_last"`
	SampleMean            float64          `json:"sample_mean"`
	MeasuredRates         DiscrepancyRates `json:"measured_rates"`
	MaxSampleIndexUsed    int              `json:"max_sample_index_used"`
}

// Rejected reports whether the risk limit was crossed at some point
func (r TestH0Result) Rejected() bool {
	return r.SampleFirstUnderLimit > 0
}

func (r TestH0Result) String() string {
	return fmt.Sprintf("%s samples=%d firstUnder=%d pmin=%.5g plast=%.5g",
		r.Status, r.SampleCount, r.SampleFirstUnderLimit, r.PValueMin, r.PValueLast)
}
