package estimate

import (
	"fmt"
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"gorla/domain/stats"
)

// RunRepeatedResult aggregates the trials of one Monte Carlo estimate
type RunRepeatedResult struct {
	NTrials      int                  `json:"ntrials"`
	N            int                  `json:"n"`
	SampleCounts []int                `json:"sample_counts"` // samples needed by each successful trial
	StatusCounts map[stats.Status]int `json:"status_counts"`
}

func newRunRepeatedResult(ntrials, n int) *RunRepeatedResult {
	return &RunRepeatedResult{
		NTrials:      ntrials,
		N:            n,
		SampleCounts: make([]int, 0, ntrials),
		StatusCounts: make(map[stats.Status]int),
	}
}

func (r *RunRepeatedResult) add(result stats.TestH0Result) {
	r.StatusCounts[result.Status]++
	if result.Status.Success() {
		r.SampleCounts = append(r.SampleCounts, result.SampleFirstUnderLimit)
	}
}

// Successes is the number of trials that rejected the null
func (r RunRepeatedResult) Successes() int { return len(r.SampleCounts) }

// SuccessRate is the fraction of trials that rejected the null
func (r RunRepeatedResult) SuccessRate() float64 {
	if r.NTrials == 0 {
		return 0
	}
	return float64(r.Successes()) / float64(r.NTrials)
}

func (r RunRepeatedResult) data() mstats.Float64Data {
	return mstats.LoadRawData(r.SampleCounts)
}

// Mean is the mean number of samples needed among successful trials
func (r RunRepeatedResult) Mean() float64 {
	mean, err := mstats.Mean(r.data())
	if err != nil {
		return 0
	}
	return mean
}

// Variance is the population variance of samples needed among successful trials
func (r RunRepeatedResult) Variance() float64 {
	v, err := mstats.Variance(r.data())
	if err != nil {
		return 0
	}
	return v
}

// Percentile is the p-th percentile (0-100) of samples needed among successes
func (r RunRepeatedResult) Percentile(p float64) float64 {
	v, err := mstats.Percentile(r.data(), p)
	if err != nil {
		return 0
	}
	return v
}

// Quantile is the empirical q-quantile of samples needed among successes,
// rounded up to a whole sample. It is 0 when no trial succeeded.
func (r RunRepeatedResult) Quantile(q float64) int {
	if len(r.SampleCounts) == 0 {
		return 0
	}
	sorted := make([]float64, len(r.SampleCounts))
	for i, c := range r.SampleCounts {
		sorted[i] = float64(c)
	}
	sort.Float64s(sorted)
	return int(math.Ceil(stat.Quantile(q, stat.Empirical, sorted, nil)))
}

// Deciles counts successful trials by samples needed as a percentage of N:
// bucket k holds trials needing more than 10k% and at most 10(k+1)%.
func (r RunRepeatedResult) Deciles() [10]int {
	var hist [10]int
	if r.N <= 0 {
		return hist
	}
	for _, c := range r.SampleCounts {
		pct := 100 * float64(c) / float64(r.N)
		k := int(math.Ceil(pct/10)) - 1
		if k < 0 {
			k = 0
		}
		if k > 9 {
			k = 9
		}
		hist[k]++
	}
	return hist
}

func (r RunRepeatedResult) String() string {
	return fmt.Sprintf("trials=%d success=%.3f mean=%.1f sd=%.1f deciles=%v",
		r.NTrials, r.SuccessRate(), r.Mean(), math.Sqrt(r.Variance()), r.Deciles())
}
