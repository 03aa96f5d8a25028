// Package tracker keeps running statistics over the values a risk test has seen.
package tracker

import (
	"math"

	"gorla/domain/stats"
)

// Welford accumulates count, mean and variance in one pass
type Welford struct {
	count int
	mean  float64
	m2    float64
}

// Update adds one value
func (w *Welford) Update(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

func (w *Welford) Count() int    { return w.count }
func (w *Welford) Mean() float64 { return w.mean }

// Variance is the population variance
func (w *Welford) Variance() float64 {
	if w.count == 0 {
		return 0
	}
	return w.m2 / float64(w.count)
}

// SampleVariance is the unbiased sample variance
func (w *Welford) SampleVariance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

// Tracker is the view of previous samples a betting strategy or estimator gets.
type Tracker interface {
	NumberOfSamples() int
	Sum() float64
	Mean() float64
	Variance() float64
	Last() float64
}

// Recorder is a Tracker that accepts new samples
type Recorder interface {
	Tracker
	AddSample(x float64)
}

// ErrorCounter exposes discrepancy counts of comparison samples
type ErrorCounter interface {
	NumberOfSamples() int
	ErrorCounts() [4]int
}

// SampleTracker records the running statistics of a stream of assort values,
// with an optional histogram over a finite outcome set.
type SampleTracker struct {
	welford Welford
	sum     float64
	last    float64
	counts  map[float64]int
}

// NewSampleTracker creates an empty tracker
func NewSampleTracker() *SampleTracker {
	return &SampleTracker{counts: make(map[float64]int)}
}

// AddSample records one value
func (t *SampleTracker) AddSample(x float64) {
	t.welford.Update(x)
	t.sum += x
	t.last = x
	t.counts[roundKey(x)]++
}

func (t *SampleTracker) NumberOfSamples() int { return t.welford.Count() }
func (t *SampleTracker) Sum() float64         { return t.sum }
func (t *SampleTracker) Mean() float64        { return t.welford.Mean() }
func (t *SampleTracker) Variance() float64    { return t.welford.Variance() }
func (t *SampleTracker) Last() float64        { return t.last }

// SampleVariance is the unbiased variance of the samples seen so far
func (t *SampleTracker) SampleVariance() float64 { return t.welford.SampleVariance() }

// Count returns how many times value was seen
func (t *SampleTracker) Count(value float64) int { return t.counts[roundKey(value)] }

// roundKey rounds to 12 significant decimals so equal grid values share a bucket
func roundKey(x float64) float64 {
	return math.Round(x*1e12) / 1e12
}

// ClcaErrorTracker classifies comparison values into the five discrepancy kinds
type ClcaErrorTracker struct {
	*SampleTracker
	noerror float64
	errs    [5]int // p2o, p1o, noerror, p1u, p2u
}

// NewClcaErrorTracker creates a tracker for comparison values with the given noerror
func NewClcaErrorTracker(noerror float64) *ClcaErrorTracker {
	return &ClcaErrorTracker{SampleTracker: NewSampleTracker(), noerror: noerror}
}

const gridTolerance = 1e-9

// AddSample records one comparison value and classifies it
func (t *ClcaErrorTracker) AddSample(x float64) {
	t.SampleTracker.AddSample(x)
	t.errs[t.classify(x)]++
}

func (t *ClcaErrorTracker) classify(x float64) int {
	ratio := x / t.noerror
	switch {
	case math.Abs(ratio-1) < gridTolerance:
		return 2
	case ratio < gridTolerance:
		return 0
	case ratio < 1:
		return 1
	case ratio > 2-gridTolerance:
		return 4
	default:
		return 3
	}
}

// Noerror is the value of an agreeing card
func (t *ClcaErrorTracker) Noerror() float64 { return t.noerror }

// ErrorCounts returns counts of p2o, p1o, p1u, p2u
func (t *ClcaErrorTracker) ErrorCounts() [4]int {
	return [4]int{t.errs[0], t.errs[1], t.errs[3], t.errs[4]}
}

// NoerrorCount is the number of agreeing cards
func (t *ClcaErrorTracker) NoerrorCount() int { return t.errs[2] }

// MeasuredRates returns the discrepancy rates among the samples seen so far
func (t *ClcaErrorTracker) MeasuredRates() stats.DiscrepancyRates {
	n := t.NumberOfSamples()
	if n == 0 {
		return stats.ZeroRates
	}
	fn := float64(n)
	return stats.DiscrepancyRates{
		P2o: float64(t.errs[0]) / fn,
		P1o: float64(t.errs[1]) / fn,
		P1u: float64(t.errs[3]) / fn,
		P2u: float64(t.errs[4]) / fn,
	}
}
