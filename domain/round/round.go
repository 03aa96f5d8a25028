// Package round holds the append-only history of an audit: one immutable
// snapshot per round, with per-contest and per-assertion results.
package round

import (
	"fmt"
	"time"

	"gorla/domain/core"
	"gorla/domain/stats"
)

// Phase is where a round is in its life cycle
type Phase int

const (
	PhaseEstimating Phase = iota
	PhaseSampling
	PhaseTesting
	PhaseRoundComplete
	PhaseAuditComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseEstimating:
		return "Estimating"
	case PhaseSampling:
		return "Sampling"
	case PhaseTesting:
		return "Testing"
	case PhaseRoundComplete:
		return "RoundComplete"
	case PhaseAuditComplete:
		return "AuditComplete"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// AuditRoundResult is the outcome of testing one assertion in one round
type AuditRoundResult struct {
	Round                 int                    `json:"round" db:"round"`
	PValue                float64                `json:"pvalue" db:"pvalue"`
	PValueMin             float64                `json:"pvalue_min" db:"pvalue_min"`
	SamplesUsed           int                    `json:"samples_used" db:"samples_used"`
	SamplesNeeded         int                    `json:"samples_needed" db:"samples_needed"` // first crossing, 0 if none
	MaxSampleIndexUsed    int                    `json:"max_sample_index_used" db:"max_sample_index_used"`
	Status                stats.Status           `json:"status" db:"status"`
	MeasuredRates         stats.DiscrepancyRates `json:"measured_rates" db:"-"`
	StartingTestStatistic float64                `json:"starting_test_statistic" db:"starting_test_statistic"`
}

// NewAuditRoundResult converts a test result into a round record
func NewAuditRoundResult(round int, startingT float64, r stats.TestH0Result) AuditRoundResult {
	return AuditRoundResult{
		Round:                 round,
		PValue:                r.PValueLast,
		PValueMin:             r.PValueMin,
		SamplesUsed:           r.SampleCount,
		SamplesNeeded:         r.SampleFirstUnderLimit,
		MaxSampleIndexUsed:    r.MaxSampleIndexUsed,
		Status:                r.Status,
		MeasuredRates:         r.MeasuredRates,
		StartingTestStatistic: startingT,
	}
}

func (r AuditRoundResult) String() string {
	return fmt.Sprintf("round %d %s pvalue=%.5g used=%d needed=%d", r.Round, r.Status, r.PValue, r.SamplesUsed, r.SamplesNeeded)
}

// AssertionRound is one assertion's state in one round. PreviousResult is a copy
// of the prior round's result, not a reference into history.
type AssertionRound struct {
	AssertionID    string            `json:"assertion_id"`
	Round          int               `json:"round"`
	Margin         float64           `json:"margin"`
	EstSampleSize  int               `json:"est_sample_size"`
	PreviousResult *AuditRoundResult `json:"previous_result,omitempty"`
	Result         *AuditRoundResult `json:"result,omitempty"`
	Status         stats.Status      `json:"status"`
}

// Done reports whether the assertion needs no further testing
func (a AssertionRound) Done() bool { return a.Status.Complete() }

// ContestRound is one contest's state in one round
type ContestRound struct {
	ContestID     core.ContestID   `json:"contest_id"`
	Status        stats.Status     `json:"status"`
	Done          bool             `json:"done"`
	EstSampleSize int              `json:"est_sample_size"`
	EstNewSamples int              `json:"est_new_samples"`
	Threshold     uint64           `json:"threshold"`
	Assertions    []AssertionRound `json:"assertions"`
	Err           error            `json:"-"`
}

// Aggregate sets the contest status to the worst status of its assertions and
// marks it done when that status is terminal.
func (c *ContestRound) Aggregate() {
	statuses := make([]stats.Status, len(c.Assertions))
	for i, a := range c.Assertions {
		statuses[i] = a.Status
	}
	c.Status = stats.WorstStatus(statuses...)
	c.Done = c.Status.Complete()
}

// AuditRound is a snapshot of one round of the audit
type AuditRound struct {
	AuditID           core.AuditID    `json:"audit_id"`
	Round             int             `json:"round"`
	Phase             Phase           `json:"phase"`
	Contests          []ContestRound  `json:"contests"`
	NewSampleIDs      []core.BallotID `json:"new_sample_ids"`
	PreviousSampleIDs []core.BallotID `json:"previous_sample_ids"`
	SampledCount      int             `json:"sampled_count"` // cards sampled in this and every earlier round
	HitCap            bool            `json:"hit_cap"`
	Complete          bool            `json:"complete"`
	StartedAt         core.Timestamp  `json:"started_at"`
	FinishedAt        core.Timestamp  `json:"finished_at"`
}

// Contest returns the contest's entry in this round
func (r *AuditRound) Contest(id core.ContestID) (*ContestRound, bool) {
	for i := range r.Contests {
		if r.Contests[i].ContestID == id {
			return &r.Contests[i], true
		}
	}
	return nil, false
}

// Duration is the time between the start of the round and its results
func (r AuditRound) Duration() time.Duration {
	return r.FinishedAt.Since(r.StartedAt)
}

// AllDone reports whether every contest in the round is done
func (r *AuditRound) AllDone() bool {
	for _, c := range r.Contests {
		if !c.Done {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so that history entries are never shared
func (r AuditRound) Clone() AuditRound {
	out := r
	out.NewSampleIDs = append([]core.BallotID(nil), r.NewSampleIDs...)
	out.PreviousSampleIDs = append([]core.BallotID(nil), r.PreviousSampleIDs...)
	out.Contests = make([]ContestRound, len(r.Contests))
	for i, c := range r.Contests {
		cc := c
		cc.Assertions = make([]AssertionRound, len(c.Assertions))
		for j, a := range c.Assertions {
			ac := a
			if a.PreviousResult != nil {
				prev := *a.PreviousResult
				ac.PreviousResult = &prev
			}
			if a.Result != nil {
				res := *a.Result
				ac.Result = &res
			}
			cc.Assertions[j] = ac
		}
		out.Contests[i] = cc
	}
	return out
}

// Results flattens the per-assertion results of the round
func (r AuditRound) Results() []AssertionResult {
	var out []AssertionResult
	for _, c := range r.Contests {
		for _, a := range c.Assertions {
			if a.Result == nil {
				continue
			}
			out = append(out, AssertionResult{ContestID: c.ContestID, AssertionID: a.AssertionID, Result: *a.Result})
		}
	}
	return out
}

// NewResults are the results produced by this round, leaving out those carried
// forward from earlier rounds
func (r AuditRound) NewResults() []AssertionResult {
	var out []AssertionResult
	for _, res := range r.Results() {
		if res.Result.Round == r.Round {
			out = append(out, res)
		}
	}
	return out
}

// AssertionResult ties a round result to its assertion
type AssertionResult struct {
	ContestID   core.ContestID
	AssertionID string
	Result      AuditRoundResult
}
