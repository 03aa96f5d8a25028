package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
	"gorla/internal/config"
	"gorla/internal/errors"
	"gorla/internal/estimate"
	"gorla/internal/metrics"
	"gorla/internal/sampling"
	"gorla/ports"
)

// StartRound estimates the sample each unfinished contest needs and selects the
// cards to audit. The returned round lists the new cards; pass it to RunRound once
// their audited records are available.
func (a *Audit) StartRound(ctx context.Context) (round.AuditRound, error) {
	if a.complete {
		return round.AuditRound{}, core.ErrAuditComplete
	}
	if a.pending != nil {
		return round.AuditRound{}, fmt.Errorf("%w: round %d has not been run", core.ErrRoundMismatch, a.pending.round.Round)
	}

	r := a.nextRound()
	if r.AllDone() {
		a.complete = true
		return round.AuditRound{}, core.ErrAuditComplete
	}

	// Estimating
	a.estimate(ctx, &r)

	// Sampling
	estimates := make(map[core.ContestID]int, len(r.Contests))
	for _, cr := range r.Contests {
		if !cr.Done && cr.Err == nil {
			estimates[cr.ContestID] = cr.EstSampleSize
		}
	}
	thresholds := a.thresholds.Merge(sampling.ComputeThresholds(a.cards, estimates, a.cfg.HasStyle))
	sel := sampling.Select(a.cards, thresholds, a.sampled, a.cfg.MaxSamplesAllowed, a.cfg.HasStyle)

	newCards := make(map[core.BallotID]bool, len(sel.New))
	for _, id := range sel.New {
		newCards[id] = true
	}
	for i := range r.Contests {
		cr := &r.Contests[i]
		cr.Threshold = thresholds[cr.ContestID]
		if cr.Done {
			continue
		}
		for _, card := range sel.All {
			if newCards[card.ID] && (!a.cfg.HasStyle || card.HasContest(cr.ContestID)) {
				cr.EstNewSamples++
			}
		}
	}

	if len(sel.New) == 0 && !sel.HitCap {
		a.complete = true
		a.logger.Error("round %d selected no new cards, stopping", r.Round)
		return round.AuditRound{}, fmt.Errorf("%w: round %d", core.ErrNoProgress, r.Round)
	}

	for _, card := range sel.All {
		if a.sampled[card.ID] {
			r.PreviousSampleIDs = append(r.PreviousSampleIDs, card.ID)
		}
	}
	r.NewSampleIDs = sel.New
	r.SampledCount = len(sel.All)
	r.HitCap = sel.HitCap
	r.Phase = round.PhaseSampling
	a.thresholds = thresholds
	a.pending = &pendingRound{
		round:  r.Clone(),
		ids:    sampling.IDs(sel.All),
		newIDs: append([]core.BallotID(nil), sel.New...),
	}

	a.logger.Info("round %d: %d new cards, %d sampled in total, cap reached=%t",
		r.Round, len(sel.New), r.SampledCount, r.HitCap)
	return r, nil
}

// nextRound carries every contest forward from the last round. Finished contests
// and assertions keep their results; unfinished assertions start over with the
// previous result as a copy.
func (a *Audit) nextRound() round.AuditRound {
	r := round.AuditRound{
		AuditID:   a.id,
		Round:     len(a.history) + 1,
		Phase:     round.PhaseEstimating,
		StartedAt: core.Now(),
	}
	var prev *round.AuditRound
	if last := a.lastRound(); last != nil {
		cloned := last.Clone()
		prev = &cloned
	}

	for _, cs := range a.contests {
		if prev != nil {
			if pc, ok := prev.Contest(cs.contest.ID); ok && pc.Done {
				r.Contests = append(r.Contests, *pc)
				continue
			}
		}
		cr := round.ContestRound{ContestID: cs.contest.ID, Status: cs.setup}
		if cs.setup != stats.StatusInProgress {
			cr.Done = true
			r.Contests = append(r.Contests, cr)
			continue
		}

		var prevAssertions []round.AssertionRound
		if prev != nil {
			if pc, ok := prev.Contest(cs.contest.ID); ok {
				prevAssertions = pc.Assertions
			}
		}
		for _, as := range cs.assertions {
			ar := round.AssertionRound{
				AssertionID: as.ID(),
				Round:       r.Round,
				Margin:      as.Margin(),
				Status:      stats.StatusInProgress,
			}
			for _, pa := range prevAssertions {
				if pa.AssertionID != ar.AssertionID {
					continue
				}
				if pa.Done() {
					ar = pa
				} else if pa.Result != nil {
					res := *pa.Result
					ar.PreviousResult = &res
				}
			}
			cr.Assertions = append(cr.Assertions, ar)
		}
		r.Contests = append(r.Contests, cr)
	}
	return r
}

// estimate runs the estimator for every unfinished contest. A contest whose
// estimate fails keeps its error and is not sampled this round.
func (a *Audit) estimate(ctx context.Context, r *round.AuditRound) {
	var reqs []estimate.ContestRequest
	var index []int
	for i, cr := range r.Contests {
		if cr.Done {
			continue
		}
		cs := a.state(cr.ContestID)
		req := estimate.ContestRequest{Contest: cs.contest}
		for _, ar := range cr.Assertions {
			if ar.Done() {
				continue
			}
			er := estimate.Request{
				Assertion: cs.assertions[cs.assertionAt[ar.AssertionID]],
				N:         cs.population,
			}
			if ar.PreviousResult != nil {
				er.PriorSamples = ar.PreviousResult.SamplesUsed
				if a.cfg.Type == config.AuditTypeClca && ar.PreviousResult.SamplesUsed > 0 {
					measured := ar.PreviousResult.MeasuredRates
					er.Measured = &measured
				}
			}
			req.Requests = append(req.Requests, er)
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}

	for k, est := range a.estimator.EstimateContests(ctx, reqs) {
		cr := &r.Contests[index[k]]
		if est.Err != nil {
			cr.Err = est.Err
			metrics.RecordContestFailure()
			continue
		}
		cr.EstSampleSize = est.SampleSize
		for _, e := range est.Estimates {
			for j := range cr.Assertions {
				if cr.Assertions[j].AssertionID == e.AssertionID {
					cr.Assertions[j].EstSampleSize = e.SampleSize
				}
			}
		}
	}
}

// RunRound tests every unfinished assertion on the cumulative sample. source must
// deliver the audited record of every sampled card. Contests are tested in
// parallel; a contest that fails keeps its error and does not affect the others.
// The finished round is appended to the history and saved.
func (a *Audit) RunRound(ctx context.Context, r round.AuditRound, source ports.MvrSource) (round.AuditRound, error) {
	if a.pending == nil || a.pending.round.Round != r.Round {
		return round.AuditRound{}, fmt.Errorf("%w: round %d was not started", core.ErrRoundMismatch, r.Round)
	}
	p := a.pending

	pairs, err := source.Pairs(ctx, p.round.Round, p.ids)
	if err != nil {
		return round.AuditRound{}, errors.Wrapf(err, "fetch audited records for round %d", p.round.Round)
	}
	byID := make(map[core.BallotID]contest.CvrPair, len(pairs))
	for _, pair := range pairs {
		byID[pair.Cvr.ID] = pair
	}
	for _, id := range p.ids {
		if _, ok := byID[id]; !ok {
			return round.AuditRound{}, errors.Wrapf(errors.NotFound("audited record "+id.String()), "round %d", p.round.Round)
		}
	}
	for _, id := range p.newIDs {
		a.sampled[id] = true
	}

	work := p.round.Clone()
	work.Phase = round.PhaseTesting

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, a.cfg.Concurrency))
	for i := range work.Contests {
		cr := &work.Contests[i]
		if cr.Done || cr.Err != nil {
			continue
		}
		g.Go(func() error {
			if err := a.testContest(gCtx, work.Round, cr, byID, work.HitCap); err != nil {
				cr.Err = err
				metrics.RecordContestFailure()
				a.logger.Warn("contest %s: round %d failed: %v", cr.ContestID, work.Round, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return round.AuditRound{}, err
	}

	work.Complete = work.AllDone() || work.HitCap
	work.Phase = round.PhaseRoundComplete
	if work.Complete {
		work.Phase = round.PhaseAuditComplete
	}
	work.FinishedAt = core.Now()

	a.history = append(a.history, work.Clone())
	a.pending = nil
	a.complete = work.Complete
	metrics.RecordRound(work.Complete, len(work.NewSampleIDs), work.Duration())
	a.logger.Info("round %d finished in %s: complete=%t", work.Round, work.Duration(), work.Complete)

	if a.repo != nil {
		if err := a.repo.SaveRound(ctx, a.id, work); err != nil {
			return work, errors.Wrapf(err, "save round %d", work.Round)
		}
	}
	return work, nil
}

// testContest runs every unfinished assertion of a contest from a starting
// statistic of 1 on the longest prefix of the contest's cards that has been
// sampled, then sets the contest status to the worst assertion status.
func (a *Audit) testContest(ctx context.Context, roundNum int, cr *round.ContestRound, byID map[core.BallotID]contest.CvrPair, hitCap bool) error {
	cs := a.state(cr.ContestID)
	ids := sampling.ContestPrefix(a.cards, a.sampled, cs.contest.ID, a.cfg.HasStyle)
	pairs := make([]contest.CvrPair, len(ids))
	for i, id := range ids {
		pairs[i] = byID[id]
	}

	for i := range cr.Assertions {
		ar := &cr.Assertions[i]
		if ar.Done() {
			continue
		}
		assertion := cs.assertions[cs.assertionAt[ar.AssertionID]]
		opts := estimate.TestOptions(a.cfg, assertion, cs.population)
		opts.PopulationLimit = len(ids) >= cs.cards
		test, name, err := estimate.RiskTest(a.cfg, assertion, opts, nil)
		if err != nil {
			return err
		}

		sampler := sampling.NewContestSampler(assertion, pairs, a.cfg.HasStyle)
		res, err := test.TestH0(ctx, sampler.MaxSamples(), true, 1, sampler)
		if core.IsSamplingError(err) {
			return errors.SamplingExhausted(cs.contest.ID.String(), err)
		}
		if err != nil {
			return errors.Wrapf(err, "assertion %s", ar.AssertionID)
		}
		if res.Status == stats.StatusInProgress && hitCap {
			res.Status = stats.StatusLimitReached
		}

		result := round.NewAuditRoundResult(roundNum, 1, res)
		ar.Result = &result
		ar.Status = res.Status
		metrics.RecordAssertion(res.Status.String())
		a.logger.Debug("round %d %s %s: %s", roundNum, ar.AssertionID, name, result)
	}
	cr.Aggregate()
	return nil
}
