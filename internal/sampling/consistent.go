package sampling

import (
	"math"
	"math/rand"
	"sort"

	"gorla/domain/contest"
	"gorla/domain/core"
)

// Card is one entry of the ballot manifest with its sample number
type Card struct {
	ID        core.BallotID
	Index     int // position in the manifest
	Contests  []core.ContestID
	Phantom   bool
	SampleNum uint64
}

// HasContest reports whether the card contains the contest
func (c Card) HasContest(id core.ContestID) bool {
	for _, cid := range c.Contests {
		if cid == id {
			return true
		}
	}
	return false
}

// NewCards builds the manifest from the reported records, in manifest order
func NewCards(cvrs []contest.Cvr) []Card {
	cards := make([]Card, len(cvrs))
	for i, cvr := range cvrs {
		contests := make([]core.ContestID, 0, len(cvr.Votes))
		for cid := range cvr.Votes {
			contests = append(contests, cid)
		}
		sort.Slice(contests, func(a, b int) bool { return contests[a] < contests[b] })
		cards[i] = Card{ID: cvr.ID, Index: i, Contests: contests, Phantom: cvr.Phantom}
	}
	return cards
}

// AssignSampleNumbers gives every card a uniform random rank drawn in manifest
// order, and returns the cards sorted by rank. The input is not modified.
func AssignSampleNumbers(cards []Card, rng *rand.Rand) []Card {
	sorted := make([]Card, len(cards))
	copy(sorted, cards)
	for i := range sorted {
		sorted[i].SampleNum = rng.Uint64()
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SampleNum < sorted[j].SampleNum })
	return sorted
}

// Thresholds are the per-contest cut ranks: a card is in the sample when its
// rank is at most the threshold of some contest it contains.
type Thresholds map[core.ContestID]uint64

// Merge returns the larger threshold for every contest in either set
func (t Thresholds) Merge(other Thresholds) Thresholds {
	out := make(Thresholds, len(t)+len(other))
	for cid, v := range t {
		out[cid] = v
	}
	for cid, v := range other {
		if v > out[cid] {
			out[cid] = v
		}
	}
	return out
}

// ComputeThresholds finds, for every contest with a positive estimate, the rank of
// its estimate-th card in rank order. A contest needing more cards than it has
// gets the maximum rank. Without card style every card counts for every contest.
func ComputeThresholds(sorted []Card, estimates map[core.ContestID]int, hasStyle bool) Thresholds {
	thresholds := make(Thresholds, len(estimates))
	seen := make(map[core.ContestID]int, len(estimates))
	remaining := 0
	for cid, est := range estimates {
		if est > 0 {
			thresholds[cid] = math.MaxUint64
			remaining++
		}
	}
	if remaining == 0 {
		return thresholds
	}

	done := make(map[core.ContestID]bool, remaining)
	for _, card := range sorted {
		for cid, est := range estimates {
			if est <= 0 || done[cid] {
				continue
			}
			if hasStyle && !card.HasContest(cid) {
				continue
			}
			seen[cid]++
			if seen[cid] == est {
				thresholds[cid] = card.SampleNum
				done[cid] = true
				remaining--
			}
		}
		if remaining == 0 {
			break
		}
	}
	return thresholds
}

// Selection is the result of applying thresholds to the manifest
type Selection struct {
	All    []Card          // every selected card, prior and new, in rank order
	New    []core.BallotID // newly selected cards in rank order
	HitCap bool
}

// Select returns every card under some contest's threshold. Cards already in
// prior are kept but not reported as new. When maxTotal is positive no more than maxTotal
// cards are selected in total; new cards past the cap are dropped in rank order.
func Select(sorted []Card, thresholds Thresholds, prior map[core.BallotID]bool, maxTotal int, hasStyle bool) Selection {
	var sel Selection
	total := len(prior)
	for _, card := range sorted {
		if !selected(card, thresholds, hasStyle) {
			if prior[card.ID] {
				sel.All = append(sel.All, card)
			}
			continue
		}
		if prior[card.ID] {
			sel.All = append(sel.All, card)
			continue
		}
		if maxTotal > 0 && total >= maxTotal {
			sel.HitCap = true
			continue
		}
		sel.All = append(sel.All, card)
		sel.New = append(sel.New, card.ID)
		total++
	}
	return sel
}

func selected(card Card, thresholds Thresholds, hasStyle bool) bool {
	for cid, thr := range thresholds {
		if hasStyle && !card.HasContest(cid) {
			continue
		}
		if card.SampleNum <= thr {
			return true
		}
	}
	return false
}

// ContestPrefix returns, in rank order, the sampled cards a contest may use: the
// longest run of its cards in rank order that were all sampled.
func ContestPrefix(sorted []Card, sampled map[core.BallotID]bool, cid core.ContestID, hasStyle bool) []core.BallotID {
	var ids []core.BallotID
	for _, card := range sorted {
		if hasStyle && !card.HasContest(cid) {
			continue
		}
		if !sampled[card.ID] {
			break
		}
		ids = append(ids, card.ID)
	}
	return ids
}

// ContestCards counts the cards a contest may draw from, phantoms included. It
// is the length ContestPrefix reaches once every such card is sampled.
func ContestCards(sorted []Card, cid core.ContestID, hasStyle bool) int {
	if !hasStyle {
		return len(sorted)
	}
	n := 0
	for _, card := range sorted {
		if card.HasContest(cid) {
			n++
		}
	}
	return n
}

// IDs returns the ids of cards
func IDs(cards []Card) []core.BallotID {
	ids := make([]core.BallotID, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}
