package relevance

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

const (
	// SeedScoreThreshold is the score above which an item acts as an
	// activation seed.
	SeedScoreThreshold = 0.75

	// MaxSeeds caps how many seeds spread activation.
	MaxSeeds = 10

	// hopDecay attenuates spread per graph hop.
	hopDecay = 0.85

	// maxHops bounds the walk.
	maxHops = 3

	// CohortBonusCap limits the additive co-occurrence bonus so it can
	// never dominate semantic scoring.
	CohortBonusCap = 0.1

	// CohortMinCount is the co-occurrence frequency below which a pair
	// is coincidence, not a cohort, and earns no bonus.
	CohortMinCount = 3
)

// Seeds returns the top-scoring items eligible to spread activation:
// score above SeedScoreThreshold, capped at MaxSeeds, highest first.
func Seeds(scored []Scored) []Scored {
	var seeds []Scored
	for _, sc := range scored {
		if sc.Score > SeedScoreThreshold {
			seeds = append(seeds, sc)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool { return seeds[i].Score > seeds[j].Score })
	if len(seeds) > MaxSeeds {
		seeds = seeds[:MaxSeeds]
	}
	return seeds
}

// SpreadActivation walks links outward from the seeds and boosts linked
// items: boost = seedScore × linkStrength × hopDecay^hop. A boost is
// applied only when it exceeds the item's current score, and the
// boosted item is annotated with the link type that carried it.
//
// The input is never mutated; a new scored collection is returned.
func SpreadActivation(scored []Scored, seeds []Scored, links []*learning.Link) []Scored {
	if len(seeds) == 0 || len(links) == 0 {
		return scored
	}

	adjacency := make(map[string][]*learning.Link, len(links))
	for _, l := range links {
		adjacency[l.FromID] = append(adjacency[l.FromID], l)
	}

	// Working score state keyed by id: explicit accumulator instead of
	// aliased in-place mutation.
	type boostState struct {
		score  float64
		reason string
	}
	boosts := make(map[string]boostState)

	for _, seed := range seeds {
		type frontier struct {
			id       string
			strength float64 // accumulated strength product along the path
			hops     int
		}
		queue := []frontier{{id: seed.Learning.ID, strength: 1, hops: 0}}
		visited := map[string]bool{seed.Learning.ID: true}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur.hops >= maxHops {
				continue
			}
			for _, link := range adjacency[cur.id] {
				if visited[link.ToID] {
					continue
				}
				visited[link.ToID] = true

				hops := cur.hops + 1
				strength := cur.strength * link.Strength
				boost := seed.Score * strength * pow(hopDecay, hops)
				if boost > boosts[link.ToID].score {
					boosts[link.ToID] = boostState{
						score: boost,
						reason: fmt.Sprintf("%s %s (strength %.2f)",
							link.Type, shortID(seed.Learning.ID), link.Strength),
					}
				}
				queue = append(queue, frontier{id: link.ToID, strength: strength, hops: hops})
			}
		}
	}

	out := make([]Scored, len(scored))
	for i, sc := range scored {
		if b, ok := boosts[sc.Learning.ID]; ok && b.score > sc.Score {
			sc.Score = b.score
			sc.RetrievalReason = "linked: " + b.reason
		}
		out[i] = sc
	}
	return out
}

// ApplyCohortBoosts gives items frequently co-retrieved with a seed a
// small additive bonus proportional to their historical positive
// outcome ratio, capped at CohortBonusCap. Pairs seen fewer than
// CohortMinCount times are ignored.
//
// The input is never mutated; a new scored collection is returned.
func ApplyCohortBoosts(scored []Scored, seeds []Scored, pairs []*learning.Pair) []Scored {
	if len(seeds) == 0 || len(pairs) == 0 {
		return scored
	}

	seedIDs := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seedIDs[s.Learning.ID] = true
	}

	bonus := make(map[string]float64)
	for _, p := range pairs {
		if p.Count < CohortMinCount {
			continue
		}
		var other string
		switch {
		case seedIDs[p.ItemA]:
			other = p.ItemB
		case seedIDs[p.ItemB]:
			other = p.ItemA
		default:
			continue
		}
		b := p.PositiveRatio() * CohortBonusCap
		if b > CohortBonusCap {
			b = CohortBonusCap
		}
		if b > bonus[other] {
			bonus[other] = b
		}
	}

	out := make([]Scored, len(scored))
	for i, sc := range scored {
		if b, ok := bonus[sc.Learning.ID]; ok && b > 0 && !seedIDs[sc.Learning.ID] {
			sc.Score += b
			sc.RetrievalReason += fmt.Sprintf(", cohort +%.2f", b)
		}
		out[i] = sc
	}
	return out
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
