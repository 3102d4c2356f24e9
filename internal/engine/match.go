package engine

import (
	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/entropy"
)

// MatchResult summarises one PlayMatch call.
type MatchResult struct {
	Rounds       int
	Cooperations int // individual cooperative moves, both players
	MutualCoop   int // rounds where both cooperated
	PayoffA      float64
	PayoffB      float64
	CostA        float64
	CostB        float64
}

// PlayMatch plays numRounds rounds between a and b. Each round both pick a move
// from the same pre-round state, collect payoffs, and record [own, partner] in
// their histories. After the last round each pays numRounds * ExistentialBurden
// of its memory length.
func PlayMatch(src *entropy.Source, a, b *agents.Agent, numRounds int, probErr float64) MatchResult {
	res := MatchResult{Rounds: numRounds}

	for r := 0; r < numRounds; r++ {
		moveA := a.DecideMove(src, probErr)
		moveB := b.DecideMove(src, probErr)

		gainA, gainB := PrisonersDilemma(moveA, moveB)
		a.Wealth += gainA
		b.Wealth += gainB
		res.PayoffA += gainA
		res.PayoffB += gainB

		a.Record(moveA, moveB)
		b.Record(moveB, moveA)

		if moveA == agents.Cooperate {
			res.Cooperations++
		}
		if moveB == agents.Cooperate {
			res.Cooperations++
		}
		if moveA == agents.Cooperate && moveB == agents.Cooperate {
			res.MutualCoop++
		}
	}

	res.CostA = float64(numRounds) * ExistentialBurden(a.MemoryLength)
	res.CostB = float64(numRounds) * ExistentialBurden(b.MemoryLength)
	a.Wealth -= res.CostA
	b.Wealth -= res.CostB
	return res
}
