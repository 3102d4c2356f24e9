package engine

import "github.com/talgya/dilemma/internal/agents"

// payoffs[self][other] = {self payoff, other payoff}.
var payoffs = [2][2][2]float64{
	{{1, 1}, {0, 3}},
	{{3, 0}, {2, 2}},
}

// PrisonersDilemma returns the payoffs for a pair of simultaneous moves.
// The table is fixed; population dynamics depend on these exact values.
func PrisonersDilemma(self, other agents.Move) (float64, float64) {
	p := payoffs[self][other]
	return p[0], p[1]
}

// ExistentialBurden is the per-round upkeep term for a memory length m:
// -1 - m + 0.10*m^2. The match engine subtracts numRounds times this value.
func ExistentialBurden(m int) float64 {
	fm := float64(m)
	return -1 - fm + 0.10*fm*fm
}
