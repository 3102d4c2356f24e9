// Mutation operators: point, split, and duplicate. Split and duplicate change
// the memory length and resize the strategy table with it.
package agents

import "github.com/talgya/dilemma/internal/entropy"

// MutationRates holds the per-tick probability of each operator firing.
type MutationRates struct {
	Point     float64
	Split     float64
	Duplicate float64
}

// Mutations records which operators changed a genome during one RiskMutation call.
type Mutations struct {
	Point     bool
	Split     bool
	Duplicate bool
}

// Any reports whether any operator changed the genome.
func (m Mutations) Any() bool {
	return m.Point || m.Split || m.Duplicate
}

// RiskMutation draws each operator independently and applies the ones that fire
// in a fixed order: point, split, duplicate.
func (a *Agent) RiskMutation(src *entropy.Source, rates MutationRates) Mutations {
	var m Mutations
	if src.Chance(rates.Point) {
		a.MutatePoint(src)
		m.Point = true
	}
	if src.Chance(rates.Split) {
		m.Split = a.MutateSplit(src)
	}
	if src.Chance(rates.Duplicate) {
		a.MutateDuplicate(src)
		m.Duplicate = true
	}
	return m
}

// MutatePoint flips one uniformly chosen strategy entry.
func (a *Agent) MutatePoint(src *entropy.Source) {
	i := src.Intn(len(a.Strategy))
	a.Strategy[i] = a.Strategy[i].Flip()
	a.mustHoldInvariants()
}

// MutateSplit halves the strategy: memory length drops by one and either the
// first or the second half of the table survives, by a fair coin. History is
// left untouched. Returns false (and changes nothing) when memory length is 1.
func (a *Agent) MutateSplit(src *entropy.Source) bool {
	if a.MemoryLength <= 1 {
		return false
	}

	half := len(a.Strategy) / 2
	var kept Strategy
	if src.Bit() == 1 {
		kept = a.Strategy[:half].Clone()
	} else {
		kept = a.Strategy[half:].Clone()
	}
	a.setGenome(a.MemoryLength-1, kept)
	a.mustHoldInvariants()
	return true
}

// MutateDuplicate doubles the strategy by concatenating it with a copy of itself
// and increments memory length. If history is now shorter than memory length, one
// random bit is appended so the next move can still be decided.
func (a *Agent) MutateDuplicate(src *entropy.Source) {
	doubled := make(Strategy, 0, 2*len(a.Strategy))
	doubled = append(doubled, a.Strategy...)
	doubled = append(doubled, a.Strategy...)
	a.setGenome(a.MemoryLength+1, doubled)

	if len(a.History) < a.MemoryLength {
		a.History = append(a.History, Move(src.Bit()))
	}
	a.mustHoldInvariants()
}
