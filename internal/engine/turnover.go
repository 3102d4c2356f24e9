// Selection: the poorest agents die and the richest are cloned.
package engine

import (
	"math"
	"sort"

	"github.com/talgya/dilemma/internal/agents"
)

// TurnoverCount returns round(population * rate), rounding halves to even.
func TurnoverCount(population int, rate float64) int {
	return int(math.RoundToEven(float64(population) * rate))
}

// TurnoverResult lists what a Turnover call changed.
type TurnoverResult struct {
	Removed []*agents.Agent
	Parents []*agents.Agent
	Spawned []*agents.Agent
}

// Turnover ranks pop by wealth (ascending, stable), removes the k poorest, and
// clones each of the k richest once via spawn. Survivors keep their relative
// order and the children are appended, so len(result) == len(pop). k <= 0 is a
// no-op; k is clamped to len(pop).
func Turnover(pop []*agents.Agent, k int, spawn func(parent *agents.Agent) *agents.Agent) ([]*agents.Agent, TurnoverResult) {
	var res TurnoverResult
	if k <= 0 || len(pop) == 0 {
		return pop, res
	}
	if k > len(pop) {
		k = len(pop)
	}

	ranked := make([]*agents.Agent, len(pop))
	copy(ranked, pop)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Wealth < ranked[j].Wealth
	})

	res.Removed = ranked[:k]
	res.Parents = ranked[len(ranked)-k:]

	// Clone from the pre-removal ranking so overlapping sets (k > n/2) still work.
	res.Spawned = make([]*agents.Agent, 0, k)
	for _, p := range res.Parents {
		res.Spawned = append(res.Spawned, spawn(p))
	}

	dead := make(map[agents.AgentID]bool, k)
	for _, a := range res.Removed {
		dead[a.ID] = true
	}

	next := make([]*agents.Agent, 0, len(pop))
	for _, a := range pop {
		if !dead[a.ID] {
			next = append(next, a)
		}
	}
	next = append(next, res.Spawned...)
	return next, res
}
