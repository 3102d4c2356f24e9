// Package stats computes read-only projections of a population: strategy and
// age frequency tables and aggregate summaries. Call it between ticks only.
package stats

import (
	"math"
	"sort"

	"github.com/talgya/dilemma/internal/agents"
)

// StrategyCount is one row of the strategy frequency table.
type StrategyCount struct {
	Strategy string `json:"strategy" db:"strategy"`
	Freq     int    `json:"freq" db:"freq"`
}

// AgeCount is one row of the age frequency table.
type AgeCount struct {
	Age  uint64 `json:"age" db:"age"`
	Freq int    `json:"freq" db:"freq"`
}

// StrategyFrequency counts distinct strategies, rendered as bit-strings,
// sorted by the bit-string.
func StrategyFrequency(pop []*agents.Agent) []StrategyCount {
	counts := make(map[string]int)
	for _, a := range pop {
		counts[a.Strategy.String()]++
	}

	rows := make([]StrategyCount, 0, len(counts))
	for s, n := range counts {
		rows = append(rows, StrategyCount{Strategy: s, Freq: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Strategy < rows[j].Strategy
	})
	return rows
}

// AgeFrequency counts agents per age, sorted by age.
func AgeFrequency(pop []*agents.Agent) []AgeCount {
	counts := make(map[uint64]int)
	for _, a := range pop {
		counts[a.Age]++
	}

	rows := make([]AgeCount, 0, len(counts))
	for age, n := range counts {
		rows = append(rows, AgeCount{Age: age, Freq: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Age < rows[j].Age
	})
	return rows
}

// Dominant returns the most frequent strategy; ties go to the smaller bit-string.
func Dominant(rows []StrategyCount) (StrategyCount, bool) {
	if len(rows) == 0 {
		return StrategyCount{}, false
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Freq > best.Freq || (r.Freq == best.Freq && r.Strategy < best.Strategy) {
			best = r
		}
	}
	return best, true
}

// Summary aggregates population-level statistics.
type Summary struct {
	Population         int     `json:"population" db:"population"`
	MeanWealth         float64 `json:"mean_wealth" db:"mean_wealth"`
	MinWealth          float64 `json:"min_wealth" db:"min_wealth"`
	MaxWealth          float64 `json:"max_wealth" db:"max_wealth"`
	MeanMemory         float64 `json:"mean_memory" db:"mean_memory"`
	MaxMemory          int     `json:"max_memory" db:"max_memory"`
	MeanAge            float64 `json:"mean_age" db:"mean_age"`
	Cooperation        float64 `json:"cooperation" db:"cooperation"` // share of agents whose last move was cooperate
	DistinctStrategies int     `json:"distinct_strategies" db:"distinct_strategies"`
}

// Summarize computes a Summary. An empty population yields the zero Summary.
func Summarize(pop []*agents.Agent) Summary {
	var s Summary
	if len(pop) == 0 {
		return s
	}

	s.Population = len(pop)
	s.MinWealth = math.Inf(1)
	s.MaxWealth = math.Inf(-1)

	var wealth, memory, age float64
	coop := 0
	distinct := make(map[string]struct{})
	for _, a := range pop {
		wealth += a.Wealth
		memory += float64(a.MemoryLength)
		age += float64(a.Age)
		if a.Wealth < s.MinWealth {
			s.MinWealth = a.Wealth
		}
		if a.Wealth > s.MaxWealth {
			s.MaxWealth = a.Wealth
		}
		if a.MemoryLength > s.MaxMemory {
			s.MaxMemory = a.MemoryLength
		}
		if a.Move == agents.Cooperate {
			coop++
		}
		distinct[a.Strategy.String()] = struct{}{}
	}

	n := float64(len(pop))
	s.MeanWealth = wealth / n
	s.MeanMemory = memory / n
	s.MeanAge = age / n
	s.Cooperation = float64(coop) / n
	s.DistinctStrategies = len(distinct)
	return s
}
