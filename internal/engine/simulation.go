// World ties together the population, the random source, and the per-tick
// systems: matchmaking, matches, mutation, and turnover.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/entropy"
)

// World holds the complete simulation state. It is not safe for concurrent
// use; wrap it in an Engine when other goroutines need to read it.
type World struct {
	cfg     config.WorldConfig
	src     *entropy.Source
	spawner *agents.Spawner

	agents     []*agents.Agent
	agentIndex map[agents.AgentID]*agents.Agent

	tick uint64 // ticks completed

	// Stats for the most recently completed tick.
	Stats TickStats
}

// TickStats counts what happened during one tick.
type TickStats struct {
	Tick         uint64 `json:"tick"`
	Matches      int    `json:"matches"`
	Rounds       int    `json:"rounds"`
	Cooperations int    `json:"cooperations"` // individual cooperative moves
	MutualCoop   int    `json:"mutual_coop"`
	Unmatched    int    `json:"unmatched"` // partner slots that found nobody
	PointMuts    int    `json:"point_mutations"`
	SplitMuts    int    `json:"split_mutations"`
	DupliMuts    int    `json:"duplicate_mutations"`
	Removed      int    `json:"removed"`
	Spawned      int    `json:"spawned"`
}

// CooperationRate returns the share of cooperative moves played this tick.
func (t TickStats) CooperationRate() float64 {
	if t.Rounds == 0 {
		return 0
	}
	return float64(t.Cooperations) / float64(2*t.Rounds)
}

// NewWorld validates cfg and creates the initial population from seed
// (0 = draw a seed).
func NewWorld(cfg config.WorldConfig, seed int64) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new world: %w", err)
	}

	src := entropy.New(seed)
	w := &World{
		cfg:     cfg,
		src:     src,
		spawner: agents.NewSpawner(src, cfg.NumGroups),
	}
	w.agents = w.spawner.SpawnPopulation(cfg.Population, 0)
	w.reindex()

	slog.Debug("world created",
		"seed", src.Seed(),
		"population", cfg.Population,
		"groups", cfg.NumGroups,
	)
	return w, nil
}

// Config returns the parameters the world was built with.
func (w *World) Config() config.WorldConfig {
	return w.cfg
}

// Seed returns the resolved seed of the world's random source.
func (w *World) Seed() int64 {
	return w.src.Seed()
}

// CurrentTick returns the number of completed ticks.
func (w *World) CurrentTick() uint64 {
	return w.tick
}

// Agents returns the live population. Callers must not modify it.
func (w *World) Agents() []*agents.Agent {
	return w.agents
}

// Agent looks up a live agent by id.
func (w *World) Agent(id agents.AgentID) (*agents.Agent, bool) {
	a, ok := w.agentIndex[id]
	return a, ok
}

// Tick advances the world by one step: every agent, in a fresh random order,
// plays its matches and risks mutation; then one turnover pass runs.
func (w *World) Tick() TickStats {
	w.tick++
	stats := TickStats{Tick: w.tick}

	// Play phase. Group membership cannot change until turnover.
	groups := w.groupMembers()
	for _, i := range w.src.Perm(len(w.agents)) {
		a := w.agents[i]
		w.act(a, groups[a.Group], &stats)
	}

	// Turnover phase.
	w.turnover(&stats)

	w.Stats = stats
	slog.Debug("tick complete",
		"tick", stats.Tick,
		"matches", stats.Matches,
		"cooperation", fmt.Sprintf("%.3f", stats.CooperationRate()),
		"removed", stats.Removed,
		"spawned", stats.Spawned,
	)
	return stats
}

// Run advances n ticks, calling onTick (if non-nil) after each.
func (w *World) Run(n int, onTick func(w *World)) {
	for i := 0; i < n; i++ {
		w.Tick()
		if onTick != nil {
			onTick(w)
		}
	}
}

// act plays one agent's turn: partner slots, then mutation, then ageing.
func (w *World) act(a *agents.Agent, group []*agents.Agent, stats *TickStats) {
	var drawn map[agents.AgentID]bool
	if w.cfg.DistinctPartners {
		drawn = make(map[agents.AgentID]bool, w.cfg.PartnersPerRound)
	}

	for p := 0; p < w.cfg.PartnersPerRound; p++ {
		partner := SelectPartner(w.src, a, group, drawn)
		if partner == nil {
			stats.Unmatched += w.cfg.PartnersPerRound - p
			break
		}
		if drawn != nil {
			drawn[partner.ID] = true
		}

		RecordPairing(a, partner)
		res := PlayMatch(w.src, a, partner, w.cfg.NumRounds, w.cfg.ProbErr)

		stats.Matches++
		stats.Rounds += res.Rounds
		stats.Cooperations += res.Cooperations
		stats.MutualCoop += res.MutualCoop
	}

	m := a.RiskMutation(w.src, agents.MutationRates{
		Point:     w.cfg.ProbPoint,
		Split:     w.cfg.ProbSplit,
		Duplicate: w.cfg.ProbDupli,
	})
	if m.Point {
		stats.PointMuts++
	}
	if m.Split {
		stats.SplitMuts++
	}
	if m.Duplicate {
		stats.DupliMuts++
	}

	a.Age++
}

func (w *World) turnover(stats *TickStats) {
	k := TurnoverCount(w.cfg.Population, w.cfg.TurnoverRate)
	before := len(w.agents)

	next, res := Turnover(w.agents, k, func(parent *agents.Agent) *agents.Agent {
		return w.spawner.SpawnChild(parent, w.tick)
	})
	if len(next) != before {
		panic(fmt.Sprintf("engine: turnover changed population from %d to %d", before, len(next)))
	}

	w.agents = next
	for _, a := range res.Removed {
		delete(w.agentIndex, a.ID)
	}
	for _, a := range res.Spawned {
		w.agentIndex[a.ID] = a
	}
	stats.Removed = len(res.Removed)
	stats.Spawned = len(res.Spawned)
}

// groupMembers returns the live agents of each group, in population order.
func (w *World) groupMembers() [][]*agents.Agent {
	groups := make([][]*agents.Agent, w.cfg.NumGroups)
	for _, a := range w.agents {
		groups[a.Group] = append(groups[a.Group], a)
	}
	return groups
}

func (w *World) reindex() {
	w.agentIndex = make(map[agents.AgentID]*agents.Agent, len(w.agents))
	for _, a := range w.agents {
		w.agentIndex[a.ID] = a
	}
}
