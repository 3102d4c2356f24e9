// Agent spawning: the initial population and clones produced by turnover.
package agents

import "github.com/talgya/dilemma/internal/entropy"

// Spawner creates agents and owns the monotonic id allocator.
type Spawner struct {
	src       *entropy.Source
	numGroups int
	nextID    AgentID
}

// NewSpawner creates a spawner drawing from src. numGroups < 1 is treated as 1.
func NewSpawner(src *entropy.Source, numGroups int) *Spawner {
	if numGroups < 1 {
		numGroups = 1
	}
	return &Spawner{
		src:       src,
		numGroups: numGroups,
		nextID:    1,
	}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the id the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

func (s *Spawner) allocID() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// SpawnPopulation creates count fresh agents.
func (s *Spawner) SpawnPopulation(count int, tick uint64) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, s.spawnOne(tick))
	}
	return agents
}

func (s *Spawner) spawnOne(tick uint64) *Agent {
	a := &Agent{
		ID:           s.allocID(),
		MemoryLength: 1,
		BornTick:     tick,
	}

	// One random bit of history so the first move can be decided.
	a.History = []Move{Move(s.src.Bit())}
	a.Strategy = RandomStrategy(s.src, a.MemoryLength)
	a.Move = Move(s.src.Bit())

	if s.numGroups > 1 {
		a.Group = s.src.Intn(s.numGroups)
	}

	a.mustHoldInvariants()
	return a
}

// SpawnChild clones parent under a fresh id. The child inherits group, genome,
// history, partner history, and current move by value, and starts with zero
// age and zero wealth.
func (s *Spawner) SpawnChild(parent *Agent, tick uint64) *Agent {
	child := parent.Clone()
	child.ID = s.allocID()
	child.Age = 0
	child.Wealth = 0
	child.BornTick = tick
	return child
}
