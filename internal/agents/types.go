// Package agents provides the agent data model: identity, group membership, the
// variable-length strategy genome, play history, and the mutation operators.
package agents

import "fmt"

// AgentID is a unique identifier for an agent. Allocated monotonically, never reused.
type AgentID uint64

// Move is a single play in the dilemma.
type Move uint8

const (
	Cooperate Move = 0
	Defect    Move = 1
)

// Flip returns the opposite move.
func (m Move) Flip() Move {
	return 1 - m
}

func (m Move) String() string {
	if m == Cooperate {
		return "C"
	}
	return "D"
}

// Agent is a player in the population.
type Agent struct {
	ID    AgentID `json:"id"`
	Group int     `json:"group"` // fixed at creation, inherited by clones

	// Genome. MemoryLength and Strategy only change together, via setGenome.
	MemoryLength int      `json:"memory_length"`
	Strategy     Strategy `json:"strategy"`

	// Play history: own and partner moves interleaved, append-only.
	History        []Move    `json:"history"`
	PartnerHistory []AgentID `json:"partner_history"`
	Move           Move      `json:"move"` // most recent move; authoritative for the round engine

	Wealth float64 `json:"wealth"`
	Age    uint64  `json:"age"` // ticks survived

	// Metadata
	BornTick uint64 `json:"born_tick"`
}

// Clone returns a deep copy of a. Slices are never shared with the original.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Strategy = a.Strategy.Clone()
	c.History = append([]Move(nil), a.History...)
	c.PartnerHistory = append([]AgentID(nil), a.PartnerHistory...)
	return &c
}

// HasPartnered reports whether id appears in the agent's partner history.
func (a *Agent) HasPartnered(id AgentID) bool {
	for _, p := range a.PartnerHistory {
		if p == id {
			return true
		}
	}
	return false
}

// CheckInvariants returns an error describing the first violated genome invariant.
func (a *Agent) CheckInvariants() error {
	if a.MemoryLength < 1 {
		return fmt.Errorf("agent %d: memory length %d < 1", a.ID, a.MemoryLength)
	}
	if want := TableSize(a.MemoryLength); len(a.Strategy) != want {
		return fmt.Errorf("agent %d: strategy length %d, want 2^%d = %d",
			a.ID, len(a.Strategy), a.MemoryLength, want)
	}
	if len(a.History) < a.MemoryLength {
		return fmt.Errorf("agent %d: history length %d shorter than memory length %d",
			a.ID, len(a.History), a.MemoryLength)
	}
	return nil
}

// mustHoldInvariants panics on a corrupted genome. Such state is a programming
// error in the mutation operators and is never repaired.
func (a *Agent) mustHoldInvariants() {
	if err := a.CheckInvariants(); err != nil {
		panic("agents: " + err.Error())
	}
}

// setGenome replaces memory length and strategy in one step.
func (a *Agent) setGenome(memoryLength int, strategy Strategy) {
	if len(strategy) != TableSize(memoryLength) {
		panic(fmt.Sprintf("agents: agent %d: strategy length %d does not match memory length %d",
			a.ID, len(strategy), memoryLength))
	}
	a.MemoryLength = memoryLength
	a.Strategy = strategy
}
