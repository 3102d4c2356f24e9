// Matchmaking: partner choice within a group, biased toward past partners.
package engine

import (
	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/entropy"
)

const (
	newPartnerWeight    = 1.0
	repeatPartnerWeight = 2.0
)

// PartnerWeights returns the sampling weight of each group member from the
// chooser's point of view: 0 for the chooser itself and anything in exclude,
// 2 for past partners, 1 otherwise.
func PartnerWeights(chooser *agents.Agent, group []*agents.Agent, exclude map[agents.AgentID]bool) []float64 {
	weights := make([]float64, len(group))
	for i, cand := range group {
		switch {
		case cand.ID == chooser.ID, exclude[cand.ID]:
			weights[i] = 0
		case chooser.HasPartnered(cand.ID):
			weights[i] = repeatPartnerWeight
		default:
			weights[i] = newPartnerWeight
		}
	}
	return weights
}

// SelectPartner draws a partner for chooser from its group. Returns nil when the
// group has fewer than two members or every candidate is excluded.
func SelectPartner(src *entropy.Source, chooser *agents.Agent, group []*agents.Agent, exclude map[agents.AgentID]bool) *agents.Agent {
	if len(group) < 2 {
		return nil
	}
	idx := src.WeightedIndex(PartnerWeights(chooser, group, exclude))
	if idx < 0 {
		return nil
	}
	return group[idx]
}

// RecordPairing appends each agent's id to the other's partner history.
func RecordPairing(a, b *agents.Agent) {
	a.PartnerHistory = append(a.PartnerHistory, b.ID)
	b.PartnerHistory = append(b.PartnerHistory, a.ID)
}
