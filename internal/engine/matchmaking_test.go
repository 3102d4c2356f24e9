package engine

import (
	"testing"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/entropy"
)

func group(n int) []*agents.Agent {
	g := make([]*agents.Agent, n)
	for i := range g {
		g[i] = fixedAgent(agents.AgentID(i+1), "00", agents.Cooperate)
	}
	return g
}

func TestPartnerWeights(t *testing.T) {
	g := group(4)
	chooser := g[0]
	chooser.PartnerHistory = []agents.AgentID{3}

	w := PartnerWeights(chooser, g, map[agents.AgentID]bool{4: true})
	want := []float64{0, 1, 2, 0}
	for i := range want {
		if w[i] != want[i] {
			t.Fatalf("weights %v, want %v", w, want)
		}
	}
}

func TestSelectPartnerNeverSelf(t *testing.T) {
	src := entropy.New(42)
	g := group(3)
	for i := 0; i < 500; i++ {
		p := SelectPartner(src, g[1], g, nil)
		if p == nil || p.ID == g[1].ID {
			t.Fatalf("bad partner %v", p)
		}
	}
}

func TestSelectPartnerSmallGroup(t *testing.T) {
	src := entropy.New(1)
	g := group(1)
	if p := SelectPartner(src, g[0], g, nil); p != nil {
		t.Fatalf("lone agent must not be matched, got %d", p.ID)
	}
	if p := SelectPartner(src, g[0], nil, nil); p != nil {
		t.Fatal("empty group must not produce a partner")
	}
}

func TestSelectPartnerAllExcluded(t *testing.T) {
	g := group(2)
	if p := SelectPartner(entropy.New(1), g[0], g, map[agents.AgentID]bool{2: true}); p != nil {
		t.Fatalf("expected nil, got %d", p.ID)
	}
}

func TestSelectPartnerPrefersRepeatPartners(t *testing.T) {
	src := entropy.New(7)
	g := group(3)
	chooser := g[0]
	chooser.PartnerHistory = []agents.AgentID{2}

	counts := map[agents.AgentID]int{}
	const n = 30000
	for i := 0; i < n; i++ {
		counts[SelectPartner(src, chooser, g, nil).ID]++
	}
	ratio := float64(counts[2]) / float64(counts[3])
	if ratio < 1.8 || ratio > 2.2 {
		t.Fatalf("repeat partner should be drawn ~2x as often, ratio %.3f (%v)", ratio, counts)
	}
}

func TestRecordPairing(t *testing.T) {
	g := group(2)
	RecordPairing(g[0], g[1])
	if !g[0].HasPartnered(2) || !g[1].HasPartnered(1) {
		t.Fatal("pairing must be recorded on both sides")
	}
}
