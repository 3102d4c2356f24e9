// Strategy genome: a lookup table indexed by the recent history window.
package agents

import (
	"strings"

	"github.com/talgya/dilemma/internal/entropy"
)

// Strategy maps a decoded history window to a move. Its length is always
// 2^MemoryLength of the owning agent.
type Strategy []Move

// TableSize returns the number of strategy entries for a memory length.
func TableSize(memoryLength int) int {
	return 1 << uint(memoryLength)
}

// RandomStrategy returns a table of uniformly random moves for memoryLength.
func RandomStrategy(src *entropy.Source, memoryLength int) Strategy {
	s := make(Strategy, TableSize(memoryLength))
	for i := range s {
		s[i] = Move(src.Bit())
	}
	return s
}

// Clone returns an independent copy.
func (s Strategy) Clone() Strategy {
	return append(Strategy(nil), s...)
}

// String renders the table as a bit-string, entry 0 first ("0110").
func (s Strategy) String() string {
	var b strings.Builder
	b.Grow(len(s))
	for _, m := range s {
		b.WriteByte('0' + byte(m))
	}
	return b.String()
}

// ParseStrategy is the inverse of String. Characters other than '0' and '1'
// yield ok == false.
func ParseStrategy(bits string) (Strategy, bool) {
	s := make(Strategy, len(bits))
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '0':
			s[i] = Cooperate
		case '1':
			s[i] = Defect
		default:
			return nil, false
		}
	}
	return s, true
}

// RecentHistory returns the last MemoryLength entries of history, or the whole
// history if it is shorter.
func (a *Agent) RecentHistory() []Move {
	if len(a.History) <= a.MemoryLength {
		return a.History
	}
	return a.History[len(a.History)-a.MemoryLength:]
}

// DecodeWindow interprets moves as a binary number, first element most significant.
func DecodeWindow(window []Move) int {
	idx := 0
	for _, m := range window {
		idx = idx<<1 | int(m)
	}
	return idx
}

// DecideMove looks up the strategy entry for the recent history window and,
// with probability probErr, plays the opposite (trembling hand). The result is
// stored in a.Move and returned.
func (a *Agent) DecideMove(src *entropy.Source, probErr float64) Move {
	a.mustHoldInvariants()

	move := a.Strategy[DecodeWindow(a.RecentHistory())]
	if src.Chance(probErr) {
		move = move.Flip()
	}
	a.Move = move
	return move
}

// Record appends one round to the history: own move first, partner's second.
func (a *Agent) Record(own, partner Move) {
	a.History = append(a.History, own, partner)
}
