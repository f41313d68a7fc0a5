package action

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/farkleio/tablecore/internal/domain"
)

// FarkleRoller is the reference DiceRoller: standard six-sided Farkle
// dice and the classic scoring table (single 1s/5s, triples, straights).
// No example in the retrieval pack implements dice-game scoring — this
// is game-specific domain logic with no ecosystem library to defer to,
// so it is hand-written against crypto/rand rather than left as a gap.
type FarkleRoller struct {
	idSeq int
}

// NewFarkleRoller returns a ready-to-use reference roller.
func NewFarkleRoller() *FarkleRoller {
	return &FarkleRoller{}
}

// RollDice rolls count six-sided dice, assigning each a stable DieID
// scoped to this roller instance.
func (r *FarkleRoller) RollDice(count int) []domain.Die {
	dice := make([]domain.Die, count)
	for i := 0; i < count; i++ {
		r.idSeq++
		dice[i] = domain.Die{
			DieID: "d" + strconv.Itoa(r.idSeq),
			Sides: 6,
			Value: rollOne(),
		}
	}
	return dice
}

func rollOne() int {
	n, err := rand.Int(rand.Reader, big.NewInt(6))
	if err != nil {
		return 1
	}
	return int(n.Int64()) + 1
}

// ComputeScore computes the Farkle point value of selecting
// selectedDiceIDs out of dice. Unmatched dice (no scoring combination)
// contribute zero — callers reject a selection with zero points where
// the rules require it, this function simply reports the number.
func (r *FarkleRoller) ComputeScore(dice []domain.Die, selectedDiceIDs []string) int {
	selected := make(map[string]struct{}, len(selectedDiceIDs))
	for _, id := range selectedDiceIDs {
		selected[id] = struct{}{}
	}

	counts := make(map[int]int)
	for _, d := range dice {
		if _, ok := selected[d.DieID]; ok {
			counts[d.Value]++
		}
	}

	if isStraight(counts) {
		return 1500
	}

	total := 0
	for value, n := range counts {
		total += scoreOfAKind(value, n)
	}
	return total
}

func isStraight(counts map[int]int) bool {
	if len(counts) != 6 {
		return false
	}
	for v := 1; v <= 6; v++ {
		if counts[v] != 1 {
			return false
		}
	}
	return true
}

func scoreOfAKind(value, n int) int {
	if n >= 3 {
		base := value * 100
		if value == 1 {
			base = 1000
		}
		multiplier := 1 << uint(n-3)
		return base * multiplier
	}
	switch value {
	case 1:
		return n * 100
	case 5:
		return n * 50
	default:
		return 0
	}
}
