package action

import (
	"testing"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
)

// stubRoller returns fixed dice and a points table keyed by the joined
// selected IDs, so tests can pin exact score-mismatch scenarios.
type stubRoller struct {
	dice   []domain.Die
	points map[string]int
}

func (s *stubRoller) RollDice(count int) []domain.Die { return s.dice }
func (s *stubRoller) ComputeScore(dice []domain.Die, selectedDiceIDs []string) int {
	key := ""
	for _, id := range selectedDiceIDs {
		key += id
	}
	return s.points[key]
}

func newAwaitRollSession(now time.Time) *domain.Session {
	s := domain.NewSession("sess-1", "ABCD", domain.RoomKindPrivate, now)
	s.Participants["A"] = &domain.Participant{PlayerID: "A", IsSeated: true, IsReady: true, RemainingDice: 6, JoinedAt: now}
	s.TurnState.ActiveTurnPlayerID = "A"
	s.TurnState.Order = []string{"A"}
	s.TurnState.Phase = domain.PhaseAwaitRoll
	return s
}

func TestProcessTurnActionRejectsWhenNotActivePlayer(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	s.Participants["B"] = &domain.Participant{PlayerID: "B", IsSeated: true}

	result := ProcessTurnAction(s, "B", Payload{Action: "roll"}, &stubRoller{}, now)
	if result.OK {
		t.Fatal("expected rejection for non-active player")
	}
	if result.Reason != "not_your_turn" || !result.Sync {
		t.Errorf("got reason=%q sync=%v, want not_your_turn/true", result.Reason, result.Sync)
	}
}

func TestProcessTurnActionRollAdvancesToAwaitScore(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	roller := &stubRoller{dice: []domain.Die{{DieID: "d1", Value: 6}, {DieID: "d2", Value: 5}, {DieID: "d3", Value: 5}}}

	result := ProcessTurnAction(s, "A", Payload{Action: "roll"}, roller, now)
	if !result.OK {
		t.Fatalf("roll rejected: %s", result.Reason)
	}
	if s.TurnState.Phase != domain.PhaseAwaitScore {
		t.Errorf("phase = %q, want await_score", s.TurnState.Phase)
	}
	if s.TurnState.LastRollSnapshot == nil || len(s.TurnState.LastRollSnapshot.Dice) != 3 {
		t.Fatal("expected a 3-die roll snapshot")
	}
}

func TestProcessTurnActionScoreRejectsRollMismatch(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	roller := &stubRoller{dice: []domain.Die{{DieID: "d1", Value: 5}}}
	_ = ProcessTurnAction(s, "A", Payload{Action: "roll"}, roller, now)

	result := ProcessTurnAction(s, "A", Payload{
		Action: "score", SelectedDiceIDs: []string{"d1"}, Points: 50, RollServerID: "wrong-roll",
	}, roller, now)
	if result.OK || result.Reason != "score_roll_mismatch" {
		t.Fatalf("got ok=%v reason=%q, want score_roll_mismatch", result.OK, result.Reason)
	}
}

func TestProcessTurnActionScoreRejectsPointsMismatch(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	roller := &stubRoller{dice: []domain.Die{{DieID: "d1", Value: 5}, {DieID: "d2", Value: 5}}, points: map[string]int{"d1": 50}}
	rollResult := ProcessTurnAction(s, "A", Payload{Action: "roll"}, roller, now)
	rollID := rollResult.Message["rollSnapshot"].(domain.RollSnapshot).ServerRollID

	result := ProcessTurnAction(s, "A", Payload{
		Action: "score", SelectedDiceIDs: []string{"d1"}, Points: 999, RollServerID: rollID,
	}, roller, now)
	if result.OK || result.Reason != "score_points_mismatch" {
		t.Fatalf("got ok=%v reason=%q, want score_points_mismatch", result.OK, result.Reason)
	}
}

func TestProcessTurnActionScoreSucceedsAndAdvancesPhase(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	roller := &stubRoller{dice: []domain.Die{{DieID: "d1", Value: 5}}, points: map[string]int{"d1": 50}}
	rollResult := ProcessTurnAction(s, "A", Payload{Action: "roll"}, roller, now)
	rollID := rollResult.Message["rollSnapshot"].(domain.RollSnapshot).ServerRollID

	result := ProcessTurnAction(s, "A", Payload{
		Action: "score", SelectedDiceIDs: []string{"d1"}, Points: 50, RollServerID: rollID,
	}, roller, now)
	if !result.OK {
		t.Fatalf("score rejected: %s", result.Reason)
	}
	if s.TurnState.Phase != domain.PhaseReadyToEnd {
		t.Errorf("phase = %q, want ready_to_end", s.TurnState.Phase)
	}
	if s.Participants["A"].Score != 50 {
		t.Errorf("score = %d, want 50", s.Participants["A"].Score)
	}
}

func TestProcessTurnActionScoreCompletingParticipantEndsSessionWithWinner(t *testing.T) {
	now := time.Unix(10_000, 0)
	s := newAwaitRollSession(now)
	s.Participants["A"].RemainingDice = 1
	s.Participants["B"] = &domain.Participant{PlayerID: "B", IsSeated: true, IsReady: true, RemainingDice: 6, JoinedAt: now}
	roller := &stubRoller{dice: []domain.Die{{DieID: "d1", Value: 5}}, points: map[string]int{"d1": 50}}
	rollResult := ProcessTurnAction(s, "A", Payload{Action: "roll"}, roller, now)
	rollID := rollResult.Message["rollSnapshot"].(domain.RollSnapshot).ServerRollID

	result := ProcessTurnAction(s, "A", Payload{
		Action: "score", SelectedDiceIDs: []string{"d1"}, Points: 50, RollServerID: rollID,
	}, roller, now)
	if !result.OK {
		t.Fatalf("score rejected: %s", result.Reason)
	}
	if !result.WinnerResolved {
		t.Error("expected WinnerResolved once the participant empties their dice")
	}
	if !s.Participants["A"].IsComplete {
		t.Error("expected participant A to be marked complete")
	}
	if !s.SessionComplete {
		t.Error("expected the session to be marked complete once a winner is declared")
	}
	if s.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	if s.NextGameStartsAt == nil {
		t.Fatal("expected NextGameStartsAt to be scheduled after the round ends")
	}

	roundComplete, ok := result.Message["roundComplete"].(map[string]interface{})
	if !ok {
		t.Fatal("expected a roundComplete payload on the score message")
	}
	if roundComplete["winnerPlayerId"] != "A" {
		t.Errorf("winnerPlayerId = %v, want A", roundComplete["winnerPlayerId"])
	}

	again := ProcessTurnAction(s, "B", Payload{Action: "roll"}, roller, now)
	if again.OK || again.Reason != "turn_unavailable" {
		t.Fatalf("got ok=%v reason=%q, want turn_unavailable once the session is complete", again.OK, again.Reason)
	}
}

func TestFarkleRollerScoresTriplesAndSingles(t *testing.T) {
	roller := NewFarkleRoller()
	dice := []domain.Die{
		{DieID: "d1", Value: 1}, {DieID: "d2", Value: 1}, {DieID: "d3", Value: 1},
		{DieID: "d4", Value: 5},
	}
	points := roller.ComputeScore(dice, []string{"d1", "d2", "d3", "d4"})
	if points != 1050 {
		t.Errorf("points = %d, want 1050 (triple 1s=1000 + single 5=50)", points)
	}
}

func TestFarkleRollerScoresStraight(t *testing.T) {
	roller := NewFarkleRoller()
	dice := []domain.Die{
		{DieID: "d1", Value: 1}, {DieID: "d2", Value: 2}, {DieID: "d3", Value: 3},
		{DieID: "d4", Value: 4}, {DieID: "d5", Value: 5}, {DieID: "d6", Value: 6},
	}
	ids := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
	if points := roller.ComputeScore(dice, ids); points != 1500 {
		t.Errorf("points = %d, want 1500 for a straight", points)
	}
}
