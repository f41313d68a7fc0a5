// Package turn implements the per-session turn-order/phase state
// machine: the central reconciler that runs after any mutation that
// could change who should be playing, plus turn advancement and score
// application.
package turn

import (
	"sort"
	"time"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
)

// DefaultTurnTimeout is used when a session's turn state has no timeout
// configured yet.
const DefaultTurnTimeout = 20 * time.Second

// RoundCompletionCooldown is how far after a round's winner is declared
// the session's NextGameStartsAt is set. Queueing into the next game does
// not wait for it.
const RoundCompletionCooldown = 15 * time.Second

// EnsureSessionTurnState is the central reconciler. It is idempotent:
// calling it twice in a row on the same session produces the same
// result both times.
func EnsureSessionTurnState(session *domain.Session, now time.Time) {
	ts := &session.TurnState

	eligible := eligibleOrder(session, ts)

	wasActiveComplete := false
	if ts.ActiveTurnPlayerID != "" {
		if p, ok := session.Participants[ts.ActiveTurnPlayerID]; ok && p.IsComplete && ts.Phase == domain.PhaseReadyToEnd {
			wasActiveComplete = true
		}
	}
	if wasActiveComplete && !containsID(eligible, ts.ActiveTurnPlayerID) {
		eligible = append([]string{ts.ActiveTurnPlayerID}, eligible...)
	}

	ts.Order = reorderPreservingPrevious(ts.Order, eligible)

	turnFlowReady := computeTurnFlowReady(session)

	if ts.ActiveTurnPlayerID != "" && !containsID(ts.Order, ts.ActiveTurnPlayerID) {
		ts.ActiveTurnPlayerID = ""
	}
	if ts.ActiveTurnPlayerID == "" {
		if len(ts.Order) > 0 {
			ts.ActiveTurnPlayerID = ts.Order[0]
		} else {
			ts.Phase = domain.PhaseAwaitRoll
			ts.LastRollSnapshot = nil
			ts.LastScoreSummary = nil
			ts.TurnExpiresAt = nil
			ts.UpdatedAt = now
			return
		}
	}

	repairPhase(ts)

	if turnFlowReady && ts.TurnExpiresAt == nil {
		timeout := time.Duration(ts.TurnTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = DefaultTurnTimeout
			ts.TurnTimeoutMs = timeout.Milliseconds()
		}
		expires := now.Add(timeout)
		ts.TurnExpiresAt = &expires
	}

	ts.UpdatedAt = now
}

// eligibleOrder implements reconciler step 1: seated, non-complete,
// non-queued-for-next-game, join order as tie-breaker after playerId
// lexicographic order.
func eligibleOrder(session *domain.Session, ts *domain.TurnState) []string {
	type candidate struct {
		id string
		joinedAt time.Time
	}
	var candidates []candidate
	for id, p := range session.Participants {
		if !p.EligibleForTurnOrder() {
			continue
		}
		candidates = append(candidates, candidate{id: id, joinedAt: p.JoinedAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].id != candidates[j].id {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].joinedAt.Before(candidates[j].joinedAt)
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// computeTurnFlowReady implements reconciler step 2.
func computeTurnFlowReady(session *domain.Session) bool {
	hasSeatedNonBot := false
	allReady := true
	for _, p := range session.Participants {
		if p.IsBot || !p.IsSeated {
			continue
		}
		hasSeatedNonBot = true
		if !p.IsReady {
			allReady = false
		}
	}
	if hasSeatedNonBot {
		return allReady
	}
	return session.DemoAutoRun
}

// reorderPreservingPrevious implements reconciler step 3: keep the
// relative order of members that still qualify, append new members.
func reorderPreservingPrevious(previous, eligible []string) []string {
	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(eligible))

	out := make([]string, 0, len(eligible))
	for _, id := range previous {
		if _, ok := eligibleSet[id]; ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	for _, id := range eligible {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// repairPhase implements reconciler step 5.
func repairPhase(ts *domain.TurnState) {
	if ts.Phase == domain.PhaseAwaitScore && ts.LastRollSnapshot == nil {
		ts.Phase = domain.PhaseAwaitRoll
	}
	if ts.Phase == domain.PhaseReadyToEnd && ts.LastScoreSummary == nil {
		ts.Phase = domain.PhaseAwaitScore
	}
	if ts.Phase == domain.PhaseReadyToEnd && ts.LastRollSnapshot != nil &&
		ts.LastScoreSummary != nil && ts.LastScoreSummary.RollServerID != ts.LastRollSnapshot.ServerRollID {
		ts.Phase = domain.PhaseAwaitScore
		ts.LastScoreSummary = nil
	}
}

func containsID(order []string, id string) bool {
	for _, o := range order {
		if o == id {
			return true
		}
	}
	return false
}

// AdvanceSessionTurn validates endedBy is the active player, advances to
// the next non-complete participant cyclically, and returns both
// envelopes atomically. A non-nil err means the caller should not
// broadcast anything.
func AdvanceSessionTurn(session *domain.Session, endedBy string, now time.Time) (turnEnd, turnStart map[string]interface{}, err error) {
	ts := &session.TurnState
	if ts.ActiveTurnPlayerID == "" || ts.ActiveTurnPlayerID != endedBy {
		return nil, nil, apperr.ErrTurnAdvanceFailed
	}

	priorIndex := ts.IndexInOrder(endedBy)
	turnEnd = BuildTurnEndMessage(session, endedBy, now)

	if session.SessionComplete {
		ts.ActiveTurnPlayerID = ""
		ts.Phase = domain.PhaseAwaitRoll
		ts.LastRollSnapshot = nil
		ts.LastScoreSummary = nil
		ts.TurnExpiresAt = nil
		ts.UpdatedAt = now
		return turnEnd, nil, nil
	}

	next, nextIndex := nextNonComplete(session, ts.Order, priorIndex)
	if next == "" {
		session.SessionComplete = true
		completed := now
		session.CompletedAt = &completed
		ts.ActiveTurnPlayerID = ""
		ts.Phase = domain.PhaseAwaitRoll
		ts.LastRollSnapshot = nil
		ts.LastScoreSummary = nil
		ts.TurnExpiresAt = nil
		ts.UpdatedAt = now
		return turnEnd, nil, nil
	}

	if nextIndex <= priorIndex {
		ts.Round++
	}
	ts.TurnNumber++
	ts.ActiveTurnPlayerID = next
	ts.Phase = domain.PhaseAwaitRoll
	ts.LastRollSnapshot = nil
	ts.LastScoreSummary = nil
	ts.TurnExpiresAt = nil
	ts.UpdatedAt = now

	turnStart = BuildTurnStartMessage(session, now)
	return turnEnd, turnStart, nil
}

func nextNonComplete(session *domain.Session, order []string, fromIndex int) (string, int) {
	if len(order) == 0 {
		return "", -1
	}
	for step := 1; step <= len(order); step++ {
		idx := (fromIndex + step) % len(order)
		id := order[idx]
		if p, ok := session.Participants[id]; ok && !p.IsComplete {
			return id, idx
		}
	}
	return "", -1
}

// ApplyParticipantScoreUpdate applies the remaining-dice formula and
// the resulting completion transition.
func ApplyParticipantScoreUpdate(p *domain.Participant, summary domain.ScoreSummary, rollDiceCount int, now time.Time) {
	p.Score += summary.Points
	baseline := p.RemainingDice
	if rollDiceCount > baseline {
		baseline = rollDiceCount
	}
	remaining := baseline - len(summary.SelectedDiceIDs)
	if remaining < 0 {
		remaining = 0
	}
	p.RemainingDice = remaining
	if p.RemainingDice == 0 {
		p.IsComplete = true
		completed := now
		p.CompletedAt = &completed
	}
}

// CompleteSessionRoundWithWinner ends session's round immediately in
// favor of winnerPlayerID — the first participant to clear their dice —
// rather than waiting for every participant to complete in turn order.
// It marks the session complete, sets NextGameStartsAt to
// RoundCompletionCooldown from now, and returns the round_complete wire
// envelope.
func CompleteSessionRoundWithWinner(session *domain.Session, winnerPlayerID string, now time.Time) map[string]interface{} {
	session.SessionComplete = true
	completed := now
	session.CompletedAt = &completed
	nextGame := now.Add(RoundCompletionCooldown)
	session.NextGameStartsAt = &nextGame

	return map[string]interface{}{
		"type": "round_complete",
		"sessionId": session.SessionID,
		"winnerPlayerId": winnerPlayerID,
		"round": session.TurnState.Round,
		"completedAt": completed,
		"nextGameStartsAt": nextGame,
	}
}

// BuildTurnStartMessage produces the turn_start wire envelope.
func BuildTurnStartMessage(session *domain.Session, now time.Time) map[string]interface{} {
	ts := session.TurnState
	return map[string]interface{}{
		"type": "turn_start",
		"sessionId": session.SessionID,
		"playerId": ts.ActiveTurnPlayerID,
		"round": ts.Round,
		"turnNumber": ts.TurnNumber,
		"phase": ts.Phase,
		"turnExpiresAt": ts.TurnExpiresAt,
		"timestamp": now,
	}
}

// BuildTurnEndMessage produces the turn_end wire envelope.
func BuildTurnEndMessage(session *domain.Session, endedBy string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"type": "turn_end",
		"sessionId": session.SessionID,
		"playerId": endedBy,
		"round": session.TurnState.Round,
		"timestamp": now,
	}
}
