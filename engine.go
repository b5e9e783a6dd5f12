/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"
)

const maxSpeechLength = 200

// Engine implements role assignment, turn sequencing, vote resolution,
// and win-condition evaluation. It owns the only RNG in the game so
// tests can seed it; callers must hold the room lock.
type Engine struct {
	mu      sync.Mutex
	rng     *rand.Rand
	catalog *WordCatalog

	baseSpeakTime time.Duration
	baseVoteTime  time.Duration
}

func newEngine(catalog *WordCatalog, speakTime, voteTime time.Duration, seed int64) *Engine {
	return &Engine{
		rng:           rand.New(rand.NewSource(seed)),
		catalog:       catalog,
		baseSpeakTime: speakTime,
		baseVoteTime:  voteTime,
	}
}

// undercoverCountFor is the classic-mode step function.
func undercoverCountFor(totalPlayers int) int {
	switch {
	case totalPlayers <= 4:
		return 1
	case totalPlayers <= 7:
		return 2
	default:
		return 3
	}
}

func blankCountFor(totalPlayers int) int {
	if totalPlayers >= 6 {
		return 1
	}

	return 0
}

// adjustForModeLocked derives role counts and phase time limits from the
// configured game mode. Counts are deterministic for a given player
// count and mode; times are floored at 30s/15s.
func (e *Engine) adjustForModeLocked(room *Room) {
	mode := room.settings.GameMode
	if mode == "" {
		mode = ModeClassic
	}
	room.gameMode = mode

	total := len(room.players)
	room.speakTime = e.baseSpeakTime
	room.voteTime = e.baseVoteTime

	switch mode {
	case ModeHappy:
		room.undercoverCount = undercoverCountFor(total)
		room.blankCount = max(1, blankCountFor(total))
		room.speakTime = e.baseSpeakTime * 8 / 10
		room.voteTime = e.baseVoteTime * 8 / 10
	case ModeAdvanced:
		room.undercoverCount = min(3, undercoverCountFor(total)+1)
		room.blankCount = blankCountFor(total)
		room.speakTime = e.baseSpeakTime * 12 / 10
		room.voteTime = e.baseVoteTime * 12 / 10
	case ModeTeam:
		room.undercoverCount = 2
		room.blankCount = 0
	default:
		room.undercoverCount = undercoverCountFor(total)
		room.blankCount = blankCountFor(total)
	}

	room.speakTime = max(30*time.Second, room.speakTime)
	room.voteTime = max(15*time.Second, room.voteTime)
}

// AssignRoles deals roles and words to a waiting room. Player order and
// the role sequence are shuffled independently, so the players->roles
// mapping is a uniform random bijection. Speaking order follows the
// post-shuffle player order.
func (e *Engine) AssignRoles(room *Room) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.adjustForModeLocked(room)

	pair := e.catalog.Pick(e.rng)
	room.words = &pair

	players := room.playersInOrderLocked()
	e.rng.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})

	roles := make([]Role, 0, len(players))
	for i := 0; i < room.undercoverCount; i++ {
		roles = append(roles, RoleUndercover)
	}
	for i := 0; i < room.blankCount; i++ {
		roles = append(roles, RoleBlank)
	}
	for len(roles) < len(players) {
		roles = append(roles, RoleCivilian)
	}
	e.rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	for i, p := range players {
		p.Role = roles[i]
		switch roles[i] {
		case RoleCivilian:
			p.Word = pair.Civilian
		case RoleUndercover:
			p.Word = pair.Undercover
		default:
			p.Word = ""
		}
	}

	room.speakingOrder = make([]string, len(players))
	for i, p := range players {
		room.speakingOrder[i] = p.UserID
	}
	room.currentSpeakerIndex = 0
	room.currentPhase = PhaseRoleAssignment
	room.phaseStart = time.Now()
}

// CurrentSpeaker returns the id of the player whose turn it is, or
// false once the speaking order is exhausted. Players who died or left
// mid-round are skipped so their seat never blocks the turn.
func (e *Engine) CurrentSpeaker(room *Room) (string, bool) {
	for room.currentSpeakerIndex < len(room.speakingOrder) {
		id := room.speakingOrder[room.currentSpeakerIndex]
		if p, ok := room.players[id]; ok && p.Alive {
			return id, true
		}
		room.currentSpeakerIndex++
	}

	return "", false
}

// NextSpeaker advances the turn and returns the new speaker, or false
// if speaking is over.
func (e *Engine) NextSpeaker(room *Room) (string, bool) {
	room.currentSpeakerIndex++

	return e.CurrentSpeaker(room)
}

// StartNewRound begins the next speaking round. The speaking order is
// recomputed from scratch as a fresh permutation of the players still
// alive, never patched incrementally.
func (e *Engine) StartNewRound(room *Room) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room.currentRound++
	room.currentSpeakerIndex = 0
	room.votes = make(map[string]string)
	room.currentPhase = PhaseSpeaking
	room.phaseStart = time.Now()

	alive := room.alivePlayersLocked()
	for _, p := range alive {
		p.HasSpoken = false
	}

	e.rng.Shuffle(len(alive), func(i, j int) {
		alive[i], alive[j] = alive[j], alive[i]
	})

	room.speakingOrder = make([]string, len(alive))
	for i, p := range alive {
		room.speakingOrder[i] = p.UserID
	}
}

// CountVotes tallies the current round's votes per target.
func (e *Engine) CountVotes(room *Room) map[string]int {
	counts := make(map[string]int)
	for _, target := range room.votes {
		counts[target]++
	}

	return counts
}

// EliminatedPlayer resolves the vote: the target with the most votes
// falls; ties are broken uniformly at random, with no re-vote. Returns
// false if no votes were cast.
func (e *Engine) EliminatedPlayer(room *Room) (string, Role, bool) {
	counts := e.CountVotes(room)
	if len(counts) == 0 {
		return "", RoleUnassigned, false
	}

	maxVotes := 0
	for _, count := range counts {
		if count > maxVotes {
			maxVotes = count
		}
	}

	// Iterate in join order so the candidate list is deterministic
	// before the random draw.
	candidates := make([]string, 0, len(counts))
	for _, id := range room.order {
		if counts[id] == maxVotes {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", RoleUnassigned, false
	}

	e.mu.Lock()
	eliminated := candidates[e.rng.Intn(len(candidates))]
	e.mu.Unlock()

	return eliminated, room.players[eliminated].Role, true
}

// EliminatePlayer marks the player dead and logs the round they fell.
// If they were mid-turn during speaking, the turn passes through the
// speaker sequence's skip of dead seats.
func (e *Engine) EliminatePlayer(room *Room, userID string) bool {
	p, ok := room.players[userID]
	if !ok {
		return false
	}

	p.Alive = false
	room.eliminated = append(room.eliminated, Elimination{
		UserID: userID,
		Role:   p.Role,
		Round:  room.currentRound,
	})

	return true
}

// CheckGameEnd evaluates the win conditions in precedence order and
// returns the winning faction, or false while the game continues.
// Blanks count toward the civilian side of the outnumber check but are
// not a faction of their own.
func (e *Engine) CheckGameEnd(room *Room) (Role, bool) {
	var civilians, undercovers, blanks int

	for _, p := range room.players {
		if !p.Alive {
			continue
		}
		switch p.Role {
		case RoleCivilian:
			civilians++
		case RoleUndercover:
			undercovers++
		case RoleBlank:
			blanks++
		}
	}

	switch {
	case undercovers == 0:
		return RoleCivilian, true
	case undercovers >= civilians+blanks:
		return RoleUndercover, true
	case civilians == 0:
		return RoleUndercover, true
	}

	return RoleUnassigned, false
}

// ValidateSpeech enforces the 1-200 character limit, counted in
// characters rather than bytes.
func validateSpeech(content string) error {
	length := utf8.RuneCountInString(content)
	if length == 0 || length > maxSpeechLength {
		return errValidationFailed
	}

	return nil
}
