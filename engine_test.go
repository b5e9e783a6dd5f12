/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(seed int64) *Engine {
	return newEngine(newWordCatalog(), time.Minute, 30*time.Second, seed)
}

func testRoom(n int) *Room {
	room := newRoom(1, "u1", time.Minute, 30*time.Second)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("u%d", i)
		room.addPlayerLocked(newPlayer(id, "player"+id))
	}

	return room
}

func TestRoleCountStepFunction(t *testing.T) {
	cases := []struct {
		players     int
		undercovers int
		blanks      int
	}{
		{3, 1, 0},
		{4, 1, 0},
		{5, 2, 0},
		{6, 2, 1},
		{7, 2, 1},
		{8, 3, 1},
		{9, 3, 1},
		{10, 3, 1},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.undercovers, undercoverCountFor(tc.players), "players=%d", tc.players)
		assert.Equal(t, tc.blanks, blankCountFor(tc.players), "players=%d", tc.players)
	}
}

func TestModeAdjustments(t *testing.T) {
	engine := testEngine(1)

	for _, tc := range []struct {
		mode        GameMode
		undercovers int
		blanks      int
		speak       time.Duration
		vote        time.Duration
	}{
		{ModeClassic, 2, 1, time.Minute, 30 * time.Second},
		{ModeHappy, 2, 1, 48 * time.Second, 24 * time.Second},
		{ModeAdvanced, 3, 1, 72 * time.Second, 36 * time.Second},
		{ModeTeam, 2, 0, time.Minute, 30 * time.Second},
	} {
		room := testRoom(6)
		room.settings.GameMode = tc.mode

		engine.adjustForModeLocked(room)

		assert.Equal(t, tc.undercovers, room.undercoverCount, "mode=%s", tc.mode)
		assert.Equal(t, tc.blanks, room.blankCount, "mode=%s", tc.mode)
		assert.Equal(t, tc.speak, room.speakTime, "mode=%s", tc.mode)
		assert.Equal(t, tc.vote, room.voteTime, "mode=%s", tc.mode)
	}
}

func TestModeTimeFloors(t *testing.T) {
	engine := newEngine(newWordCatalog(), 30*time.Second, 15*time.Second, 1)

	room := testRoom(4)
	room.settings.GameMode = ModeHappy

	engine.adjustForModeLocked(room)

	assert.Equal(t, 30*time.Second, room.speakTime)
	assert.Equal(t, 15*time.Second, room.voteTime)
}

func TestAssignRolesDealsExactCounts(t *testing.T) {
	for n := 3; n <= 10; n++ {
		engine := testEngine(int64(n))
		room := testRoom(n)

		engine.AssignRoles(room)

		counts := make(map[Role]int)
		for _, p := range room.players {
			counts[p.Role]++

			switch p.Role {
			case RoleCivilian:
				assert.Equal(t, room.words.Civilian, p.Word)
			case RoleUndercover:
				assert.Equal(t, room.words.Undercover, p.Word)
			case RoleBlank:
				assert.Empty(t, p.Word)
			}
		}

		assert.Equal(t, room.undercoverCount, counts[RoleUndercover], "players=%d", n)
		assert.Equal(t, room.blankCount, counts[RoleBlank], "players=%d", n)
		assert.Equal(t, n, counts[RoleCivilian]+counts[RoleUndercover]+counts[RoleBlank], "players=%d", n)

		seen := make(map[string]bool)
		for _, id := range room.speakingOrder {
			assert.False(t, seen[id], "duplicate speaker %s", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
		assert.Equal(t, PhaseRoleAssignment, room.currentPhase)
	}
}

func TestSpeakerSequenceVisitsEveryoneOnce(t *testing.T) {
	engine := testEngine(7)
	room := testRoom(5)

	engine.AssignRoles(room)
	engine.StartNewRound(room)

	seen := make(map[string]bool)

	speaker, ok := engine.CurrentSpeaker(room)
	require.True(t, ok)
	seen[speaker] = true

	for {
		next, more := engine.NextSpeaker(room)
		if !more {
			break
		}
		assert.False(t, seen[next], "speaker %s repeated", next)
		seen[next] = true
	}

	assert.Len(t, seen, 5)

	_, ok = engine.CurrentSpeaker(room)
	assert.False(t, ok)
}

func TestStartNewRoundUsesOnlyAlivePlayers(t *testing.T) {
	engine := testEngine(3)
	room := testRoom(5)

	engine.AssignRoles(room)
	engine.StartNewRound(room)

	room.players["u3"].Alive = false
	engine.StartNewRound(room)

	assert.Equal(t, 2, room.currentRound)
	assert.Len(t, room.speakingOrder, 4)
	assert.NotContains(t, room.speakingOrder, "u3")
	assert.Equal(t, PhaseSpeaking, room.currentPhase)
	assert.Empty(t, room.votes)
}

func TestEliminatedPlayerNoVotes(t *testing.T) {
	engine := testEngine(1)
	room := testRoom(4)

	_, _, ok := engine.EliminatedPlayer(room)
	assert.False(t, ok)
}

func TestEliminatedPlayerUniqueMax(t *testing.T) {
	engine := testEngine(1)
	room := testRoom(4)
	engine.AssignRoles(room)

	room.votes = map[string]string{
		"u1": "u3",
		"u2": "u3",
		"u4": "u2",
	}

	id, role, ok := engine.EliminatedPlayer(room)
	require.True(t, ok)
	assert.Equal(t, "u3", id)
	assert.Equal(t, room.players["u3"].Role, role)
}

func TestEliminatedPlayerTieBreak(t *testing.T) {
	engine := testEngine(42)
	room := testRoom(4)
	engine.AssignRoles(room)

	room.votes = map[string]string{
		"u1": "u2",
		"u2": "u1",
		"u3": "u2",
		"u4": "u1",
	}

	id, _, ok := engine.EliminatedPlayer(room)
	require.True(t, ok)
	assert.Contains(t, []string{"u1", "u2"}, id)
}

func TestEliminatePlayerAdvancesCurrentSpeaker(t *testing.T) {
	engine := testEngine(2)
	room := testRoom(4)

	engine.AssignRoles(room)
	engine.StartNewRound(room)

	speaker, ok := engine.CurrentSpeaker(room)
	require.True(t, ok)

	engine.EliminatePlayer(room, speaker)

	assert.False(t, room.players[speaker].Alive)
	require.Len(t, room.eliminated, 1)
	assert.Equal(t, speaker, room.eliminated[0].UserID)
	assert.Equal(t, room.currentRound, room.eliminated[0].Round)

	next, ok := engine.CurrentSpeaker(room)
	require.True(t, ok)
	assert.NotEqual(t, speaker, next)
}

func TestSpeakerSequenceSkipsDeadAndDepartedSeats(t *testing.T) {
	engine := testEngine(8)
	room := testRoom(5)

	engine.AssignRoles(room)
	engine.StartNewRound(room)

	dead := room.speakingOrder[2]
	departed := room.speakingOrder[3]
	room.players[dead].Alive = false
	delete(room.players, departed)

	var visited []string

	speaker, ok := engine.CurrentSpeaker(room)
	require.True(t, ok)
	visited = append(visited, speaker)

	for {
		next, more := engine.NextSpeaker(room)
		if !more {
			break
		}
		visited = append(visited, next)
	}

	assert.Len(t, visited, 3)
	assert.NotContains(t, visited, dead)
	assert.NotContains(t, visited, departed)
}

func TestCheckGameEnd(t *testing.T) {
	engine := testEngine(1)

	cases := []struct {
		name   string
		roles  map[string]Role
		dead   []string
		winner Role
		ended  bool
	}{
		{
			name:   "no undercovers left means civilian win",
			roles:  map[string]Role{"u1": RoleCivilian, "u2": RoleCivilian, "u3": RoleUndercover},
			dead:   []string{"u3"},
			winner: RoleCivilian,
			ended:  true,
		},
		{
			name:   "undercovers outnumbering the rest win",
			roles:  map[string]Role{"u1": RoleUndercover, "u2": RoleCivilian, "u3": RoleCivilian},
			dead:   []string{"u3"},
			winner: RoleUndercover,
			ended:  true,
		},
		{
			name:   "no civilians left means undercover win",
			roles:  map[string]Role{"u1": RoleUndercover, "u2": RoleCivilian, "u3": RoleBlank, "u4": RoleBlank},
			dead:   []string{"u2"},
			winner: RoleUndercover,
			ended:  true,
		},
		{
			name:  "one undercover against four continues",
			roles: map[string]Role{"u1": RoleUndercover, "u2": RoleCivilian, "u3": RoleCivilian, "u4": RoleCivilian, "u5": RoleBlank},
			ended: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			room := testRoom(len(tc.roles))
			for id, role := range tc.roles {
				room.players[id].Role = role
			}
			for _, id := range tc.dead {
				room.players[id].Alive = false
			}

			winner, ended := engine.CheckGameEnd(room)
			assert.Equal(t, tc.ended, ended)
			if tc.ended {
				assert.Equal(t, tc.winner, winner)
			}
		})
	}
}

func TestValidateSpeech(t *testing.T) {
	assert.NoError(t, validateSpeech("my word is round"))
	assert.ErrorIs(t, validateSpeech(""), errValidationFailed)

	long := make([]rune, 201)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, validateSpeech(string(long)), errValidationFailed)

	// 200 multibyte characters is still within the limit.
	wide := make([]rune, 200)
	for i := range wide {
		wide[i] = '字'
	}
	assert.NoError(t, validateSpeech(string(wide)))
}
