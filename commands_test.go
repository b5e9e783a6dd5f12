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

func newTestDispatcher(seed int64) *Dispatcher {
	cfg := testConfig()
	catalog := newWordCatalog()

	return newDispatcher(
		cfg,
		newDirectory(cfg),
		newEngine(catalog, cfg.speakTime, cfg.voteTime, seed),
		catalog,
		newStatsTracker(nil, "stats"),
		newFeed(),
	)
}

func cmd(action, userID, userName string, args ...string) Command {
	return Command{Action: action, Args: args, UserID: userID, UserName: userName}
}

// fillRoom creates a room owned by u1 and joins players u2..un.
func fillRoom(t *testing.T, d *Dispatcher, n int) int {
	t.Helper()

	out := d.Dispatch(cmd("create", "u1", "player1"))
	require.True(t, out.OK, out.Message)
	roomID := out.RoomID

	for i := 2; i <= n; i++ {
		id := fmt.Sprintf("u%d", i)
		out = d.Dispatch(cmd("join", id, "player"+id, fmt.Sprintf("%d", roomID)))
		require.True(t, out.OK, out.Message)
	}

	return roomID
}

// playRound has every alive player speak in order, then vote for the
// named target, returning the final vote's outcome.
func playRound(t *testing.T, d *Dispatcher, room *Room, targetName string) Outcome {
	t.Helper()

	for {
		room.mu.Lock()
		speaker, more := d.engine.CurrentSpeaker(room)
		room.mu.Unlock()
		if !more {
			break
		}

		out := d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "it", "is", "a", "thing"))
		require.True(t, out.OK, out.Message)
	}

	var last Outcome
	for _, p := range room.alivePlayersLocked() {
		last = d.Dispatch(cmd("vote", p.UserID, p.UserName, targetName))
		require.True(t, last.OK, last.Message)
	}

	return last
}

func findByRole(room *Room, role Role) *Player {
	for _, p := range room.playersInOrderLocked() {
		if p.Role == role {
			return p
		}
	}

	return nil
}

func TestFullGameCivilianWin(t *testing.T) {
	d := newTestDispatcher(11)
	roomID := fillRoom(t, d, 4)

	out := d.Dispatch(cmd("start", "u1", "player1"))
	require.True(t, out.OK, out.Message)
	require.Len(t, out.PrivateRoles, 4)

	undercovers := 0
	for _, info := range out.PrivateRoles {
		if info.Role == RoleUndercover {
			undercovers++
			assert.NotEmpty(t, info.Word)
		}
	}
	assert.Equal(t, 1, undercovers)

	room, ok := d.directory.RoomByID(roomID)
	require.True(t, ok)
	assert.Equal(t, StatusPlaying, room.status)
	assert.Equal(t, PhaseSpeaking, room.currentPhase)
	assert.Equal(t, 1, room.currentRound)

	// Voting out the lone undercover ends the game immediately.
	undercover := findByRole(room, RoleUndercover)
	require.NotNil(t, undercover)

	out = playRound(t, d, room, undercover.UserName)
	assert.Equal(t, RoleCivilian, out.Winner)
	assert.Equal(t, undercover.UserName, out.Eliminated)
	assert.Equal(t, 4, out.Tally[undercover.UserName])

	assert.Equal(t, StatusEnded, room.status)
	assert.Equal(t, PhaseGameOver, room.currentPhase)

	stats, ok := d.stats.Player("u1")
	require.True(t, ok)
	assert.Equal(t, 1, stats.TotalGames)

	assert.Equal(t, 1, d.stats.Global().TotalGames)

	// An ended room can host a fresh game without rejoining.
	out = d.Dispatch(cmd("start", "u1", "player1"))
	require.True(t, out.OK, out.Message)
	assert.Equal(t, StatusPlaying, room.status)
	assert.Equal(t, 1, room.currentRound)
}

func TestGameContinuesWhenCivilianEliminated(t *testing.T) {
	d := newTestDispatcher(5)
	fillRoom(t, d, 6)

	out := d.Dispatch(cmd("start", "u1", "player1"))
	require.True(t, out.OK, out.Message)

	room, _ := d.directory.RoomByUser("u1")

	civilian := findByRole(room, RoleCivilian)
	require.NotNil(t, civilian)

	// 6 players deal 2 undercovers, 1 blank, 3 civilians. One civilian
	// down leaves 2 undercovers against 3, so play continues.
	out = playRound(t, d, room, civilian.UserName)
	require.True(t, out.OK, out.Message)

	assert.Empty(t, out.Winner)
	assert.Equal(t, 2, room.currentRound)
	assert.Equal(t, PhaseSpeaking, room.currentPhase)
	assert.False(t, room.players[civilian.UserID].Alive)
}

func TestSpeakEnforcesTurnOrder(t *testing.T) {
	d := newTestDispatcher(3)
	fillRoom(t, d, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")
	notCurrent := ""
	for _, id := range room.speakingOrder[1:] {
		notCurrent = id
	}

	out := d.Dispatch(cmd("speak", notCurrent, room.players[notCurrent].UserName, "hello"))
	assert.False(t, out.OK)
	assert.Equal(t, errNotYourTurn.Error(), out.Message)

	speaker := room.speakingOrder[0]
	out = d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "hello"))
	assert.True(t, out.OK)

	// A second speech from the same player is out of turn again.
	out = d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "hello again"))
	assert.False(t, out.OK)
}

func TestVoteRules(t *testing.T) {
	d := newTestDispatcher(9)
	fillRoom(t, d, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")

	// Voting during the speaking phase fails.
	out := d.Dispatch(cmd("vote", "u1", "player1", "playeru2"))
	assert.False(t, out.OK)
	assert.Equal(t, errWrongPhase.Error(), out.Message)

	for {
		room.mu.Lock()
		speaker, more := d.engine.CurrentSpeaker(room)
		room.mu.Unlock()
		if !more {
			break
		}
		require.True(t, d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "a", "clue")).OK)
	}

	// Unknown and self-referential targets.
	out = d.Dispatch(cmd("vote", "u1", "player1", "nobody"))
	assert.Equal(t, errInvalidTarget.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("vote", "u1", "player1", "playeru2")).OK)

	// Double voting is rejected.
	out = d.Dispatch(cmd("vote", "u1", "player1", "playeru3"))
	assert.Equal(t, errAlreadyActed.Error(), out.Message)
}

func TestSpeakingTimeoutForcesVoting(t *testing.T) {
	d := newTestDispatcher(13)
	fillRoom(t, d, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")

	// Backdate the phase start past the full speaking budget.
	room.mu.Lock()
	budget := room.speakTime * time.Duration(len(room.speakingOrder))
	room.phaseStart = time.Now().Add(-budget - time.Second)
	room.mu.Unlock()

	speaker := room.speakingOrder[0]
	out := d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "too", "late"))
	assert.False(t, out.OK)
	assert.Equal(t, errWrongPhase.Error(), out.Message)
	assert.Equal(t, PhaseVoting, room.currentPhase)

	// Votes are accepted in the forced phase.
	out = d.Dispatch(cmd("vote", "u1", "player1", "playeru2"))
	assert.True(t, out.OK)
}

func TestVotingTimeoutResolvesPartialVotes(t *testing.T) {
	d := newTestDispatcher(17)
	fillRoom(t, d, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")

	for {
		room.mu.Lock()
		speaker, more := d.engine.CurrentSpeaker(room)
		room.mu.Unlock()
		if !more {
			break
		}
		require.True(t, d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "a", "clue")).OK)
	}

	civilian := findByRole(room, RoleCivilian)
	require.True(t, d.Dispatch(cmd("vote", "u1", "player1", civilian.UserName)).OK)

	room.mu.Lock()
	room.phaseStart = time.Now().Add(-room.voteTime - time.Second)
	room.mu.Unlock()

	// The next command triggers the lazy resolution using the single
	// vote on record.
	d.Dispatch(cmd("vote", "u2", "playeru2", civilian.UserName))

	room.mu.Lock()
	alive := room.players[civilian.UserID].Alive
	room.mu.Unlock()
	assert.False(t, alive)
}

func TestAutoStart(t *testing.T) {
	d := newTestDispatcher(19)

	out := d.Dispatch(cmd("create", "u1", "player1"))
	require.True(t, out.OK)
	roomID := out.RoomID

	require.True(t, d.Dispatch(cmd("settings", "u1", "player1", "auto_start", "true")).OK)
	require.True(t, d.Dispatch(cmd("settings", "u1", "player1", "min_players_auto_start", "3")).OK)

	out = d.Dispatch(cmd("join", "u2", "playeru2", fmt.Sprintf("%d", roomID)))
	require.True(t, out.OK)

	room, _ := d.directory.RoomByID(roomID)
	assert.Equal(t, StatusWaiting, room.status)

	// The join that reaches the threshold starts the game.
	out = d.Dispatch(cmd("join", "u3", "playeru3", fmt.Sprintf("%d", roomID)))
	require.True(t, out.OK)
	assert.Len(t, out.PrivateRoles, 3)
	assert.Equal(t, StatusPlaying, room.status)
}

func TestSettingsValidation(t *testing.T) {
	d := newTestDispatcher(23)
	fillRoom(t, d, 3)

	out := d.Dispatch(cmd("settings", "u2", "playeru2", "auto_start", "true"))
	assert.Equal(t, errNotOwner.Error(), out.Message)

	out = d.Dispatch(cmd("settings", "u1", "player1", "min_players_auto_start", "11"))
	assert.Equal(t, errValidationFailed.Error(), out.Message)

	out = d.Dispatch(cmd("settings", "u1", "player1", "game_mode", "bogus"))
	assert.Equal(t, errValidationFailed.Error(), out.Message)

	out = d.Dispatch(cmd("settings", "u1", "player1", "no_such_key", "1"))
	assert.Equal(t, errValidationFailed.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("settings", "u1", "player1", "game_mode", "team")).OK)

	room, _ := d.directory.RoomByUser("u1")
	assert.Equal(t, ModeTeam, room.settings.GameMode)
}

func TestKick(t *testing.T) {
	d := newTestDispatcher(29)
	fillRoom(t, d, 3)

	out := d.Dispatch(cmd("kick", "u2", "playeru2", "playeru3"))
	assert.Equal(t, errNotOwner.Error(), out.Message)

	// Owners cannot kick themselves.
	out = d.Dispatch(cmd("kick", "u1", "player1", "player1"))
	assert.Equal(t, errInvalidTarget.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("kick", "u1", "player1", "playeru3")).OK)

	_, ok := d.directory.RoomByUser("u3")
	assert.False(t, ok)

	// The kicked player may join another room.
	out = d.Dispatch(cmd("create", "u3", "playeru3"))
	assert.True(t, out.OK)
}

func TestLeaveMidGameCountsAsElimination(t *testing.T) {
	d := newTestDispatcher(31)
	fillRoom(t, d, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")
	undercover := findByRole(room, RoleUndercover)
	require.NotNil(t, undercover)

	out := d.Dispatch(cmd("leave", undercover.UserID, undercover.UserName))
	require.True(t, out.OK)

	// With the only undercover gone the civilians win on the spot.
	assert.Equal(t, StatusEnded, room.status)

	global := d.stats.Global()
	assert.Equal(t, 1, global.TotalGames)
	assert.Equal(t, 1, global.CivilianWins)
}

func TestLeaveDoesNotSkewSurvivalRounds(t *testing.T) {
	d := newTestDispatcher(61)
	fillRoom(t, d, 6)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")

	var civilians []*Player
	for _, p := range room.playersInOrderLocked() {
		if p.Role == RoleCivilian {
			civilians = append(civilians, p)
		}
	}
	require.GreaterOrEqual(t, len(civilians), 2)
	leaver, target := civilians[0], civilians[1]

	for {
		room.mu.Lock()
		speaker, more := d.engine.CurrentSpeaker(room)
		room.mu.Unlock()
		if !more {
			break
		}
		require.True(t, d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "a", "clue")).OK)
	}

	// One civilian walks out during voting, then the rest vote a
	// second civilian out in the same round.
	require.True(t, d.Dispatch(cmd("leave", leaver.UserID, leaver.UserName)).OK)

	var out Outcome
	for _, p := range room.alivePlayersLocked() {
		out = d.Dispatch(cmd("vote", p.UserID, p.UserName, target.UserName))
		require.True(t, out.OK, out.Message)
	}

	// Two undercovers now match the two survivors on the other side.
	assert.Equal(t, RoleUndercover, out.Winner)
	assert.Equal(t, StatusEnded, room.status)

	// Both fell in round 1; the departure entry must not push the
	// voted-out player's record into round 2.
	stats, ok := d.stats.Player(target.UserID)
	require.True(t, ok)
	assert.Equal(t, 1.0, stats.AvgSurvivalRounds)
	assert.Equal(t, 0.0, stats.SurvivalRate)
}

func TestLeaveMidSpeakingDoesNotStallTurns(t *testing.T) {
	d := newTestDispatcher(67)
	fillRoom(t, d, 6)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	room, _ := d.directory.RoomByUser("u1")

	first := room.speakingOrder[0]
	require.True(t, d.Dispatch(cmd("speak", first, room.players[first].UserName, "a", "clue")).OK)

	// A player whose turn has not come yet walks out; their seat must
	// be skipped rather than stalling the round on a dead turn.
	leaver := room.speakingOrder[len(room.speakingOrder)-1]
	leaverName := room.players[leaver].UserName
	require.True(t, d.Dispatch(cmd("leave", leaver, leaverName)).OK)

	for {
		room.mu.Lock()
		speaker, more := d.engine.CurrentSpeaker(room)
		room.mu.Unlock()
		if !more {
			break
		}
		require.NotEqual(t, leaver, speaker)

		out := d.Dispatch(cmd("speak", speaker, room.players[speaker].UserName, "a", "clue"))
		require.True(t, out.OK, out.Message)
	}

	assert.Equal(t, PhaseVoting, room.currentPhase)
}

func TestMyRole(t *testing.T) {
	d := newTestDispatcher(37)
	fillRoom(t, d, 3)

	out := d.Dispatch(cmd("myrole", "u1", "player1"))
	assert.Equal(t, errWrongPhase.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	out = d.Dispatch(cmd("myrole", "u2", "playeru2"))
	require.True(t, out.OK)
	require.NotNil(t, out.Role)

	room, _ := d.directory.RoomByUser("u2")
	assert.Equal(t, room.players["u2"].Role, out.Role.Role)
	assert.Equal(t, room.players["u2"].Word, out.Role.Word)
	assert.Equal(t, PhaseSpeaking, out.Role.Phase)
}

func TestStatusSnapshot(t *testing.T) {
	d := newTestDispatcher(41)
	fillRoom(t, d, 4)

	out := d.Dispatch(cmd("status", "u2", "playeru2"))
	require.True(t, out.OK)
	require.NotNil(t, out.Room)
	assert.Equal(t, StatusWaiting, out.Room.Status)
	assert.Len(t, out.Room.Players, 4)

	require.True(t, d.Dispatch(cmd("start", "u1", "player1")).OK)

	out = d.Dispatch(cmd("status", "u2", "playeru2"))
	require.True(t, out.OK)
	assert.Equal(t, StatusPlaying, out.Room.Status)
	assert.Equal(t, PhaseSpeaking, out.Room.Phase)
	assert.NotEmpty(t, out.Room.CurrentSpeaker)
	assert.Positive(t, out.Room.RemainingTime)

	// No word or role leaks through the public snapshot.
	for _, p := range out.Room.Players {
		assert.NotEmpty(t, p.UserName)
	}
}

func TestWordCommands(t *testing.T) {
	d := newTestDispatcher(43)

	require.True(t, d.Dispatch(cmd("addword", "u1", "player1", "kayak", "canoe")).OK)

	out := d.Dispatch(cmd("listwords", "u1", "player1", "pending"))
	require.True(t, out.OK)
	require.Len(t, out.Pending, 1)

	out = d.Dispatch(cmd("approveword", "u1", "player1", "1"))
	require.True(t, out.OK, out.Message)

	out = d.Dispatch(cmd("listwords", "u1", "player1", "custom"))
	require.True(t, out.OK)
	assert.Len(t, out.Words, 1)

	out = d.Dispatch(cmd("approveword", "u1", "player1", "1"))
	assert.Equal(t, errIndexOutOfRange.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("removeword", "u1", "player1", "kayak", "canoe")).OK)

	out = d.Dispatch(cmd("listwords", "u1", "player1", "custom"))
	require.True(t, out.OK)
	assert.Empty(t, out.Words)
}

func TestSpectateCommands(t *testing.T) {
	d := newTestDispatcher(47)
	roomID := fillRoom(t, d, 3)

	out := d.Dispatch(cmd("spectate", "u9", "watcher", fmt.Sprintf("%d", roomID)))
	assert.Equal(t, errSpectatingClosed.Error(), out.Message)

	require.True(t, d.Dispatch(cmd("settings", "u1", "player1", "allow_spectators", "true")).OK)

	out = d.Dispatch(cmd("spectate", "u9", "watcher", fmt.Sprintf("%d", roomID)))
	require.True(t, out.OK)

	// Spectators can read room status.
	out = d.Dispatch(cmd("status", "u9", "watcher"))
	require.True(t, out.OK)
	assert.Equal(t, 1, out.Room.Spectators)

	require.True(t, d.Dispatch(cmd("leave_spectate", "u9", "watcher")).OK)
}

func TestUnknownActionReturnsHelp(t *testing.T) {
	d := newTestDispatcher(53)

	out := d.Dispatch(cmd("dance", "u1", "player1"))
	assert.True(t, out.OK)
	assert.Contains(t, out.Message, "create")
	assert.Contains(t, out.Message, "vote")
}
