/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Command is the structured call the transport layer hands to the core:
// an action name, its positional arguments, and the caller's identity.
type Command struct {
	Action   string   `json:"action"`
	Args     []string `json:"args,omitempty"`
	UserID   string   `json:"user_id"`
	UserName string   `json:"user_name"`
}

// PlayerView is the public view of a room member.
type PlayerView struct {
	UserName  string `json:"user_name"`
	Alive     bool   `json:"alive"`
	HasSpoken bool   `json:"has_spoken"`
	IsOwner   bool   `json:"is_owner"`
}

// RoomSnapshot is the public view of a room for status payloads.
type RoomSnapshot struct {
	ID             int          `json:"id"`
	Status         RoomStatus   `json:"status"`
	Phase          Phase        `json:"phase,omitempty"`
	Round          int          `json:"round,omitempty"`
	Mode           GameMode     `json:"mode"`
	Players        []PlayerView `json:"players"`
	Spectators     int          `json:"spectators,omitempty"`
	CurrentSpeaker string       `json:"current_speaker,omitempty"`
	RemainingTime  int          `json:"remaining_seconds,omitempty"`
	Settings       RoomSettings `json:"settings"`
}

// RoleInfo is a player's private role payload, delivered out of band by
// the transport layer.
type RoleInfo struct {
	Role  Role   `json:"role"`
	Word  string `json:"word,omitempty"`
	Phase Phase  `json:"phase,omitempty"`
}

// Outcome is what every action returns: success or a user-facing
// message, plus whatever structured payload the action produces.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`

	RoomID       int                 `json:"room_id,omitempty"`
	Room         *RoomSnapshot       `json:"room,omitempty"`
	Role         *RoleInfo           `json:"role,omitempty"`
	PrivateRoles map[string]RoleInfo `json:"private_roles,omitempty"`

	Tally      map[string]int `json:"tally,omitempty"`
	Eliminated string         `json:"eliminated,omitempty"`
	Winner     Role           `json:"winner,omitempty"`

	Words   []WordPair    `json:"words,omitempty"`
	Pending []PendingWord `json:"pending,omitempty"`

	Stats    *PlayerStats   `json:"stats,omitempty"`
	Global   *GlobalStats   `json:"global,omitempty"`
	Rankings []RankingEntry `json:"rankings,omitempty"`
}

func failure(err error) Outcome {
	return Outcome{Message: err.Error()}
}

func success(message string) Outcome {
	return Outcome{OK: true, Message: message}
}

// Dispatcher routes commands to the engine, directory, catalog, and
// stats tracker. One instance serves all rooms.
type Dispatcher struct {
	directory *Directory
	engine    *Engine
	catalog   *WordCatalog
	stats     *StatsTracker
	feed      *Feed

	minPlayers int
	maxPlayers int
}

func newDispatcher(cfg *Config, directory *Directory, engine *Engine, catalog *WordCatalog, stats *StatsTracker, feed *Feed) *Dispatcher {
	return &Dispatcher{
		directory:  directory,
		engine:     engine,
		catalog:    catalog,
		stats:      stats,
		feed:       feed,
		minPlayers: cfg.minPlayers,
		maxPlayers: cfg.maxPlayers,
	}
}

func parseRoomID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, errInvalidTarget
	}

	return id, nil
}

// Dispatch executes one command and returns its outcome. Unknown
// actions fall through to help.
func (d *Dispatcher) Dispatch(cmd Command) Outcome {
	log.Debug().Str("action", cmd.Action).Str("user", cmd.UserName).Msg("dispatch")

	switch cmd.Action {
	case "create":
		return d.create(cmd)
	case "join":
		return d.join(cmd)
	case "leave":
		return d.leave(cmd)
	case "start":
		return d.start(cmd)
	case "speak":
		return d.speak(cmd)
	case "vote":
		return d.vote(cmd)
	case "status":
		return d.status(cmd)
	case "settings":
		return d.settings(cmd)
	case "kick":
		return d.kick(cmd)
	case "spectate":
		return d.spectate(cmd)
	case "leave_spectate":
		return d.leaveSpectate(cmd)
	case "addword":
		return d.addWord(cmd)
	case "removeword":
		return d.removeWord(cmd)
	case "approveword":
		return d.approveWord(cmd)
	case "rejectword":
		return d.rejectWord(cmd)
	case "listwords":
		return d.listWords(cmd)
	case "stats":
		return d.playerStats(cmd)
	case "rankings":
		return d.rankings(cmd)
	case "myrole":
		return d.myRole(cmd)
	default:
		return d.help()
	}
}

func (d *Dispatcher) create(cmd Command) Outcome {
	room, err := d.directory.CreateRoom(cmd.UserID, cmd.UserName)
	if err != nil {
		return failure(err)
	}

	out := success(fmt.Sprintf("room %d created", room.id))
	out.RoomID = room.id

	return out
}

func (d *Dispatcher) join(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errInvalidTarget)
	}

	roomID, err := parseRoomID(cmd.Args[0])
	if err != nil {
		return failure(err)
	}

	room, err := d.directory.JoinRoom(roomID, cmd.UserID, cmd.UserName)
	if err != nil {
		return failure(err)
	}

	d.feed.Publish(Event{Type: "player_joined", RoomID: roomID, Message: cmd.UserName})

	out := success(fmt.Sprintf("joined room %d", roomID))
	out.RoomID = roomID

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.settings.AutoStart &&
		len(room.players) >= room.settings.MinPlayersAutoStart &&
		len(room.players) >= d.minPlayers {
		started := d.startGameLocked(room)
		if started.OK {
			return started
		}
	}

	return out
}

func (d *Dispatcher) leave(cmd Command) Outcome {
	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		if err := d.directory.LeaveSpectate(cmd.UserID); err == nil {
			return success("stopped spectating")
		}

		return failure(errNotInRoom)
	}

	room.mu.Lock()
	roomID := room.id
	playing := room.status == StatusPlaying
	if playing {
		// Leaving mid-game counts as an elimination so the round can
		// still resolve.
		d.engine.EliminatePlayer(room, cmd.UserID)
	}
	room.mu.Unlock()

	remaining, err := d.directory.LeaveRoom(cmd.UserID)
	if err != nil {
		return failure(err)
	}

	d.feed.Publish(Event{Type: "player_left", RoomID: roomID, Message: cmd.UserName})

	if remaining != nil && playing {
		remaining.mu.Lock()
		d.checkRoundCompletionLocked(remaining)
		remaining.mu.Unlock()
	}

	return success("left the room")
}

func (d *Dispatcher) start(cmd Command) Outcome {
	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.ownerID != cmd.UserID {
		return failure(errNotOwner)
	}

	return d.startGameLocked(room)
}

// startGameLocked begins a game in a waiting or ended room. Ended rooms
// are reset first so they can be reused without rejoining.
func (d *Dispatcher) startGameLocked(room *Room) Outcome {
	if room.status == StatusPlaying {
		return failure(errWrongPhase)
	}
	if room.status == StatusEnded {
		room.resetForNewGameLocked()
	}

	if len(room.players) < d.minPlayers {
		return failure(errNotEnoughPlayers)
	}

	room.status = StatusPlaying
	room.gameStart = time.Now()
	room.touchLocked()

	d.engine.AssignRoles(room)

	roles := make(map[string]RoleInfo, len(room.players))
	for _, p := range room.players {
		roles[p.UserID] = RoleInfo{Role: p.Role, Word: p.Word}
	}

	d.engine.StartNewRound(room)

	log.Info().Int("room", room.id).Int("players", len(room.players)).
		Str("mode", string(room.gameMode)).Msg("game started")

	d.feed.Publish(Event{Type: "game_started", RoomID: room.id})

	speaker, _ := d.engine.CurrentSpeaker(room)

	out := success("game started")
	out.RoomID = room.id
	out.PrivateRoles = roles
	if p, ok := room.players[speaker]; ok {
		out.Message = "game started, " + p.UserName + " speaks first"
	}

	return out
}

// checkPhaseTimeoutLocked is the lazy timeout: each incoming speak or
// vote first checks whether the current phase has outlived its budget
// and force-advances it if so. The speaking budget covers every seat
// in the order; the voting budget is a single window.
func (d *Dispatcher) checkPhaseTimeoutLocked(room *Room) {
	if room.status != StatusPlaying {
		return
	}

	elapsed := time.Since(room.phaseStart)

	switch room.currentPhase {
	case PhaseSpeaking:
		budget := room.speakTime * time.Duration(len(room.speakingOrder))
		if elapsed > budget {
			room.currentPhase = PhaseVoting
			room.phaseStart = time.Now()
			d.feed.Publish(Event{Type: "voting_started", RoomID: room.id, Message: "speaking time expired"})
		}
	case PhaseVoting:
		if elapsed > room.voteTime {
			d.resolveVotesLocked(room)
		}
	}
}

func (d *Dispatcher) speak(cmd Command) Outcome {
	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	d.checkPhaseTimeoutLocked(room)

	if room.status != StatusPlaying || room.currentPhase != PhaseSpeaking {
		return failure(errWrongPhase)
	}

	p := room.players[cmd.UserID]
	if !p.Alive {
		return failure(errWrongPhase)
	}

	speaker, ok := d.engine.CurrentSpeaker(room)
	if !ok || speaker != cmd.UserID {
		return failure(errNotYourTurn)
	}
	if p.HasSpoken {
		return failure(errAlreadyActed)
	}

	content := strings.Join(cmd.Args, " ")
	if err := validateSpeech(content); err != nil {
		return failure(err)
	}

	p.HasSpoken = true
	room.touchLocked()

	d.feed.Publish(Event{Type: "speech", RoomID: room.id, Message: cmd.UserName, Data: content})

	next, more := d.engine.NextSpeaker(room)
	if !more {
		room.currentPhase = PhaseVoting
		room.phaseStart = time.Now()
		d.feed.Publish(Event{Type: "voting_started", RoomID: room.id})

		return success("everyone has spoken, voting begins")
	}

	out := success("speech recorded")
	if np, ok := room.players[next]; ok {
		out.Message = "speech recorded, " + np.UserName + " speaks next"
	}

	return out
}

func (d *Dispatcher) vote(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errInvalidTarget)
	}

	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	d.checkPhaseTimeoutLocked(room)

	if room.status != StatusPlaying || room.currentPhase != PhaseVoting {
		return failure(errWrongPhase)
	}

	voter := room.players[cmd.UserID]
	if !voter.Alive {
		return failure(errWrongPhase)
	}

	if _, ok := room.votes[cmd.UserID]; ok {
		return failure(errAlreadyActed)
	}

	target := room.playerByNameLocked(cmd.Args[0])
	if target == nil || !target.Alive {
		return failure(errInvalidTarget)
	}

	room.votes[cmd.UserID] = target.UserID
	room.touchLocked()

	d.feed.Publish(Event{
		Type:   "vote_cast",
		RoomID: room.id,
		Data:   fmt.Sprintf("%d/%d", len(room.votes), len(room.alivePlayersLocked())),
	})

	if len(room.votes) >= len(room.alivePlayersLocked()) {
		return d.resolveVotesLocked(room)
	}

	return success("vote recorded")
}

// resolveVotesLocked tallies the round, eliminates the chosen target,
// and either ends the game or starts the next round. The tally, the
// elimination, and the advance happen under one lock hold so late
// votes cannot interleave.
func (d *Dispatcher) resolveVotesLocked(room *Room) Outcome {
	tally := make(map[string]int)
	for target, count := range d.engine.CountVotes(room) {
		if p, ok := room.players[target]; ok {
			tally[p.UserName] = count
		}
	}

	out := success("round resolved")
	out.RoomID = room.id
	out.Tally = tally

	eliminatedID, role, voted := d.engine.EliminatedPlayer(room)
	if voted {
		room.currentPhase = PhaseElimination
		d.engine.EliminatePlayer(room, eliminatedID)

		name := room.players[eliminatedID].UserName
		out.Eliminated = name

		log.Info().Int("room", room.id).Str("player", name).
			Str("role", string(role)).Msg("player eliminated")

		d.feed.Publish(Event{Type: "elimination", RoomID: room.id, Message: name, Data: role})
	}

	winner, ended := d.engine.CheckGameEnd(room)
	if ended {
		d.endGameLocked(room, winner)
		out.Winner = winner
		out.Message = string(winner) + " faction wins"

		return out
	}

	d.engine.StartNewRound(room)
	d.feed.Publish(Event{Type: "round_started", RoomID: room.id, Data: room.currentRound})

	if speaker, ok := d.engine.CurrentSpeaker(room); ok {
		out.Message = fmt.Sprintf("round %d begins, %s speaks first",
			room.currentRound, room.players[speaker].UserName)
	}

	return out
}

// checkRoundCompletionLocked re-evaluates the room after a player
// departs mid-game: the game may have ended, or the remaining votes
// may now be complete.
func (d *Dispatcher) checkRoundCompletionLocked(room *Room) {
	if room.status != StatusPlaying {
		return
	}

	if winner, ended := d.engine.CheckGameEnd(room); ended {
		d.endGameLocked(room, winner)

		return
	}

	if room.currentPhase == PhaseVoting && len(room.votes) >= len(room.alivePlayersLocked()) {
		d.resolveVotesLocked(room)
	}
}

func (d *Dispatcher) endGameLocked(room *Room, winner Role) {
	room.status = StatusEnded
	room.currentPhase = PhaseGameOver
	room.gameEnd = time.Now()
	room.touchLocked()

	d.stats.RecordGame(room, winner)

	log.Info().Int("room", room.id).Str("winner", string(winner)).
		Int("rounds", room.currentRound).Msg("game over")

	d.feed.Publish(Event{Type: "game_over", RoomID: room.id, Data: winner})
}

func (d *Dispatcher) status(cmd Command) Outcome {
	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		room, ok = d.directory.SpectatedRoom(cmd.UserID)
	}
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	out := success("")
	out.RoomID = room.id
	out.Room = d.snapshotLocked(room)

	return out
}

func (d *Dispatcher) snapshotLocked(room *Room) *RoomSnapshot {
	snapshot := &RoomSnapshot{
		ID:         room.id,
		Status:     room.status,
		Phase:      room.currentPhase,
		Round:      room.currentRound,
		Mode:       room.gameMode,
		Spectators: len(room.spectators),
		Settings:   room.settings,
	}

	for _, p := range room.playersInOrderLocked() {
		snapshot.Players = append(snapshot.Players, PlayerView{
			UserName:  p.UserName,
			Alive:     p.Alive,
			HasSpoken: p.HasSpoken,
			IsOwner:   p.UserID == room.ownerID,
		})
	}

	if room.status != StatusPlaying {
		return snapshot
	}

	if speaker, ok := d.engine.CurrentSpeaker(room); ok && room.currentPhase == PhaseSpeaking {
		snapshot.CurrentSpeaker = room.players[speaker].UserName
	}

	elapsed := time.Since(room.phaseStart)

	switch room.currentPhase {
	case PhaseSpeaking:
		budget := room.speakTime * time.Duration(len(room.speakingOrder))
		if remaining := budget - elapsed; remaining > 0 {
			snapshot.RemainingTime = int(remaining.Seconds())
		}
	case PhaseVoting:
		if remaining := room.voteTime - elapsed; remaining > 0 {
			snapshot.RemainingTime = int(remaining.Seconds())
		}
	}

	return snapshot
}

func (d *Dispatcher) settings(cmd Command) Outcome {
	if len(cmd.Args) < 2 {
		return failure(errValidationFailed)
	}

	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.ownerID != cmd.UserID {
		return failure(errNotOwner)
	}
	if room.status == StatusPlaying {
		return failure(errWrongPhase)
	}

	key, value := cmd.Args[0], cmd.Args[1]

	switch key {
	case "allow_spectators":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return failure(errValidationFailed)
		}
		room.settings.AllowSpectators = b
	case "auto_start":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return failure(errValidationFailed)
		}
		room.settings.AutoStart = b
	case "min_players_auto_start":
		n, err := strconv.Atoi(value)
		if err != nil || n < 3 || n > 10 {
			return failure(errValidationFailed)
		}
		room.settings.MinPlayersAutoStart = n
	case "game_mode":
		mode, ok := parseGameMode(value)
		if !ok {
			return failure(errValidationFailed)
		}
		room.settings.GameMode = mode
	default:
		return failure(errValidationFailed)
	}

	room.touchLocked()

	return success(key + " updated")
}

func (d *Dispatcher) kick(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errInvalidTarget)
	}

	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.ownerID != cmd.UserID {
		return failure(errNotOwner)
	}
	if room.status == StatusPlaying {
		return failure(errWrongPhase)
	}

	target := room.playerByNameLocked(cmd.Args[0])
	if target == nil || target.UserID == cmd.UserID {
		return failure(errInvalidTarget)
	}

	room.removePlayerLocked(target.UserID)
	d.directory.RemovePlayer(room.id, target.UserID)

	d.feed.Publish(Event{Type: "player_kicked", RoomID: room.id, Message: target.UserName})

	return success(target.UserName + " removed from the room")
}

func (d *Dispatcher) spectate(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errInvalidTarget)
	}

	roomID, err := parseRoomID(cmd.Args[0])
	if err != nil {
		return failure(err)
	}

	if _, err := d.directory.Spectate(roomID, cmd.UserID); err != nil {
		return failure(err)
	}

	out := success(fmt.Sprintf("spectating room %d", roomID))
	out.RoomID = roomID

	return out
}

func (d *Dispatcher) leaveSpectate(cmd Command) Outcome {
	if err := d.directory.LeaveSpectate(cmd.UserID); err != nil {
		return failure(err)
	}

	return success("stopped spectating")
}

func (d *Dispatcher) addWord(cmd Command) Outcome {
	if len(cmd.Args) < 2 {
		return failure(errValidationFailed)
	}

	if err := d.catalog.AddCustom(cmd.Args[0], cmd.Args[1], cmd.UserID); err != nil {
		return failure(err)
	}

	return success("word pair submitted for review")
}

func (d *Dispatcher) removeWord(cmd Command) Outcome {
	if len(cmd.Args) < 2 {
		return failure(errValidationFailed)
	}

	if err := d.catalog.RemoveCustom(cmd.Args[0], cmd.Args[1]); err != nil {
		return failure(err)
	}

	return success("word pair removed")
}

// Moderation indexes are 1-based in commands, matching the listing.
func (d *Dispatcher) approveWord(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errIndexOutOfRange)
	}

	index, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return failure(errIndexOutOfRange)
	}

	pair, err := d.catalog.Approve(index - 1)
	if err != nil {
		return failure(err)
	}

	return success(fmt.Sprintf("approved %s / %s", pair.Civilian, pair.Undercover))
}

func (d *Dispatcher) rejectWord(cmd Command) Outcome {
	if len(cmd.Args) < 1 {
		return failure(errIndexOutOfRange)
	}

	index, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return failure(errIndexOutOfRange)
	}

	pair, err := d.catalog.Reject(index - 1)
	if err != nil {
		return failure(err)
	}

	return success(fmt.Sprintf("rejected %s / %s", pair.Civilian, pair.Undercover))
}

func (d *Dispatcher) listWords(cmd Command) Outcome {
	scope := "all"
	if len(cmd.Args) > 0 {
		scope = cmd.Args[0]
	}

	out := success("")

	switch scope {
	case "all":
		out.Words = d.catalog.All()
	case "custom":
		out.Words = d.catalog.Custom()
	case "pending":
		out.Pending = d.catalog.Pending()
	default:
		return failure(errValidationFailed)
	}

	return out
}

func (d *Dispatcher) playerStats(cmd Command) Outcome {
	stats, ok := d.stats.Player(cmd.UserID)
	if !ok {
		return success("no games played yet")
	}

	global := d.stats.Global()

	out := success("")
	out.Stats = &stats
	out.Global = &global

	return out
}

func (d *Dispatcher) rankings(cmd Command) Outcome {
	board := "wins"
	if len(cmd.Args) > 0 {
		board = cmd.Args[0]
	}

	entries, ok := d.stats.Rankings(board)
	if !ok {
		return failure(errValidationFailed)
	}

	out := success(board + " rankings")
	out.Rankings = entries

	return out
}

func (d *Dispatcher) myRole(cmd Command) Outcome {
	room, ok := d.directory.RoomByUser(cmd.UserID)
	if !ok {
		return failure(errNotInRoom)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status != StatusPlaying {
		return failure(errWrongPhase)
	}

	p := room.players[cmd.UserID]

	out := success("")
	out.Role = &RoleInfo{Role: p.Role, Word: p.Word, Phase: room.currentPhase}

	return out
}

func (d *Dispatcher) help() Outcome {
	return success(strings.Join([]string{
		"create - open a new room",
		"join <room> - join a waiting room",
		"leave - leave your room",
		"start - begin the game (owner)",
		"speak <description> - describe your word on your turn",
		"vote <player> - vote to eliminate a player",
		"status - show the room state",
		"settings <key> <value> - adjust room settings (owner)",
		"kick <player> - remove a player (owner)",
		"spectate <room> / leave_spectate - watch a room",
		"addword <civilian> <undercover> - submit a word pair",
		"removeword <civilian> <undercover> - delete a custom pair",
		"approveword <n> / rejectword <n> - moderate pending pairs",
		"listwords [all|custom|pending] - list word pairs",
		"stats - your statistics",
		"rankings [wins|civilian|undercover|blank|survival] - leaderboards",
		"myrole - resend your role and word",
	}, "\n"))
}
