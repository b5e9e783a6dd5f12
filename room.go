/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting"
	StatusPlaying RoomStatus = "playing"
	StatusEnded   RoomStatus = "ended"
)

type Phase string

const (
	PhaseNone           Phase = ""
	PhaseRoleAssignment Phase = "role_assignment"
	PhaseSpeaking       Phase = "speaking"
	PhaseVoting         Phase = "voting"
	PhaseElimination    Phase = "elimination"
	PhaseGameOver       Phase = "game_over"
)

type GameMode string

const (
	ModeClassic  GameMode = "classic"
	ModeHappy    GameMode = "happy"
	ModeAdvanced GameMode = "advanced"
	ModeTeam     GameMode = "team"
)

func parseGameMode(s string) (GameMode, bool) {
	switch GameMode(s) {
	case ModeClassic, ModeHappy, ModeAdvanced, ModeTeam:
		return GameMode(s), true
	}

	return "", false
}

// RoomSettings are the owner-adjustable knobs the engine recognizes.
type RoomSettings struct {
	AllowSpectators     bool     `json:"allow_spectators"`
	AutoStart           bool     `json:"auto_start"`
	MinPlayersAutoStart int      `json:"min_players_auto_start"`
	GameMode            GameMode `json:"game_mode"`
}

// Elimination is one entry of the per-game elimination log. The round
// is recorded explicitly since departures can add entries mid-round.
type Elimination struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Round  int    `json:"round"`
}

// Room is one game instance. Commands against a room are serialized by
// mu; every mutation path must hold it for the full read-modify-write.
type Room struct {
	mu sync.Mutex

	id      int
	ownerID string

	players map[string]*Player
	order   []string // user ids in join order

	status       RoomStatus
	currentRound int

	speakingOrder       []string
	currentSpeakerIndex int

	votes      map[string]string // voter id -> target id
	eliminated []Elimination

	words           *WordPair
	undercoverCount int
	blankCount      int

	speakTime time.Duration
	voteTime  time.Duration

	gameMode     GameMode
	currentPhase Phase
	phaseStart   time.Time
	gameStart    time.Time
	gameEnd      time.Time
	settings     RoomSettings
	spectators   map[string]time.Time
	lastActivity time.Time
}

func newRoom(id int, ownerID string, speakTime, voteTime time.Duration) *Room {
	return &Room{
		id:           id,
		ownerID:      ownerID,
		players:      make(map[string]*Player),
		votes:        make(map[string]string),
		spectators:   make(map[string]time.Time),
		status:       StatusWaiting,
		speakTime:    speakTime,
		voteTime:     voteTime,
		gameMode:     ModeClassic,
		settings: RoomSettings{
			MinPlayersAutoStart: 4,
			GameMode:            ModeClassic,
		},
		lastActivity: time.Now(),
	}
}

func (r *Room) touchLocked() {
	r.lastActivity = time.Now()
}

func (r *Room) addPlayerLocked(p *Player) {
	r.players[p.UserID] = p
	r.order = append(r.order, p.UserID)
	r.touchLocked()
}

func (r *Room) removePlayerLocked(userID string) bool {
	if _, ok := r.players[userID]; !ok {
		return false
	}

	delete(r.players, userID)
	delete(r.votes, userID)

	// Votes cast against the departed player no longer count.
	for voter, target := range r.votes {
		if target == userID {
			delete(r.votes, voter)
		}
	}

	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.touchLocked()

	return true
}

// playersInOrderLocked returns players in join order, for deterministic
// iteration (ownership transfer, role dealing, snapshots).
func (r *Room) playersInOrderLocked() []*Player {
	players := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		players = append(players, r.players[id])
	}

	return players
}

func (r *Room) alivePlayersLocked() []*Player {
	alive := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Alive {
			alive = append(alive, p)
		}
	}

	return alive
}

func (r *Room) playerByNameLocked(name string) *Player {
	for _, id := range r.order {
		if p := r.players[id]; p.UserName == name {
			return p
		}
	}

	return nil
}

// resetForNewGameLocked makes an ended room reusable: round state is
// cleared but membership, settings, and spectators survive.
func (r *Room) resetForNewGameLocked() {
	r.status = StatusWaiting
	r.currentRound = 0
	r.currentSpeakerIndex = 0
	r.speakingOrder = nil
	r.votes = make(map[string]string)
	r.eliminated = nil
	r.words = nil
	r.currentPhase = PhaseNone
	r.phaseStart = time.Time{}
	r.gameStart = time.Time{}
	r.gameEnd = time.Time{}

	for _, p := range r.players {
		p.resetForNewGame()
	}

	r.touchLocked()
}
