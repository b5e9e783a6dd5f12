/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PlayerStats accumulates one player's lifetime record. Averages are
// maintained incrementally: new_avg = (old_avg*(n-1) + x) / n.
type PlayerStats struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`

	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`

	CivilianGames int `json:"civilian_games"`
	CivilianWins  int `json:"civilian_wins"`

	UndercoverGames int `json:"undercover_games"`
	UndercoverWins  int `json:"undercover_wins"`

	BlankGames int `json:"blank_games"`
	BlankWins  int `json:"blank_wins"`

	AvgSurvivalRounds float64 `json:"avg_survival_rounds"`
	SurvivalRate      float64 `json:"survival_rate"`

	LastPlayed time.Time `json:"last_played"`
}

// GlobalStats summarizes every finished game.
type GlobalStats struct {
	TotalGames        int     `json:"total_games"`
	CivilianWins      int     `json:"civilian_wins"`
	UndercoverWins    int     `json:"undercover_wins"`
	TotalPlayers      int     `json:"total_players"`
	AvgPlayersPerGame float64 `json:"avg_players_per_game"`
}

// GameRecord is the per-game archive entry.
type GameRecord struct {
	ID          string    `json:"id"`
	RoomID      int       `json:"room_id"`
	Mode        GameMode  `json:"mode"`
	Winner      Role      `json:"winner"`
	PlayerCount int       `json:"player_count"`
	Rounds      int       `json:"rounds"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

type statsSnapshot struct {
	Players map[string]*PlayerStats `json:"players"`
	Global  GlobalStats             `json:"global"`
	Games   []GameRecord            `json:"games"`
}

// RankingEntry is one row of a leaderboard.
type RankingEntry struct {
	UserName string  `json:"user_name"`
	Value    float64 `json:"value"`
	Games    int     `json:"games"`
}

const rankingLimit = 10

// StatsTracker aggregates statistics across games and persists them
// through a Store. Persistence failures are logged and ignored; the
// in-memory state stays authoritative for the process lifetime.
type StatsTracker struct {
	mu      sync.Mutex
	store   Store
	key     string
	players map[string]*PlayerStats
	global  GlobalStats
	games   []GameRecord
}

func newStatsTracker(store Store, key string) *StatsTracker {
	t := &StatsTracker{
		store:   store,
		key:     key,
		players: make(map[string]*PlayerStats),
	}

	t.load()

	return t
}

func (t *StatsTracker) load() {
	if t.store == nil {
		return
	}

	data, err := t.store.Load(t.key)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load stats")

		return
	}
	if data == nil {
		return
	}

	var snapshot statsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Warn().Err(err).Msg("failed to decode stats")

		return
	}

	if snapshot.Players != nil {
		t.players = snapshot.Players
	}
	t.global = snapshot.Global
	t.games = snapshot.Games
}

func (t *StatsTracker) persistLocked() {
	if t.store == nil {
		return
	}

	data, err := json.Marshal(statsSnapshot{
		Players: t.players,
		Global:  t.global,
		Games:   t.games,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode stats")

		return
	}

	if err := t.store.Save(t.key, data); err != nil {
		log.Warn().Err(err).Msg("failed to persist stats")
	}
}

// survivalRounds returns how many rounds the player lasted: the round
// they were eliminated in, or the final round if they survived.
func survivalRounds(room *Room, userID string) int {
	for _, entry := range room.eliminated {
		if entry.UserID == userID {
			return entry.Round
		}
	}

	return room.currentRound
}

// RecordGame folds one finished game into the aggregates. Blanks are
// credited with a win when the undercovers win, since they win by
// surviving alongside them. Caller holds the room lock.
func (t *StatsTracker) RecordGame(room *Room, winner Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	for _, p := range room.playersInOrderLocked() {
		stats, ok := t.players[p.UserID]
		if !ok {
			stats = &PlayerStats{UserID: p.UserID}
			t.players[p.UserID] = stats
		}

		stats.UserName = p.UserName
		stats.TotalGames++
		stats.LastPlayed = now

		won := false
		switch p.Role {
		case RoleCivilian:
			stats.CivilianGames++
			if winner == RoleCivilian {
				stats.CivilianWins++
				won = true
			}
		case RoleUndercover:
			stats.UndercoverGames++
			if winner == RoleUndercover {
				stats.UndercoverWins++
				won = true
			}
		case RoleBlank:
			stats.BlankGames++
			if winner == RoleUndercover {
				stats.BlankWins++
				won = true
			}
		}
		if won {
			stats.Wins++
		}

		n := float64(stats.TotalGames)
		rounds := float64(survivalRounds(room, p.UserID))
		stats.AvgSurvivalRounds = (stats.AvgSurvivalRounds*(n-1) + rounds) / n

		// Survival rate is a 0-100 percentage.
		survived := 0.0
		if p.Alive {
			survived = 100.0
		}
		stats.SurvivalRate = (stats.SurvivalRate*(n-1) + survived) / n
	}

	t.global.TotalGames++
	switch winner {
	case RoleCivilian:
		t.global.CivilianWins++
	case RoleUndercover:
		t.global.UndercoverWins++
	}
	t.global.TotalPlayers = len(t.players)

	n := float64(t.global.TotalGames)
	t.global.AvgPlayersPerGame = (t.global.AvgPlayersPerGame*(n-1) + float64(len(room.players))) / n

	t.games = append(t.games, GameRecord{
		ID:          uuid.NewString(),
		RoomID:      room.id,
		Mode:        room.gameMode,
		Winner:      winner,
		PlayerCount: len(room.players),
		Rounds:      room.currentRound,
		StartedAt:   room.gameStart,
		EndedAt:     now,
	})

	t.persistLocked()
}

// Player returns a copy of one player's record, or false if they have
// never finished a game.
func (t *StatsTracker) Player(userID string) (PlayerStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.players[userID]
	if !ok {
		return PlayerStats{}, false
	}

	return *stats, true
}

func (t *StatsTracker) Global() GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.global
}

// Rankings returns the top players for the named board. Players need at
// least one game in the relevant category to appear.
func (t *StatsTracker) Rankings(board string) ([]RankingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []RankingEntry

	for _, stats := range t.players {
		switch board {
		case "wins":
			if stats.TotalGames > 0 {
				entries = append(entries, RankingEntry{stats.UserName, float64(stats.Wins), stats.TotalGames})
			}
		case "civilian":
			if stats.CivilianGames > 0 {
				entries = append(entries, RankingEntry{stats.UserName, float64(stats.CivilianWins) / float64(stats.CivilianGames), stats.CivilianGames})
			}
		case "undercover":
			if stats.UndercoverGames > 0 {
				entries = append(entries, RankingEntry{stats.UserName, float64(stats.UndercoverWins) / float64(stats.UndercoverGames), stats.UndercoverGames})
			}
		case "blank":
			if stats.BlankGames > 0 {
				entries = append(entries, RankingEntry{stats.UserName, float64(stats.BlankWins) / float64(stats.BlankGames), stats.BlankGames})
			}
		case "survival":
			if stats.TotalGames > 0 {
				entries = append(entries, RankingEntry{stats.UserName, stats.SurvivalRate, stats.TotalGames})
			}
		default:
			return nil, false
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}

		return entries[i].Games > entries[j].Games
	})

	if len(entries) > rankingLimit {
		entries = entries[:rankingLimit]
	}

	return entries, true
}
