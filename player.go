/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "time"

type Role string

const (
	RoleUnassigned Role = ""
	RoleCivilian   Role = "civilian"
	RoleUndercover Role = "undercover"
	RoleBlank      Role = "blank"
)

// Player holds one member of a room. Identity comes from the chat
// platform and is opaque to the engine; lifetime statistics live in
// the StatsTracker, keyed by UserID.
type Player struct {
	UserID   string
	UserName string

	Role      Role
	Word      string
	Alive     bool
	HasSpoken bool

	JoinedAt time.Time
}

func newPlayer(userID, userName string) *Player {
	return &Player{
		UserID:   userID,
		UserName: userName,
		Alive:    true,
		JoinedAt: time.Now(),
	}
}

// resetForNewGame clears per-game state while keeping identity.
func (p *Player) resetForNewGame() {
	p.Role = RoleUnassigned
	p.Word = ""
	p.Alive = true
	p.HasSpoken = false
}
