/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Directory tracks every live room and which room each user belongs to.
// A user may be in at most one room, as player or spectator. Lock order
// is Directory.mu before Room.mu, never the reverse.
type Directory struct {
	mu         sync.Mutex
	rooms      map[int]*Room
	userRoom   map[string]int
	spectating map[string]int
	nextID     int

	speakTime  time.Duration
	voteTime   time.Duration
	maxPlayers int

	idleTimeout  time.Duration
	emptyTimeout time.Duration

	// onRoomClosed runs outside the directory lock whenever a room is
	// removed, so the event feed can drop its subscribers.
	onRoomClosed func(roomID int)
}

func newDirectory(cfg *Config) *Directory {
	d := &Directory{
		rooms:        make(map[int]*Room),
		userRoom:     make(map[string]int),
		spectating:   make(map[string]int),
		nextID:       1,
		speakTime:    cfg.speakTime,
		voteTime:     cfg.voteTime,
		maxPlayers:   cfg.maxPlayers,
		idleTimeout:  cfg.roomIdleTimeout,
		emptyTimeout: cfg.emptyRoomTimeout,
	}

	if cfg.cleanupInterval > 0 {
		go d.reaperLoop(cfg.cleanupInterval)
	}

	return d
}

// CreateRoom opens a new room with the caller as owner and first player.
func (d *Directory) CreateRoom(userID, userName string) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.userRoom[userID]; ok {
		return nil, errAlreadyInRoom
	}
	if _, ok := d.spectating[userID]; ok {
		return nil, errAlreadyInRoom
	}

	room := newRoom(d.nextID, userID, d.speakTime, d.voteTime)
	room.addPlayerLocked(newPlayer(userID, userName))

	d.rooms[room.id] = room
	d.userRoom[userID] = room.id
	d.nextID++

	log.Info().Int("room", room.id).Str("owner", userName).Msg("room created")

	return room, nil
}

// JoinRoom adds the user to a waiting room with a free seat.
func (d *Directory) JoinRoom(roomID int, userID, userName string) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.userRoom[userID]; ok {
		return nil, errAlreadyInRoom
	}
	if _, ok := d.spectating[userID]; ok {
		return nil, errAlreadyInRoom
	}

	room, ok := d.rooms[roomID]
	if !ok {
		return nil, errInvalidTarget
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status != StatusWaiting {
		return nil, errWrongPhase
	}
	if len(room.players) >= d.maxPlayers {
		return nil, errCapacityExceeded
	}

	room.addPlayerLocked(newPlayer(userID, userName))
	d.userRoom[userID] = roomID

	return room, nil
}

// LeaveRoom removes the user from their room. Ownership passes to the
// earliest remaining joiner; an emptied room is closed immediately.
func (d *Directory) LeaveRoom(userID string) (*Room, error) {
	d.mu.Lock()

	roomID, ok := d.userRoom[userID]
	if !ok {
		d.mu.Unlock()

		return nil, errNotInRoom
	}

	room := d.rooms[roomID]
	delete(d.userRoom, userID)

	room.mu.Lock()
	room.removePlayerLocked(userID)

	if len(room.players) == 0 {
		delete(d.rooms, roomID)
		room.mu.Unlock()
		d.mu.Unlock()

		d.roomClosed(roomID, "emptied")

		return nil, nil
	}

	if room.ownerID == userID {
		room.ownerID = room.order[0]
	}
	room.mu.Unlock()
	d.mu.Unlock()

	return room, nil
}

// RemovePlayer evicts a player on the owner's behalf. The caller has
// already validated ownership; mapping cleanup mirrors LeaveRoom.
func (d *Directory) RemovePlayer(roomID int, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userRoom[userID] == roomID {
		delete(d.userRoom, userID)
	}
}

// Spectate registers the user as a spectator of a room that allows it.
func (d *Directory) Spectate(roomID int, userID string) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.userRoom[userID]; ok {
		return nil, errAlreadyInRoom
	}
	if _, ok := d.spectating[userID]; ok {
		return nil, errAlreadyInRoom
	}

	room, ok := d.rooms[roomID]
	if !ok {
		return nil, errInvalidTarget
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.settings.AllowSpectators {
		return nil, errSpectatingClosed
	}

	room.spectators[userID] = time.Now()
	room.touchLocked()
	d.spectating[userID] = roomID

	return room, nil
}

// LeaveSpectate drops the user's spectator registration.
func (d *Directory) LeaveSpectate(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.spectating[userID]
	if !ok {
		return errNotInRoom
	}

	delete(d.spectating, userID)

	if room, ok := d.rooms[roomID]; ok {
		room.mu.Lock()
		delete(room.spectators, userID)
		room.mu.Unlock()
	}

	return nil
}

// RoomByUser resolves the room the user plays in.
func (d *Directory) RoomByUser(userID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.userRoom[userID]
	if !ok {
		return nil, false
	}

	return d.rooms[roomID], true
}

// SpectatedRoom resolves the room the user is watching.
func (d *Directory) SpectatedRoom(userID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.spectating[userID]
	if !ok {
		return nil, false
	}

	room, ok := d.rooms[roomID]

	return room, ok
}

// RoomByID resolves a room by its numeric id.
func (d *Directory) RoomByID(roomID int) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]

	return room, ok
}

// Rooms returns a snapshot of all live rooms.
func (d *Directory) Rooms() []*Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

func (d *Directory) roomClosed(roomID int, reason string) {
	log.Info().Int("room", roomID).Str("reason", reason).Msg("room closed")

	if d.onRoomClosed != nil {
		d.onRoomClosed(roomID)
	}
}

// CleanupIdle reclaims rooms that are no longer in use: any room idle
// past the long timeout, waiting rooms holding only their owner past
// the short timeout, and rooms somehow left with zero players. Returns
// the ids of reclaimed rooms.
func (d *Directory) CleanupIdle(now time.Time) []int {
	d.mu.Lock()

	var closed []int

	for id, room := range d.rooms {
		room.mu.Lock()

		idle := now.Sub(room.lastActivity)
		ownerOnly := room.status == StatusWaiting && len(room.players) == 1

		remove := len(room.players) == 0 ||
			idle > d.idleTimeout ||
			(ownerOnly && idle > d.emptyTimeout)

		if remove {
			for userID := range room.players {
				delete(d.userRoom, userID)
			}
			for userID := range room.spectators {
				delete(d.spectating, userID)
			}
			delete(d.rooms, id)
			closed = append(closed, id)
		}

		room.mu.Unlock()
	}

	d.mu.Unlock()

	for _, id := range closed {
		d.roomClosed(id, "idle")
	}

	return closed
}

func (d *Directory) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	for range ticker.C {
		d.CleanupIdle(time.Now())
	}
}
