/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// Event is one entry on a room's event feed.
type Event struct {
	Type    string `json:"type"`
	RoomID  int    `json:"room_id"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan Event
}

func (c *feedClient) writePump() {
	defer c.conn.Close()

	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; the feed is one-way. It exists so
// close frames and pings are processed and dead connections detected.
func (c *feedClient) readPump(feed *Feed, roomID int) {
	defer func() {
		feed.unsubscribe(roomID, c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Feed fans room events out to websocket subscribers. Sends never
// block: a client whose buffer is full is evicted.
type Feed struct {
	mu    sync.Mutex
	rooms map[int]map[*feedClient]bool
}

func newFeed() *Feed {
	return &Feed{
		rooms: make(map[int]map[*feedClient]bool),
	}
}

func (f *Feed) subscribe(roomID int, c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients, ok := f.rooms[roomID]
	if !ok {
		clients = make(map[*feedClient]bool)
		f.rooms[roomID] = clients
	}
	clients[c] = true
}

func (f *Feed) unsubscribe(roomID int, c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients, ok := f.rooms[roomID]
	if !ok {
		return
	}
	if clients[c] {
		delete(clients, c)
		close(c.send)
	}
	if len(clients) == 0 {
		delete(f.rooms, roomID)
	}
}

// Publish sends the event to every subscriber of the room.
func (f *Feed) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for client := range f.rooms[event.RoomID] {
		select {
		case client.send <- event:
		default:
			delete(f.rooms[event.RoomID], client)
			close(client.send)
		}
	}
}

// CloseRoom disconnects every subscriber when a room goes away.
func (f *Feed) CloseRoom(roomID int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for client := range f.rooms[roomID] {
		close(client.send)
		_ = client.conn.Close()
	}
	delete(f.rooms, roomID)
}

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveRoomFeed upgrades the connection and attaches it to the room's
// event stream.
func serveRoomFeed(feed *Feed, directory *Directory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID, err := parseRoomID(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, "invalid room id", http.StatusBadRequest)

			return
		}

		if _, ok := directory.RoomByID(roomID); !ok {
			http.Error(w, "room not found", http.StatusNotFound)

			return
		}

		conn, err := feedUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")

			return
		}

		client := &feedClient{
			conn: conn,
			send: make(chan Event, 8),
		}

		feed.subscribe(roomID, client)

		go client.writePump()
		client.readPump(feed, roomID)
	}
}
