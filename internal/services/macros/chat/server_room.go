package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/louisbranch/macrotable/internal/services/macros/storage"
)

type wsSession struct {
	mu     sync.Mutex
	room   *tableRoom
	peer   *wsPeer
	locale string
}

func newWSSession(peer *wsPeer) *wsSession {
	return &wsSession{peer: peer}
}

func (s *wsSession) setRoom(next *tableRoom, locale string) *tableRoom {
	s.mu.Lock()
	previous := s.room
	s.room = next
	s.locale = locale
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentRoom() (*tableRoom, string) {
	s.mu.Lock()
	room, locale := s.room, s.locale
	s.mu.Unlock()
	return room, locale
}

type wsPeer struct {
	mu       sync.Mutex
	encoder  *json.Encoder
	identity Identity
}

func newWSPeer(encoder *json.Encoder, identity Identity) *wsPeer {
	return &wsPeer{encoder: encoder, identity: identity}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// canSee reports whether msg is delivered to this peer. Whispers reach GMs
// and their author only.
func (p *wsPeer) canSee(msg storage.Message) bool {
	if !msg.Whisper {
		return true
	}
	return p.identity.IsGM() || p.identity.UserID == msg.UserID
}

// Hub tracks table rooms and delivers stored messages to their peers.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*tableRoom
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*tableRoom)}
}

// join adds peer to the table's room, creating it on first use. Joins and
// leaves share the hub lock so an emptied room is never rejoined after removal.
func (h *Hub) join(tableID string, peer *wsPeer) *tableRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[tableID]
	if !ok {
		room = newTableRoom(tableID)
		h.rooms[tableID] = room
	}
	room.join(peer)
	return room
}

func (h *Hub) existingRoom(tableID string) *tableRoom {
	h.mu.Lock()
	room := h.rooms[tableID]
	h.mu.Unlock()
	return room
}

func (h *Hub) leave(room *tableRoom, peer *wsPeer) {
	if room == nil || peer == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if room.leave(peer) && h.rooms[room.tableID] == room {
		delete(h.rooms, room.tableID)
	}
}

// Broadcast writes msg to every peer in its table that may see it.
func (h *Hub) Broadcast(_ context.Context, msg storage.Message) {
	room := h.existingRoom(msg.TableID)
	if room == nil {
		return
	}
	frame := wsFrame{
		Type:    "chat.message",
		Payload: mustJSON(messageEnvelope{Message: toChatMessage(msg)}),
	}
	for _, peer := range room.subscribers() {
		if peer.canSee(msg) {
			_ = peer.writeFrame(frame)
		}
	}
}

type tableRoom struct {
	mu      sync.Mutex
	tableID string
	peers   map[*wsPeer]struct{}
}

func newTableRoom(tableID string) *tableRoom {
	return &tableRoom{
		tableID: tableID,
		peers:   make(map[*wsPeer]struct{}),
	}
}

func (r *tableRoom) join(peer *wsPeer) {
	r.mu.Lock()
	r.peers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *tableRoom) leave(peer *wsPeer) bool {
	r.mu.Lock()
	delete(r.peers, peer)
	empty := len(r.peers) == 0
	r.mu.Unlock()
	return empty
}

func (r *tableRoom) subscribers() []*wsPeer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*wsPeer, 0, len(r.peers))
	for peer := range r.peers {
		peers = append(peers, peer)
	}
	return peers
}
