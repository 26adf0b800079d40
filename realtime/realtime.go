// Package realtime implements RealtimeBus: a duplex, authenticated
// per-connection channel with room-based pub/sub, grounded on the
// buffered-outgoing-channel-per-client pattern used for campaign/user
// WebSocket fan-out elsewhere in the ecosystem. Room membership is
// in-process only; there is no horizontal fan-out across instances.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize  = 64
	pingInterval    = 25 * time.Second
	idleTimeout     = 60 * time.Second
	maxConnsPerUser = 8
	acquireTimeout  = 5 * time.Second
)

// Event is the JSON-framed envelope exchanged on every connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Authenticator verifies the bearer token presented at connect time
// and returns the caller's identity, or an error to reject the
// connection immediately.
type Authenticator interface {
	Authenticate(token string) (userID, role string, err error)
}

// Client is one authenticated connection. Its send loop is
// single-threaded and cooperative: events queue on a buffered channel
// and are written in arrival order, preserving per-connection
// ordering.
type Client struct {
	conn     *websocket.Conn
	userID   string
	role     string
	send     chan Event
	rooms    map[string]bool
	mu       sync.Mutex
	closed   int32
	lastPing time.Time
}

func (c *Client) joinRoom(room string)  { c.mu.Lock(); c.rooms[room] = true; c.mu.Unlock() }
func (c *Client) leaveRoom(room string) { c.mu.Lock(); delete(c.rooms, room); c.mu.Unlock() }
func (c *Client) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[room]
}

// enqueue drops the frame rather than blocking when the client's
// outgoing buffer is full, matching the bus's best-effort FIFO
// guarantee across connections.
func (c *Client) enqueue(ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Bus owns room membership and the per-user connection set. Rooms:
// conversation:{id}, user:{userId}, status:feed, status:all,
// status:category:{cat}, presence:{userId}.
type Bus struct {
	mu          sync.RWMutex
	roomClients map[string]map[*Client]bool
	userClients map[string]map[*Client]bool

	auth   Authenticator
	logger zerolog.Logger

	onConnect    func(ctx context.Context, userID string)
	onDisconnect func(ctx context.Context, userID string)

	conns         *middleware.ConnectionGuard
	droppedFrames middleware.AtomicCounter
}

func NewBus(auth Authenticator, logger zerolog.Logger) *Bus {
	return &Bus{
		roomClients: make(map[string]map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		auth:        auth,
		logger:      logger.With().Str("component", "realtime_bus").Logger(),
		conns:       middleware.NewConnectionGuard(maxConnsPerUser),
	}
}

func (b *Bus) OnConnect(f func(ctx context.Context, userID string))    { b.onConnect = f }
func (b *Bus) OnDisconnect(f func(ctx context.Context, userID string)) { b.onDisconnect = f }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades the HTTP connection after verifying the bearer
// token, joins the user's implicit room, and runs the read/write
// pumps until the connection closes.
func (b *Bus) Accept(w http.ResponseWriter, r *http.Request, token string, handleInbound func(ctx context.Context, c *Client, ev Event)) error {
	userID, role, err := b.auth.Authenticate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return err
	}

	if !b.conns.Acquire(userID, acquireTimeout) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return fmt.Errorf("realtime: connection limit reached for user %s", userID)
	}
	defer b.conns.Release(userID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan Event, sendBufferSize),
		rooms:  map[string]bool{},
	}

	b.register(client)
	defer b.unregister(client)

	if b.onConnect != nil {
		b.onConnect(r.Context(), userID)
	}
	b.Emit("user:online", userID)
	b.EmitToRoom(presenceRoom(userID), Event{Type: "user:online", Payload: map[string]string{"userId": userID}})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.writePump(client) }()
	go func() { defer wg.Done(); b.readPump(r.Context(), client, handleInbound) }()
	wg.Wait()

	if b.onDisconnect != nil {
		b.onDisconnect(r.Context(), userID)
	}
	b.EmitToRoom(presenceRoom(userID), Event{Type: "user:offline", Payload: map[string]string{"userId": userID}})
	return nil
}

func (b *Bus) register(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	userRoom := userRoomName(c.userID)
	c.rooms[userRoom] = true
	if b.roomClients[userRoom] == nil {
		b.roomClients[userRoom] = map[*Client]bool{}
	}
	b.roomClients[userRoom][c] = true
	if b.userClients[c.userID] == nil {
		b.userClients[c.userID] = map[*Client]bool{}
	}
	b.userClients[c.userID][c] = true
}

func (b *Bus) unregister(c *Client) {
	atomic.StoreInt32(&c.closed, 1)
	close(c.send)
	_ = c.conn.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	for _, room := range rooms {
		if clients, ok := b.roomClients[room]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(b.roomClients, room)
			}
		}
	}
	if clients, ok := b.userClients[c.userID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(b.userClients, c.userID)
		}
	}
}

func (b *Bus) writePump(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Bus) readPump(ctx context.Context, c *Client, handleInbound func(ctx context.Context, c *Client, ev Event)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		var raw json.RawMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.enqueue(Event{Type: "error", Payload: "malformed event"})
			continue
		}
		handleInbound(ctx, c, ev)
	}
}

// JoinRoom is called on conversation:join and the status subscription
// events. The caller is responsible for the participant/visibility
// check before calling this.
func (b *Bus) JoinRoom(c *Client, room string) {
	c.joinRoom(room)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.roomClients[room] == nil {
		b.roomClients[room] = map[*Client]bool{}
	}
	b.roomClients[room][c] = true
}

func (b *Bus) LeaveRoom(c *Client, room string) {
	c.leaveRoom(room)
	b.mu.Lock()
	defer b.mu.Unlock()
	if clients, ok := b.roomClients[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(b.roomClients, room)
		}
	}
}

// EmitToRoom delivers ev to every client currently in room. Delivery
// is best-effort: a slow client's frame is dropped and counted rather
// than blocking the emit.
func (b *Bus) EmitToRoom(room string, ev Event) {
	b.mu.RLock()
	clients := b.roomClients[room]
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(ev) {
			b.droppedFrames.Inc()
			b.logger.Warn().Str("room", room).Str("userId", c.userID).Msg("dropped realtime frame, slow consumer")
		}
	}
}

// EmitToRoomExcept is EmitToRoom but skips the given user's
// connections, used for typing indicators which must not echo back to
// the typist.
func (b *Bus) EmitToRoomExcept(room string, ev Event, exceptUserID string) {
	b.mu.RLock()
	clients := b.roomClients[room]
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		if c.userID != exceptUserID {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(ev) {
			b.droppedFrames.Inc()
		}
	}
}

// EmitToUser delivers ev to every connection the user currently has
// open (their implicit user:{id} room).
func (b *Bus) EmitToUser(userID string, ev Event) {
	b.EmitToRoom(userRoomName(userID), ev)
}

// Emit is a convenience for single-value payload broadcasts used by
// connect/disconnect notifications.
func (b *Bus) Emit(eventType, userID string) {
	b.EmitToRoom("status:feed", Event{Type: eventType, Payload: map[string]string{"userId": userID}})
}

func (b *Bus) DroppedFrames() int64 { return b.droppedFrames.Get() }

func userRoomName(userID string) string          { return "user:" + userID }
func presenceRoom(userID string) string          { return "presence:" + userID }
func ConversationRoom(id string) string          { return "conversation:" + id }
func StatusCategoryRoom(category string) string  { return "status:category:" + category }
func UserRoom(userID string) string              { return userRoomName(userID) }
func PresenceRoom(userID string) string          { return presenceRoom(userID) }
func IsConversationRoom(room string) bool        { return strings.HasPrefix(room, "conversation:") }
