package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	"github.com/TambongStercy/SBC-MS-sub006/message"
)

// ConversationGate is the subset of ConversationCore the bus needs to
// authorize room joins and apply read receipts.
type ConversationGate interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	MarkRead(ctx context.Context, id, userID string, markMessages func(ctx context.Context, conversationID, userID string) (int, error)) (int, error)
}

// MessageSender is the subset of MessageCore the bus needs to turn a
// message:send event into a persisted message and its side effects.
type MessageSender interface {
	Send(ctx context.Context, conversationID, senderID string, payload message.SendPayload, isAdmin bool) (*message.Message, error)
	MarkRead(ctx context.Context, ids []string, userID string) error
	MarkAllRead(ctx context.Context, conversationID, userID string) (int, error)
}

// PresenceGateway is the subset of PresenceCore the bus uses. The
// dispatcher calls SetTyping, ClearTyping and GetOnlineStatuses;
// connecting and disconnecting do not call SetOnline or SetOffline.
type PresenceGateway interface {
	SetOnline(ctx context.Context, userID, socketID string) error
	SetOffline(ctx context.Context, userID string) error
	SetTyping(ctx context.Context, conversationID, userID string) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
	GetOnlineStatuses(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// StatusInteractor is the subset of StatusCore the bus drives from
// status:* inbound events.
type StatusInteractor interface {
	Like(ctx context.Context, statusID, userID string) error
	Unlike(ctx context.Context, statusID, userID string) error
	Repost(ctx context.Context, statusID, userID string) error
	View(ctx context.Context, statusID, userID string) error
}

// Dispatcher wires inbound client events to the domain cores and
// fans the resulting side effects back out to the right rooms.
type Dispatcher struct {
	bus      *Bus
	convs    ConversationGate
	messages MessageSender
	presence PresenceGateway
	statuses StatusInteractor
}

func NewDispatcher(bus *Bus, convs ConversationGate, messages MessageSender, presence PresenceGateway, statuses StatusInteractor) *Dispatcher {
	return &Dispatcher{bus: bus, convs: convs, messages: messages, presence: presence, statuses: statuses}
}

type joinLeavePayload struct {
	ConversationID string `json:"conversationId"`
}

type messageSendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ReplyToID      string `json:"replyToId,omitempty"`
}

type messageReadPayload struct {
	MessageIDs []string `json:"messageIds"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
}

type statusActionPayload struct {
	StatusID string `json:"statusId"`
}

func decode(payload any, out any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, out)
}

// Handle is the single entry point the Bus calls for every inbound
// frame on a connection. Unknown event types get an `error` frame.
func (d *Dispatcher) Handle(ctx context.Context, c *Client, ev Event) {
	switch ev.Type {
	case "conversation:join":
		d.handleJoin(ctx, c, ev)
	case "conversation:leave":
		d.handleLeave(c, ev)
	case "message:send":
		d.handleMessageSend(ctx, c, ev)
	case "message:read":
		d.handleMessageRead(ctx, c, ev)
	case "typing:start":
		d.handleTyping(ctx, c, ev, "typing:start")
	case "typing:stop":
		d.handleTyping(ctx, c, ev, "typing:stop")
	case "presence:ping":
		c.enqueue(Event{Type: "presence:pong"})
	case "presence:get":
		d.handlePresenceGet(ctx, c, ev)
	case "presence:subscribe":
		d.handlePresenceSubscribe(c, ev, true)
	case "presence:unsubscribe":
		d.handlePresenceSubscribe(c, ev, false)
	case "presence:away", "presence:active":
		// client-declared state; accepted and ignored, with no side
		// effect.
	case "status:subscribe":
		d.handleStatusSubscribe(c, ev, true)
	case "status:unsubscribe":
		d.handleStatusSubscribe(c, ev, false)
	case "status:like":
		d.handleStatusAction(ctx, c, ev, d.statuses.Like, "status:liked")
	case "status:unlike":
		d.handleStatusAction(ctx, c, ev, d.statuses.Unlike, "status:unliked")
	case "status:repost":
		d.handleStatusAction(ctx, c, ev, d.statuses.Repost, "status:reposted")
	case "status:view":
		d.handleStatusAction(ctx, c, ev, d.statuses.View, "")
	case "status:reply":
		// Reply creation goes through the REST endpoint; this only
		// acknowledges so the client can show the thread without a
		// page reload.
		c.enqueue(Event{Type: "reply:success"})
	default:
		c.enqueue(Event{Type: "error", Payload: "unknown event type: " + ev.Type})
	}
}

func (d *Dispatcher) handleJoin(ctx context.Context, c *Client, ev Event) {
	var p joinLeavePayload
	decode(ev.Payload, &p)

	conv, err := d.convs.Get(ctx, p.ConversationID)
	if err != nil || conv == nil || !conv.HasParticipant(c.userID) {
		c.enqueue(Event{Type: "error", Payload: "cannot join conversation"})
		return
	}

	d.bus.JoinRoom(c, ConversationRoom(p.ConversationID))

	// Joining also marks the conversation read for this participant.
	if _, err := d.convs.MarkRead(ctx, p.ConversationID, c.userID, d.messages.MarkAllRead); err == nil {
		d.bus.EmitToRoom(ConversationRoom(p.ConversationID), Event{
			Type:    "message:read",
			Payload: map[string]any{"readBy": c.userID, "readAt": time.Now()},
		})
	}
}

func (d *Dispatcher) handleLeave(c *Client, ev Event) {
	var p joinLeavePayload
	decode(ev.Payload, &p)
	d.bus.LeaveRoom(c, ConversationRoom(p.ConversationID))
}

func (d *Dispatcher) handleMessageSend(ctx context.Context, c *Client, ev Event) {
	var p messageSendPayload
	decode(ev.Payload, &p)

	conv, err := d.convs.Get(ctx, p.ConversationID)
	if err != nil || conv == nil {
		c.enqueue(Event{Type: "error", Payload: "conversation not found"})
		return
	}

	msg, err := d.messages.Send(ctx, p.ConversationID, c.userID, message.SendPayload{
		Content:   p.Content,
		Type:      message.TypeText,
		ReplyToID: p.ReplyToID,
	}, c.role == "admin")
	if err != nil {
		c.enqueue(Event{Type: "error", Payload: err.Error()})
		return
	}

	d.bus.EmitToRoom(ConversationRoom(p.ConversationID), Event{
		Type: "message:new",
		Payload: map[string]any{
			"id": msg.ID, "conversationId": msg.ConversationID, "content": msg.Content,
			"senderId": msg.SenderID, "createdAt": msg.CreatedAt,
		},
	})
	c.enqueue(Event{Type: "message:sent", Payload: map[string]any{"id": msg.ID}})

	for _, other := range conv.Participants {
		if other == c.userID {
			continue
		}
		d.bus.EmitToUser(other, Event{
			Type:    "message:notification",
			Payload: map[string]any{"conversationId": p.ConversationID, "senderId": c.userID, "preview": msg.Content},
		})
	}
}

func (d *Dispatcher) handleMessageRead(ctx context.Context, c *Client, ev Event) {
	var p messageReadPayload
	decode(ev.Payload, &p)
	if err := d.messages.MarkRead(ctx, p.MessageIDs, c.userID); err != nil {
		c.enqueue(Event{Type: "error", Payload: err.Error()})
	}
}

func (d *Dispatcher) handleTyping(ctx context.Context, c *Client, ev Event, eventType string) {
	var p typingPayload
	decode(ev.Payload, &p)

	var err error
	if eventType == "typing:start" {
		err = d.presence.SetTyping(ctx, p.ConversationID, c.userID)
	} else {
		err = d.presence.ClearTyping(ctx, p.ConversationID, c.userID)
	}
	if err != nil {
		c.enqueue(Event{Type: "error", Payload: err.Error()})
		return
	}
	d.bus.EmitToRoomExcept(ConversationRoom(p.ConversationID), Event{
		Type:    eventType,
		Payload: map[string]string{"conversationId": p.ConversationID, "userId": c.userID},
	}, c.userID)
}

type presenceGetPayload struct {
	UserIDs []string `json:"userIds"`
}

func (d *Dispatcher) handlePresenceGet(ctx context.Context, c *Client, ev Event) {
	var p presenceGetPayload
	decode(ev.Payload, &p)
	statuses, err := d.presence.GetOnlineStatuses(ctx, p.UserIDs)
	if err != nil {
		c.enqueue(Event{Type: "presence:error", Payload: err.Error()})
		return
	}
	c.enqueue(Event{Type: "presence:status", Payload: statuses})
}

type presenceSubscribePayload struct {
	UserID string `json:"userId"`
}

func (d *Dispatcher) handlePresenceSubscribe(c *Client, ev Event, subscribe bool) {
	var p presenceSubscribePayload
	decode(ev.Payload, &p)
	if subscribe {
		d.bus.JoinRoom(c, PresenceRoom(p.UserID))
	} else {
		d.bus.LeaveRoom(c, PresenceRoom(p.UserID))
	}
}

type statusSubscribePayload struct {
	Room string `json:"room"` // "feed" | "all" | "category:{cat}"
}

func (d *Dispatcher) handleStatusSubscribe(c *Client, ev Event, subscribe bool) {
	var p statusSubscribePayload
	decode(ev.Payload, &p)
	room := "status:" + p.Room
	if subscribe {
		d.bus.JoinRoom(c, room)
	} else {
		d.bus.LeaveRoom(c, room)
	}
}

func (d *Dispatcher) handleStatusAction(ctx context.Context, c *Client, ev Event, action func(ctx context.Context, statusID, userID string) error, broadcastType string) {
	var p statusActionPayload
	decode(ev.Payload, &p)
	if err := action(ctx, p.StatusID, c.userID); err != nil {
		c.enqueue(Event{Type: "status:error", Payload: err.Error()})
		return
	}
	if broadcastType != "" {
		d.bus.EmitToRoom("status:feed", Event{Type: broadcastType, Payload: map[string]string{"statusId": p.StatusID, "userId": c.userID}})
	}
}
