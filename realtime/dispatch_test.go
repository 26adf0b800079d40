package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	"github.com/TambongStercy/SBC-MS-sub006/message"
	"github.com/rs/zerolog"
)

type fakeConvGate struct {
	conversations map[string]*conversation.Conversation
}

func (f *fakeConvGate) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	return f.conversations[id], nil
}

func (f *fakeConvGate) MarkRead(ctx context.Context, id, userID string, markMessages func(ctx context.Context, conversationID, userID string) (int, error)) (int, error) {
	conv := f.conversations[id]
	if conv == nil || !conv.HasParticipant(userID) {
		return 0, errForbidden
	}
	return markMessages(ctx, id, userID)
}

type fakeMessages struct {
	sent        []message.SendPayload
	markedAll   []string
	markedReads [][]string
}

func (f *fakeMessages) Send(ctx context.Context, conversationID, senderID string, payload message.SendPayload, isAdmin bool) (*message.Message, error) {
	f.sent = append(f.sent, payload)
	return &message.Message{ID: "m1", ConversationID: conversationID, SenderID: senderID, Content: payload.Content, CreatedAt: time.Now()}, nil
}

func (f *fakeMessages) MarkRead(ctx context.Context, ids []string, userID string) error {
	f.markedReads = append(f.markedReads, ids)
	return nil
}

func (f *fakeMessages) MarkAllRead(ctx context.Context, conversationID, userID string) (int, error) {
	f.markedAll = append(f.markedAll, conversationID)
	return 0, nil
}

type fakePresence struct {
	typing map[string]bool
}

func newFakePresence() *fakePresence { return &fakePresence{typing: map[string]bool{}} }

func (f *fakePresence) SetOnline(ctx context.Context, userID, socketID string) error  { return nil }
func (f *fakePresence) SetOffline(ctx context.Context, userID string) error           { return nil }
func (f *fakePresence) SetTyping(ctx context.Context, conversationID, userID string) error {
	f.typing[conversationID+"|"+userID] = true
	return nil
}
func (f *fakePresence) ClearTyping(ctx context.Context, conversationID, userID string) error {
	delete(f.typing, conversationID+"|"+userID)
	return nil
}
func (f *fakePresence) GetOnlineStatuses(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range userIDs {
		out[id] = false
	}
	return out, nil
}

type fakeStatuses struct {
	liked, unliked, reposted, viewed []string
}

func (f *fakeStatuses) Like(ctx context.Context, statusID, userID string) error {
	f.liked = append(f.liked, statusID)
	return nil
}
func (f *fakeStatuses) Unlike(ctx context.Context, statusID, userID string) error {
	f.unliked = append(f.unliked, statusID)
	return nil
}
func (f *fakeStatuses) Repost(ctx context.Context, statusID, userID string) error {
	f.reposted = append(f.reposted, statusID)
	return nil
}
func (f *fakeStatuses) View(ctx context.Context, statusID, userID string) error {
	f.viewed = append(f.viewed, statusID)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errForbidden = fakeErr("not a participant")

func newTestClient(userID, role string) *Client {
	return &Client{userID: userID, role: role, send: make(chan Event, 8), rooms: map[string]bool{}}
}

func newTestDispatcher(conv *conversation.Conversation) (*Dispatcher, *fakeMessages, *fakePresence, *fakeStatuses) {
	bus := NewBus(nil, zerolog.Nop())
	convs := &fakeConvGate{conversations: map[string]*conversation.Conversation{conv.ID: conv}}
	messages := &fakeMessages{}
	presence := newFakePresence()
	statuses := &fakeStatuses{}
	return NewDispatcher(bus, convs, messages, presence, statuses), messages, presence, statuses
}

func TestHandleJoin_RejectsNonParticipant(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1", "u2"}}
	d, _, _, _ := newTestDispatcher(conv)
	c := newTestClient("stranger", "user")

	d.Handle(context.Background(), c, Event{Type: "conversation:join", Payload: map[string]string{"conversationId": "c1"}})

	if c.inRoom(ConversationRoom("c1")) {
		t.Fatal("expected non-participant to be rejected from joining the room")
	}
	select {
	case ev := <-c.send:
		if ev.Type != "error" {
			t.Fatalf("expected error event, got %s", ev.Type)
		}
	default:
		t.Fatal("expected an error frame to be queued")
	}
}

func TestHandleJoin_ParticipantJoinsAndMarksRead(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1", "u2"}}
	d, messages, _, _ := newTestDispatcher(conv)
	c := newTestClient("u1", "user")

	d.Handle(context.Background(), c, Event{Type: "conversation:join", Payload: map[string]string{"conversationId": "c1"}})

	if !c.inRoom(ConversationRoom("c1")) {
		t.Fatal("expected participant to join the conversation room")
	}
	if len(messages.markedAll) != 1 || messages.markedAll[0] != "c1" {
		t.Fatalf("expected MarkAllRead to be called for c1, got %v", messages.markedAll)
	}
}

func TestHandleMessageSend_BroadcastsAndNotifies(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1", "u2"}}
	d, messages, _, _ := newTestDispatcher(conv)

	sender := newTestClient("u1", "user")
	receiver := newTestClient("u2", "user")
	d.bus.JoinRoom(sender, ConversationRoom("c1"))
	d.bus.JoinRoom(receiver, ConversationRoom("c1"))
	d.bus.register(receiver)

	d.Handle(context.Background(), sender, Event{Type: "message:send", Payload: map[string]string{"conversationId": "c1", "content": "hello"}})

	if len(messages.sent) != 1 || messages.sent[0].Content != "hello" {
		t.Fatalf("expected message to be sent via the core, got %v", messages.sent)
	}

	var gotNew, gotSent, gotNotification bool
	drain := func(c *Client) {
		for {
			select {
			case ev := <-c.send:
				switch ev.Type {
				case "message:new":
					gotNew = true
				case "message:sent":
					gotSent = true
				case "message:notification":
					gotNotification = true
				}
			default:
				return
			}
		}
	}
	drain(sender)
	drain(receiver)

	if !gotNew {
		t.Fatal("expected message:new to be emitted to the conversation room")
	}
	if !gotSent {
		t.Fatal("expected message:sent ack to the sender")
	}
	if !gotNotification {
		t.Fatal("expected message:notification to the other participant's user room")
	}
}

func TestHandleTyping_ExcludesTypist(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1", "u2"}}
	d, _, presence, _ := newTestDispatcher(conv)

	typist := newTestClient("u1", "user")
	other := newTestClient("u2", "user")
	d.bus.JoinRoom(typist, ConversationRoom("c1"))
	d.bus.JoinRoom(other, ConversationRoom("c1"))

	d.Handle(context.Background(), typist, Event{Type: "typing:start", Payload: map[string]string{"conversationId": "c1"}})

	if !presence.typing["c1|u1"] {
		t.Fatal("expected typing state to be recorded")
	}

	select {
	case ev := <-typist.send:
		t.Fatalf("typist should not receive its own typing:start echo, got %v", ev)
	default:
	}
	select {
	case ev := <-other.send:
		if ev.Type != "typing:start" {
			t.Fatalf("expected typing:start for the other participant, got %s", ev.Type)
		}
	default:
		t.Fatal("expected the other participant to receive typing:start")
	}
}

func TestHandleStatusLike_BroadcastsToFeed(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1", "u2"}}
	d, _, _, statuses := newTestDispatcher(conv)

	watcher := newTestClient("u2", "user")
	d.bus.JoinRoom(watcher, "status:feed")

	liker := newTestClient("u1", "user")
	d.Handle(context.Background(), liker, Event{Type: "status:like", Payload: map[string]string{"statusId": "s1"}})

	if len(statuses.liked) != 1 || statuses.liked[0] != "s1" {
		t.Fatalf("expected status core Like to be called, got %v", statuses.liked)
	}
	select {
	case ev := <-watcher.send:
		if ev.Type != "status:liked" {
			t.Fatalf("expected status:liked broadcast, got %s", ev.Type)
		}
	default:
		t.Fatal("expected status:liked to be broadcast to status:feed subscribers")
	}
}

func TestHandleUnknownEvent_RepliesWithError(t *testing.T) {
	conv := &conversation.Conversation{ID: "c1", Participants: []string{"u1"}}
	d, _, _, _ := newTestDispatcher(conv)
	c := newTestClient("u1", "user")

	d.Handle(context.Background(), c, Event{Type: "bogus:event"})

	select {
	case ev := <-c.send:
		if ev.Type != "error" {
			t.Fatalf("expected error event, got %s", ev.Type)
		}
	default:
		t.Fatal("expected an error frame for an unknown event type")
	}
}
