package realtime

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestJoinRoom_LeaveRoom(t *testing.T) {
	bus := NewBus(nil, zerolog.Nop())
	c := newTestClient("u1", "user")

	bus.JoinRoom(c, ConversationRoom("conv1"))
	if !c.inRoom(ConversationRoom("conv1")) {
		t.Fatal("expected client to be in the room after JoinRoom")
	}

	bus.LeaveRoom(c, ConversationRoom("conv1"))
	if c.inRoom(ConversationRoom("conv1")) {
		t.Fatal("expected client to have left the room")
	}
}

func TestEmitToRoom_DeliversToAllMembers(t *testing.T) {
	bus := NewBus(nil, zerolog.Nop())
	a := newTestClient("u1", "user")
	b := newTestClient("u2", "user")
	bus.JoinRoom(a, "room1")
	bus.JoinRoom(b, "room1")

	bus.EmitToRoom("room1", Event{Type: "ping"})

	for _, c := range []*Client{a, b} {
		select {
		case ev := <-c.send:
			if ev.Type != "ping" {
				t.Fatalf("expected ping event, got %s", ev.Type)
			}
		default:
			t.Fatalf("expected client %s to receive the emitted event", c.userID)
		}
	}
}

func TestEmitToRoom_DropsOnSlowConsumer(t *testing.T) {
	bus := NewBus(nil, zerolog.Nop())
	c := &Client{userID: "u1", send: make(chan Event, 1), rooms: map[string]bool{}}
	bus.JoinRoom(c, "room1")

	// Fill the buffer, then emit once more: the second frame must be
	// dropped rather than blocking the emit.
	bus.EmitToRoom("room1", Event{Type: "first"})
	before := bus.DroppedFrames()
	bus.EmitToRoom("room1", Event{Type: "second"})

	if bus.DroppedFrames() != before+1 {
		t.Fatalf("expected a dropped frame to be counted, before=%d after=%d", before, bus.DroppedFrames())
	}
	ev := <-c.send
	if ev.Type != "first" {
		t.Fatalf("expected the first frame to survive in the buffer, got %s", ev.Type)
	}
}

func TestEmitToRoomExcept_SkipsExcludedUser(t *testing.T) {
	bus := NewBus(nil, zerolog.Nop())
	a := newTestClient("u1", "user")
	b := newTestClient("u2", "user")
	bus.JoinRoom(a, "room1")
	bus.JoinRoom(b, "room1")

	bus.EmitToRoomExcept("room1", Event{Type: "typing:start"}, "u1")

	select {
	case ev := <-a.send:
		t.Fatalf("expected excluded user not to receive the event, got %v", ev)
	default:
	}
	select {
	case ev := <-b.send:
		if ev.Type != "typing:start" {
			t.Fatalf("expected typing:start, got %s", ev.Type)
		}
	default:
		t.Fatal("expected the non-excluded user to receive the event")
	}
}

func TestEmitToUser_ReachesAllOfThatUsersConnections(t *testing.T) {
	bus := NewBus(nil, zerolog.Nop())
	deviceA := newTestClient("u1", "user")
	deviceB := newTestClient("u1", "user")
	bus.register(deviceA)
	bus.register(deviceB)

	bus.EmitToUser("u1", Event{Type: "message:notification"})

	for _, c := range []*Client{deviceA, deviceB} {
		select {
		case ev := <-c.send:
			if ev.Type != "message:notification" {
				t.Fatalf("expected message:notification, got %s", ev.Type)
			}
		default:
			t.Fatal("expected every connection of the user to receive the notification")
		}
	}
}

func TestIsConversationRoom(t *testing.T) {
	if !IsConversationRoom(ConversationRoom("c1")) {
		t.Fatal("expected conversation room to match")
	}
	if IsConversationRoom("status:feed") {
		t.Fatal("expected non-conversation room not to match")
	}
}
