package message

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	"github.com/google/uuid"
)

type fakeDirectory struct {
	names map[string]string
}

func (f *fakeDirectory) Name() string                          { return "directory" }
func (f *fakeDirectory) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeDirectory) GetUsers(ctx context.Context, ids []string) (map[string]collaborators.UserSnapshot, error) {
	out := make(map[string]collaborators.UserSnapshot, len(ids))
	for _, id := range ids {
		out[id] = collaborators.UserSnapshot{UserID: id, Name: f.names[id]}
	}
	return out, nil
}
func (f *fakeDirectory) IsReferral(ctx context.Context, a, b string) (bool, error) { return false, nil }
func (f *fakeDirectory) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return false, nil
}

type fakeRepository struct {
	byID map[string]*Message
}

func newFakeRepository() *fakeRepository { return &fakeRepository{byID: map[string]*Message{}} }

func (f *fakeRepository) Insert(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	f.byID[m.ID] = m
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id string) (*Message, error) {
	return f.byID[id], nil
}

func (f *fakeRepository) FindByIDs(ctx context.Context, ids []string) ([]*Message, error) {
	var out []*Message
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListByConversation(ctx context.Context, conversationID string, skip, limit int) ([]*Message, int, error) {
	var out []*Message
	for _, m := range f.byID {
		if m.ConversationID == conversationID && !m.Deleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if skip < len(out) {
		end := skip + limit
		if end > len(out) {
			end = len(out)
		}
		out = out[skip:end]
	} else {
		out = nil
	}
	return out, total, nil
}

func (f *fakeRepository) MarkAllReadExceptSender(ctx context.Context, conversationID, userID string) (int, error) {
	n := 0
	for _, m := range f.byID {
		if m.ConversationID == conversationID && m.SenderID != userID && !m.hasReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) AddReadBy(ctx context.Context, ids []string, userID string) error {
	for _, id := range ids {
		if m, ok := f.byID[id]; ok && !m.hasReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (f *fakeRepository) AddDeliveredTo(ctx context.Context, ids []string, userID string) error {
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			m.DeliveredTo = append(m.DeliveredTo, userID)
		}
	}
	return nil
}

func (f *fakeRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if m, ok := f.byID[id]; ok {
		m.Deleted = true
		m.DeletedAt = &at
	}
	return nil
}

func (f *fakeRepository) AddDeletedFor(ctx context.Context, id, userID string) error {
	if m, ok := f.byID[id]; ok {
		m.DeletedFor = append(m.DeletedFor, userID)
	}
	return nil
}

type fakeConversations struct {
	conv   *conversation.Conversation
	gate   conversation.MessagingStatus
	record func(conv *conversation.Conversation, senderID string, lm conversation.LastMessage)
}

func (f *fakeConversations) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	return f.conv, nil
}

func (f *fakeConversations) MessagingStatus(ctx context.Context, id, userID string, isAdmin bool) (conversation.MessagingStatus, error) {
	return f.gate, nil
}

func (f *fakeConversations) RecordSend(ctx context.Context, conv *conversation.Conversation, senderID string, lm conversation.LastMessage) error {
	if f.record != nil {
		f.record(conv, senderID, lm)
	}
	return nil
}

type fakeStorage struct{}

func (fakeStorage) Name() string                          { return "storage" }
func (fakeStorage) HealthCheck(ctx context.Context) error { return nil }
func (fakeStorage) Upload(ctx context.Context, bucket string, data io.Reader, contentType string) (string, error) {
	return "chat-documents/opaque-id", nil
}
func (fakeStorage) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + objectPath, nil
}
func (fakeStorage) SignedURLBatch(ctx context.Context, objectPaths []string, ttl time.Duration) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range objectPaths {
		out[p] = "https://signed.example/" + p
	}
	return out, nil
}

func baseConv(id string) *conversation.Conversation {
	return &conversation.Conversation{
		ID:               id,
		Participants:     []string{"A", "B"},
		AcceptanceStatus: conversation.StatusAccepted,
		InitiatorID:      "A",
	}
}

func TestSend_RejectsNonParticipant(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	_, err := core.Send(context.Background(), "c1", "stranger", SendPayload{Content: "hi"}, false)
	if err == nil {
		t.Fatal("expected error for non-participant sender")
	}
}

func TestSend_RejectsWhenGateClosed(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: false, Reason: "MESSAGE_LIMIT_REACHED"}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	_, err := core.Send(context.Background(), "c1", "A", SendPayload{Content: "hi"}, false)
	if err == nil {
		t.Fatal("expected error when the gate rejects the sender")
	}
}

func TestSend_TrimsAndEnforcesLength(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	msg, err := core.Send(context.Background(), "c1", "A", SendPayload{Content: "  hello  "}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("expected trimmed content, got %q", msg.Content)
	}

	tooLong := strings.Repeat("x", maxContentLength+1)
	_, err = core.Send(context.Background(), "c1", "A", SendPayload{Content: tooLong}, false)
	if err == nil {
		t.Fatal("expected error for over-length content")
	}
}

func TestSend_InitializesReadAndDeliveredWithSender(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	msg, err := core.Send(context.Background(), "c1", "A", SendPayload{Content: "hello"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != "A" {
		t.Fatalf("expected sender pre-seeded into readBy, got %v", msg.ReadBy)
	}
	if len(msg.DeliveredTo) != 1 || msg.DeliveredTo[0] != "A" {
		t.Fatalf("expected sender pre-seeded into deliveredTo, got %v", msg.DeliveredTo)
	}
}

func TestSend_PopulatesReplyToSenderName(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{names: map[string]string{"A": "Alice"}}, clock.Real)

	original, err := core.Send(context.Background(), "c1", "A", SendPayload{Content: "original"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply, err := core.Send(context.Background(), "c1", "B", SendPayload{Content: "reply", ReplyToID: original.ID}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ReplyTo == nil {
		t.Fatal("expected replyTo to be set")
	}
	if reply.ReplyTo.SenderName != "Alice" {
		t.Fatalf("expected replyTo.senderName=Alice, got %q", reply.ReplyTo.SenderName)
	}
}

func TestSoftDelete_OnlySender(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	msg, _ := core.Send(context.Background(), "c1", "A", SendPayload{Content: "hello"}, false)

	if err := core.SoftDelete(context.Background(), msg.ID, "B"); err == nil {
		t.Fatal("expected error when a non-sender attempts soft delete")
	}
	if err := core.SoftDelete(context.Background(), msg.ID, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.byID[msg.ID].Deleted {
		t.Fatal("expected message to be marked deleted")
	}
}

func TestListGrouped_BucketsByDay(t *testing.T) {
	repo := newFakeRepository()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	frozen := &clock.Frozen{At: now}
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, frozen)

	repo.byID["m1"] = &Message{ID: "m1", ConversationID: "c1", SenderID: "A", Content: "today", CreatedAt: now}
	repo.byID["m2"] = &Message{ID: "m2", ConversationID: "c1", SenderID: "A", Content: "yesterday", CreatedAt: now.AddDate(0, 0, -1)}

	groups, total, err := core.ListGrouped(context.Background(), "c1", "A", 1, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected total=2, got %d", total)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 day groups, got %d", len(groups))
	}
	if groups[0].Label != "Yesterday" || groups[1].Label != "Today" {
		t.Fatalf("expected ascending Yesterday,Today order, got %s,%s", groups[0].Label, groups[1].Label)
	}
}

func TestForward_RequiresParticipationInEveryTarget(t *testing.T) {
	repo := newFakeRepository()
	convs := &fakeConversations{conv: baseConv("c1"), gate: conversation.MessagingStatus{CanSend: true}}
	core := NewCore(repo, convs, nil, &fakeDirectory{}, clock.Real)

	msg, _ := core.Send(context.Background(), "c1", "A", SendPayload{Content: "hello"}, false)

	other := baseConv("c2")
	other.Participants = []string{"X", "Y"}
	convs.conv = other

	_, err := core.Forward(context.Background(), []string{msg.ID}, []string{"c2"}, "A", false)
	if err == nil {
		t.Fatal("expected error forwarding into a conversation where the user is not a participant")
	}
}
