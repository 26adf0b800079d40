package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/google/uuid"
)

// fakeRepository is an in-memory Repository good enough to exercise
// ConversationCore's gate logic and counters without a live Mongo.
type fakeRepository struct {
	byID map[string]*Conversation
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byID: map[string]*Conversation{}}
}

func (f *fakeRepository) FindDirect(ctx context.Context, u1, u2 string) (*Conversation, error) {
	for _, c := range f.byID {
		if c.Type != TypeDirect || len(c.Participants) != 2 {
			continue
		}
		has1, has2 := false, false
		for _, p := range c.Participants {
			if p == u1 {
				has1 = true
			}
			if p == u2 {
				has2 = true
			}
		}
		if has1 && has2 {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindStatusReply(ctx context.Context, statusID, replyer, author string) (*Conversation, error) {
	for _, c := range f.byID {
		if c.Type == TypeStatusReply && c.StatusID == statusID && c.HasParticipant(replyer) && c.HasParticipant(author) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) Insert(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	f.byID[c.ID] = c
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id string) (*Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (f *fakeRepository) AddDeletedFor(ctx context.Context, id, userID string) error {
	c := f.byID[id]
	if !c.isDeletedFor(userID) {
		c.DeletedFor = append(c.DeletedFor, userID)
	}
	return nil
}

func (f *fakeRepository) RemoveDeletedFor(ctx context.Context, id, userID string) error {
	c := f.byID[id]
	out := c.DeletedFor[:0]
	for _, u := range c.DeletedFor {
		if u != userID {
			out = append(out, u)
		}
	}
	c.DeletedFor = out
	return nil
}

func (f *fakeRepository) SetAcceptanceStatus(ctx context.Context, id string, status AcceptanceStatus, at time.Time, reportedBy string) error {
	c := f.byID[id]
	c.AcceptanceStatus = status
	if status == StatusAccepted {
		c.AcceptedAt = &at
	}
	if status == StatusReported {
		c.ReportedAt = &at
		c.ReportedBy = reportedBy
	}
	return nil
}

func (f *fakeRepository) IncMessageCount(ctx context.Context, id, userID string, delta int) error {
	f.byID[id].MessageCounts[userID] += delta
	return nil
}

func (f *fakeRepository) IncUnreadCount(ctx context.Context, id, userID string, delta int) error {
	f.byID[id].UnreadCounts[userID] += delta
	return nil
}

func (f *fakeRepository) ResetUnreadCount(ctx context.Context, id, userID string) error {
	f.byID[id].UnreadCounts[userID] = 0
	return nil
}

func (f *fakeRepository) SetLastMessage(ctx context.Context, id string, lm LastMessage) error {
	f.byID[id].LastMessage = &lm
	return nil
}

func (f *fakeRepository) ListForUser(ctx context.Context, userID string, archived bool, page, limit int) ([]*Conversation, int, error) {
	var out []*Conversation
	for _, c := range f.byID {
		if !c.HasParticipant(userID) {
			continue
		}
		if c.isDeletedFor(userID) != archived {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

type fakeDirectory struct {
	referrals map[string]bool
}

func (f *fakeDirectory) Name() string                          { return "directory" }
func (f *fakeDirectory) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeDirectory) GetUsers(ctx context.Context, ids []string) (map[string]collaborators.UserSnapshot, error) {
	return nil, nil
}
func (f *fakeDirectory) IsReferral(ctx context.Context, a, b string) (bool, error) {
	return f.referrals[a+"|"+b] || f.referrals[b+"|"+a], nil
}
func (f *fakeDirectory) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return false, nil
}

func TestGetOrCreateDirect_IsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, nil, clock.Real)

	c1, err := core.GetOrCreateDirect(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := core.GetOrCreateDirect(context.Background(), "u2", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("expected same conversation regardless of argument order, got %s and %s", c1.ID, c2.ID)
	}
	if c1.AcceptanceStatus != StatusPending {
		t.Fatalf("expected pending on creation, got %s", c1.AcceptanceStatus)
	}
}

func TestGetOrCreateDirect_RejectsSelf(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, nil, clock.Real)

	_, err := core.GetOrCreateDirect(context.Background(), "u1", "u1")
	if err == nil {
		t.Fatal("expected error when starting a conversation with oneself")
	}
}

// The 3-message gate.
func TestMessagingGate_ThreeMessageRule(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{}, clock.Real)
	ctx := context.Background()

	conv, err := core.GetOrCreateDirect(ctx, "A", "B")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	for i := 0; i < 3; i++ {
		status, err := core.MessagingStatus(ctx, conv.ID, "A", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !status.CanSend {
			t.Fatalf("message %d: expected canSend=true", i+1)
		}
		if err := core.RecordSend(ctx, conv, "A", LastMessage{ID: uuid.NewString(), At: time.Now(), SenderID: "A"}); err != nil {
			t.Fatalf("record send %d: %v", i+1, err)
		}
		conv, _ = core.Get(ctx, conv.ID)
	}

	status, err := core.MessagingStatus(ctx, conv.ID, "A", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.CanSend {
		t.Fatal("expected 4th message from initiator to be blocked")
	}
	if status.Reason != apperrors.ErrMessageLimitReached {
		t.Fatalf("expected MESSAGE_LIMIT_REACHED, got %s", status.Reason)
	}

	// B replies: implicit accept.
	bStatus, err := core.MessagingStatus(ctx, conv.ID, "B", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bStatus.CanSend {
		t.Fatal("recipient should always be able to send while pending")
	}
	if err := core.RecordSend(ctx, conv, "B", LastMessage{ID: uuid.NewString(), At: time.Now(), SenderID: "B"}); err != nil {
		t.Fatalf("record send from B: %v", err)
	}
	conv, _ = core.Get(ctx, conv.ID)
	if conv.AcceptanceStatus != StatusAccepted {
		t.Fatalf("expected acceptanceStatus=accepted after recipient reply, got %s", conv.AcceptanceStatus)
	}

	status, err = core.MessagingStatus(ctx, conv.ID, "A", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.CanSend {
		t.Fatal("expected A to be able to send after acceptance")
	}
}

func TestMessagingGate_AdminBypassesLimit(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{}, clock.Real)
	ctx := context.Background()

	conv, _ := core.GetOrCreateDirect(ctx, "A", "B")
	for i := 0; i < 5; i++ {
		conv.MessageCounts["A"] = 10
	}
	repo.byID[conv.ID] = conv

	status, err := core.MessagingStatus(ctx, conv.ID, "A", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.CanSend {
		t.Fatal("admin should bypass the message limit")
	}
}

func TestMessagingGate_ReferralBypassesLimit(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{referrals: map[string]bool{"A|B": true}}, clock.Real)
	ctx := context.Background()

	conv, _ := core.GetOrCreateDirect(ctx, "A", "B")
	conv.MessageCounts["A"] = 10
	repo.byID[conv.ID] = conv

	status, err := core.MessagingStatus(ctx, conv.ID, "A", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.CanSend {
		t.Fatal("referred initiator should bypass the message limit")
	}
}

func TestMessagingGate_ReportedBlocksEveryone(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{}, clock.Real)
	ctx := context.Background()

	conv, _ := core.GetOrCreateDirect(ctx, "A", "B")
	if err := core.Report(ctx, conv.ID, "B"); err != nil {
		t.Fatalf("report: %v", err)
	}

	for _, user := range []string{"A", "B"} {
		status, err := core.MessagingStatus(ctx, conv.ID, user, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.CanSend {
			t.Fatalf("expected %s to be blocked in a reported conversation", user)
		}
	}
}

func TestArchiveRestore(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{}, clock.Real)
	ctx := context.Background()

	conv, _ := core.GetOrCreateDirect(ctx, "A", "B")
	if err := core.Archive(ctx, conv.ID, "A"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	conv, _ = core.Get(ctx, conv.ID)
	if !conv.isDeletedFor("A") {
		t.Fatal("expected A in deletedFor after archive")
	}

	if err := core.Restore(ctx, conv.ID, "A"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	conv, _ = core.Get(ctx, conv.ID)
	if conv.isDeletedFor("A") {
		t.Fatal("expected A removed from deletedFor after restore")
	}
}

func TestMarkRead_ResetsUnreadCount(t *testing.T) {
	repo := newFakeRepository()
	core := NewCore(repo, &fakeDirectory{}, clock.Real)
	ctx := context.Background()

	conv, _ := core.GetOrCreateDirect(ctx, "A", "B")
	repo.byID[conv.ID].UnreadCounts["B"] = 5

	n, err := core.MarkRead(ctx, conv.ID, "B", func(ctx context.Context, convID, userID string) (int, error) {
		return 5, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 newly read, got %d", n)
	}
	conv, _ = core.Get(ctx, conv.ID)
	if conv.UnreadCounts["B"] != 0 {
		t.Fatalf("expected unread count reset to 0, got %d", conv.UnreadCounts["B"])
	}
}
