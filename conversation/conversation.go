// Package conversation implements ConversationCore: conversation
// lifecycle, participant membership, the accept/report/block gate, and
// the unread/message counters every other chat component reads.
package conversation

import (
	"context"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
)

type Type string

const (
	TypeDirect      Type = "direct"
	TypeStatusReply Type = "status_reply"
)

type AcceptanceStatus string

const (
	StatusPending  AcceptanceStatus = "pending"
	StatusAccepted AcceptanceStatus = "accepted"
	StatusReported AcceptanceStatus = "reported"
	StatusBlocked  AcceptanceStatus = "blocked"
)

const messageLimit = 3

// LastMessage is the denormalized preview shown in conversation lists.
type LastMessage struct {
	ID       string    `bson:"id"`
	At       time.Time `bson:"at"`
	Preview  string    `bson:"preview"`
	SenderID string    `bson:"senderId"`
}

type Conversation struct {
	ID               string           `bson:"_id"`
	Participants     []string         `bson:"participants"`
	Type             Type             `bson:"type"`
	StatusID         string           `bson:"statusId,omitempty"`
	LastMessage      *LastMessage     `bson:"lastMessage,omitempty"`
	UnreadCounts     map[string]int   `bson:"unreadCounts"`
	MessageCounts    map[string]int   `bson:"messageCounts"`
	DeletedFor       []string         `bson:"deletedFor"`
	AcceptanceStatus AcceptanceStatus `bson:"acceptanceStatus"`
	InitiatorID      string           `bson:"initiatorId"`
	AcceptedAt       *time.Time       `bson:"acceptedAt,omitempty"`
	ReportedAt       *time.Time       `bson:"reportedAt,omitempty"`
	ReportedBy       string           `bson:"reportedBy,omitempty"`
	CreatedAt        time.Time        `bson:"createdAt"`
	UpdatedAt        time.Time        `bson:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) isDeletedFor(userID string) bool {
	for _, u := range c.DeletedFor {
		if u == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) otherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants)-1)
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// MessagingStatus is the result of the 3-message gate evaluation.
type MessagingStatus struct {
	CanSend            bool
	Reason             string
	MessagesRemaining  *int
}

// Repository is the persistence boundary ConversationCore depends on.
type Repository interface {
	FindDirect(ctx context.Context, u1, u2 string) (*Conversation, error)
	FindStatusReply(ctx context.Context, statusID, replyer, author string) (*Conversation, error)
	Insert(ctx context.Context, c *Conversation) error
	FindByID(ctx context.Context, id string) (*Conversation, error)
	AddDeletedFor(ctx context.Context, id, userID string) error
	RemoveDeletedFor(ctx context.Context, id, userID string) error
	SetAcceptanceStatus(ctx context.Context, id string, status AcceptanceStatus, at time.Time, reportedBy string) error
	IncMessageCount(ctx context.Context, id, userID string, delta int) error
	IncUnreadCount(ctx context.Context, id, userID string, delta int) error
	ResetUnreadCount(ctx context.Context, id, userID string) error
	SetLastMessage(ctx context.Context, id string, lm LastMessage) error
	ListForUser(ctx context.Context, userID string, archived bool, page, limit int) ([]*Conversation, int, error)
}

type Core struct {
	repo      Repository
	directory collaborators.Directory
	clock     clock.Clock
}

func NewCore(repo Repository, directory collaborators.Directory, clk clock.Clock) *Core {
	return &Core{repo: repo, directory: directory, clock: clk}
}

// GetOrCreateDirect returns the unique direct conversation between two
// users, creating it with acceptanceStatus=pending on first contact.
func (c *Core) GetOrCreateDirect(ctx context.Context, u1, u2 string) (*Conversation, error) {
	if u1 == u2 {
		return nil, apperrors.Validation("cannot start a conversation with yourself")
	}
	existing, err := c.repo.FindDirect(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := c.clock.Now()
	conv := &Conversation{
		Participants:     []string{u1, u2},
		Type:             TypeDirect,
		UnreadCounts:     map[string]int{},
		MessageCounts:    map[string]int{},
		DeletedFor:       []string{},
		AcceptanceStatus: StatusPending,
		InitiatorID:      u1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.repo.Insert(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetOrCreateStatusReply returns the unique (statusId,replyer,author)
// conversation, creating it on first reply.
func (c *Core) GetOrCreateStatusReply(ctx context.Context, statusID, replyer, author string) (*Conversation, error) {
	if replyer == author {
		return nil, apperrors.Validation("cannot reply to your own status")
	}
	existing, err := c.repo.FindStatusReply(ctx, statusID, replyer, author)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := c.clock.Now()
	conv := &Conversation{
		Participants:     []string{replyer, author},
		Type:             TypeStatusReply,
		StatusID:         statusID,
		UnreadCounts:     map[string]int{},
		MessageCounts:    map[string]int{},
		DeletedFor:       []string{},
		AcceptanceStatus: StatusPending,
		InitiatorID:      replyer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.repo.Insert(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *Core) Archive(ctx context.Context, id, userID string) error {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("not a participant")
	}
	return c.repo.AddDeletedFor(ctx, id, userID)
}

func (c *Core) Restore(ctx context.Context, id, userID string) error {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("not a participant")
	}
	return c.repo.RemoveDeletedFor(ctx, id, userID)
}

// MarkRead delegates the bulk read-update of messages to the message
// repository via the callback, then zeroes the unread counter. It
// returns the number of messages newly marked read.
func (c *Core) MarkRead(ctx context.Context, id, userID string, markMessages func(ctx context.Context, conversationID, userID string) (int, error)) (int, error) {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, apperrors.Forbidden("not a participant")
	}
	n, err := markMessages(ctx, id, userID)
	if err != nil {
		return 0, err
	}
	if err := c.repo.ResetUnreadCount(ctx, id, userID); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Core) Accept(ctx context.Context, id, userID string) error {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("not a participant")
	}
	return c.repo.SetAcceptanceStatus(ctx, id, StatusAccepted, c.clock.Now(), "")
}

func (c *Core) Report(ctx context.Context, id, userID string) error {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("not a participant")
	}
	return c.repo.SetAcceptanceStatus(ctx, id, StatusReported, c.clock.Now(), userID)
}

// MessagingStatus evaluates the 3-message gate for userID in
// conversation id, without mutating state.
func (c *Core) MessagingStatus(ctx context.Context, id, userID string, isAdmin bool) (MessagingStatus, error) {
	conv, err := c.mustFind(ctx, id)
	if err != nil {
		return MessagingStatus{}, err
	}
	return c.evaluateGate(ctx, conv, userID, isAdmin)
}

func (c *Core) evaluateGate(ctx context.Context, conv *Conversation, userID string, isAdmin bool) (MessagingStatus, error) {
	switch conv.AcceptanceStatus {
	case StatusAccepted:
		return MessagingStatus{CanSend: true}, nil
	case StatusReported:
		return MessagingStatus{CanSend: false, Reason: string(StatusReported)}, nil
	case StatusBlocked:
		return MessagingStatus{CanSend: false, Reason: string(StatusBlocked)}, nil
	}

	// pending
	if userID != conv.InitiatorID {
		return MessagingStatus{CanSend: true}, nil
	}
	if isAdmin {
		return MessagingStatus{CanSend: true}, nil
	}
	for _, other := range conv.otherParticipants(userID) {
		isReferral, err := c.directory.IsReferral(ctx, userID, other)
		if err != nil {
			return MessagingStatus{}, apperrors.Upstream("directory referral check failed", err)
		}
		if isReferral {
			return MessagingStatus{CanSend: true}, nil
		}
	}
	sent := conv.MessageCounts[userID]
	remaining := messageLimit - sent
	if remaining < 0 {
		remaining = 0
	}
	if sent < messageLimit {
		return MessagingStatus{CanSend: true, MessagesRemaining: &remaining}, nil
	}
	return MessagingStatus{CanSend: false, Reason: apperrors.ErrMessageLimitReached, MessagesRemaining: &remaining}, nil
}

// RecordSend applies the conversation-side effects of a successful
// message send: restores the conversation for the sender, bumps
// counters, updates the last-message preview, and — if the pending
// recipient was the sender — flips acceptanceStatus to accepted.
func (c *Core) RecordSend(ctx context.Context, conv *Conversation, senderID string, lm LastMessage) error {
	now := c.clock.Now()
	if err := c.repo.RemoveDeletedFor(ctx, conv.ID, senderID); err != nil {
		return err
	}
	for _, p := range conv.Participants {
		if p == senderID {
			continue
		}
		if err := c.repo.IncUnreadCount(ctx, conv.ID, p, 1); err != nil {
			return err
		}
	}
	if err := c.repo.IncMessageCount(ctx, conv.ID, senderID, 1); err != nil {
		return err
	}
	if err := c.repo.SetLastMessage(ctx, conv.ID, lm); err != nil {
		return err
	}
	if conv.AcceptanceStatus == StatusPending && senderID != conv.InitiatorID {
		if err := c.repo.SetAcceptanceStatus(ctx, conv.ID, StatusAccepted, now, ""); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) Get(ctx context.Context, id string) (*Conversation, error) {
	return c.mustFind(ctx, id)
}

func (c *Core) ListForUser(ctx context.Context, userID string, archived bool, page, limit int) ([]*Conversation, int, error) {
	return c.repo.ListForUser(ctx, userID, archived, page, limit)
}

func (c *Core) mustFind(ctx context.Context, id string) (*Conversation, error) {
	conv, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	return conv, nil
}
