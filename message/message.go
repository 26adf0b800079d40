// Package message implements MessageCore: message creation, delivery
// and read tracking, soft-delete, forwarding, and the document-URL
// discipline (opaque storage path persisted, signed URL issued fresh
// on every read).
package message

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
)

const (
	maxContentLength = 5000
	signedURLTTL     = time.Hour
	documentBucket   = "chat-documents"
)

type Type string

const (
	TypeText     Type = "text"
	TypeDocument Type = "document"
	TypeSystem   Type = "system"
	TypeAd       Type = "ad"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

type ReplyTo struct {
	MessageID  string `bson:"messageId"`
	Snippet    string `bson:"snippet"`
	SenderID   string `bson:"senderId"`
	SenderName string `bson:"senderName"`
	Type       Type   `bson:"type"`
}

type Message struct {
	ID                string         `bson:"_id"`
	ConversationID    string         `bson:"conversationId"`
	SenderID          string         `bson:"senderId"`
	Type              Type           `bson:"type"`
	Content           string         `bson:"content"`
	DocumentURL       string         `bson:"documentUrl,omitempty"`
	DocumentName      string         `bson:"documentName,omitempty"`
	DocumentMimeType  string         `bson:"documentMimeType,omitempty"`
	DocumentSize      int64          `bson:"documentSize,omitempty"`
	ReplyTo           *ReplyTo       `bson:"replyTo,omitempty"`
	Status            DeliveryStatus `bson:"status"`
	ReadBy            []string       `bson:"readBy"`
	DeliveredTo       []string       `bson:"deliveredTo"`
	Deleted           bool           `bson:"deleted"`
	DeletedAt         *time.Time     `bson:"deletedAt,omitempty"`
	DeletedFor        []string       `bson:"deletedFor"`
	CreatedAt         time.Time      `bson:"createdAt"`
	UpdatedAt         time.Time      `bson:"updatedAt"`

	// Populated only for responses; never persisted.
	DocumentSignedURL string `bson:"-"`
}

func (m *Message) hasReadBy(userID string) bool {
	for _, u := range m.ReadBy {
		if u == userID {
			return true
		}
	}
	return false
}

// SendPayload is the validated request body for a new message.
type SendPayload struct {
	Content   string
	Type      Type
	ReplyToID string
}

// DocumentPayload is a send plus the raw upload stream.
type DocumentPayload struct {
	SendPayload
	Data        io.Reader
	FileName    string
	ContentType string
	Size        int64
}

type Repository interface {
	Insert(ctx context.Context, m *Message) error
	FindByID(ctx context.Context, id string) (*Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Message, error)
	ListByConversation(ctx context.Context, conversationID string, skip, limit int) ([]*Message, int, error)
	MarkAllReadExceptSender(ctx context.Context, conversationID, userID string) (int, error)
	AddReadBy(ctx context.Context, ids []string, userID string) error
	AddDeliveredTo(ctx context.Context, ids []string, userID string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	AddDeletedFor(ctx context.Context, id, userID string) error
}

type ConversationGate interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	MessagingStatus(ctx context.Context, id, userID string, isAdmin bool) (conversation.MessagingStatus, error)
	RecordSend(ctx context.Context, conv *conversation.Conversation, senderID string, lm conversation.LastMessage) error
}

type Core struct {
	repo      Repository
	convs     ConversationGate
	storage   collaborators.Storage
	directory collaborators.Directory
	clock     clock.Clock
}

func NewCore(repo Repository, convs ConversationGate, storage collaborators.Storage, directory collaborators.Directory, clk clock.Clock) *Core {
	return &Core{repo: repo, convs: convs, storage: storage, directory: directory, clock: clk}
}

// lookupSenderName resolves a replied-to message's sender display name
// through the directory collaborator. A lookup failure leaves the
// snippet without a name rather than failing the send.
func (c *Core) lookupSenderName(ctx context.Context, senderID string) string {
	if c.directory == nil {
		return ""
	}
	users, err := c.directory.GetUsers(ctx, []string{senderID})
	if err != nil {
		return ""
	}
	return users[senderID].Name
}

func trimAndValidate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", apperrors.Validationf("message content exceeds %d characters", maxContentLength)
	}
	return content, nil
}

func (c *Core) Send(ctx context.Context, conversationID, senderID string, payload SendPayload, isAdmin bool) (*Message, error) {
	conv, err := c.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, apperrors.Forbidden("not a participant in this conversation")
	}

	gate, err := c.convs.MessagingStatus(ctx, conversationID, senderID, isAdmin)
	if err != nil {
		return nil, err
	}
	if !gate.CanSend {
		return nil, apperrors.ForbiddenState(gate.Reason, "messaging is not allowed in this conversation")
	}

	content, err := trimAndValidate(payload.Content)
	if err != nil {
		return nil, err
	}

	msgType := payload.Type
	if msgType == "" {
		msgType = TypeText
	}

	now := c.clock.Now()
	msg := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        content,
		Status:         StatusSent,
		ReadBy:         []string{senderID},
		DeliveredTo:    []string{senderID},
		DeletedFor:     []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if payload.ReplyToID != "" {
		original, err := c.repo.FindByID(ctx, payload.ReplyToID)
		if err != nil {
			return nil, err
		}
		if original != nil {
			msg.ReplyTo = &ReplyTo{
				MessageID:  original.ID,
				Snippet:    snippet(original.Content, 100),
				SenderID:   original.SenderID,
				SenderName: c.lookupSenderName(ctx, original.SenderID),
				Type:       original.Type,
			}
		}
	}

	if err := c.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	lm := conversation.LastMessage{ID: msg.ID, At: now, Preview: snippet(content, 100), SenderID: senderID}
	if err := c.convs.RecordSend(ctx, conv, senderID, lm); err != nil {
		return nil, err
	}

	return msg, nil
}

// SendDocument uploads the attachment to Storage under an opaque path,
// persists that path as documentUrl, then issues a fresh signed URL so
// the immediate response can render the attachment.
func (c *Core) SendDocument(ctx context.Context, conversationID, senderID string, payload DocumentPayload, isAdmin bool) (*Message, error) {
	objectPath, err := c.storage.Upload(ctx, documentBucket, payload.Data, payload.ContentType)
	if err != nil {
		return nil, apperrors.Upstream("document upload failed", err)
	}

	msg, err := c.Send(ctx, conversationID, senderID, payload.SendPayload, isAdmin)
	if err != nil {
		return nil, err
	}
	msg.Type = TypeDocument
	msg.DocumentURL = objectPath
	msg.DocumentName = payload.FileName
	msg.DocumentMimeType = payload.ContentType
	msg.DocumentSize = payload.Size

	url, err := c.storage.SignedURL(ctx, objectPath, signedURLTTL)
	if err != nil {
		// Advisory only: continue without the URL, clients may fetch individually.
		return msg, nil
	}
	msg.DocumentSignedURL = url
	return msg, nil
}

type DayGroup struct {
	Label    string
	Messages []*Message
}

// ListGrouped returns the page's messages newest-first from storage,
// reassembled ascending and bucketed by calendar day.
func (c *Core) ListGrouped(ctx context.Context, conversationID, viewerID string, page, limit int) ([]DayGroup, int, error) {
	conv, err := c.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.HasParticipant(viewerID) {
		return nil, 0, apperrors.Forbidden("not a participant in this conversation")
	}

	skip := (page - 1) * limit
	msgs, total, err := c.repo.ListByConversation(ctx, conversationID, skip, limit)
	if err != nil {
		return nil, 0, err
	}

	// Ascending for display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := c.attachSignedURLs(ctx, msgs); err != nil {
		// Advisory failure: proceed without URLs.
		_ = err
	}

	return groupByDay(msgs, c.clock.Now()), total, nil
}

func (c *Core) attachSignedURLs(ctx context.Context, msgs []*Message) error {
	var paths []string
	for _, m := range msgs {
		if m.Type == TypeDocument && m.DocumentURL != "" {
			paths = append(paths, m.DocumentURL)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	urls, err := c.storage.SignedURLBatch(ctx, paths, signedURLTTL)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if url, ok := urls[m.DocumentURL]; ok {
			m.DocumentSignedURL = url
		}
	}
	return nil
}

func groupByDay(msgs []*Message, now time.Time) []DayGroup {
	var groups []DayGroup
	var current *DayGroup
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	for _, m := range msgs {
		key := m.CreatedAt.Format("2006-01-02")
		label := m.CreatedAt.Format("Jan 2, 2006")
		switch key {
		case today:
			label = "Today"
		case yesterday:
			label = "Yesterday"
		}
		if current == nil || current.Label != label {
			groups = append(groups, DayGroup{Label: label})
			current = &groups[len(groups)-1]
		}
		current.Messages = append(current.Messages, m)
	}
	return groups
}

func (c *Core) SoftDelete(ctx context.Context, id, senderID string) error {
	msg, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != senderID {
		return apperrors.Forbidden("only the sender may delete this message")
	}
	return c.repo.SoftDelete(ctx, id, c.clock.Now())
}

func (c *Core) DeleteForUser(ctx context.Context, id, userID string) error {
	if _, err := c.mustFind(ctx, id); err != nil {
		return err
	}
	return c.repo.AddDeletedFor(ctx, id, userID)
}

// Forward re-sends each message id into each target conversation as a
// new message authored by userID.
func (c *Core) Forward(ctx context.Context, messageIDs, targetConversationIDs []string, userID string, isAdmin bool) ([]*Message, error) {
	for _, target := range targetConversationIDs {
		conv, err := c.convs.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(userID) {
			return nil, apperrors.Forbidden("not a participant in every target conversation")
		}
	}

	msgs, err := c.repo.FindByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	var forwarded []*Message
	for _, target := range targetConversationIDs {
		for _, id := range messageIDs {
			original, ok := byID[id]
			if !ok {
				continue
			}
			sent, err := c.Send(ctx, target, userID, SendPayload{Content: original.Content, Type: original.Type}, isAdmin)
			if err != nil {
				return nil, err
			}
			forwarded = append(forwarded, sent)
		}
	}
	return forwarded, nil
}

func (c *Core) MarkRead(ctx context.Context, ids []string, userID string) error {
	return c.repo.AddReadBy(ctx, ids, userID)
}

// MarkAllRead flips every unread message in a conversation to read for
// userID, skipping messages they sent themselves. Used when a client
// joins a conversation room rather than acking individual message IDs.
func (c *Core) MarkAllRead(ctx context.Context, conversationID, userID string) (int, error) {
	return c.repo.MarkAllReadExceptSender(ctx, conversationID, userID)
}

func (c *Core) MarkDelivered(ctx context.Context, ids []string, userID string) error {
	return c.repo.AddDeliveredTo(ctx, ids, userID)
}

// Get returns a single message with its document URL, if any, signed
// fresh for this read.
func (c *Core) Get(ctx context.Context, id string) (*Message, error) {
	msg, err := c.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = c.attachSignedURLs(ctx, []*Message{msg})
	return msg, nil
}

// DocumentURL returns a freshly signed URL for a document message's
// stored path, re-signing on every call per the storage discipline.
func (c *Core) DocumentURL(ctx context.Context, id string) (string, error) {
	msg, err := c.mustFind(ctx, id)
	if err != nil {
		return "", err
	}
	if msg.Type != TypeDocument || msg.DocumentURL == "" {
		return "", apperrors.Validation("message has no document")
	}
	return c.storage.SignedURL(ctx, msg.DocumentURL, signedURLTTL)
}

func (c *Core) mustFind(ctx context.Context, id string) (*Message, error) {
	msg, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperrors.NotFound("message not found")
	}
	return msg, nil
}

func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
