// Package status implements StatusCore: ephemeral posts with TTL,
// interaction counters, moderation gating, and the reply-to-status
// bridge into ConversationCore.
package status

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
)

const (
	maxContentLength = 2000
	maxVideoSeconds  = 30
	defaultExpiry    = 24 * time.Hour
	signedURLTTL     = time.Hour
	viewSuppression  = time.Hour
	mediaBucket      = "status-media"
)

// Category labels mirror the product's existing (French-leaning) set;
// Further localization is an open question, so the core
// treats these as opaque machine values.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryAnnouncement Category = "annonce" // admin-only
	CategoryPromotion   Category = "promotion"
)

var adminOnlyCategories = map[Category]bool{
	CategoryAnnouncement: true,
}

type MediaType string

const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaFlyer MediaType = "flyer"
)

type Counts struct {
	Likes   int `bson:"likes"`
	Reposts int `bson:"reposts"`
	Replies int `bson:"replies"`
	Views   int `bson:"views"`
}

type Status struct {
	ID               string     `bson:"_id"`
	AuthorID         string     `bson:"authorId"`
	Category         Category   `bson:"category"`
	Content          string     `bson:"content"`
	MediaType        MediaType  `bson:"mediaType"`
	MediaURL         string     `bson:"mediaUrl,omitempty"`
	VideoDuration    int        `bson:"videoDuration,omitempty"`
	Country          string     `bson:"country,omitempty"`
	City             string     `bson:"city,omitempty"`
	Region           string     `bson:"region,omitempty"`
	Counts           Counts     `bson:"counts"`
	IsApproved       bool       `bson:"isApproved"`
	ContentWarned    bool       `bson:"contentWarned"`
	ModerationReason string     `bson:"moderationReason,omitempty"`
	ExpiresAt        time.Time  `bson:"expiresAt"`
	Deleted          bool       `bson:"deleted"`
	DeletedAt        *time.Time `bson:"deletedAt,omitempty"`
	IsRepost         bool       `bson:"isRepost"`
	OriginalStatusID string     `bson:"originalStatusId,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt"`

	// Response-only enrichment, never persisted.
	AuthorSnapshot *collaborators.UserSnapshot `bson:"-"`
	MediaSignedURL string                      `bson:"-"`
	ViewerIsLiked  bool                        `bson:"-"`
	ViewerIsReposted bool                      `bson:"-"`
}

type InteractionType string

const (
	InteractionLike   InteractionType = "like"
	InteractionRepost InteractionType = "repost"
	InteractionView   InteractionType = "view"
)

type CreateData struct {
	Category      Category
	Content       string
	MediaType     MediaType
	MediaData     []byte
	MediaContentType string
	VideoDuration int
	Country       string
	City          string
	Region        string
}

type Filters struct {
	Category string
	Country  string
	City     string
	Search   string
	SortBy   string // "recent" | "popular"
	AuthorID string
}

// Categories lists the known category values for client discovery.
func Categories() []Category {
	return []Category{CategoryGeneral, CategoryAnnouncement, CategoryPromotion}
}

type Repository interface {
	Insert(ctx context.Context, s *Status) error
	FindByID(ctx context.Context, id string) (*Status, error)
	Feed(ctx context.Context, filters Filters, now time.Time, page, limit int) ([]*Status, int, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	IncCounter(ctx context.Context, id string, field string, delta int) error
	ExpireAll(ctx context.Context, now time.Time) (int, error)
}

type InteractionRepository interface {
	TryInsert(ctx context.Context, statusID, userID string, typ InteractionType, now time.Time) (bool, error)
	Delete(ctx context.Context, statusID, userID string, typ InteractionType) (bool, error)
	LastViewAt(ctx context.Context, statusID, userID string) (time.Time, bool, error)
	BatchOverlay(ctx context.Context, statusIDs []string, userID string) (liked, reposted map[string]bool, err error)
	ListByStatus(ctx context.Context, statusID string, typ InteractionType, skip, limit int) (userIDs []string, total int, err error)
}

type ConversationBridge interface {
	GetOrCreateStatusReply(ctx context.Context, statusID, replyer, author string) (*conversation.Conversation, error)
}

type Core struct {
	repo         Repository
	interactions InteractionRepository
	moderation   collaborators.Moderation
	storage      collaborators.Storage
	directory    collaborators.Directory
	convs        ConversationBridge
	clock        clock.Clock
}

func NewCore(repo Repository, interactions InteractionRepository, moderation collaborators.Moderation, storage collaborators.Storage, directory collaborators.Directory, convs ConversationBridge, clk clock.Clock) *Core {
	return &Core{repo: repo, interactions: interactions, moderation: moderation, storage: storage, directory: directory, convs: convs, clock: clk}
}

func (c *Core) Create(ctx context.Context, authorID string, data CreateData, isAdmin bool) (*Status, error) {
	if adminOnlyCategories[data.Category] && !isAdmin {
		return nil, apperrors.Forbidden("this category is restricted to administrators")
	}
	content := strings.TrimSpace(data.Content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, apperrors.Validationf("status content exceeds %d characters", maxContentLength)
	}
	if data.VideoDuration > maxVideoSeconds {
		return nil, apperrors.Validationf("video duration exceeds %d seconds", maxVideoSeconds)
	}

	now := c.clock.Now()
	st := &Status{
		AuthorID:      authorID,
		Category:      data.Category,
		Content:       content,
		MediaType:     data.MediaType,
		VideoDuration: data.VideoDuration,
		Country:       data.Country,
		City:          data.City,
		Region:        data.Region,
		IsApproved:    true,
		ExpiresAt:     now.Add(defaultExpiry),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if len(data.MediaData) > 0 {
		objectPath, err := c.storage.Upload(ctx, mediaBucket, bytes.NewReader(data.MediaData), data.MediaContentType)
		if err != nil {
			return nil, apperrors.Upstream("media upload failed", err)
		}
		st.MediaURL = objectPath

		var result collaborators.ModerationResult
		if data.MediaType == MediaVideo {
			result, err = c.moderation.CheckVideo(ctx, objectPath)
		} else {
			result, err = c.moderation.CheckImage(ctx, objectPath)
		}
		if err != nil {
			// Fail open: proceed as allow, moderation errors are advisory.
			result.Action = collaborators.ModerationAllow
		}

		switch result.Action {
		case collaborators.ModerationBlock:
			return nil, apperrors.Validationf("content rejected: %s", result.Reason)
		case collaborators.ModerationWarn:
			st.ContentWarned = true
			st.ModerationReason = result.Reason
		}
	}

	if err := c.repo.Insert(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Core) Feed(ctx context.Context, viewerID string, filters Filters, page, limit int) ([]*Status, int, error) {
	statuses, total, err := c.repo.Feed(ctx, filters, c.clock.Now(), page, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := c.enrich(ctx, statuses, viewerID); err != nil {
		_ = err // advisory: enrichment failures degrade gracefully
	}
	return statuses, total, nil
}

func (c *Core) Get(ctx context.Context, id, viewerID string) (*Status, error) {
	st, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil || st.Deleted {
		return nil, nil
	}
	_ = c.enrich(ctx, []*Status{st}, viewerID)
	return st, nil
}

func (c *Core) enrich(ctx context.Context, statuses []*Status, viewerID string) error {
	if len(statuses) == 0 {
		return nil
	}

	authorIDs := make([]string, 0, len(statuses))
	statusIDs := make([]string, 0, len(statuses))
	for _, s := range statuses {
		authorIDs = append(authorIDs, s.AuthorID)
		statusIDs = append(statusIDs, s.ID)
	}

	authors, err := c.directory.GetUsers(ctx, authorIDs)
	if err == nil {
		for _, s := range statuses {
			if snap, ok := authors[s.AuthorID]; ok {
				snapCopy := snap
				s.AuthorSnapshot = &snapCopy
			}
		}
	}

	if viewerID != "" {
		liked, reposted, err := c.interactions.BatchOverlay(ctx, statusIDs, viewerID)
		if err == nil {
			for _, s := range statuses {
				s.ViewerIsLiked = liked[s.ID]
				s.ViewerIsReposted = reposted[s.ID]
			}
		}
	}

	var mediaPaths []string
	for _, s := range statuses {
		if s.MediaURL != "" {
			mediaPaths = append(mediaPaths, s.MediaURL)
		}
	}
	if len(mediaPaths) > 0 {
		urls, err := c.storage.SignedURLBatch(ctx, mediaPaths, signedURLTTL)
		if err == nil {
			for _, s := range statuses {
				if url, ok := urls[s.MediaURL]; ok {
					s.MediaSignedURL = url
				}
			}
		}
	}
	return nil
}

func (c *Core) Like(ctx context.Context, statusID, userID string) error {
	inserted, err := c.interactions.TryInsert(ctx, statusID, userID, InteractionLike, c.clock.Now())
	if err != nil {
		return err
	}
	if !inserted {
		return nil // idempotent
	}
	return c.repo.IncCounter(ctx, statusID, "likes", 1)
}

func (c *Core) Unlike(ctx context.Context, statusID, userID string) error {
	deleted, err := c.interactions.Delete(ctx, statusID, userID, InteractionLike)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	return c.repo.IncCounter(ctx, statusID, "likes", -1)
}

func (c *Core) Repost(ctx context.Context, statusID, userID string) error {
	inserted, err := c.interactions.TryInsert(ctx, statusID, userID, InteractionRepost, c.clock.Now())
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return c.repo.IncCounter(ctx, statusID, "reposts", 1)
}

// View applies the suppress-if-within-last-hour rule before recording.
func (c *Core) View(ctx context.Context, statusID, userID string) error {
	now := c.clock.Now()
	lastView, found, err := c.interactions.LastViewAt(ctx, statusID, userID)
	if err != nil {
		return err
	}
	if found && now.Sub(lastView) < viewSuppression {
		return nil
	}
	if _, err := c.interactions.TryInsert(ctx, statusID, userID, InteractionView, now); err != nil {
		return err
	}
	return c.repo.IncCounter(ctx, statusID, "views", 1)
}

func (c *Core) ReplyToStatus(ctx context.Context, statusID, userID string) (*conversation.Conversation, error) {
	st, err := c.repo.FindByID(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperrors.NotFound("status not found")
	}
	if st.AuthorID == userID {
		return nil, apperrors.Validation("cannot reply to your own status")
	}
	conv, err := c.convs.GetOrCreateStatusReply(ctx, statusID, userID, st.AuthorID)
	if err != nil {
		return nil, err
	}
	if err := c.repo.IncCounter(ctx, statusID, "replies", 1); err != nil {
		return nil, err
	}
	return conv, nil
}

// Interactions lists the user ids who liked or reposted a status.
func (c *Core) Interactions(ctx context.Context, statusID string, typ InteractionType, page, limit int) ([]string, int, error) {
	skip := (page - 1) * limit
	return c.interactions.ListByStatus(ctx, statusID, typ, skip, limit)
}

func (c *Core) DeleteStatus(ctx context.Context, id, userID string) error {
	st, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if st == nil {
		return apperrors.NotFound("status not found")
	}
	if st.AuthorID != userID {
		return apperrors.Forbidden("only the author may delete this status")
	}
	return c.repo.SoftDelete(ctx, id, c.clock.Now())
}

// ExpireReaper bulk soft-deletes everything past expiresAt. Intended to
// run on a ticker from main; readers additionally filter by expiresAt
// so a race window between a tick and a read never surfaces a stale
// status.
func (c *Core) ExpireReaper(ctx context.Context) (int, error) {
	return c.repo.ExpireAll(ctx, c.clock.Now())
}
