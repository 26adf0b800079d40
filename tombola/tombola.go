// Package tombola implements TombolaCore: the monthly lottery month
// lifecycle, sequential ticket numbering, and the weighted winner draw.
package tombola

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxTicketsPerUserPerMonth = 25
const defaultTicketPrice int64 = 200

type Status string

const (
	StatusOpen     Status = "open"
	StatusDrawing  Status = "drawing"
	StatusClosed   Status = "closed"
)

type SourceType string

const (
	SourceDirectPurchase SourceType = "direct_purchase"
	SourceChallengeVote  SourceType = "challenge_vote"
)

// Winner is one awarded prize within a drawn month.
type Winner struct {
	UserID             string `bson:"userId"`
	Prize              string `bson:"prize"`
	Rank               int    `bson:"rank"`
	WinningTicketNumber int   `bson:"winningTicketNumber"`
}

type Month struct {
	ID                   string     `bson:"_id"`
	Month                int        `bson:"month"` // 1-12
	Year                 int        `bson:"year"`
	Status               Status     `bson:"status"`
	LastTicketNumber     int        `bson:"lastTicketNumber"`
	Winners              []Winner   `bson:"winners"`
	PreviousMonthWinners []string   `bson:"previousMonthWinners"`
	LinkedChallengeID    string     `bson:"linkedChallengeId,omitempty"`
	DrawDate             *time.Time `bson:"drawDate,omitempty"`
	CreatedAt            time.Time  `bson:"createdAt"`
	UpdatedAt            time.Time  `bson:"updatedAt"`
}

// Ticket is immutable once created: tickets are never mutated or
// deleted after a confirmed payment mints them.
type Ticket struct {
	ID              string     `bson:"_id"`
	TicketID        string     `bson:"ticketId"` // opaque 12-char external token
	UserID          string     `bson:"userId"`
	TombolaMonthID  string     `bson:"tombolaMonthId"`
	TicketNumber    int        `bson:"ticketNumber"`
	Weight          float64    `bson:"weight"`
	UserTicketIndex int        `bson:"userTicketIndex"`
	SourceType      SourceType `bson:"sourceType"`
	PaymentIntentID string     `bson:"paymentIntentId"`
	ChallengeVoteID string     `bson:"challengeVoteId,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
}

// Prize labels are part of the external contract and must not change.
const (
	PrizeBike      = "Bike"
	PrizePhone     = "Phone"
	PrizeCash100k  = "100k FCFA"
)

var prizeTable = []string{PrizeBike, PrizePhone, PrizeCash100k}

type Repository interface {
	Insert(ctx context.Context, m *Month) error
	FindByID(ctx context.Context, id string) (*Month, error)
	FindOpen(ctx context.Context) (*Month, error)
	FindByMonthYear(ctx context.Context, month, year int) (*Month, error)
	FindPrevious(ctx context.Context, month, year int) (*Month, error)
	List(ctx context.Context, page, limit int) ([]*Month, int, error)
	CloseAllOpen(ctx context.Context, at time.Time) error
	SetStatus(ctx context.Context, id string, status Status, at time.Time) error
	IncrementTicketNumber(ctx context.Context, id string) (int, error)
	SetWinners(ctx context.Context, id string, winners []Winner, drawDate time.Time) error
	SetPreviousMonthWinners(ctx context.Context, id string, userIDs []string) error
	SetLinkedChallenge(ctx context.Context, id, challengeID string) error
}

type TicketRepository interface {
	Insert(ctx context.Context, t *Ticket) error
	FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error)
	CountForUserMonth(ctx context.Context, userID, monthID string) (int, error)
	ListForMonth(ctx context.Context, monthID string) ([]*Ticket, error)
	ListForUser(ctx context.Context, userID string, page, limit int) ([]*Ticket, int, error)
}

type Core struct {
	repo        Repository
	tickets     TicketRepository
	notifier    collaborators.Notifier
	payments    collaborators.Payments
	clock       clock.Clock
	logger      zerolog.Logger
	rng         *rand.Rand
	ticketPrice int64
	purchaseMu  *middleware.KeyedMutex
}

func NewCore(repo Repository, tickets TicketRepository, notifier collaborators.Notifier, payments collaborators.Payments, clk clock.Clock, logger zerolog.Logger) *Core {
	return &Core{
		repo:        repo,
		tickets:     tickets,
		notifier:    notifier,
		payments:    payments,
		clock:       clk,
		logger:      logger.With().Str("component", "tombola_core").Logger(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		ticketPrice: defaultTicketPrice,
		purchaseMu:  middleware.NewKeyedMutex(),
	}
}

// WeightForIndex implements invariant 7: weight is a pure function of
// the 1-based userTicketIndex within a (user,month) pair.
func WeightForIndex(userTicketIndex int) float64 {
	switch {
	case userTicketIndex <= 3:
		return 1.0
	case userTicketIndex <= 15:
		return 0.6
	default:
		return 0.3
	}
}

func MaxTicketsPerUserPerMonth() int { return maxTicketsPerUserPerMonth }

// CreateMonth rejects future (month,year) pairs and duplicates, then
// closes every currently open month and opens the new one.
func (c *Core) CreateMonth(ctx context.Context, month, year int) (*Month, error) {
	if month < 1 || month > 12 {
		return nil, apperrors.Validation("month must be between 1 and 12")
	}
	now := c.clock.Now()
	if year > now.Year() || (year == now.Year() && month > int(now.Month())) {
		return nil, apperrors.Validation("cannot create a tombola month in the future")
	}

	existing, err := c.repo.FindByMonthYear(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("a tombola month already exists for that period")
	}

	if err := c.repo.CloseAllOpen(ctx, now); err != nil {
		return nil, err
	}

	m := &Month{
		ID:        uuid.NewString(),
		Month:     month,
		Year:      year,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetStatus transitions a month's status. Moving a month to `open`
// first closes every other open month, preserving the single-open
// invariant.
func (c *Core) SetStatus(ctx context.Context, id string, status Status) error {
	now := c.clock.Now()
	if status == StatusOpen {
		if err := c.repo.CloseAllOpen(ctx, now); err != nil {
			return err
		}
	}
	return c.repo.SetStatus(ctx, id, status, now)
}

func (c *Core) Current(ctx context.Context) (*Month, error) {
	return c.repo.FindOpen(ctx)
}

func (c *Core) Get(ctx context.Context, id string) (*Month, error) {
	m, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperrors.NotFound("tombola month not found")
	}
	return m, nil
}

func (c *Core) List(ctx context.Context, page, limit int) ([]*Month, int, error) {
	return c.repo.List(ctx, page, limit)
}

func (c *Core) FindByMonthYear(ctx context.Context, month, year int) (*Month, error) {
	return c.repo.FindByMonthYear(ctx, month, year)
}

// SeedPreviousWinners links monthID to challengeID and copies the
// immediately preceding calendar month's winner userIds into
// previousMonthWinners, implementing the anti-consecutive-win carry
// used by the winner draw.
func (c *Core) SeedPreviousWinners(ctx context.Context, monthID string, month, year int, challengeID string) error {
	if err := c.repo.SetLinkedChallenge(ctx, monthID, challengeID); err != nil {
		return err
	}
	prev, err := c.repo.FindPrevious(ctx, month, year)
	if err != nil {
		return err
	}
	if prev == nil || len(prev.Winners) == 0 {
		return nil
	}
	userIDs := make([]string, 0, len(prev.Winners))
	for _, w := range prev.Winners {
		userIDs = append(userIDs, w.UserID)
	}
	return c.repo.SetPreviousMonthWinners(ctx, monthID, userIDs)
}

// IncrementAndGetTicketNumber atomically advances the month's ticket
// counter and returns the freshly assigned sequential number.
func (c *Core) IncrementAndGetTicketNumber(ctx context.Context, monthID string) (int, error) {
	return c.repo.IncrementTicketNumber(ctx, monthID)
}

// MintTicket assigns the next ticket number, computes the weight from
// userTicketIndex, and persists an immutable ticket row. Called by both
// direct purchase confirmation and challenge-vote ticket generation.
func (c *Core) MintTicket(ctx context.Context, userID, monthID string, userTicketIndex int, source SourceType, paymentIntentID, challengeVoteID string) (*Ticket, error) {
	return c.mintTicket(ctx, opaqueTicketID(), userID, monthID, userTicketIndex, source, paymentIntentID, challengeVoteID)
}

// mintTicket is MintTicket with a caller-supplied ticketId, so a direct
// purchase persists the provisional id it handed out at initiation.
func (c *Core) mintTicket(ctx context.Context, ticketID, userID, monthID string, userTicketIndex int, source SourceType, paymentIntentID, challengeVoteID string) (*Ticket, error) {
	ticketNumber, err := c.IncrementAndGetTicketNumber(ctx, monthID)
	if err != nil {
		return nil, err
	}
	t := &Ticket{
		ID:              uuid.NewString(),
		TicketID:        ticketID,
		UserID:          userID,
		TombolaMonthID:  monthID,
		TicketNumber:    ticketNumber,
		Weight:          WeightForIndex(userTicketIndex),
		UserTicketIndex: userTicketIndex,
		SourceType:      source,
		PaymentIntentID: paymentIntentID,
		ChallengeVoteID: challengeVoteID,
		CreatedAt:       c.clock.Now(),
	}
	if err := c.tickets.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// InitiateResult carries the provisional ticketId a caller must echo
// back on the payment-confirmation webhook for ConfirmDirectPurchase
// to resolve idempotently.
type InitiateResult struct {
	TicketID    string
	SessionID   string
	CheckoutURL string
}

// InitiateDirectPurchase mints a provisional ticketId and opens a
// payment intent for it before any money moves, mirroring how
// challenge-vote payments are initiated.
func (c *Core) InitiateDirectPurchase(ctx context.Context, userID, monthID string) (InitiateResult, error) {
	m, err := c.Get(ctx, monthID)
	if err != nil {
		return InitiateResult{}, err
	}
	if m.Status != StatusOpen {
		return InitiateResult{}, apperrors.Conflict("tombola month is not open for ticket purchases")
	}

	existingCount, err := c.tickets.CountForUserMonth(ctx, userID, monthID)
	if err != nil {
		return InitiateResult{}, err
	}
	if existingCount >= maxTicketsPerUserPerMonth {
		return InitiateResult{}, apperrors.ForbiddenState("TICKET_LIMIT_REACHED", "maximum tickets for this month already reached")
	}

	ticketID := opaqueTicketID()
	intent, err := c.payments.CreateIntent(ctx, c.ticketPrice, "TOMBOLA_TICKET", map[string]any{
		"userId":             userID,
		"tombolaMonthId":     monthID,
		"ticketId":           ticketID,
		"originatingService": "tombola",
		"callbackPath":       "/tombolas/webhooks/payment-confirmation",
	})
	if err != nil {
		return InitiateResult{}, apperrors.Upstream("failed to create payment intent", err)
	}

	return InitiateResult{TicketID: ticketID, SessionID: intent.SessionID, CheckoutURL: intent.CheckoutURL}, nil
}

// ConfirmDirectPurchase is idempotent on the provisional ticketId: a
// retry of an already-minted purchase returns the existing ticket.
func (c *Core) ConfirmDirectPurchase(ctx context.Context, ticketID, userID, monthID, paymentIntentID string) (*Ticket, error) {
	unlock := c.purchaseMu.Lock(userID + ":" + monthID)
	defer unlock()

	if existing, err := c.tickets.FindByTicketID(ctx, ticketID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	existingCount, err := c.tickets.CountForUserMonth(ctx, userID, monthID)
	if err != nil {
		return nil, err
	}
	if existingCount >= maxTicketsPerUserPerMonth {
		return nil, apperrors.ForbiddenState("TICKET_LIMIT_REACHED", "maximum tickets for this month already reached")
	}

	return c.mintTicket(ctx, ticketID, userID, monthID, existingCount+1, SourceDirectPurchase, paymentIntentID, "")
}

func (c *Core) TicketsForUser(ctx context.Context, userID string, page, limit int) ([]*Ticket, int, error) {
	return c.tickets.ListForUser(ctx, userID, page, limit)
}

// TicketsForMonth backs the admin ticket and ticket-number listings.
func (c *Core) TicketsForMonth(ctx context.Context, monthID string) ([]*Ticket, error) {
	return c.tickets.ListForMonth(ctx, monthID)
}

// TicketCountForUserMonth backs the challenge-vote ticket-cap check
// and the ticketsToGenerate computation during vote confirmation.
func (c *Core) TicketCountForUserMonth(ctx context.Context, userID, monthID string) (int, error) {
	return c.tickets.CountForUserMonth(ctx, userID, monthID)
}

// DrawWinners runs the weighted winner selection for a month. It is a
// no-op (closes without winners) when there are no tickets, or no
// eligible ticket holders once previous-month winners are excluded.
func (c *Core) DrawWinners(ctx context.Context, monthID string) (*Month, error) {
	m, err := c.Get(ctx, monthID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusOpen && m.Status != StatusDrawing {
		return nil, apperrors.Conflict("month is not open for drawing")
	}
	if len(m.Winners) > 0 {
		return nil, apperrors.Conflict("winners already drawn for this month")
	}

	tickets, err := c.tickets.ListForMonth(ctx, monthID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if len(tickets) == 0 {
		if err := c.repo.SetWinners(ctx, monthID, nil, now); err != nil {
			return nil, err
		}
		return c.Get(ctx, monthID)
	}

	excluded := make(map[string]bool, len(m.PreviousMonthWinners))
	for _, u := range m.PreviousMonthWinners {
		excluded[u] = true
	}

	eligible := make([]*Ticket, 0, len(tickets))
	for _, t := range tickets {
		if !excluded[t.UserID] {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		if err := c.repo.SetWinners(ctx, monthID, nil, now); err != nil {
			return nil, err
		}
		return c.Get(ctx, monthID)
	}

	distinctUsers := map[string]bool{}
	for _, t := range eligible {
		distinctUsers[t.UserID] = true
	}
	numPrizes := len(prizeTable)
	if len(distinctUsers) < numPrizes {
		numPrizes = len(distinctUsers)
	}

	selected := map[string]bool{}
	var winners []Winner
	remaining := eligible
	for rank := 1; rank <= numPrizes; rank++ {
		pool := make([]*Ticket, 0, len(remaining))
		for _, t := range remaining {
			if !selected[t.UserID] {
				pool = append(pool, t)
			}
		}
		if len(pool) == 0 {
			break
		}
		winner := c.weightedPick(pool)
		selected[winner.UserID] = true
		winners = append(winners, Winner{
			UserID:              winner.UserID,
			Prize:               prizeTable[rank-1],
			Rank:                rank,
			WinningTicketNumber: winner.TicketNumber,
		})
	}

	if err := c.repo.SetWinners(ctx, monthID, winners, now); err != nil {
		return nil, err
	}

	for _, w := range winners {
		collaborators.SendBestEffort(ctx, c.notifier, collaborators.Notification{
			UserID: w.UserID,
			Source: "tombola",
			Reason: "tombola_winner",
			Metadata: map[string]any{
				"monthId": monthID,
				"prize":   w.Prize,
				"rank":    w.Rank,
			},
		}, c.logger)
	}

	return c.Get(ctx, monthID)
}

// weightedPick draws one ticket with probability proportional to its
// weight. On the rounding fallthrough (accumulated weight never
// reaching the draw due to float error) it falls back to the last
// eligible ticket.
func (c *Core) weightedPick(tickets []*Ticket) *Ticket {
	var total float64
	for _, t := range tickets {
		w := t.Weight
		if w <= 0 {
			w = 1.0
		}
		total += w
	}
	draw := c.rng.Float64() * total

	var cursor float64
	for _, t := range tickets {
		w := t.Weight
		if w <= 0 {
			w = 1.0
		}
		cursor += w
		if draw < cursor {
			return t
		}
	}
	return tickets[len(tickets)-1]
}

func opaqueTicketID() string {
	return fmt.Sprintf("%012s", uuid.NewString()[:12])
}
