// Package vote implements VoteCore: challenge-vote and support
// initiation, and the idempotent payment-confirmation webhook that
// mints tombola tickets for confirmed votes.
package vote

import (
	"context"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/challenge"
	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/TambongStercy/SBC-MS-sub006/tombola"
	"github.com/google/uuid"
)

const defaultVotePrice int64 = 200

type Type string

const (
	TypeVote    Type = "vote"
	TypeSupport Type = "support"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type ChallengeVote struct {
	ID                  string        `bson:"_id"`
	ChallengeID         string        `bson:"challengeId"`
	EntrepreneurID      string        `bson:"entrepreneurId"`
	UserID              string        `bson:"userId,omitempty"`
	AmountPaid          int64         `bson:"amountPaid"`
	VoteQuantity        int           `bson:"voteQuantity"`
	VoteType            Type          `bson:"voteType"`
	PaymentStatus       PaymentStatus `bson:"paymentStatus"`
	PaymentIntentID     string        `bson:"paymentIntentId"`
	TombolaTicketIDs    []string      `bson:"tombolaTicketIds"`
	TicketsGenerated    bool          `bson:"ticketsGenerated"`
	TicketGenerationErr string        `bson:"ticketGenerationError,omitempty"`
	CreatedAt           time.Time     `bson:"createdAt"`
	UpdatedAt           time.Time     `bson:"updatedAt"`
}

type Repository interface {
	Insert(ctx context.Context, v *ChallengeVote) error
	FindByID(ctx context.Context, id string) (*ChallengeVote, error)
	FindByPaymentIntentID(ctx context.Context, sessionID string) (*ChallengeVote, error)
	SetPaymentIntentID(ctx context.Context, id, sessionID string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	SetTickets(ctx context.Context, id string, ticketIDs []string, at time.Time) error
	SetTicketGenerationError(ctx context.Context, id, errMsg string) error
}

// ChallengeGate is the subset of challenge.Core VoteCore needs:
// reading challenge/entrepreneur state and posting the vote's
// downstream counter increments.
type ChallengeGate interface {
	Get(ctx context.Context, id string) (*challenge.ImpactChallenge, error)
	GetEntrepreneur(ctx context.Context, id string) (*challenge.Entrepreneur, error)
	IncTotals(ctx context.Context, challengeID string, amount int64, voteQuantity int) error
	IncEntrepreneurVotes(ctx context.Context, entrepreneurID string, voteQuantity int, amountPaid int64) error
}

// TombolaGate is the subset of tombola.Core VoteCore needs to enforce
// the per-user ticket cap and mint tickets on confirmation.
type TombolaGate interface {
	TicketCountForUserMonth(ctx context.Context, userID, monthID string) (int, error)
	MintTicket(ctx context.Context, userID, monthID string, userTicketIndex int, source tombola.SourceType, paymentIntentID, challengeVoteID string) (*tombola.Ticket, error)
}

// IdemGuard is the subset of idemstore.Store the payment-confirmation
// webhook needs: claim a session exactly once before running its
// side effects.
type IdemGuard interface {
	TryRecord(ctx context.Context, sessionID, outcome string, now time.Time) (bool, string, error)
}

type Core struct {
	repo      Repository
	challenges ChallengeGate
	tombolaGate TombolaGate
	payments  collaborators.Payments
	idem      IdemGuard
	clock     clock.Clock
	votePrice int64
	maxTickets int
	ticketMu  *middleware.KeyedMutex
}

type Config struct {
	VotePrice  int64
	MaxTickets int
}

func NewCore(repo Repository, challenges ChallengeGate, tombolaGate TombolaGate, payments collaborators.Payments, idem IdemGuard, clk clock.Clock, cfg Config) *Core {
	votePrice := cfg.VotePrice
	if votePrice <= 0 {
		votePrice = defaultVotePrice
	}
	maxTickets := cfg.MaxTickets
	if maxTickets <= 0 {
		maxTickets = tombola.MaxTicketsPerUserPerMonth()
	}
	return &Core{
		repo: repo, challenges: challenges, tombolaGate: tombolaGate,
		payments: payments, idem: idem, clock: clk,
		votePrice: votePrice, maxTickets: maxTickets,
		ticketMu: middleware.NewKeyedMutex(),
	}
}

type InitiateResult struct {
	VoteID        string
	SessionID     string
	CheckoutURL   string
	VoteQuantity  int
	TicketQuantity int
}

func (c *Core) InitiateVote(ctx context.Context, userID, challengeID, entrepreneurID string, amount int64) (InitiateResult, error) {
	return c.initiate(ctx, userID, challengeID, entrepreneurID, amount, TypeVote, true)
}

func (c *Core) InitiateSupport(ctx context.Context, userID, challengeID, entrepreneurID string, amount int64) (InitiateResult, error) {
	return c.initiate(ctx, userID, challengeID, entrepreneurID, amount, TypeSupport, false)
}

func (c *Core) initiate(ctx context.Context, userID, challengeID, entrepreneurID string, amount int64, voteType Type, enforceTicketCap bool) (InitiateResult, error) {
	if amount < c.votePrice || amount%c.votePrice != 0 {
		return InitiateResult{}, apperrors.Validationf("amount must be a multiple of %d and at least %d", c.votePrice, c.votePrice)
	}
	voteQuantity := int(amount / c.votePrice)

	ch, err := c.challenges.Get(ctx, challengeID)
	if err != nil {
		return InitiateResult{}, err
	}
	if ch == nil || ch.Status != challenge.StatusActive {
		return InitiateResult{}, apperrors.Conflict("challenge is not accepting votes")
	}

	entrepreneur, err := c.challenges.GetEntrepreneur(ctx, entrepreneurID)
	if err != nil {
		return InitiateResult{}, err
	}
	if entrepreneur == nil || entrepreneur.ChallengeID != challengeID || !entrepreneur.Approved {
		return InitiateResult{}, apperrors.Validation("entrepreneur is not approved for this challenge")
	}

	ticketsToGenerate := 0
	if enforceTicketCap {
		existing, err := c.tombolaGate.TicketCountForUserMonth(ctx, userID, ch.TombolaMonthID)
		if err != nil {
			return InitiateResult{}, err
		}
		available := c.maxTickets - existing
		if available <= 0 {
			return InitiateResult{}, apperrors.ForbiddenState("TICKET_CAP_REACHED", "ticket cap reached for this month, use Support instead")
		}
		if voteQuantity > available {
			return InitiateResult{}, apperrors.ForbiddenState("TICKET_CAP_EXCEEDED", "vote quantity exceeds remaining ticket allowance, use Support instead")
		}
		ticketsToGenerate = voteQuantity
	}

	now := c.clock.Now()
	v := &ChallengeVote{
		ID:             uuid.NewString(),
		ChallengeID:    challengeID,
		EntrepreneurID: entrepreneurID,
		UserID:         userID,
		AmountPaid:     amount,
		VoteQuantity:   voteQuantity,
		VoteType:       voteType,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repo.Insert(ctx, v); err != nil {
		return InitiateResult{}, err
	}

	intent, err := c.payments.CreateIntent(ctx, amount, "CHALLENGE_VOTE", map[string]any{
		"challengeId":       challengeID,
		"entrepreneurId":    entrepreneurID,
		"userId":            userID,
		"voteId":            v.ID,
		"voteType":          voteType,
		"voteQuantity":      voteQuantity,
		"ticketsToGenerate": ticketsToGenerate,
		"originatingService": "impact-challenge",
		"callbackPath":      "/challenges/webhooks/payment-confirmation",
	})
	if err != nil {
		return InitiateResult{}, apperrors.Upstream("failed to create payment intent", err)
	}

	if err := c.repo.SetPaymentIntentID(ctx, v.ID, intent.SessionID, now); err != nil {
		return InitiateResult{}, err
	}
	v.PaymentIntentID = intent.SessionID

	return InitiateResult{
		VoteID:         v.ID,
		SessionID:      intent.SessionID,
		CheckoutURL:    intent.CheckoutURL,
		VoteQuantity:   voteQuantity,
		TicketQuantity: voteQuantity,
	}, nil
}

// ConfirmPayment is the sole post-payment write path and must be safe
// under webhook retries: a vote already marked completed is a no-op.
func (c *Core) ConfirmPayment(ctx context.Context, sessionID string) error {
	v, err := c.repo.FindByPaymentIntentID(ctx, sessionID)
	if err != nil {
		return err
	}
	if v == nil {
		return apperrors.NotFound("no vote found for that payment session")
	}
	if v.PaymentStatus == PaymentCompleted {
		return nil
	}

	now := c.clock.Now()
	won, _, err := c.idem.TryRecord(ctx, sessionID, v.ID, now)
	if err != nil {
		return err
	}
	if !won {
		// Another call already claimed this session; let it do the work.
		return nil
	}
	if err := c.repo.MarkCompleted(ctx, v.ID, now); err != nil {
		return err
	}

	if err := c.challenges.IncEntrepreneurVotes(ctx, v.EntrepreneurID, v.VoteQuantity, v.AmountPaid); err != nil {
		return apperrors.Integrity("payment confirmed but entrepreneur counters failed to update", err)
	}
	if err := c.challenges.IncTotals(ctx, v.ChallengeID, v.AmountPaid, v.VoteQuantity); err != nil {
		return apperrors.Integrity("payment confirmed but challenge totals failed to update", err)
	}

	if v.VoteType != TypeVote || v.UserID == "" {
		return nil
	}

	ch, err := c.challenges.Get(ctx, v.ChallengeID)
	if err != nil || ch == nil {
		_ = c.repo.SetTicketGenerationError(ctx, v.ID, "challenge lookup failed during ticket minting")
		return nil
	}

	unlock := c.ticketMu.Lock(v.UserID + ":" + ch.TombolaMonthID)
	defer unlock()

	existing, err := c.tombolaGate.TicketCountForUserMonth(ctx, v.UserID, ch.TombolaMonthID)
	if err != nil {
		_ = c.repo.SetTicketGenerationError(ctx, v.ID, err.Error())
		return nil
	}
	ticketsToGenerate := v.VoteQuantity
	if available := c.maxTickets - existing; ticketsToGenerate > available {
		ticketsToGenerate = available
	}

	ticketIDs := make([]string, 0, ticketsToGenerate)
	for i := 1; i <= ticketsToGenerate; i++ {
		ticket, err := c.tombolaGate.MintTicket(ctx, v.UserID, ch.TombolaMonthID, existing+i, tombola.SourceChallengeVote, sessionID, v.ID)
		if err != nil {
			// Counters already committed above; ticket minting is not
			// retried inline so a partial batch is recorded for
			// reconciliation rather than rolling back the payment.
			_ = c.repo.SetTicketGenerationError(ctx, v.ID, err.Error())
			break
		}
		ticketIDs = append(ticketIDs, ticket.TicketID)
	}

	return c.repo.SetTickets(ctx, v.ID, ticketIDs, c.clock.Now())
}

// TicketAllowance reports how many more challenge-vote-backed tombola
// tickets userID may mint for the month behind challengeID before
// Support (no ticket minting) becomes the only option.
func (c *Core) TicketAllowance(ctx context.Context, userID, challengeID string) (remaining, limit, votePrice int64, err error) {
	ch, err := c.challenges.Get(ctx, challengeID)
	if err != nil {
		return 0, 0, 0, err
	}
	if ch == nil {
		return 0, 0, 0, apperrors.NotFound("challenge not found")
	}
	existing, err := c.tombolaGate.TicketCountForUserMonth(ctx, userID, ch.TombolaMonthID)
	if err != nil {
		return 0, 0, 0, err
	}
	available := int64(c.maxTickets - existing)
	if available < 0 {
		available = 0
	}
	return available, int64(c.maxTickets), c.votePrice, nil
}

func (c *Core) Get(ctx context.Context, id string) (*ChallengeVote, error) {
	v, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperrors.NotFound("vote not found")
	}
	return v, nil
}
