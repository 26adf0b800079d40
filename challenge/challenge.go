// Package challenge implements ChallengeCore: the Impact-Challenge
// state machine, entrepreneur roster, vote-leaderboard ranking, and the
// 50/30/20 fund distribution that closes out a challenge month.
package challenge

import (
	"context"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/tombola"
	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusActive          Status = "active"
	StatusVotingClosed    Status = "voting_closed"
	StatusFundsDistributed Status = "funds_distributed"
	StatusCancelled       Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusDraft:        {StatusActive, StatusCancelled},
	StatusActive:       {StatusVotingClosed, StatusCancelled},
	StatusVotingClosed: {StatusFundsDistributed, StatusCancelled},
}

type Description struct {
	FR string `bson:"fr"`
	EN string `bson:"en"`
}

type Distribution struct {
	WinnerAmount        int64     `bson:"winnerAmount"`
	LotteryAmount       int64     `bson:"lotteryAmount"`
	CommissionAmount    int64     `bson:"commissionAmount"`
	WinnerTxnID         string    `bson:"winnerTxnId"`
	LotteryTxnID        string    `bson:"lotteryTxnId"`
	CommissionTxnID     string    `bson:"commissionTxnId"`
	DistributionDate    time.Time `bson:"distributionDate"`
}

type ImpactChallenge struct {
	ID                string       `bson:"_id"`
	Month             int          `bson:"month"`
	Year              int          `bson:"year"`
	CampaignName      string       `bson:"campaignName"`
	Status            Status       `bson:"status"`
	StartDate         time.Time    `bson:"startDate"`
	EndDate           time.Time    `bson:"endDate"`
	Description       Description  `bson:"description"`
	TombolaMonthID    string       `bson:"tombolaMonthId"`
	TotalCollected    int64        `bson:"totalCollected"`
	TotalVoteCount    int          `bson:"totalVoteCount"`
	FundsDistributed  bool         `bson:"fundsDistributed"`
	Distribution      Distribution `bson:"distribution"`
	LotteryPoolAccountID    string `bson:"lotteryPoolAccountId"`
	CommissionAccountID     string `bson:"commissionAccountId"`
	CreatedAt         time.Time    `bson:"createdAt"`
	UpdatedAt         time.Time    `bson:"updatedAt"`
}

type Entrepreneur struct {
	ID            string    `bson:"_id"`
	ChallengeID   string    `bson:"challengeId"`
	UserID        string    `bson:"userId,omitempty"`
	Name          string    `bson:"name"`
	ProjectTitle  string    `bson:"projectTitle"`
	Description   string    `bson:"description"`
	VideoURL      string    `bson:"videoUrl,omitempty"`
	VideoDuration int       `bson:"videoDuration"` // seconds, ≤90
	VoteCount     int       `bson:"voteCount"`
	TotalAmount   int64     `bson:"totalAmount"`
	Rank          int       `bson:"rank,omitempty"`
	IsWinner      bool      `bson:"isWinner"`
	Approved      bool      `bson:"approved"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

const maxEntrepreneurVideoSeconds = 90
const defaultMaxEntrepreneurs = 3

type Repository interface {
	Insert(ctx context.Context, c *ImpactChallenge) error
	FindByID(ctx context.Context, id string) (*ImpactChallenge, error)
	FindByMonthYear(ctx context.Context, month, year int) (*ImpactChallenge, error)
	FindActive(ctx context.Context) (*ImpactChallenge, error)
	List(ctx context.Context, page, limit int) ([]*ImpactChallenge, int, error)
	SetStatus(ctx context.Context, id string, status Status, at time.Time) error
	IncTotals(ctx context.Context, id string, collectedDelta int64, voteCountDelta int, at time.Time) error
	SetDistribution(ctx context.Context, id string, d Distribution) error
}

type EntrepreneurRepository interface {
	Insert(ctx context.Context, e *Entrepreneur) error
	FindByID(ctx context.Context, id string) (*Entrepreneur, error)
	ListForChallenge(ctx context.Context, challengeID string) ([]*Entrepreneur, int, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	IncVotes(ctx context.Context, id string, voteCountDelta int, amountDelta int64) error
	SetRanks(ctx context.Context, ranks map[string]int, winnerID string) error
	Delete(ctx context.Context, id string) error
}

// TombolaGate is the subset of tombola.Core ChallengeCore needs to
// link each challenge month to its lottery month and seed the
// anti-consecutive-win exclusion list.
type TombolaGate interface {
	FindByMonthYear(ctx context.Context, month, year int) (*tombola.Month, error)
	CreateMonth(ctx context.Context, month, year int) (*tombola.Month, error)
	SeedPreviousWinners(ctx context.Context, monthID string, month, year int, challengeID string) error
}

type Core struct {
	repo         Repository
	entrepreneurs EntrepreneurRepository
	tombolaGate  TombolaGate
	payments     collaborators.Payments
	clock        clock.Clock
	maxEntrepreneurs int
}

func NewCore(repo Repository, entrepreneurs EntrepreneurRepository, tombolaGate TombolaGate, payments collaborators.Payments, clk clock.Clock, maxEntrepreneurs int) *Core {
	if maxEntrepreneurs <= 0 {
		maxEntrepreneurs = defaultMaxEntrepreneurs
	}
	return &Core{repo: repo, entrepreneurs: entrepreneurs, tombolaGate: tombolaGate, payments: payments, clock: clk, maxEntrepreneurs: maxEntrepreneurs}
}

type CreateData struct {
	Month        int
	Year         int
	CampaignName string
	StartDate    time.Time
	EndDate      time.Time
	Description  Description
	LotteryPoolAccountID string
	CommissionAccountID  string
}

// CreateChallenge finds or creates the linked TombolaMonth for
// (month,year), seeding its previousMonthWinners from the prior
// period's draw (December for a January challenge).
func (c *Core) CreateChallenge(ctx context.Context, data CreateData) (*ImpactChallenge, error) {
	existing, err := c.repo.FindByMonthYear(ctx, data.Month, data.Year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("a challenge already exists for that period")
	}

	month, err := c.tombolaGate.FindByMonthYear(ctx, data.Month, data.Year)
	if err != nil {
		return nil, err
	}
	if month == nil {
		month, err = c.tombolaGate.CreateMonth(ctx, data.Month, data.Year)
		if err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	ch := &ImpactChallenge{
		ID:                   uuid.NewString(),
		Month:                data.Month,
		Year:                 data.Year,
		CampaignName:         data.CampaignName,
		Status:               StatusDraft,
		StartDate:            data.StartDate,
		EndDate:              data.EndDate,
		Description:          data.Description,
		TombolaMonthID:       month.ID,
		LotteryPoolAccountID: data.LotteryPoolAccountID,
		CommissionAccountID:  data.CommissionAccountID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := c.repo.Insert(ctx, ch); err != nil {
		return nil, err
	}
	if err := c.tombolaGate.SeedPreviousWinners(ctx, month.ID, data.Month, data.Year, ch.ID); err != nil {
		return nil, err
	}
	return ch, nil
}

func canTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (c *Core) setStatus(ctx context.Context, ch *ImpactChallenge, to Status) error {
	if !canTransition(ch.Status, to) {
		return apperrors.Conflict("illegal challenge status transition")
	}
	return c.repo.SetStatus(ctx, ch.ID, to, c.clock.Now())
}

func (c *Core) Activate(ctx context.Context, id string) error {
	ch, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	return c.setStatus(ctx, ch, StatusActive)
}

func (c *Core) Cancel(ctx context.Context, id string) error {
	ch, err := c.mustFind(ctx, id)
	if err != nil {
		return err
	}
	return c.setStatus(ctx, ch, StatusCancelled)
}

// CloseVoting ranks entrepreneurs by voteCount desc, records ranks and
// the rank-1 winner flag, and transitions the challenge to
// voting_closed.
func (c *Core) CloseVoting(ctx context.Context, challengeID string) (*ImpactChallenge, error) {
	ch, err := c.mustFind(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != StatusActive {
		return nil, apperrors.Conflict("challenge must be active to close voting")
	}

	entrepreneurs, _, err := c.entrepreneurs.ListForChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	sortByVoteCountDesc(entrepreneurs)

	ranks := make(map[string]int, len(entrepreneurs))
	var winnerID string
	for i, e := range entrepreneurs {
		rank := i + 1
		ranks[e.ID] = rank
		if rank == 1 {
			winnerID = e.ID
		}
	}
	if len(ranks) > 0 {
		if err := c.entrepreneurs.SetRanks(ctx, ranks, winnerID); err != nil {
			return nil, err
		}
	}

	if err := c.setStatus(ctx, ch, StatusVotingClosed); err != nil {
		return nil, err
	}
	return c.mustFind(ctx, challengeID)
}

func sortByVoteCountDesc(entrepreneurs []*Entrepreneur) {
	for i := 1; i < len(entrepreneurs); i++ {
		for j := i; j > 0 && entrepreneurs[j].VoteCount > entrepreneurs[j-1].VoteCount; j-- {
			entrepreneurs[j], entrepreneurs[j-1] = entrepreneurs[j-1], entrepreneurs[j]
		}
	}
}

// DistributeFunds splits totalCollected 50/30/20 (winner/lottery pool/
// commission) with floor rounding, pushing the remainder into
// commission so the three amounts sum exactly to totalCollected.
func (c *Core) DistributeFunds(ctx context.Context, challengeID string) (*ImpactChallenge, error) {
	ch, err := c.mustFind(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != StatusVotingClosed {
		return nil, apperrors.Conflict("voting must be closed before distributing funds")
	}
	if ch.FundsDistributed {
		return nil, apperrors.Conflict("funds already distributed")
	}
	if ch.LotteryPoolAccountID == "" || ch.CommissionAccountID == "" {
		return nil, apperrors.Validation("lottery pool and commission accounts must be configured")
	}

	entrepreneurs, _, err := c.entrepreneurs.ListForChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	var winner *Entrepreneur
	for _, e := range entrepreneurs {
		if e.IsWinner {
			winner = e
			break
		}
	}
	if winner == nil || winner.UserID == "" {
		return nil, apperrors.Conflict("winning entrepreneur has no linked user account")
	}

	total := ch.TotalCollected
	winnerAmount := total * 50 / 100
	lotteryAmount := total * 30 / 100
	commissionAmount := total * 20 / 100
	remainder := total - (winnerAmount + lotteryAmount + commissionAmount)
	commissionAmount += remainder

	winnerDep, err := c.payments.Deposit(ctx, winner.UserID, winnerAmount, "IMPACT_CHALLENGE_WINNER", map[string]any{"challengeId": challengeID})
	if err != nil {
		return nil, apperrors.Upstream("winner deposit failed", err)
	}
	lotteryDep, err := c.payments.Deposit(ctx, ch.LotteryPoolAccountID, lotteryAmount, "IMPACT_CHALLENGE_LOTTERY_POOL", map[string]any{"challengeId": challengeID})
	if err != nil {
		return nil, apperrors.Upstream("lottery pool deposit failed", err)
	}
	commissionDep, err := c.payments.Deposit(ctx, ch.CommissionAccountID, commissionAmount, "IMPACT_CHALLENGE_COMMISSION", map[string]any{"challengeId": challengeID})
	if err != nil {
		return nil, apperrors.Upstream("commission deposit failed", err)
	}

	now := c.clock.Now()
	dist := Distribution{
		WinnerAmount:     winnerAmount,
		LotteryAmount:    lotteryAmount,
		CommissionAmount: commissionAmount,
		WinnerTxnID:      winnerDep.TransactionID,
		LotteryTxnID:     lotteryDep.TransactionID,
		CommissionTxnID:  commissionDep.TransactionID,
		DistributionDate: now,
	}
	if err := c.repo.SetDistribution(ctx, challengeID, dist); err != nil {
		return nil, err
	}
	if err := c.setStatus(ctx, ch, StatusFundsDistributed); err != nil {
		return nil, err
	}
	return c.mustFind(ctx, challengeID)
}

// Leaderboard returns entrepreneurs ordered by vote count, highest
// first. Ranks are authoritative only once CloseVoting has run; before
// that this is a live, unranked ordering.
func (c *Core) Leaderboard(ctx context.Context, challengeID string) ([]*Entrepreneur, error) {
	entrepreneurs, _, err := c.entrepreneurs.ListForChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	sortByVoteCountDesc(entrepreneurs)
	return entrepreneurs, nil
}

// Analytics summarizes a challenge's funding and participation for the
// admin dashboard.
func (c *Core) Analytics(ctx context.Context, challengeID string) (map[string]any, error) {
	ch, err := c.mustFind(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	entrepreneurs, count, err := c.entrepreneurs.ListForChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	approved := 0
	for _, e := range entrepreneurs {
		if e.Approved {
			approved++
		}
	}
	return map[string]any{
		"challengeId":         ch.ID,
		"status":              ch.Status,
		"totalCollected":      ch.TotalCollected,
		"totalVoteCount":      ch.TotalVoteCount,
		"entrepreneurCount":   count,
		"approvedEntrepreneurs": approved,
		"fundsDistributed":    ch.FundsDistributed,
	}, nil
}

func (c *Core) Get(ctx context.Context, id string) (*ImpactChallenge, error) { return c.mustFind(ctx, id) }

func (c *Core) ListChallenges(ctx context.Context, page, limit int) ([]*ImpactChallenge, int, error) {
	return c.repo.List(ctx, page, limit)
}

func (c *Core) Current(ctx context.Context) (*ImpactChallenge, error) {
	return c.repo.FindActive(ctx)
}

func (c *Core) mustFind(ctx context.Context, id string) (*ImpactChallenge, error) {
	ch, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apperrors.NotFound("challenge not found")
	}
	return ch, nil
}

// IncTotals is exported for VoteCore's payment-confirmation step: it
// increments collected amount and vote count atomically.
func (c *Core) IncTotals(ctx context.Context, challengeID string, amount int64, voteQuantity int) error {
	return c.repo.IncTotals(ctx, challengeID, amount, voteQuantity, c.clock.Now())
}

// --- Entrepreneurs ---

type EntrepreneurData struct {
	ChallengeID   string
	UserID        string
	Name          string
	ProjectTitle  string
	Description   string
	VideoURL      string
	VideoDuration int
}

func (c *Core) AddEntrepreneur(ctx context.Context, data EntrepreneurData) (*Entrepreneur, error) {
	if data.VideoDuration > maxEntrepreneurVideoSeconds {
		return nil, apperrors.Validationf("entrepreneur video exceeds %ds", maxEntrepreneurVideoSeconds)
	}
	_, count, err := c.entrepreneurs.ListForChallenge(ctx, data.ChallengeID)
	if err != nil {
		return nil, err
	}
	if count >= c.maxEntrepreneurs {
		return nil, apperrors.ForbiddenState("ENTREPRENEUR_LIMIT_REACHED", "this challenge already has the maximum number of entrepreneurs")
	}
	now := c.clock.Now()
	e := &Entrepreneur{
		ID:            uuid.NewString(),
		ChallengeID:   data.ChallengeID,
		UserID:        data.UserID,
		Name:          data.Name,
		ProjectTitle:  data.ProjectTitle,
		Description:   data.Description,
		VideoURL:      data.VideoURL,
		VideoDuration: data.VideoDuration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.entrepreneurs.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Core) ApproveEntrepreneur(ctx context.Context, id string) error {
	return c.entrepreneurs.SetApproved(ctx, id, true)
}

func (c *Core) GetEntrepreneur(ctx context.Context, id string) (*Entrepreneur, error) {
	e, err := c.entrepreneurs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperrors.NotFound("entrepreneur not found")
	}
	return e, nil
}

func (c *Core) ListEntrepreneurs(ctx context.Context, challengeID string) ([]*Entrepreneur, int, error) {
	return c.entrepreneurs.ListForChallenge(ctx, challengeID)
}

// IncEntrepreneurVotes is exported for VoteCore's confirmPayment step.
func (c *Core) IncEntrepreneurVotes(ctx context.Context, entrepreneurID string, voteQuantity int, amountPaid int64) error {
	return c.entrepreneurs.IncVotes(ctx, entrepreneurID, voteQuantity, amountPaid)
}

// DeleteEntrepreneur refuses to delete an entrepreneur who has
// already received votes.
func (c *Core) DeleteEntrepreneur(ctx context.Context, id string) error {
	e, err := c.GetEntrepreneur(ctx, id)
	if err != nil {
		return err
	}
	if e.VoteCount > 0 {
		return apperrors.Conflict("cannot delete an entrepreneur that has received votes")
	}
	return c.entrepreneurs.Delete(ctx, id)
}
