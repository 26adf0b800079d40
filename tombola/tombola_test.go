package tombola

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeRepository struct {
	byID map[string]*Month
}

func newFakeRepository() *fakeRepository { return &fakeRepository{byID: map[string]*Month{}} }

func (f *fakeRepository) Insert(ctx context.Context, m *Month) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	f.byID[m.ID] = m
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id string) (*Month, error) { return f.byID[id], nil }

func (f *fakeRepository) FindOpen(ctx context.Context) (*Month, error) {
	for _, m := range f.byID {
		if m.Status == StatusOpen {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindByMonthYear(ctx context.Context, month, year int) (*Month, error) {
	for _, m := range f.byID {
		if m.Month == month && m.Year == year {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) FindPrevious(ctx context.Context, month, year int) (*Month, error) {
	prevMonth, prevYear := month-1, year
	if prevMonth < 1 {
		prevMonth, prevYear = 12, year-1
	}
	return f.FindByMonthYear(ctx, prevMonth, prevYear)
}

func (f *fakeRepository) List(ctx context.Context, page, limit int) ([]*Month, int, error) {
	var out []*Month
	for _, m := range f.byID {
		out = append(out, m)
	}
	return out, len(out), nil
}

func (f *fakeRepository) CloseAllOpen(ctx context.Context, at time.Time) error {
	for _, m := range f.byID {
		if m.Status == StatusOpen || m.Status == StatusDrawing {
			m.Status = StatusClosed
			m.UpdatedAt = at
		}
	}
	return nil
}

func (f *fakeRepository) SetStatus(ctx context.Context, id string, status Status, at time.Time) error {
	if m, ok := f.byID[id]; ok {
		m.Status = status
		m.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepository) IncrementTicketNumber(ctx context.Context, id string) (int, error) {
	m, ok := f.byID[id]
	if !ok {
		return 0, nil
	}
	m.LastTicketNumber++
	return m.LastTicketNumber, nil
}

func (f *fakeRepository) SetWinners(ctx context.Context, id string, winners []Winner, drawDate time.Time) error {
	if m, ok := f.byID[id]; ok {
		m.Winners = winners
		m.Status = StatusClosed
		m.DrawDate = &drawDate
	}
	return nil
}

func (f *fakeRepository) SetPreviousMonthWinners(ctx context.Context, id string, userIDs []string) error {
	if m, ok := f.byID[id]; ok {
		m.PreviousMonthWinners = userIDs
	}
	return nil
}

func (f *fakeRepository) SetLinkedChallenge(ctx context.Context, id, challengeID string) error {
	if m, ok := f.byID[id]; ok {
		m.LinkedChallengeID = challengeID
	}
	return nil
}

type fakeTicketRepository struct {
	tickets []*Ticket
}

func (f *fakeTicketRepository) Insert(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	f.tickets = append(f.tickets, t)
	return nil
}

func (f *fakeTicketRepository) FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error) {
	for _, t := range f.tickets {
		if t.TicketID == ticketID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTicketRepository) CountForUserMonth(ctx context.Context, userID, monthID string) (int, error) {
	n := 0
	for _, t := range f.tickets {
		if t.UserID == userID && t.TombolaMonthID == monthID {
			n++
		}
	}
	return n, nil
}

func (f *fakeTicketRepository) ListForMonth(ctx context.Context, monthID string) ([]*Ticket, error) {
	var out []*Ticket
	for _, t := range f.tickets {
		if t.TombolaMonthID == monthID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTicketRepository) ListForUser(ctx context.Context, userID string, page, limit int) ([]*Ticket, int, error) {
	var out []*Ticket
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

type fakeNotifier struct {
	sent []collaborators.Notification
}

func (f *fakeNotifier) Name() string                          { return "notifier" }
func (f *fakeNotifier) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeNotifier) Send(ctx context.Context, n collaborators.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakePayments struct{}

func (f *fakePayments) Name() string                          { return "payments" }
func (f *fakePayments) HealthCheck(ctx context.Context) error { return nil }
func (f *fakePayments) CreateIntent(ctx context.Context, amount int64, paymentType string, metadata map[string]any) (collaborators.Intent, error) {
	return collaborators.Intent{SessionID: "session-1", CheckoutURL: "https://pay.example/session-1"}, nil
}
func (f *fakePayments) Deposit(ctx context.Context, accountID string, amount int64, reason string, metadata map[string]any) (collaborators.Deposit, error) {
	return collaborators.Deposit{TransactionID: "txn-" + accountID}, nil
}

func newTestCore(now time.Time) (*Core, *fakeRepository, *fakeTicketRepository, *fakeNotifier) {
	repo := newFakeRepository()
	tickets := &fakeTicketRepository{}
	notifier := &fakeNotifier{}
	core := NewCore(repo, tickets, notifier, &fakePayments{}, &clock.Frozen{At: now}, zerolog.Nop())
	core.rng = rand.New(rand.NewSource(42))
	return core, repo, tickets, notifier
}

func TestCreateMonth_RejectsFuturePeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	core, _, _, _ := newTestCore(now)

	_, err := core.CreateMonth(context.Background(), 4, 2026)
	if err == nil {
		t.Fatal("expected error creating a future tombola month")
	}
}

func TestCreateMonth_ClosesPreviouslyOpenMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	core, repo, _, _ := newTestCore(now)
	ctx := context.Background()

	feb, err := core.CreateMonth(ctx, 2, 2026)
	if err != nil {
		t.Fatalf("create feb: %v", err)
	}
	if _, err := core.CreateMonth(ctx, 3, 2026); err != nil {
		t.Fatalf("create mar: %v", err)
	}

	if repo.byID[feb.ID].Status != StatusClosed {
		t.Fatal("expected previously open month to be closed when a new month opens")
	}

	openCount := 0
	for _, m := range repo.byID {
		if m.Status == StatusOpen {
			openCount++
		}
	}
	if openCount != 1 {
		t.Fatalf("expected exactly one open month, got %d", openCount)
	}
}

func TestCreateMonth_RejectsDuplicate(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	core, _, _, _ := newTestCore(now)
	ctx := context.Background()

	if _, err := core.CreateMonth(ctx, 3, 2026); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := core.CreateMonth(ctx, 3, 2026); err == nil {
		t.Fatal("expected duplicate (month,year) to be rejected")
	}
}

func TestMintTicket_SequentialNumbering(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	core, _, tickets, _ := newTestCore(now)
	ctx := context.Background()
	m, _ := core.CreateMonth(ctx, 3, 2026)

	for i := 1; i <= 3; i++ {
		ticket, err := core.MintTicket(ctx, "u1", m.ID, i, SourceDirectPurchase, "intent1", "")
		if err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if ticket.TicketNumber != i {
			t.Fatalf("expected ticket number %d, got %d", i, ticket.TicketNumber)
		}
	}
	if len(tickets.tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets.tickets))
	}
}

func TestWeightForIndex_MatchesBands(t *testing.T) {
	cases := []struct {
		idx  int
		want float64
	}{
		{1, 1.0}, {3, 1.0}, {4, 0.6}, {15, 0.6}, {16, 0.3}, {25, 0.3},
	}
	for _, c := range cases {
		if got := WeightForIndex(c.idx); got != c.want {
			t.Errorf("WeightForIndex(%d) = %v, want %v", c.idx, got, c.want)
		}
	}
}

func TestConfirmDirectPurchase_IsIdempotentOnTicketID(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	core, _, tickets, _ := newTestCore(now)
	ctx := context.Background()
	m, _ := core.CreateMonth(ctx, 3, 2026)

	t1, err := core.ConfirmDirectPurchase(ctx, "fixed-ticket-id", "u1", m.ID, "intent1")
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	tickets.tickets[0].TicketID = "fixed-ticket-id"

	t2, err := core.ConfirmDirectPurchase(ctx, "fixed-ticket-id", "u1", m.ID, "intent1")
	if err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if t2.ID != t1.ID {
		t.Fatal("expected idempotent retry to return the same ticket")
	}
	if len(tickets.tickets) != 1 {
		t.Fatalf("expected no duplicate ticket to be minted, got %d", len(tickets.tickets))
	}
}

// Draw excludes previous-month winners.
func TestDrawWinners_ExcludesPreviousMonthWinners(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	core, repo, tickets, notifier := newTestCore(now)
	ctx := context.Background()

	m, _ := core.CreateMonth(ctx, 3, 2026)
	repo.byID[m.ID].PreviousMonthWinners = []string{"bannedUser"}

	for i, user := range []string{"bannedUser", "u2", "u3", "u4"} {
		core.MintTicket(ctx, user, m.ID, i+1, SourceDirectPurchase, "intent", "")
	}

	drawn, err := core.DrawWinners(ctx, m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drawn.Winners) != 3 {
		t.Fatalf("expected 3 winners (bike/phone/cash), got %d", len(drawn.Winners))
	}
	for _, w := range drawn.Winners {
		if w.UserID == "bannedUser" {
			t.Fatal("expected previous-month winner to be excluded from the draw")
		}
	}
	seen := map[string]bool{}
	for _, w := range drawn.Winners {
		if seen[w.UserID] {
			t.Fatalf("expected distinct winners, got duplicate %s", w.UserID)
		}
		seen[w.UserID] = true
	}
	if drawn.Status != StatusClosed {
		t.Fatalf("expected month to be closed after drawing, got %s", drawn.Status)
	}
	_ = tickets
	if len(notifier.sent) != 3 {
		t.Fatalf("expected 3 fire-and-forget winner notifications, got %d", len(notifier.sent))
	}
}

func TestDrawWinners_NoTicketsClosesWithoutWinners(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	core, _, _, _ := newTestCore(now)
	ctx := context.Background()
	m, _ := core.CreateMonth(ctx, 3, 2026)

	drawn, err := core.DrawWinners(ctx, m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drawn.Winners) != 0 {
		t.Fatal("expected no winners when there are no tickets")
	}
	if drawn.Status != StatusClosed {
		t.Fatal("expected month to close even with no tickets")
	}
}

func TestDrawWinners_RejectsWhenAlreadyDrawn(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	core, _, _, _ := newTestCore(now)
	ctx := context.Background()
	m, _ := core.CreateMonth(ctx, 3, 2026)
	core.MintTicket(ctx, "u1", m.ID, 1, SourceDirectPurchase, "intent", "")

	if _, err := core.DrawWinners(ctx, m.ID); err != nil {
		t.Fatalf("first draw: %v", err)
	}
	if _, err := core.DrawWinners(ctx, m.ID); err == nil {
		t.Fatal("expected second draw on the same month to be rejected")
	}
}
