package handler

import (
	"net/http"

	"github.com/TambongStercy/SBC-MS-sub006/challenge"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/TambongStercy/SBC-MS-sub006/vote"
	"github.com/go-chi/chi/v5"
)

type ChallengeHandler struct {
	challenges *challenge.Core
	votes      *vote.Core
}

func NewChallengeHandler(challenges *challenge.Core, votes *vote.Core) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges, votes: votes}
}

func (h *ChallengeHandler) Current(w http.ResponseWriter, r *http.Request) {
	ch, err := h.challenges.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ch)
}

func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.challenges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ch)
}

func (h *ChallengeHandler) Entrepreneurs(w http.ResponseWriter, r *http.Request) {
	entrepreneurs, total, err := h.challenges.ListEntrepreneurs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, entrepreneurs, 1, max(total, 1), total)
}

func (h *ChallengeHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.challenges.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, board)
}

func (h *ChallengeHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		EntrepreneurID string `json:"entrepreneurId"`
		Amount         int64  `json:"amount"`
	}
	if err := decodeJSON(r, &body); err != nil || body.EntrepreneurID == "" || body.Amount <= 0 {
		writeError(w, apperrors.Validation("entrepreneurId and amount are required"))
		return
	}
	result, err := h.votes.InitiateVote(r.Context(), userID, chi.URLParam(r, "id"), body.EntrepreneurID, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, result)
}

func (h *ChallengeHandler) Support(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		EntrepreneurID string `json:"entrepreneurId"`
		Amount         int64  `json:"amount"`
	}
	if err := decodeJSON(r, &body); err != nil || body.EntrepreneurID == "" || body.Amount <= 0 {
		writeError(w, apperrors.Validation("entrepreneurId and amount are required"))
		return
	}
	result, err := h.votes.InitiateSupport(r.Context(), userID, chi.URLParam(r, "id"), body.EntrepreneurID, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, result)
}

func (h *ChallengeHandler) TicketAllowance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	remaining, limit, votePrice, err := h.votes.TicketAllowance(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]int64{
		"remaining": remaining,
		"limit":     limit,
		"votePrice": votePrice,
	})
}

func (h *ChallengeHandler) WebhookPaymentConfirmation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string         `json:"sessionId"`
		Status    string         `json:"status"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("invalid webhook payload"))
		return
	}
	if body.Status != "SUCCEEDED" {
		writeOKMessage(w, http.StatusOK, "payment status ignored", nil)
		return
	}
	if err := h.votes.ConfirmPayment(r.Context(), body.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "payment confirmed", nil)
}

// --- Admin ---

func (h *ChallengeHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, limit := pageLimit(r, 20)
	items, total, err := h.challenges.ListChallenges(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, items, page, limit, total)
}

func (h *ChallengeHandler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Month                int                   `json:"month"`
		Year                 int                   `json:"year"`
		CampaignName         string                `json:"campaignName"`
		StartDate            string                `json:"startDate"`
		EndDate              string                `json:"endDate"`
		Description          challenge.Description `json:"description"`
		LotteryPoolAccountID string                `json:"lotteryPoolAccountId"`
		CommissionAccountID  string                `json:"commissionAccountId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	startDate, err1 := parseDate(body.StartDate)
	endDate, err2 := parseDate(body.EndDate)
	if err1 != nil || err2 != nil {
		writeError(w, apperrors.Validation("startDate and endDate must be valid dates"))
		return
	}
	ch, err := h.challenges.CreateChallenge(r.Context(), challenge.CreateData{
		Month:                body.Month,
		Year:                 body.Year,
		CampaignName:         body.CampaignName,
		StartDate:            startDate,
		EndDate:              endDate,
		Description:          body.Description,
		LotteryPoolAccountID: body.LotteryPoolAccountID,
		CommissionAccountID:  body.CommissionAccountID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, ch)
}

func (h *ChallengeHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	h.Get(w, r)
}

func (h *ChallengeHandler) AdminPatchStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Status == "" {
		writeError(w, apperrors.Validation("status is required"))
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	switch challenge.Status(body.Status) {
	case challenge.StatusActive:
		err = h.challenges.Activate(r.Context(), id)
	case challenge.StatusCancelled:
		err = h.challenges.Cancel(r.Context(), id)
	default:
		writeError(w, apperrors.Validation("unsupported status transition"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "challenge status updated", nil)
}

func (h *ChallengeHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "challenge cancelled", nil)
}

func (h *ChallengeHandler) AdminCloseVoting(w http.ResponseWriter, r *http.Request) {
	ch, err := h.challenges.CloseVoting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ch)
}

func (h *ChallengeHandler) AdminDistributeFunds(w http.ResponseWriter, r *http.Request) {
	ch, err := h.challenges.DistributeFunds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ch)
}

func (h *ChallengeHandler) AdminFundSummary(w http.ResponseWriter, r *http.Request) {
	ch, err := h.challenges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"totalCollected":   ch.TotalCollected,
		"fundsDistributed": ch.FundsDistributed,
		"distribution":     ch.Distribution,
	})
}

func (h *ChallengeHandler) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	data, err := h.challenges.Analytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, data)
}

func (h *ChallengeHandler) AdminVotes(w http.ResponseWriter, r *http.Request) {
	board, err := h.challenges.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, board)
}

// --- Entrepreneurs (admin) ---

func (h *ChallengeHandler) AdminAddEntrepreneur(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID        string `json:"userId"`
		Name          string `json:"name"`
		ProjectTitle  string `json:"projectTitle"`
		Description   string `json:"description"`
		VideoURL      string `json:"videoUrl"`
		VideoDuration int    `json:"videoDuration"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	e, err := h.challenges.AddEntrepreneur(r.Context(), challenge.EntrepreneurData{
		ChallengeID:   chi.URLParam(r, "id"),
		UserID:        body.UserID,
		Name:          body.Name,
		ProjectTitle:  body.ProjectTitle,
		Description:   body.Description,
		VideoURL:      body.VideoURL,
		VideoDuration: body.VideoDuration,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, e)
}

func (h *ChallengeHandler) AdminGetEntrepreneur(w http.ResponseWriter, r *http.Request) {
	e, err := h.challenges.GetEntrepreneur(r.Context(), chi.URLParam(r, "entrepreneurId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, e)
}

func (h *ChallengeHandler) AdminApproveEntrepreneur(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.ApproveEntrepreneur(r.Context(), chi.URLParam(r, "entrepreneurId")); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "entrepreneur approved", nil)
}

func (h *ChallengeHandler) AdminDeleteEntrepreneur(w http.ResponseWriter, r *http.Request) {
	if err := h.challenges.DeleteEntrepreneur(r.Context(), chi.URLParam(r, "entrepreneurId")); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "entrepreneur deleted", nil)
}
