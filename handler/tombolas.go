package handler

import (
	"net/http"

	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/TambongStercy/SBC-MS-sub006/tombola"
	"github.com/go-chi/chi/v5"
)

type TombolaHandler struct {
	tombolas *tombola.Core
}

func NewTombolaHandler(tombolas *tombola.Core) *TombolaHandler {
	return &TombolaHandler{tombolas: tombolas}
}

func (h *TombolaHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pageLimit(r, 20)
	items, total, err := h.tombolas.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, items, page, limit, total)
}

func (h *TombolaHandler) Current(w http.ResponseWriter, r *http.Request) {
	m, err := h.tombolas.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *TombolaHandler) Winners(w http.ResponseWriter, r *http.Request) {
	m, err := h.tombolas.Get(r.Context(), chi.URLParam(r, "monthId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, m.Winners)
}

func (h *TombolaHandler) BuyTicket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	current, err := h.tombolas.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.tombolas.InitiateDirectPurchase(r.Context(), userID, current.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, result)
}

func (h *TombolaHandler) MyTickets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	page, limit := pageLimit(r, 50)
	tickets, total, err := h.tombolas.TicketsForUser(r.Context(), userID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, tickets, page, limit, total)
}

func (h *TombolaHandler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Month int `json:"month"`
		Year  int `json:"year"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("month and year are required"))
		return
	}
	m, err := h.tombolas.CreateMonth(r.Context(), body.Month, body.Year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, m)
}

func (h *TombolaHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.tombolas.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *TombolaHandler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Status == "" {
		writeError(w, apperrors.Validation("status is required"))
		return
	}
	if err := h.tombolas.SetStatus(r.Context(), chi.URLParam(r, "id"), tombola.Status(body.Status)); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "tombola status updated", nil)
}

func (h *TombolaHandler) AdminDraw(w http.ResponseWriter, r *http.Request) {
	m, err := h.tombolas.DrawWinners(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *TombolaHandler) AdminTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tombolas.TicketsForMonth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, limit := pageLimit(r, 50)
	writeList(w, paginateSlice(tickets, page, limit), page, limit, len(tickets))
}

func (h *TombolaHandler) AdminTicketNumbers(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tombolas.TicketsForMonth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	numbers := make([]int, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, t.TicketNumber)
	}
	writeOK(w, http.StatusOK, numbers)
}

func paginateSlice[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (h *TombolaHandler) WebhookPaymentConfirmation(w http.ResponseWriter, r *http.Request) {
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
	ticketID, _ := body.Metadata["ticketId"].(string)
	userID, _ := body.Metadata["userId"].(string)
	monthID, _ := body.Metadata["tombolaMonthId"].(string)
	if ticketID == "" || userID == "" || monthID == "" {
		writeError(w, apperrors.Validation("payment metadata missing tombola ticket fields"))
		return
	}
	ticket, err := h.tombolas.ConfirmDirectPurchase(r.Context(), ticketID, userID, monthID, body.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, ticket)
}
