package handler

import (
	"net/http"

	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/message"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/go-chi/chi/v5"
)

type ConversationHandler struct {
	convs    *conversation.Core
	messages *message.Core
}

func NewConversationHandler(convs *conversation.Core, messages *message.Core) *ConversationHandler {
	return &ConversationHandler{convs: convs, messages: messages}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *ConversationHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request, archived bool) {
	userID := middleware.GetUserID(r.Context())
	page, limit := pageLimit(r, 20)
	items, total, err := h.convs.ListForUser(r.Context(), userID, archived, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, items, page, limit, total)
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		ParticipantID string `json:"participantId"`
	}
	if err := decodeJSON(r, &body); err != nil || body.ParticipantID == "" {
		writeError(w, apperrors.Validation("participantId is required"))
		return
	}
	conv, err := h.convs.GetOrCreateDirect(r.Context(), userID, body.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	page, limit := pageLimit(r, 50)
	groups, total, err := h.messages.ListGrouped(r.Context(), convID, userID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, groups, page, limit, total)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.convs.Archive(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "conversation deleted", nil)
}

func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.convs.Archive(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "conversation archived", nil)
}

func (h *ConversationHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.convs.Restore(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "conversation restored", nil)
}

func (h *ConversationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.convs.Accept(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "conversation accepted", nil)
}

func (h *ConversationHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.convs.Report(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "conversation reported", nil)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	n, err := h.convs.MarkRead(r.Context(), convID, userID, h.messages.MarkAllRead)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]int{"messagesMarkedRead": n})
}

func (h *ConversationHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		ConversationIDs []string `json:"conversationIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	for _, id := range body.ConversationIDs {
		if err := h.convs.Archive(r.Context(), id, userID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeOKMessage(w, http.StatusOK, "conversations deleted", nil)
}
