package handler

import (
	"net/http"

	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/message"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/go-chi/chi/v5"
)

const maxDocumentUploadBytes = 25 << 20

type MessageHandler struct {
	messages *message.Core
}

func NewMessageHandler(messages *message.Core) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	isAdmin := middleware.GetRole(r.Context()) == "admin"
	var body struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
		Type           string `json:"type"`
		ReplyToID      string `json:"replyToId"`
	}
	if err := decodeJSON(r, &body); err != nil || body.ConversationID == "" || body.Content == "" {
		writeError(w, apperrors.Validation("conversationId and content are required"))
		return
	}
	payload := message.SendPayload{
		Content:   body.Content,
		Type:      message.Type(body.Type),
		ReplyToID: body.ReplyToID,
	}
	if payload.Type == "" {
		payload.Type = message.TypeText
	}
	msg, err := h.messages.Send(r.Context(), body.ConversationID, userID, payload, isAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, msg)
}

func (h *MessageHandler) SendDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	isAdmin := middleware.GetRole(r.Context()) == "admin"

	if err := r.ParseMultipartForm(maxDocumentUploadBytes); err != nil {
		writeError(w, apperrors.Validation("invalid multipart upload"))
		return
	}
	conversationID := r.FormValue("conversationId")
	if conversationID == "" {
		writeError(w, apperrors.Validation("conversationId is required"))
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, apperrors.Validation("document file is required"))
		return
	}
	defer file.Close()

	payload := message.DocumentPayload{
		SendPayload: message.SendPayload{
			Content:   r.FormValue("content"),
			ReplyToID: r.FormValue("replyToId"),
		},
		Data:        file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	msg, err := h.messages.SendDocument(r.Context(), conversationID, userID, payload, isAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.messages.DeleteForUser(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "message deleted", nil)
}

func (h *MessageHandler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.messages.DocumentURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"url": url})
}

func (h *MessageHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, apperrors.Validation("invalid request body"))
		return
	}
	for _, id := range body.MessageIDs {
		if err := h.messages.DeleteForUser(r.Context(), id, userID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeOKMessage(w, http.StatusOK, "messages deleted", nil)
}

func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	isAdmin := middleware.GetRole(r.Context()) == "admin"
	var body struct {
		MessageIDs      []string `json:"messageIds"`
		ConversationIDs []string `json:"conversationIds"`
	}
	if err := decodeJSON(r, &body); err != nil || len(body.MessageIDs) == 0 || len(body.ConversationIDs) == 0 {
		writeError(w, apperrors.Validation("messageIds and conversationIds are required"))
		return
	}
	forwarded, err := h.messages.Forward(r.Context(), body.MessageIDs, body.ConversationIDs, userID, isAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, forwarded)
}
