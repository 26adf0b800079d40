package handler

import (
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/TambongStercy/SBC-MS-sub006/status"
	"github.com/go-chi/chi/v5"
)

const maxStatusMediaBytes = 50 << 20

type StatusHandler struct {
	statuses *status.Core
}

func NewStatusHandler(statuses *status.Core) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

func (h *StatusHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()
	filters := status.Filters{
		Category: q.Get("category"),
		Country:  q.Get("country"),
		City:     q.Get("city"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
	}
	page, limit := pageLimit(r, 20)
	items, total, err := h.statuses.Feed(r.Context(), userID, filters, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, items, page, limit, total)
}

func (h *StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	isAdmin := middleware.GetRole(r.Context()) == "admin"

	if err := r.ParseMultipartForm(maxStatusMediaBytes); err != nil {
		writeError(w, apperrors.Validation("invalid multipart upload"))
		return
	}
	videoDuration, _ := strconv.Atoi(r.FormValue("videoDuration"))
	data := status.CreateData{
		Category:      status.Category(r.FormValue("category")),
		Content:       r.FormValue("content"),
		MediaType:     status.MediaType(r.FormValue("mediaType")),
		VideoDuration: videoDuration,
		Country:       r.FormValue("country"),
		City:          r.FormValue("city"),
		Region:        r.FormValue("region"),
	}
	if file, header, err := r.FormFile("media"); err == nil {
		defer file.Close()
		body, err := io.ReadAll(file)
		if err != nil {
			writeError(w, apperrors.Validation("failed to read media upload"))
			return
		}
		data.MediaData = body
		data.MediaContentType = header.Header.Get("Content-Type")
	}

	st, err := h.statuses.Create(r.Context(), userID, data, isAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, st)
}

func (h *StatusHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, status.Categories())
}

func (h *StatusHandler) MyStatuses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.byAuthor(w, r, userID)
}

func (h *StatusHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	h.byAuthor(w, r, chi.URLParam(r, "userId"))
}

func (h *StatusHandler) byAuthor(w http.ResponseWriter, r *http.Request, authorID string) {
	viewerID := middleware.GetUserID(r.Context())
	page, limit := pageLimit(r, 20)
	items, total, err := h.statuses.Feed(r.Context(), viewerID, status.Filters{AuthorID: authorID}, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, items, page, limit, total)
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	st, err := h.statuses.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if st == nil {
		writeError(w, apperrors.NotFound("status not found"))
		return
	}
	writeOK(w, http.StatusOK, st)
}

func (h *StatusHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.statuses.DeleteStatus(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "status deleted", nil)
}

func (h *StatusHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.statuses.Like(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "status liked", nil)
}

func (h *StatusHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.statuses.Unlike(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "status unliked", nil)
}

func (h *StatusHandler) Repost(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.statuses.Repost(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "status reposted", nil)
}

func (h *StatusHandler) View(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.statuses.View(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeOKMessage(w, http.StatusOK, "view recorded", nil)
}

func (h *StatusHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conv, err := h.statuses.ReplyToStatus(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, conv)
}

func (h *StatusHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	typ := status.InteractionLike
	if r.URL.Query().Get("type") == "reposts" {
		typ = status.InteractionRepost
	}
	page, limit := pageLimit(r, 50)
	userIDs, total, err := h.statuses.Interactions(r.Context(), chi.URLParam(r, "id"), typ, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, userIDs, page, limit, total)
}
