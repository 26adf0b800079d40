// Package handler implements the HTTP and websocket-upgrade surface
// described in the external interface contract: conversations,
// messages, statuses, tombola tickets, impact-challenge votes, and
// their admin and webhook counterparts.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/middleware"
)

type pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalCount  int `json:"totalCount"`
	Limit       int `json:"limit"`
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeOKMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, map[string]any{"success": true, "message": message, "data": data})
}

func writeList(w http.ResponseWriter, data any, page, limit, totalCount int) {
	totalPages := totalCount / limit
	if totalCount%limit != 0 {
		totalPages++
	}
	if totalPages == 0 {
		totalPages = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
		"pagination": pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalCount:  totalCount,
			Limit:       limit,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) { middleware.WriteError(w, err) }

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// pageLimit parses ?page&limit query params, applying the envelope's
// per-resource defaults (20 for conversations/statuses, 50 for
// messages/interactions).
func pageLimit(r *http.Request, defaultLimit int) (int, int) {
	page := 1
	limit := defaultLimit
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	return page, limit
}
