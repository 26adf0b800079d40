package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
)

// WriteError maps a domain error onto the shared response envelope
// and the HTTP status apperrors.Error.Status() derives from its Kind.
// Unrecognized errors are treated as internal failures so a bug never
// leaks raw error text to a caller.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "internal error",
		})
		return
	}
	writeJSON(w, appErr.Status(), map[string]any{
		"success": false,
		"message": appErr.Message,
		"code":    appErr.Code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
