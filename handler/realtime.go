package handler

import (
	"net/http"

	"github.com/TambongStercy/SBC-MS-sub006/realtime"
	"github.com/rs/zerolog"
)

type RealtimeHandler struct {
	bus        *realtime.Bus
	dispatcher *realtime.Dispatcher
	logger     zerolog.Logger
}

func NewRealtimeHandler(bus *realtime.Bus, dispatcher *realtime.Dispatcher, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{bus: bus, dispatcher: dispatcher, logger: logger}
}

// Upgrade authenticates the websocket handshake token from the
// query string and hands the connection off to the realtime bus.
func (h *RealtimeHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerTokenFromHeader(r)
	}
	if err := h.bus.Accept(w, r, token, h.dispatcher.Handle); err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
	}
}

func bearerTokenFromHeader(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
