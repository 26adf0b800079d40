package logger

import (
	"os"

	"github.com/TambongStercy/SBC-MS-sub006/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Console output in
// development, structured JSON in production.
func New(cfg *config.Config) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsDevelopment() {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return zerolog.New(out).With().Timestamp().Str("service", "sbc-core").Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "sbc-core").Logger()
}
