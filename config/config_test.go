package config_test

import (
	"os"
	"testing"

	"github.com/TambongStercy/SBC-MS-sub006/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("MONGO_URI", "mongodb://localhost:27017")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("ENV", "test")
	os.Setenv("MAX_TICKETS_PER_USER_PER_MONTH", "10")
	defer func() {
		os.Unsetenv("MONGO_URI")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("ENV")
		os.Unsetenv("MAX_TICKETS_PER_USER_PER_MONTH")
	}()

	cfg := config.Load()
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Fatalf("expected MONGO_URI to be loaded, got %s", cfg.MongoURI)
	}
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
	if cfg.MaxTicketsPerUserPerMonth != 10 {
		t.Fatalf("expected MAX_TICKETS_PER_USER_PER_MONTH=10, got %d", cfg.MaxTicketsPerUserPerMonth)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := config.Load()
	if cfg.TicketPrice != 200 {
		t.Fatalf("expected default ticket price 200, got %d", cfg.TicketPrice)
	}
	if cfg.MaxTicketsPerUserPerMonth != 25 {
		t.Fatalf("expected default max tickets 25, got %d", cfg.MaxTicketsPerUserPerMonth)
	}
	if cfg.VotePrice != 200 {
		t.Fatalf("expected default vote price 200, got %d", cfg.VotePrice)
	}
}
