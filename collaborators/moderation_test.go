package collaborators

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name           string
		score          float64
		blockThreshold float64
		warnThreshold  float64
		want           ModerationAction
	}{
		{"below warn", 0.2, 0.85, 0.5, ModerationAllow},
		{"at warn threshold", 0.5, 0.85, 0.5, ModerationWarn},
		{"between warn and block", 0.7, 0.85, 0.5, ModerationWarn},
		{"at block threshold", 0.85, 0.85, 0.5, ModerationBlock},
		{"above block", 0.99, 0.85, 0.5, ModerationBlock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.score, tc.blockThreshold, tc.warnThreshold)
			if got != tc.want {
				t.Fatalf("classify(%v) = %v, want %v", tc.score, got, tc.want)
			}
		})
	}
}

func TestNewModeration_UnknownVariantFailsOpen(t *testing.T) {
	m := NewModeration("nonsense", "", nil, 0, "", 0.85, 0.5, zerolog.Nop())
	res, err := m.CheckImage(context.Background(), "some/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != ModerationAllow {
		t.Fatalf("expected disabled variant to allow, got %v", res.Action)
	}
}
