package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ModerationAction is the three-way verdict StatusCore acts on when
// creating a status: allow proceeds silently, warn persists with
// contentWarned=true, block aborts the create entirely.
type ModerationAction string

const (
	ModerationAllow ModerationAction = "allow"
	ModerationWarn  ModerationAction = "warn"
	ModerationBlock ModerationAction = "block"
)

// ModerationResult carries the verdict plus the reason a block or warn
// was issued, surfaced to the caller as the user-visible error message.
type ModerationResult struct {
	Action ModerationAction `json:"action"`
	Reason string           `json:"reason"`
	Score  float64          `json:"score"`
}

// Moderation is the external content-moderation collaborator. The
// concrete variant (SaaS image/video scanner, local classifier, or a
// disabled no-op) is chosen once at startup from config and never
// branched on again at the call site.
type Moderation interface {
	HealthChecker
	CheckImage(ctx context.Context, objectPath string) (ModerationResult, error)
	CheckVideo(ctx context.Context, objectPath string) (ModerationResult, error)
}

// NewModeration selects the moderation adapter named by variant. Unknown
// variants fall back to disabled rather than failing startup, matching
// the fail-open policy applied to moderation errors generally.
func NewModeration(variant, baseURL string, pool *ConnectionPool, timeout time.Duration, serviceAuth string, blockThreshold, warnThreshold float64, logger zerolog.Logger) Moderation {
	switch variant {
	case "saas-image":
		return &saasModerationClient{
			kind:           "image",
			baseURL:        strings.TrimRight(baseURL, "/"),
			client:         pool.Client("moderation", timeout),
			auth:           serviceAuth,
			blockThreshold: blockThreshold,
			warnThreshold:  warnThreshold,
			logger:         logger.With().Str("component", "moderation").Str("variant", variant).Logger(),
		}
	case "saas-video":
		return &saasModerationClient{
			kind:           "video",
			baseURL:        strings.TrimRight(baseURL, "/"),
			client:         pool.Client("moderation", timeout),
			auth:           serviceAuth,
			blockThreshold: blockThreshold,
			warnThreshold:  warnThreshold,
			logger:         logger.With().Str("component", "moderation").Str("variant", variant).Logger(),
		}
	case "local-image":
		return &localModerationClient{logger: logger.With().Str("component", "moderation").Str("variant", variant).Logger()}
	default:
		return disabledModeration{}
	}
}

type saasModerationClient struct {
	kind           string // "image" or "video" — both hit the same scanner, different endpoint
	baseURL        string
	client         *http.Client
	auth           string
	blockThreshold float64
	warnThreshold  float64
	logger         zerolog.Logger
}

func (m *saasModerationClient) Name() string { return "moderation" }

func (m *saasModerationClient) HealthCheck(ctx context.Context) error {
	return doHealthGET(ctx, m.client, m.auth, m.baseURL+"/healthz")
}

func (m *saasModerationClient) CheckImage(ctx context.Context, objectPath string) (ModerationResult, error) {
	return m.check(ctx, "image", objectPath)
}

func (m *saasModerationClient) CheckVideo(ctx context.Context, objectPath string) (ModerationResult, error) {
	return m.check(ctx, "video", objectPath)
}

func (m *saasModerationClient) check(ctx context.Context, kind, objectPath string) (ModerationResult, error) {
	body, _ := json.Marshal(map[string]string{"objectPath": objectPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/scan/%s", m.baseURL, kind), newReader(body))
	if err != nil {
		return ModerationResult{}, err
	}
	setCommonHeaders(req, m.auth)

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn().Err(err).Msg("moderation call failed, failing open")
		return ModerationResult{Action: ModerationAllow}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		m.logger.Warn().Int("status", resp.StatusCode).Msg("moderation call failed, failing open")
		return ModerationResult{Action: ModerationAllow}, fmt.Errorf("moderation scan: status %d", resp.StatusCode)
	}

	var out struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ModerationResult{Action: ModerationAllow}, err
	}

	return ModerationResult{
		Action: classify(out.Score, m.blockThreshold, m.warnThreshold),
		Reason: out.Reason,
		Score:  out.Score,
	}, nil
}

func classify(score, blockThreshold, warnThreshold float64) ModerationAction {
	switch {
	case score >= blockThreshold:
		return ModerationBlock
	case score >= warnThreshold:
		return ModerationWarn
	default:
		return ModerationAllow
	}
}

// localModerationClient stands in for an on-box classifier. Since no
// local model is wired in this deployment it always allows, logging so
// the gap is visible in operational logs rather than silent.
type localModerationClient struct {
	logger zerolog.Logger
}

func (m *localModerationClient) Name() string                     { return "moderation" }
func (m *localModerationClient) HealthCheck(ctx context.Context) error { return nil }
func (m *localModerationClient) CheckImage(ctx context.Context, objectPath string) (ModerationResult, error) {
	m.logger.Debug().Str("objectPath", objectPath).Msg("local moderation not configured, allowing")
	return ModerationResult{Action: ModerationAllow}, nil
}
func (m *localModerationClient) CheckVideo(ctx context.Context, objectPath string) (ModerationResult, error) {
	return m.CheckImage(ctx, objectPath)
}

type disabledModeration struct{}

func (disabledModeration) Name() string                                                        { return "moderation" }
func (disabledModeration) HealthCheck(ctx context.Context) error                               { return nil }
func (disabledModeration) CheckImage(ctx context.Context, objectPath string) (ModerationResult, error) {
	return ModerationResult{Action: ModerationAllow}, nil
}
func (disabledModeration) CheckVideo(ctx context.Context, objectPath string) (ModerationResult, error) {
	return ModerationResult{Action: ModerationAllow}, nil
}
