package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// UserSnapshot is the subset of user-directory data the core embeds
// into responses (author snapshots on messages/statuses, recipient
// lookups for notifications).
type UserSnapshot struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatarUrl"`
	Role        string `json:"role"`
	Country     string `json:"country"`
	City        string `json:"city"`
	ReferrerID  string `json:"referrerId,omitempty"`
}

// Directory is the external user-directory collaborator: batch user
// lookups and referral-relationship checks.
type Directory interface {
	HealthChecker
	GetUsers(ctx context.Context, userIDs []string) (map[string]UserSnapshot, error)
	IsReferral(ctx context.Context, userA, userB string) (bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type directoryClient struct {
	baseURL string
	client  *http.Client
	auth    string
}

func NewDirectoryClient(baseURL string, pool *ConnectionPool, timeout time.Duration, serviceAuth string) Directory {
	return &directoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  pool.Client("directory", timeout),
		auth:    serviceAuth,
	}
}

func (d *directoryClient) Name() string { return "directory" }

func (d *directoryClient) HealthCheck(ctx context.Context) error {
	return doHealthGET(ctx, d.client, d.auth, d.baseURL+"/healthz")
}

func (d *directoryClient) GetUsers(ctx context.Context, userIDs []string) (map[string]UserSnapshot, error) {
	if len(userIDs) == 0 {
		return map[string]UserSnapshot{}, nil
	}
	body, _ := json.Marshal(map[string]any{"userIds": userIDs})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/internal/users/batch", newReader(body))
	if err != nil {
		return nil, err
	}
	setCommonHeaders(req, d.auth)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory batch lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory batch lookup: status %d", resp.StatusCode)
	}

	var out struct {
		Users map[string]UserSnapshot `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (d *directoryClient) IsReferral(ctx context.Context, userA, userB string) (bool, error) {
	url := fmt.Sprintf("%s/internal/users/%s/referrals/%s", d.baseURL, userA, userB)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	setCommonHeaders(req, d.auth)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("directory referral check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("directory referral check: status %d", resp.StatusCode)
	}

	var out struct {
		IsReferral bool `json:"isReferral"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.IsReferral, nil
}

func (d *directoryClient) HasRole(ctx context.Context, userID, role string) (bool, error) {
	users, err := d.GetUsers(ctx, []string{userID})
	if err != nil {
		return false, err
	}
	u, ok := users[userID]
	if !ok {
		return false, nil
	}
	return u.Role == role, nil
}
