package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage is the external object-store collaborator: private-bucket
// uploads under an opaque generated path plus signed-URL issuance for
// both single and batch reads of media attachments.
type Storage interface {
	HealthChecker
	Upload(ctx context.Context, bucket string, data io.Reader, contentType string) (objectPath string, err error)
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	SignedURLBatch(ctx context.Context, objectPaths []string, ttl time.Duration) (map[string]string, error)
}

type storageClient struct {
	baseURL string
	client  *http.Client
	auth    string
}

func NewStorageClient(baseURL string, pool *ConnectionPool, timeout time.Duration, serviceAuth string) Storage {
	return &storageClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  pool.Client("storage", timeout),
		auth:    serviceAuth,
	}
}

func (s *storageClient) Name() string { return "storage" }

func (s *storageClient) HealthCheck(ctx context.Context) error {
	return doHealthGET(ctx, s.client, s.auth, s.baseURL+"/healthz")
}

// Upload generates an opaque object key and streams data to it. The
// caller never sees or controls the final path beyond the bucket
// prefix, preventing filename collisions and path-based enumeration.
func (s *storageClient) Upload(ctx context.Context, bucket string, data io.Reader, contentType string) (string, error) {
	objectPath := fmt.Sprintf("%s/%s", bucket, uuid.NewString())

	url := fmt.Sprintf("%s/objects/%s", s.baseURL, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, data)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if s.auth != "" {
		req.Header.Set("Authorization", "Bearer "+s.auth)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage upload: status %d", resp.StatusCode)
	}
	return objectPath, nil
}

func (s *storageClient) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	urls, err := s.SignedURLBatch(ctx, []string{objectPath}, ttl)
	if err != nil {
		return "", err
	}
	return urls[objectPath], nil
}

func (s *storageClient) SignedURLBatch(ctx context.Context, objectPaths []string, ttl time.Duration) (map[string]string, error) {
	if len(objectPaths) == 0 {
		return map[string]string{}, nil
	}
	url := fmt.Sprintf("%s/objects/sign?ttl=%d", s.baseURL, int(ttl.Seconds()))
	body, _ := json.Marshal(map[string]any{"objectPaths": objectPaths})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newReader(body))
	if err != nil {
		return nil, err
	}
	setCommonHeaders(req, s.auth)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage sign batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storage sign batch: status %d", resp.StatusCode)
	}

	var out struct {
		URLs map[string]string `json:"urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}
