package collaborators

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

func newReader(body []byte) io.Reader { return bytes.NewReader(body) }

func setCommonHeaders(req *http.Request, serviceAuth string) {
	req.Header.Set("Content-Type", "application/json")
	if serviceAuth != "" {
		req.Header.Set("Authorization", "Bearer "+serviceAuth)
	}
}

func doHealthGET(ctx context.Context, client *http.Client, auth, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	setCommonHeaders(req, auth)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}
