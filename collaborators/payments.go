package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Intent is the payment-intent handle returned by Payments.CreateIntent;
// the caller persists SessionID against the pending ticket/vote/ledger
// row and waits for the matching webhook to land.
type Intent struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Deposit is the result of an internal (non-checkout) credit, used for
// challenge fund distribution.
type Deposit struct {
	TransactionID string `json:"transactionId"`
}

// Payments is the external payment-gateway collaborator: checkout
// intents plus internal account-to-account deposits.
type Payments interface {
	HealthChecker
	CreateIntent(ctx context.Context, amount int64, paymentType string, metadata map[string]any) (Intent, error)
	Deposit(ctx context.Context, accountID string, amount int64, reason string, metadata map[string]any) (Deposit, error)
}

type paymentsClient struct {
	baseURL string
	client  *http.Client
	auth    string
}

func NewPaymentsClient(baseURL string, pool *ConnectionPool, timeout time.Duration, serviceAuth string) Payments {
	return &paymentsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  pool.Client("payments", timeout),
		auth:    serviceAuth,
	}
}

func (p *paymentsClient) Name() string { return "payments" }

func (p *paymentsClient) HealthCheck(ctx context.Context) error {
	return doHealthGET(ctx, p.client, p.auth, p.baseURL+"/healthz")
}

func (p *paymentsClient) CreateIntent(ctx context.Context, amount int64, paymentType string, metadata map[string]any) (Intent, error) {
	payload := map[string]any{
		"amount":      amount,
		"paymentType": paymentType,
		"metadata":    metadata,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/internal/intents", newReader(body))
	if err != nil {
		return Intent{}, err
	}
	setCommonHeaders(req, p.auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("payments create intent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Intent{}, fmt.Errorf("payments create intent: status %d", resp.StatusCode)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

func (p *paymentsClient) Deposit(ctx context.Context, accountID string, amount int64, reason string, metadata map[string]any) (Deposit, error) {
	payload := map[string]any{
		"accountId": accountID,
		"amount":    amount,
		"reason":    reason,
		"metadata":  metadata,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/internal/deposits", newReader(body))
	if err != nil {
		return Deposit{}, err
	}
	setCommonHeaders(req, p.auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return Deposit{}, fmt.Errorf("payments deposit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Deposit{}, fmt.Errorf("payments deposit: status %d", resp.StatusCode)
	}

	var dep Deposit
	if err := json.NewDecoder(resp.Body).Decode(&dep); err != nil {
		return Deposit{}, err
	}
	return dep, nil
}
