package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitrustlab/pitrust/internal/circuitbreaker"
)

// Compile-time check that PlatformClient implements Authority.
var _ Authority = (*PlatformClient)(nil)

// breakerKey is the single circuit key: all platform endpoints share one
// upstream, so they trip together.
const breakerKey = "pi_platform"

// PlatformClient talks to the Pi platform payment API. Every call carries
// a hard timeout and no automatic retry: approve and complete are
// idempotent on the platform side, so the caller decides whether to retry.
// A circuit breaker sheds calls while the platform is down.
type PlatformClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewPlatformClient creates a platform client. timeout bounds each call.
func NewPlatformClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *PlatformClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PlatformClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// platformError is the platform's JSON failure payload.
type platformError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ApprovePayment approves a user-initiated payment on the platform.
func (p *PlatformClient) ApprovePayment(ctx context.Context, paymentID string) error {
	return p.post(ctx, fmt.Sprintf("%s/payments/%s/approve", p.baseURL, paymentID), nil, nil)
}

// CompletePayment completes a payment with its on-chain transaction id.
func (p *PlatformClient) CompletePayment(ctx context.Context, paymentID, txid string) error {
	body := map[string]string{"txid": txid}
	return p.post(ctx, fmt.Sprintf("%s/payments/%s/complete", p.baseURL, paymentID), body, nil)
}

// CreatePayout opens an app-to-user payment and returns its platform id.
func (p *PlatformClient) CreatePayout(ctx context.Context, order PayoutOrder) (string, error) {
	var resp struct {
		PaymentID string `json:"paymentId"`
	}
	if err := p.post(ctx, p.baseURL+"/payouts", order, &resp); err != nil {
		return "", err
	}
	if resp.PaymentID == "" {
		return "", fmt.Errorf("platform returned no payment id")
	}
	return resp.PaymentID, nil
}

func (p *PlatformClient) post(ctx context.Context, url string, body, out any) error {
	if !p.breaker.Allow(breakerKey) {
		return fmt.Errorf("platform circuit open")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure(breakerKey)
		return fmt.Errorf("platform call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 4xx means the platform answered; only 5xx counts against the circuit.
	if resp.StatusCode >= 500 {
		p.breaker.RecordFailure(breakerKey)
	} else {
		p.breaker.RecordSuccess(breakerKey)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	var perr platformError
	if err := json.NewDecoder(resp.Body).Decode(&perr); err == nil && perr.Error != "" {
		p.logger.Warn("platform rejected call", "url", url, "status", resp.StatusCode, "error", perr.Error)
		return fmt.Errorf("platform error %d: %s: %s", resp.StatusCode, perr.Error, perr.Message)
	}
	return fmt.Errorf("platform error %d", resp.StatusCode)
}
