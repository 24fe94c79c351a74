package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ibisync/pkg/logger"

	"go.uber.org/zap"
)

// CeisaGateway talks to the customs clearance gateway over its JSON API.
type CeisaGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewCeisaGateway(baseURL, apiKey string, timeout time.Duration) *CeisaGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CeisaGateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *CeisaGateway) Deliver(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	url := g.baseURL + "/api/v1/documents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ceisa-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ceisa submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Warn("ceisa gateway refused submission",
			zap.Int("status", resp.StatusCode),
			zap.String("reference", d.Reference),
			zap.ByteString("body", msg))
		return fmt.Errorf("ceisa submit: gateway returned %d", resp.StatusCode)
	}
	return nil
}

func (g *CeisaGateway) PollStatus(ctx context.Context, reference string) (PollResult, error) {
	url := fmt.Sprintf("%s/api/v1/documents/%s/status", g.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PollResult{}, err
	}
	req.Header.Set("X-Ceisa-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("ceisa poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PollResult{}, fmt.Errorf("ceisa poll: gateway returned %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PollResult{}, fmt.Errorf("ceisa poll: decode response: %w", err)
	}

	switch ExternalStatus(payload.Status) {
	case StatusProcessing, StatusApproved, StatusRejected:
		return PollResult{Status: ExternalStatus(payload.Status), Reason: payload.Reason}, nil
	default:
		return PollResult{}, fmt.Errorf("ceisa poll: unknown status %q", payload.Status)
	}
}
