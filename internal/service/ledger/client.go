package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/commit"
)

// Client talks to the blockchain gateway that anchors verdict digests.
// Submissions are idempotent on the digest: resubmitting a known digest
// returns the original transaction id.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds the gateway client.
func NewClient(cfg config.LedgerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Digest        string `json:"digest"`
	Score         int    `json:"score"`
	IssuesSummary string `json:"issuesSummary"`
}

type submitResponse struct {
	TxID string `json:"txId"`
}

type verifyResponse struct {
	Status string `json:"status"`
}

// Submit anchors one verdict digest and returns the transaction id.
// Client-side rejections (4xx) are permanent; everything else is
// transient and retriable.
func (c *Client) Submit(ctx context.Context, digest string, score int, issuesSummary string) (string, error) {
	body, err := json.Marshal(submitRequest{Digest: digest, Score: score, IssuesSummary: issuesSummary})
	if err != nil {
		return "", fmt.Errorf("%w: marshal submit request: %v", commit.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build submit request: %v", commit.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger submit: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "ledger submit"); err != nil {
		return "", err
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ledger submit: decode response: %w", err)
	}
	if parsed.TxID == "" {
		return "", fmt.Errorf("ledger submit: empty transaction id")
	}
	return parsed.TxID, nil
}

// Verify reports the anchoring status of a submitted transaction.
func (c *Client) Verify(ctx context.Context, txID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+txID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build verify request: %v", commit.ErrPermanent, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger verify: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "ledger verify"); err != nil {
		return "", err
	}

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ledger verify: decode response: %w", err)
	}
	return parsed.Status, nil
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s rejected with status %d: %s", commit.ErrPermanent, op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
