package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/commit"
)

// Client talks to the semantic-memory service holding past tribunal
// summaries.
type Client struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

// NewClient builds the memory client.
func NewClient(cfg config.MemoryConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Record is one stored tribunal summary returned by Search.
type Record struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score,omitempty"`
}

type storeRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

type storeResponse struct {
	ID string `json:"id"`
}

type searchResponse struct {
	Results []Record `json:"results"`
}

// Store saves one session summary and returns its record id.
func (c *Client) Store(ctx context.Context, summary string) (string, error) {
	body, err := json.Marshal(storeRequest{Text: summary, UserID: c.userID})
	if err != nil {
		return "", fmt.Errorf("%w: marshal store request: %v", commit.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/memories", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build store request: %v", commit.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("memory store: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "memory store"); err != nil {
		return "", err
	}

	var parsed storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("memory store: decode response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("memory store: empty record id")
	}
	return parsed.ID, nil
}

// Search looks up past tribunal summaries matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("userId", c.userID)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/memories/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("memory search: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "memory search"); err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("memory search: decode response: %w", err)
	}
	return parsed.Results, nil
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
