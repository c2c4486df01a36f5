package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/moltbook-governance/recruiter/internal/config"
	"github.com/moltbook-governance/recruiter/internal/models"
)

const searchLimit = 20

// Client talks to the Moltbook platform API. It implements the candidate
// source and messenger collaborators of the recruitment pipeline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Moltbook API client
func NewClient(cfg config.MoltbookConfig) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// SearchAgents searches for agent accounts matching the query
func (c *Client) SearchAgents(ctx context.Context, query string) ([]models.Candidate, error) {
	path := "/search/agents?" + url.Values{
		"q":     {query},
		"limit": {fmt.Sprintf("%d", searchLimit)},
	}.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search agents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Agents []models.Candidate `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Agents, nil
}

// FetchProfile retrieves a candidate's full profile. Returns (nil, nil) when
// the profile does not exist.
func (c *Client) FetchProfile(ctx context.Context, username string) (*models.Candidate, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/agents/"+url.PathEscape(username)+"/profile", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status: %d", resp.StatusCode)
	}

	var candidate models.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidate); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &candidate, nil
}

// SendDirectMessage sends a direct message to a platform user
func (c *Client) SendDirectMessage(ctx context.Context, username, text string) error {
	payload, err := json.Marshal(map[string]string{
		"recipient": username,
		"message":   text,
		"type":      "governance_invitation",
	})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/messages/direct", payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("message send failed with status: %d", resp.StatusCode)
	}
	return nil
}
