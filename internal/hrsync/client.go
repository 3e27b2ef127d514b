package hrsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const requestTimeout = 30 * time.Second

// Client reads user records from the HR REST endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
	now      func() time.Time
}

func NewClient(endpoint, token string, log *zap.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("HASURA_REST_API_ENDPOINT is required")
	}
	if token == "" {
		return nil, errors.New("HASURA_JWT_TOKEN is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = requestTimeout
	return &Client{endpoint: endpoint, http: httpClient, log: log, now: time.Now}, nil
}

// FetchUsers returns every user, or only those updated after since.
func (c *Client) FetchUsers(ctx context.Context, since *time.Time) ([]RemoteUser, error) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse hr endpoint: %w", err)
	}
	if since != nil {
		query := target.Query()
		query.Set("updated_after", since.UTC().Format(time.RFC3339))
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hr users: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hr api returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	users, err := decodeUsers(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("hr users fetched", zap.Int("count", len(users)), zap.Bool("delta", since != nil))
	return users, nil
}

type Health struct {
	ResponseTime time.Duration
	UserCount    int
}

// Health performs one full fetch and reports its latency.
func (c *Client) Health(ctx context.Context) (Health, error) {
	started := c.now()
	users, err := c.FetchUsers(ctx, nil)
	if err != nil {
		return Health{}, err
	}
	return Health{ResponseTime: c.now().Sub(started), UserCount: len(users)}, nil
}

// decodeUsers accepts the users under prod_external_apps_user_data, under
// user_data, or as a bare array.
func decodeUsers(body []byte) ([]RemoteUser, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var users []RemoteUser
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return nil, fmt.Errorf("decode hr users: %w", err)
		}
		return users, nil
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
		Prod  []RemoteUser    `json:"prod_external_apps_user_data"`
		Users []RemoteUser    `json:"user_data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode hr users: %w", err)
	}
	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return nil, fmt.Errorf("hr api error: %s", envelope.Error)
	}
	switch {
	case envelope.Prod != nil:
		return envelope.Prod, nil
	case envelope.Users != nil:
		return envelope.Users, nil
	default:
		return []RemoteUser{}, nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
