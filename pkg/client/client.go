package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
)

// Client is the API client for the export history server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetOrgRuns retrieves the most recent export runs of an organization.
// A limit of zero uses the server default.
func (c *Client) GetOrgRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/runs", url.PathEscape(org))
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.ExportRun `json:"data"`
	}
	if err := c.get(ctx, path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves a single export run
func (c *Client) GetRun(ctx context.Context, id string) (*domain.ExportRun, error) {
	path := fmt.Sprintf("/api/v1/runs/%s", url.PathEscape(id))

	var response struct {
		Data *domain.ExportRun `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRunRepos retrieves the per-repository results of an export run
func (c *Client) GetRunRepos(ctx context.Context, id string) ([]*domain.RepoResult, error) {
	path := fmt.Sprintf("/api/v1/runs/%s/repos", url.PathEscape(id))

	var response struct {
		Data []*domain.RepoResult `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeError turns an error body from the server back into an AppError
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error struct {
			Code    apperrors.ErrCode `json:"code"`
			Message string            `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Code == "" {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return &apperrors.AppError{Code: payload.Error.Code, Message: payload.Error.Message}
}
