// Package api is a thin REST client for the analysis server's game ledger.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chessanalysis/internal/client/display"
	"chessanalysis/internal/server/core"
)

// HealthResponse mirrors the server's /health body
type HealthResponse struct {
	Status   string `json:"status"`
	Time     int64  `json:"time"`
	Storage  string `json:"storage"`
	Sessions int    `json:"sessions"`
}

type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	Verbose    bool
	Out        io.Writer
}

func New(baseURL string, out io.Writer) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Out: out,
	}
}

// SetBaseURL updates the API base URL for the client
func (c *Client) SetBaseURL(url string) {
	c.BaseURL = strings.TrimRight(url, "/")
}

func (c *Client) SetToken(token string) {
	c.AuthToken = token
}

func (c *Client) doRequest(method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	fmt.Fprintf(c.Out, "%s[API] %s %s%s\n", display.Blue, method, path, display.Reset)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	statusColor := display.Green
	if resp.StatusCode >= 400 {
		statusColor = display.Red
	}
	fmt.Fprintf(c.Out, "%s[%d %s]%s\n", statusColor, resp.StatusCode, http.StatusText(resp.StatusCode), display.Reset)

	if c.Verbose && len(respBody) > 0 {
		display.PrettyPrintJSON(c.Out, respBody)
	}

	if resp.StatusCode >= 400 {
		var errResp core.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			if errResp.Details != "" {
				return fmt.Errorf("%s (%s): %s", errResp.Error, errResp.Code, errResp.Details)
			}
			return fmt.Errorf("%s (%s)", errResp.Error, errResp.Code)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("response parse error: %w", err)
		}
	}
	return nil
}

func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(http.MethodGet, "/health", nil, &resp)
	return &resp, err
}

func (c *Client) CreateGame() (*core.GameResponse, error) {
	var resp core.GameResponse
	err := c.doRequest(http.MethodPost, "/api/v1/games", nil, &resp)
	return &resp, err
}

func (c *Client) ListGames() ([]core.GameSummary, error) {
	var resp []core.GameSummary
	err := c.doRequest(http.MethodGet, "/api/v1/games", nil, &resp)
	return resp, err
}

func (c *Client) GetGame(gameID string) (*core.GameResponse, error) {
	var resp core.GameResponse
	err := c.doRequest(http.MethodGet, "/api/v1/games/"+gameID, nil, &resp)
	return &resp, err
}
