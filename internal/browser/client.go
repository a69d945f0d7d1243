// Package browser is the boundary to the external browser-automation
// driver. The driver owns all page interaction; this client only starts
// sessions and relays the signup steps over its HTTP API.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mixelka/provisor/internal/worker"
	"github.com/mixelka/provisor/pkg/models"
)

// Client talks to the automation driver service
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a driver client for the given endpoint
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "browser"),
	}
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

type completeResponse struct {
	Csesidx    string `json:"csesidx"`
	HostCOses  string `json:"host_c_oses"`
	SecureCSes string `json:"secure_c_ses"`
	TeamID     string `json:"team_id"`
}

// StartSession opens a driver session for one account
func (c *Client) StartSession(ctx context.Context, opts worker.SessionOptions) (worker.Session, error) {
	var out startSessionResponse
	if err := c.post(ctx, "/v1/sessions", opts, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("driver returned no session id")
	}
	c.logger.Debug("driver session started", "session_id", out.SessionID, "email", opts.Email)
	return &Session{client: c, id: out.SessionID}, nil
}

// Session is one live driver session
type Session struct {
	client *Client
	id     string
}

// SubmitEmail tells the driver to enter the account address into the
// signup form
func (s *Session) SubmitEmail(ctx context.Context) error {
	return s.client.post(ctx, "/v1/sessions/"+s.id+"/email", nil, nil)
}

// SubmitCode enters the verification code
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	return s.client.post(ctx, "/v1/sessions/"+s.id+"/code", submitCodeRequest{Code: code}, nil)
}

// Complete finishes the flow and extracts the session credentials
func (s *Session) Complete(ctx context.Context) (models.SessionFields, error) {
	var out completeResponse
	if err := s.client.post(ctx, "/v1/sessions/"+s.id+"/complete", nil, &out); err != nil {
		return models.SessionFields{}, err
	}
	return models.SessionFields{
		Csesidx:    out.Csesidx,
		HostCOses:  out.HostCOses,
		SecureCSes: out.SecureCSes,
		TeamID:     out.TeamID,
	}, nil
}

// Close tears the session down, best effort
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.client.endpoint+"/v1/sessions/"+s.id, nil)
	if err != nil {
		return
	}
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		s.client.logger.Debug("session close failed", "session_id", s.id, "error", err)
		return
	}
	resp.Body.Close()
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("driver error: %s (status %d)", string(respBody), resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
