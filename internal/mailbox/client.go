package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mixelka/provisor/internal/parser"
	"github.com/mixelka/provisor/pkg/models"
)

// ErrVerificationTimeout is returned when no valid code arrives within the
// attempt budget
var ErrVerificationTimeout = errors.New("no verification code arrived within the attempt budget")

// staleAfter rejects leftover mail from a previous use of a recycled
// address: anything older than this never satisfies a fresh poll.
const staleAfter = time.Minute

// Client talks to a disposable-mailbox provider's admin HTTP API
type Client struct {
	workerDomain string
	mailDomain   string
	adminSecret  string
	httpClient   *http.Client
	extractor    *parser.CodeExtractor
	logger       *slog.Logger
	now          func() time.Time
}

// NewClient creates a client for one provider
func NewClient(provider models.Provider, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		workerDomain: provider.WorkerDomain,
		mailDomain:   provider.MailDomain,
		adminSecret:  provider.AdminSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		extractor: parser.NewCodeExtractor(),
		logger:    logger.With("component", "mailbox", "provider", provider.WorkerDomain),
		now:       time.Now,
	}
}

// baseURL accepts worker domains with or without an explicit scheme
func (c *Client) baseURL() string {
	if strings.Contains(c.workerDomain, "://") {
		return strings.TrimSuffix(c.workerDomain, "/")
	}
	return "https://" + c.workerDomain
}

type newAddressRequest struct {
	EnablePrefix bool   `json:"enablePrefix"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
}

type newAddressResponse struct {
	JWT     string `json:"jwt"`
	Address string `json:"address"`
}

type mailListResponse struct {
	Results []struct {
		Raw string `json:"raw"`
	} `json:"results"`
}

// GenerateName returns a random mailbox local part: four lowercase letters,
// two digits, three lowercase letters
func GenerateName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	const digits = "0123456789"

	name := make([]byte, 0, 9)
	for i := 0; i < 4; i++ {
		name = append(name, letters[rand.IntN(len(letters))])
	}
	for i := 0; i < 2; i++ {
		name = append(name, digits[rand.IntN(len(digits))])
	}
	for i := 0; i < 3; i++ {
		name = append(name, letters[rand.IntN(len(letters))])
	}
	return string(name)
}

// CreateAddress provisions a mailbox and returns its bootstrap token and
// full address. An empty localPart gets a generated name. There is no retry
// here; callers own that decision.
func (c *Client) CreateAddress(ctx context.Context, localPart string) (jwt, address string, err error) {
	name := localPart
	if name == "" {
		name = GenerateName()
	}

	body, err := json.Marshal(newAddressRequest{
		EnablePrefix: true,
		Name:         name,
		Domain:       c.mailDomain,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/admin/new_address", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-admin-auth", c.adminSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("provider error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var out newAddressResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.JWT == "" || out.Address == "" {
		return "", "", fmt.Errorf("provider returned incomplete address data")
	}

	c.logger.Info("mailbox created", "address", out.Address)
	return out.JWT, out.Address, nil
}

// fetchLatest returns the newest message for address, ok=false when the
// mailbox is empty
func (c *Client) fetchLatest(ctx context.Context, address string) (parser.RawMessage, bool, error) {
	query := url.Values{}
	query.Set("limit", "10")
	query.Set("offset", "0")
	query.Set("address", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/admin/mails?"+query.Encode(), nil)
	if err != nil {
		return parser.RawMessage{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-admin-auth", c.adminSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return parser.RawMessage{}, false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return parser.RawMessage{}, false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parser.RawMessage{}, false, fmt.Errorf("provider error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var out mailListResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return parser.RawMessage{}, false, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Results) == 0 {
		return parser.RawMessage{}, false, nil
	}

	// Listing is ordered newest-first
	return parser.ParseRaw(out.Results[0].Raw), true, nil
}

// AwaitCode polls the mailbox until a fresh verification mail yields a code.
// Transport errors count as a failed attempt; upstream delivery is expected
// to be flaky. Exhausting the budget returns ErrVerificationTimeout.
func (c *Client) AwaitCode(ctx context.Context, address string, attempts int, interval time.Duration) (string, error) {
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		msg, ok, err := c.fetchLatest(ctx, address)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Debug("mail poll failed", "address", address, "attempt", attempt+1, "error", err)
		case !ok:
			c.logger.Debug("mailbox empty", "address", address, "attempt", attempt+1)
		case msg.Stale(c.now(), staleAfter):
			c.logger.Debug("ignoring stale message", "address", address, "date", msg.Date)
		default:
			if code, found := c.extractor.Extract(msg.Raw); found {
				c.logger.Info("verification code found", "address", address, "attempt", attempt+1)
				return code, nil
			}
			c.logger.Debug("no code in message", "address", address,
				"subject", msg.Subject,
				"snippet", parser.TextSnippet(parser.Normalize(msg.Raw), 120))
		}

		if err := sleep(ctx, interval); err != nil {
			return "", err
		}
	}
	return "", ErrVerificationTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
