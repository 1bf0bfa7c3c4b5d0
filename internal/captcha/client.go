package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"autorenew/internal/logging"
)

// ErrSolverUnavailable is returned when the solving service cannot be
// reached or replies with something other than a usable result
var ErrSolverUnavailable = errors.New("captcha solver unavailable")

// Demo API keys wrap the answer as "RESULT  IS . <text> ."
var demoResultPattern = regexp.MustCompile(`RESULT  IS . (.*) .`)

// Client talks to the TrueCaptcha HTTP API
type Client struct {
	http    *http.Client
	baseURL string
	userID  string
	apiKey  string
	log     logging.Sugared
}

// UsageEntry is one row of the solver's daily usage counter
type UsageEntry struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// New creates a new TrueCaptcha client
func New(baseURL, userID, apiKey string, timeout time.Duration, log logging.Sugared) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		userID:  userID,
		apiKey:  apiKey,
		log:     log,
	}
}

// Solve submits a challenge image and returns the normalized answer text
func (c *Client) Solve(ctx context.Context, image []byte) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"userid": c.userID,
		"apikey": c.apiKey,
		"case":   "mixed",
		"mode":   "human",
		"data":   base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrSolverUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/one/gettext", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSolverUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSolverUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read reply: %v", ErrSolverUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrSolverUnavailable, resp.StatusCode)
	}

	var solved struct {
		Result *string `json:"result"`
	}
	if err := json.Unmarshal(body, &solved); err != nil || solved.Result == nil {
		c.log.Warnw("malformed solver reply", "body", string(body))
		return "", fmt.Errorf("%w: no result in reply", ErrSolverUnavailable)
	}

	text := *solved.Result
	if m := demoResultPattern.FindStringSubmatch(text); m != nil {
		c.log.Infow("solver reply came from a demo apikey")
		text = m[1]
	}
	return Normalize(text), nil
}

// Usage queries the solver's daily request counter. Callers treat a failure
// here as non-fatal.
func (c *Client) Usage(ctx context.Context) ([]UsageEntry, error) {
	params := url.Values{
		"username": {c.userID},
		"apikey":   {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/one/getusage?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage query returned status %d", resp.StatusCode)
	}

	var usage []UsageEntry
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return nil, fmt.Errorf("failed to decode usage reply: %w", err)
	}
	return usage, nil
}
