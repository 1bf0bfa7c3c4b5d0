package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"autorenew/internal/logging"
	"autorenew/internal/models"
)

// ErrTokenExchangeRejected is returned when the PIN-for-token exchange
// replies with a non-success status or a malformed envelope
var ErrTokenExchangeRejected = errors.New("token exchange rejected")

const (
	indexPath        = "/index.iphp"
	captchaImagePath = "/securimage_show.php"
	warmupAssetPath  = "/pic/logo_small.png"

	// Every sensitive call is namespaced with this prefix by the provider's
	// security-check dialog
	identPrefix = "kc2_customer_contract_details_extend_contract_"

	captchaChallengeMarker = "To finish the login process please solve the following captcha."
	notRenewableMarker     = "Contract extension possible from"
)

// The provider has no reliable single success marker; any of these accepts
// the response as an authenticated page
var authenticatedMarkers = []string{
	"Hello",
	"Confirm or change your customer data here",
}

// Client drives the provider portal over one cookie-backed HTTP session
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	log       logging.Sugared
}

// New creates a provider client with a fresh cookie jar. One client serves
// exactly one account and is discarded afterwards.
func New(baseURL, userAgent string, timeout time.Duration, log logging.Sugared) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		log:       log,
	}, nil
}

// FetchLoginPage loads the portal entry page and extracts the session
// identifier via the ordered extraction rules
func (c *Client) FetchLoginPage(ctx context.Context) (string, error) {
	resp, body, err := c.get(ctx, c.baseURL+indexPath)
	if err != nil {
		return "", err
	}

	sessID, err := extractSessionID(resp, body)
	if err != nil {
		return "", err
	}

	// The portal expects a static asset request before accepting the login
	// form; failures here are irrelevant
	if _, _, err := c.get(ctx, c.baseURL+warmupAssetPath); err != nil {
		c.log.Debugw("warm-up asset fetch failed", "error", err)
	}

	return sessID, nil
}

// SubmitLogin posts the credentials against an extracted session identifier
func (c *Client) SubmitLogin(ctx context.Context, sessID string, account models.Account) (string, error) {
	return c.postForm(ctx, url.Values{
		"email":                  {account.Identifier},
		"password":               {account.Secret},
		"form_selected_language": {"en"},
		"Submit":                 {"Login"},
		"subaction":              {"login"},
		"sess_id":                {sessID},
	})
}

// CaptchaImage fetches the current challenge image for the session
func (c *Client) CaptchaImage(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+captchaImagePath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captcha image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SubmitCaptchaAnswer resubmits the login with the solved captcha answer
func (c *Client) SubmitCaptchaAnswer(ctx context.Context, sessID, answer string) (string, error) {
	return c.postForm(ctx, url.Values{
		"subaction":    {"login"},
		"sess_id":      {sessID},
		"captcha_code": {answer},
	})
}

// ListResources fetches the orders page and parses it into the per-contract
// renewability listing. The result is produced fresh on every call.
func (c *Client) ListResources(ctx context.Context, sessID string) ([]models.RenewableResource, error) {
	_, body, err := c.get(ctx, c.baseURL+indexPath+"?sess_id="+url.QueryEscape(sessID))
	if err != nil {
		return nil, err
	}
	return parseResourceList(body)
}

// ChooseResource opens the contract-details view for one resource
func (c *Client) ChooseResource(ctx context.Context, sessID, resourceID string) error {
	_, err := c.postForm(ctx, url.Values{
		"Submit":                 {"Extend contract"},
		"sess_id":                {sessID},
		"ord_no":                 {resourceID},
		"subaction":              {"choose_order"},
		"choose_order_subaction": {"show_contract_details"},
	})
	return err
}

// TriggerSecurityCheck opens the security-check dialog, which makes the
// provider dispatch the PIN email. The response carries no machine-checkable
// success signal beyond HTTP success.
func (c *Client) TriggerSecurityCheck(ctx context.Context, sessID string) error {
	_, err := c.postForm(ctx, url.Values{
		"sess_id":   {sessID},
		"subaction": {"show_kc2_security_password_dialog"},
		"prefix":    {identPrefix},
		"type":      {"1"},
	})
	return err
}

// ExchangePIN trades a captured PIN for the short-lived renewal token
func (c *Client) ExchangePIN(ctx context.Context, sessID, resourceID, pin string) (models.RenewalToken, error) {
	body, err := c.postForm(ctx, url.Values{
		"auth":      {pin},
		"sess_id":   {sessID},
		"subaction": {"kc2_security_password_get_token"},
		"prefix":    {identPrefix},
		"type":      {"1"},
		"ident":     {identPrefix + resourceID},
	})
	if err != nil {
		return models.RenewalToken{}, err
	}

	var envelope struct {
		RS    string `json:"rs"`
		Token struct {
			Value string `json:"value"`
		} `json:"token"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return models.RenewalToken{}, fmt.Errorf("%w: malformed reply: %v", ErrTokenExchangeRejected, err)
	}
	if envelope.RS != "success" || envelope.Token.Value == "" {
		return models.RenewalToken{}, fmt.Errorf("%w: status %q", ErrTokenExchangeRejected, envelope.RS)
	}
	return models.RenewalToken{Value: envelope.Token.Value, ResourceID: resourceID}, nil
}

// ConfirmRenewal submits the token to the final confirmation endpoint. The
// provider returns no reliable confirmation body, so only transport errors
// fail here; the verification pass is the arbiter.
func (c *Client) ConfirmRenewal(ctx context.Context, sessID string, token models.RenewalToken) error {
	_, err := c.postForm(ctx, url.Values{
		"sess_id":   {sessID},
		"ord_id":    {token.ResourceID},
		"subaction": {"kc2_customer_contract_details_extend_contract_term"},
		"token":     {token.Value},
	})
	return err
}

// IsCaptchaChallenge reports whether a login response demands a captcha
func IsCaptchaChallenge(body string) bool {
	return strings.Contains(body, captchaChallengeMarker)
}

// IsAuthenticated reports whether a response body carries any of the
// authenticated-state markers
func IsAuthenticated(body string) bool {
	for _, marker := range authenticatedMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Origin", c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("request to %s returned status %d", rawURL, resp.StatusCode)
	}
	return resp, string(body), nil
}

func (c *Client) postForm(ctx context.Context, data url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+indexPath, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+indexPath)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s failed: %w", data.Get("subaction"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", data.Get("subaction"), err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("post %s returned status %d", data.Get("subaction"), resp.StatusCode)
	}
	return string(body), nil
}
