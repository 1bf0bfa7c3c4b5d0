package provider

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autorenew/internal/models"
)

// The portal exposes the session identifier in two different ways depending
// on page variant. Rules are tried in fixed priority order; the first hit
// wins.
var sessionRules = []struct {
	name    string
	extract func(resp *http.Response, body string) string
}{
	{"phpsessid-cookie", extractCookieSession},
	{"sess-id-field", extractFieldSession},
}

var (
	sessionCookiePattern = regexp.MustCompile(`PHPSESSID=(\w{10,100});`)
	sessionFieldPattern  = regexp.MustCompile(`name=["']sess_id["']\s+value=["'](\w+)["']`)
)

// extractSessionID runs the extraction rules in priority order
func extractSessionID(resp *http.Response, body string) (string, error) {
	for _, rule := range sessionRules {
		if id := rule.extract(resp, body); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no session identifier found in login page")
}

func extractCookieSession(resp *http.Response, _ string) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "PHPSESSID" && cookie.Value != "" {
			return cookie.Value
		}
	}
	// Some variants deliver the cookie in a Set-Cookie header the jar
	// rejects; fall back to a raw header scan
	for _, header := range resp.Header.Values("Set-Cookie") {
		if m := sessionCookiePattern.FindStringSubmatch(header); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractFieldSession(_ *http.Response, body string) string {
	if m := sessionFieldPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// parseResourceList turns the orders page into the contract listing. A row
// is renewable unless its action cell carries the not-yet-eligible marker.
func parseResourceList(body string) ([]models.RenewableResource, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse resource listing: %w", err)
	}

	var resources []models.RenewableResource
	doc.Find("#kc2_order_customer_orders_tab_content_1 .kc2_order_table.kc2_content_table tr").
		Each(func(_ int, row *goquery.Selection) {
			idCell := row.Find(".td-z1-sp1-kc")
			if idCell.Length() != 1 {
				return
			}
			actionText := row.Find(".td-z1-sp2-kc .kc2_order_action_container").Text()
			resources = append(resources, models.RenewableResource{
				ID:        strings.TrimSpace(idCell.Text()),
				Renewable: !strings.Contains(actionText, notRenewableMarker),
			})
		})
	return resources, nil
}
