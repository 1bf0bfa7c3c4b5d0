package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/mailbox"
	"autorenew/internal/models"
)

const (
	renewableRow = `<tr><td class="td-z1-sp1-kc">100001</td>
<td class="td-z1-sp2-kc"><div class="kc2_order_action_container">Extend contract</div></td></tr>`
	notRenewableRow = `<tr><td class="td-z1-sp1-kc">100002</td>
<td class="td-z1-sp2-kc"><div class="kc2_order_action_container">Contract extension possible from 2026-10-01</div></td></tr>`
	renewedRow = `<tr><td class="td-z1-sp1-kc">100001</td>
<td class="td-z1-sp2-kc"><div class="kc2_order_action_container">Contract extension possible from 2027-01-01</div></td></tr>`
)

func listingPage(rows ...string) string {
	return `<div id="kc2_order_customer_orders_tab_content_1">
<table class="kc2_order_table kc2_content_table">` + strings.Join(rows, "\n") + `</table></div>`
}

// stubPortal scripts a full provider flow for one account with two
// contracts, one of them already ineligible
type stubPortal struct {
	confirmed atomic.Bool
	pinSeen   atomic.Value
}

func (sp *stubPortal) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if r.URL.Query().Get("sess_id") != "" {
				if sp.confirmed.Load() {
					w.Write([]byte(listingPage(renewedRow, notRenewableRow)))
				} else {
					w.Write([]byte(listingPage(renewableRow, notRenewableRow)))
				}
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-e2e-01"})
			w.Write([]byte("<html>login form</html>"))
			return
		}

		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("subaction") {
		case "login":
			w.Write([]byte("<html>Hello customer</html>"))
		case "kc2_security_password_get_token":
			sp.pinSeen.Store(r.PostForm.Get("auth"))
			w.Write([]byte(`{"rs": "success", "token": {"value": "tok-e2e"}}`))
		case "kc2_customer_contract_details_extend_contract_term":
			require.Equal(t, "tok-e2e", r.PostForm.Get("token"))
			sp.confirmed.Store(true)
			w.Write([]byte("ok"))
		default:
			w.Write([]byte("ok"))
		}
	})
}

// singlePinStore serves exactly one PIN message
type singlePinStore struct {
	consumed bool
}

func (ss *singlePinStore) RecentUnseen(int) ([]uint32, error) {
	if ss.consumed {
		return nil, nil
	}
	return []uint32{3}, nil
}

func (ss *singlePinStore) Fetch(uint32) (*mailbox.Message, error) {
	return &mailbox.Message{
		ID:     3,
		Sender: "EUserv Support <support@euserv.com>",
		Body:   "Your security check PIN: 482913",
	}, nil
}

func (ss *singlePinStore) MarkSeen(uint32) error {
	ss.consumed = true
	return nil
}

func (ss *singlePinStore) Close() error { return nil }

func testConfig(providerURL string) models.Config {
	return models.Config{
		Env:             "prod",
		ProviderBaseURL: providerURL,
		UserAgent:       "test-agent",
		RequestTimeout:  5 * time.Second,

		MailAddress:       "inbox@example.com",
		MailPassword:      "app-password",
		SenderFilter:      "EUserv Support",
		MaxMailCandidates: 10,
		PollInterval:      5 * time.Millisecond,
		PinWait:           200 * time.Millisecond,

		Accounts: []models.Account{{Identifier: "a@b.test", Secret: "pw"}},

		LoginMaxRetry:   5,
		LoginBackoff:    time.Millisecond,
		SettleDelay:     time.Millisecond,
		PostRenewPause:  time.Millisecond,
		VerifyDelay:     time.Millisecond,
		AccountCooldown: time.Millisecond,
	}
}

func TestRunRenewsSingleEligibleResource(t *testing.T) {
	portal := &stubPortal{}
	server := httptest.NewServer(portal.handler(t))
	defer server.Close()

	store := &singlePinStore{}
	renewer, err := NewWithStore(testConfig(server.URL), func() (mailbox.Store, error) { return store, nil })
	require.NoError(t, err)

	require.NoError(t, renewer.Run(context.Background()))

	assert.Equal(t, "482913", portal.pinSeen.Load())
	assert.True(t, portal.confirmed.Load())
	assert.True(t, store.consumed)

	var attempted, noAction, didNotTakeEffect int
	for _, line := range renewer.Reporter().Lines() {
		if strings.Contains(line, "renewal attempted") {
			attempted++
		}
		if strings.Contains(line, "no action needed") {
			noAction++
		}
		if strings.Contains(line, "did not take effect") {
			didNotTakeEffect++
		}
	}
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, noAction)
	assert.Equal(t, 0, didNotTakeEffect)
	assert.Contains(t, renewer.Reporter().Text(), "all work done")
}

func TestRunReportsRenewalThatDidNotTakeEffect(t *testing.T) {
	// Portal accepts every call but the listing never changes
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if r.URL.Query().Get("sess_id") != "" {
				w.Write([]byte(listingPage(renewableRow)))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-e2e-02"})
			w.Write([]byte("login form"))
			return
		}
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("subaction") {
		case "login":
			w.Write([]byte("Hello customer"))
		case "kc2_security_password_get_token":
			w.Write([]byte(`{"rs": "success", "token": {"value": "tok-x"}}`))
		default:
			w.Write([]byte("ok"))
		}
	}))
	defer server.Close()

	store := &singlePinStore{}
	renewer, err := NewWithStore(testConfig(server.URL), func() (mailbox.Store, error) { return store, nil })
	require.NoError(t, err)
	require.NoError(t, renewer.Run(context.Background()))

	assert.Contains(t, renewer.Reporter().Text(), "did not take effect")
	assert.NotContains(t, renewer.Reporter().Text(), "all work done")
}

func TestRunSkipsAccountAfterLoginBudget(t *testing.T) {
	var loginPosts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-e2e-03"})
			w.Write([]byte("login form"))
			return
		}
		loginPosts.Add(1)
		w.Write([]byte("Login incorrect"))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Accounts = append(cfg.Accounts, models.Account{Identifier: "c@d.test", Secret: "pw2"})

	store := &singlePinStore{}
	renewer, err := NewWithStore(cfg, func() (mailbox.Store, error) { return store, nil })
	require.NoError(t, err)
	require.NoError(t, renewer.Run(context.Background()))

	// Both accounts burned their full budget and were skipped, the run
	// itself still finished
	assert.Equal(t, int32(10), loginPosts.Load())
	var loginFailed int
	for _, line := range renewer.Reporter().Lines() {
		if strings.Contains(line, "login failed") {
			loginFailed++
		}
	}
	assert.Equal(t, 2, loginFailed)
	assert.False(t, store.consumed)
}

func TestMisconfiguredRunMakesNoCalls(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	// Parallel credential lists of unequal length leave the second account
	// without a secret
	cfg.Accounts = []models.Account{
		{Identifier: "a@b.test", Secret: "pw"},
		{Identifier: "c@d.test"},
	}

	dialed := false
	_, err := NewWithStore(cfg, func() (mailbox.Store, error) {
		dialed = true
		return &singlePinStore{}, nil
	})
	require.Error(t, err)
	assert.Equal(t, int32(0), hits.Load())
	assert.False(t, dialed)
}
