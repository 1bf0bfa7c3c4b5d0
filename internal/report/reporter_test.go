package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReporterKeepsCallOrder(t *testing.T) {
	r := NewReporter(zap.NewNop().Sugar())
	r.Logf("[AutoRenew] renewing account %d", 1)
	r.Logf("[AutoRenew] ServerID: %s no action needed", "100002")
	r.Logf("[AutoRenew] all work done! enjoy~")

	lines := r.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "renewing account 1")
	assert.Contains(t, lines[1], "no action needed")
	assert.Contains(t, lines[2], "all work done")
}

func TestReporterDecoratesFirstMatchingKeyword(t *testing.T) {
	r := NewReporter(zap.NewNop().Sugar())
	r.Logf("[AutoRenew] ServerID: 100001 renewed successfully!")
	r.Logf("plain line without keywords")

	lines := r.Lines()
	// "ServerID" appears before "renewed successfully" in the table
	assert.True(t, strings.HasPrefix(lines[0], "🔗 "))
	assert.Equal(t, "plain line without keywords", lines[1])
}

func TestReporterText(t *testing.T) {
	r := NewReporter(zap.NewNop().Sugar())
	r.Logf("first")
	r.Logf("second")
	assert.Equal(t, "first\n\nsecond", r.Text())
}

func TestNotifierSendsSingleMessage(t *testing.T) {
	var got struct {
		chatID string
		text   string
		mode   string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got.chatID = r.PostForm.Get("chat_id")
		got.text = r.PostForm.Get("text")
		got.mode = r.PostForm.Get("parse_mode")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "bot-token", "chat-42", 5*time.Second, zap.NewNop().Sugar())
	require.True(t, n.Configured())
	require.NoError(t, n.Send(context.Background(), "line one\n\nline two"))

	assert.Equal(t, "chat-42", got.chatID)
	assert.Contains(t, got.text, "line one")
	assert.Contains(t, got.text, "line two")
	assert.Equal(t, "HTML", got.mode)
}

func TestNotifierDeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "bot-token", "chat-42", 5*time.Second, zap.NewNop().Sugar())
	assert.Error(t, n.Send(context.Background(), "report"))
}

func TestNotifierUnconfigured(t *testing.T) {
	n := NewNotifier("https://api.telegram.org", "", "", 5*time.Second, zap.NewNop().Sugar())
	assert.False(t, n.Configured())
}
