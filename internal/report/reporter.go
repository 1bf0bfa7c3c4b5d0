package report

import (
	"fmt"
	"strings"

	"autorenew/internal/logging"
)

// Every run log line gets an emoji prefix keyed off its first matching
// keyword. The table is ordered; the first hit wins.
var emojiByKeyword = []struct {
	keyword string
	emoji   string
}{
	{"renewing", "🔄"},
	{"detected", "🔍"},
	{"ServerID", "🔗"},
	{"no action needed", "✅"},
	{"renewal error", "⚠️"},
	{"renewed successfully", "🎉"},
	{"all work done", "🏁"},
	{"login failed", "❗"},
	{"verification passed", "✔️"},
	{"verification failed", "❌"},
	{"API usage", "📊"},
	{"captcha answer", "🔢"},
	{"login attempt", "🔑"},
	{"[Mailbox]", "📧"},
	{"[Captcha Solver]", "🧩"},
	{"[AutoRenew]", "🌐"},
}

// Reporter accumulates the human-readable outcome of every step in call
// order. One Reporter lives for exactly one run and its text is handed to
// the notification channel once at the end. Appends happen from the single
// execution thread, so no locking is needed.
type Reporter struct {
	lines []string
	log   logging.Sugared
}

// NewReporter creates an empty run reporter
func NewReporter(log logging.Sugared) *Reporter {
	return &Reporter{log: log}
}

// Logf records one formatted event, decorated and echoed to the process log
func (r *Reporter) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	for _, entry := range emojiByKeyword {
		if strings.Contains(line, entry.keyword) {
			line = entry.emoji + " " + line
			break
		}
	}
	r.lines = append(r.lines, line)
	r.log.Info(line)
}

// Lines returns the recorded events in call order
func (r *Reporter) Lines() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Text returns the full report as a single message body
func (r *Reporter) Text() string {
	return strings.Join(r.lines, "\n\n")
}
