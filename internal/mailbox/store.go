package mailbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Message is the decoded view of one inbox message
type Message struct {
	ID      uint32
	Sender  string
	Subject string
	Body    string
}

// Store abstracts the remote mailbox. Write access is limited to flagging a
// message as seen.
type Store interface {
	// RecentUnseen lists up to max unseen message ids in ascending order,
	// oldest first
	RecentUnseen(max int) ([]uint32, error)
	Fetch(id uint32) (*Message, error)
	MarkSeen(id uint32) error
	Close() error
}

// DialFunc opens a fresh Store connection for one polling call
type DialFunc func() (Store, error)

// IMAPStore implements Store over an IMAP connection with INBOX selected
type IMAPStore struct {
	c *client.Client
}

// Dial connects to the IMAP server over TLS, logs in and selects INBOX
func Dial(addr, username, password string) (*IMAPStore, error) {
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mailbox %s: %w", addr, err)
	}
	if err := c.Login(username, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("mailbox login failed: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	return &IMAPStore{c: c}, nil
}

// RecentUnseen returns the sequence numbers of the newest unseen messages,
// ascending, capped at max
func (s *IMAPStore) RecentUnseen(max int) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := s.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("mailbox search failed: %w", err)
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids, nil
}

// Fetch downloads one message and decodes its sender, subject and plaintext
// body, selecting the text/plain part of multi-part messages
func (s *IMAPStore) Fetch(id uint32) (*Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", id, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not returned by server", id)
	}

	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("message %d has no body section", id)
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", id, err)
	}

	out := &Message{ID: id}
	// Header decoding handles RFC 2047 encoded words, which sender filters
	// must tolerate
	out.Sender, _ = mr.Header.Text("From")
	out.Subject, _ = mr.Header.Subject()

	var fallback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part of message %d: %w", id, err)
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		contentType, _, _ := header.ContentType()
		if contentType == "text/plain" {
			out.Body = string(content)
			break
		}
		if fallback == "" {
			fallback = string(content)
		}
	}
	if out.Body == "" {
		out.Body = fallback
	}
	return out, nil
}

// MarkSeen flags a message as read so it is consumed exactly once
func (s *IMAPStore) MarkSeen(id uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return s.c.Store(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

// Close logs out of the IMAP session
func (s *IMAPStore) Close() error {
	return s.c.Logout()
}

// senderMatches reports whether a decoded From header passes the configured
// filter or the broader provider-domain fallback, both case-insensitive
func senderMatches(sender, filter, fallback string) bool {
	lower := strings.ToLower(sender)
	if filter != "" && strings.Contains(lower, strings.ToLower(filter)) {
		return true
	}
	return fallback != "" && strings.Contains(lower, strings.ToLower(fallback))
}
