package inbound

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Message is one message read from an external mailbox.
type Message struct {
	MessageID string
	UID       uint32
	FromName  string
	FromAddr  string
	Subject   string
	Date      time.Time
	Seen      bool

	TextBody    string
	HTMLBody    string
	Attachments []model.Attachment
}

// Mailbox lists recent messages of an external mailbox.
type Mailbox interface {
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// IMAP security modes.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

// IMAPMailbox reads a mailbox over IMAP with go-imap v2.
type IMAPMailbox struct {
	addr     string
	username string
	password string
	mailbox  string
	security string

	// window limits the search to messages received within it.
	window time.Duration
}

// NewIMAPMailbox builds an IMAPMailbox from a source entry. BaseURL is
// host:port; Config supplies username, mailbox and security.
func NewIMAPMailbox(src model.SourceConfig, password string) (*IMAPMailbox, error) {
	if _, _, err := net.SplitHostPort(src.BaseURL); err != nil {
		return nil, fmt.Errorf("source %s: base_url must be host:port: %w", src.ID, err)
	}
	username := src.Config["username"]
	if username == "" {
		return nil, fmt.Errorf("source %s: username is required", src.ID)
	}

	mailbox := src.Config["mailbox"]
	if mailbox == "" {
		mailbox = "INBOX"
	}
	security := strings.ToLower(src.Config["security"])
	switch security {
	case "":
		security = SecurityTLS
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("source %s: unknown security %q", src.ID, security)
	}

	return &IMAPMailbox{
		addr:     src.BaseURL,
		username: username,
		password: password,
		mailbox:  mailbox,
		security: security,
		window:   7 * 24 * time.Hour,
	}, nil
}

// connect dials and logs in. The caller must log out.
func (c *IMAPMailbox) connect() (*imapclient.Client, error) {
	var client *imapclient.Client
	var err error

	switch c.security {
	case SecurityTLS:
		client, err = imapclient.DialTLS(c.addr, nil)
	case SecurityStartTLS:
		client, err = imapclient.DialStartTLS(c.addr, nil)
	default:
		client, err = imapclient.DialInsecure(c.addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", c.addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP login for %s: %w", c.username, err)
	}
	return client, nil
}

// Recent returns up to limit of the newest messages in the window, with
// bodies. Messages are fetched with BODY.PEEK so their \Seen flag stays.
func (c *IMAPMailbox) Recent(ctx context.Context, limit int) ([]Message, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	// go-imap commands do not take a context; closing the connection
	// unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if _, err := client.Select(c.mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", c.mailbox, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		Since: time.Now().Add(-c.window),
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var out []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		m := messageFromBuffer(buf)
		if raw := buf.FindBodySection(bodySection); raw != nil {
			m.TextBody, m.HTMLBody, m.Attachments = parseMIMEBody(raw)
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out, fmt.Errorf("fetching messages: %w", err)
	}
	return out, nil
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	m := Message{UID: uint32(buf.UID)}

	if env := buf.Envelope; env != nil {
		m.MessageID = env.MessageID
		m.Subject = env.Subject
		m.Date = env.Date
		if len(env.From) > 0 {
			m.FromName = env.From[0].Name
			m.FromAddr = env.From[0].Addr()
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			m.Seen = true
		}
	}
	return m
}

// parseMIMEBody extracts the text and HTML parts of a raw RFC 5322 message
// and lists its attachments. Unparseable input is returned as text.
func parseMIMEBody(raw []byte) (textBody, htmlBody string, attachments []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			n, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				continue
			}
			attachments = append(attachments, model.Attachment{Name: filename, Size: n})
		}
	}

	return textBody, htmlBody, attachments
}
