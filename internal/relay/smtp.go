package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/badoux/checkmail"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// SMTP security modes.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// SMTPConfig configures an SMTPRelay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope and header sender. The wallet address of the
	// author is carried in a header.
	From string

	Security string
}

// SMTPRelay submits messages to an SMTP server.
type SMTPRelay struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPRelay returns a relay for cfg.
func NewSMTPRelay(cfg SMTPConfig) *SMTPRelay {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}
	return &SMTPRelay{cfg: cfg, now: time.Now}
}

// Deliver builds a multipart/alternative message and submits it.
func (r *SMTPRelay) Deliver(ctx context.Context, msg Message) error {
	if err := checkmail.ValidateFormat(msg.To); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, msg.To)
	}

	raw, err := r.compose(msg)
	if err != nil {
		return err
	}

	c, err := r.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if deadline, ok := ctx.Deadline(); ok {
		c.CommandTimeout = time.Until(deadline)
		c.SubmissionTimeout = time.Until(deadline)
	}

	if r.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", r.cfg.Username, r.cfg.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(r.cfg.From, nil); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	if err := c.Quit(); err != nil {
		logrus.WithError(err).Debug("smtp quit")
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("message submitted over smtp")
	return nil
}

func (r *SMTPRelay) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
	tlsConfig := &tls.Config{ServerName: r.cfg.Host}

	var (
		c   *smtp.Client
		err error
	)
	switch r.cfg.Security {
	case SecurityTLS:
		c, err = smtp.DialTLS(addr, tlsConfig)
	case SecurityNone:
		c, err = smtp.Dial(addr)
	default:
		c, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return c, nil
}

// compose renders msg as an RFC 5322 message with text and HTML parts.
func (r *SMTPRelay) compose(msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(r.now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: r.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	if msg.From != "" {
		h.Set("X-Kmail-Sender", msg.From)
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating body: %w", err)
	}
	if err := writePart(tw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(tw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}

	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return w.Close()
}
