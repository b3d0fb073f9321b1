package relay

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	from string
	to   []string
	data []byte
}

type captureBackend struct {
	mu   sync.Mutex
	msgs []captured
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

func (b *captureBackend) messages() []captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]captured(nil), b.msgs...)
}

type captureSession struct {
	backend *captureBackend
	cur     captured
}

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = data
	s.backend.mu.Lock()
	s.backend.msgs = append(s.backend.msgs, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func (s *captureSession) Reset()        { s.cur = captured{} }
func (s *captureSession) Logout() error { return nil }

func startSMTP(t *testing.T) (*captureBackend, string, int) {
	t.Helper()

	be := &captureBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return be, host, port
}

func TestSMTPRelayDelivers(t *testing.T) {
	be, host, port := startSMTP(t)

	r := NewSMTPRelay(SMTPConfig{
		Host:     host,
		Port:     port,
		From:     "relay@kmail.example",
		Security: SecurityNone,
	})

	err := r.Deliver(context.Background(), Message{
		From:     "kaspa:qalice",
		FromName: "Alice",
		To:       "bob@example.com",
		Subject:  "Hello Bob",
		Text:     "line one\nline two",
		HTML:     "line one<br>line two",
	})
	require.NoError(t, err)

	msgs := be.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "relay@kmail.example", msgs[0].from)
	assert.Equal(t, []string{"bob@example.com"}, msgs[0].to)

	mr, err := mail.CreateReader(strings.NewReader(string(msgs[0].data)))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", subject)
	assert.Equal(t, "kaspa:qalice", mr.Header.Get("X-Kmail-Sender"))

	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies = append(bodies, strings.ReplaceAll(string(b), "\r\n", "\n"))
	}
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "line one\nline two")
	assert.Contains(t, bodies[1], "line one<br>line two")
}

func TestSMTPRelayRejectsMalformedRecipient(t *testing.T) {
	r := NewSMTPRelay(SMTPConfig{Host: "127.0.0.1", Port: 1, Security: SecurityNone})

	err := r.Deliver(context.Background(), Message{To: "kaspa:qbob", Subject: "s"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}
