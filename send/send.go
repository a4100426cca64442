package send

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/swvincent/acronis-summary/stats"
)

// Message is one outbound notification.
type Message struct {
	From    string
	To      string
	Subject string
	Date    time.Time
	// TextBody is always set. When HTMLBody is also set the message is
	// built as multipart/alternative.
	TextBody string
	HTMLBody string
}

// Build assembles the RFC 5322 message bytes.
func (m Message) Build() ([]byte, error) {
	var buf bytes.Buffer

	var h gomail.Header
	h.SetDate(m.Date)
	h.SetAddressList("From", []*gomail.Address{{Address: m.From}})
	h.SetAddressList("To", []*gomail.Address{{Address: m.To}})
	h.SetSubject(m.Subject)

	if m.HTMLBody == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := gomail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message writer: %w", err)
		}
		if _, err := io.WriteString(w, m.TextBody); err != nil {
			return nil, fmt.Errorf("write text body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close message writer: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create alternative part: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", m.TextBody},
		{"text/html", m.HTMLBody},
	}
	for _, part := range parts {
		var ph gomail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, fmt.Errorf("write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("close %s part: %w", part.contentType, err)
		}
	}

	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("close alternative part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Transport delivers one raw message through an outbound mail server.
type Transport func(addr, from, to string, data []byte) error

// SMTPTransport dials the server, upgrades with STARTTLS when offered,
// and submits the message.
func SMTPTransport(addr, from, to string, data []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("split address %s: %w", addr, err)
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(2 * time.Minute)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConf := &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConf); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}

	return nil
}

// DeliveryError reports that every delivery attempt failed.
type DeliveryError struct {
	Attempts int
	Last     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *DeliveryError) Unwrap() error { return e.Last }

// RetryPolicy retries a failed send at a fixed interval. This is a
// nightly batch job and mail server outages are typically short, so
// there is no backoff and no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Sleep defaults to time.Sleep. Tests inject a recorder here.
	Sleep func(time.Duration)
}

// DefaultRetryPolicy retries every minute for up to 15 total attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 15, Delay: time.Minute}
}

// Sender delivers notifications with bounded retry.
type Sender struct {
	addr      string
	transport Transport
	policy    RetryPolicy
	collector *stats.Collector
	logger    *slog.Logger
}

func NewSender(addr string, policy RetryPolicy, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		addr:      addr,
		transport: SMTPTransport,
		policy:    policy,
		logger:    logger,
	}
}

// WithTransport overrides the outbound transport.
func (s *Sender) WithTransport(t Transport) *Sender {
	s.transport = t
	return s
}

// WithCollector records each delivery attempt in the run counters.
func (s *Sender) WithCollector(c *stats.Collector) *Sender {
	s.collector = c
	return s
}

// Send builds the message and attempts delivery until it succeeds or
// the retry policy is exhausted, in which case a *DeliveryError
// carrying the last transport error is returned.
func (s *Sender) Send(msg Message) error {
	data, err := msg.Build()
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	attempts := s.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := s.policy.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		s.logger.Debug("attempting to send email", "attempt", attempt, "to", msg.To)
		if s.collector != nil {
			s.collector.Record(stats.Event{Stage: stats.StageSend, Type: stats.EventTypeSendAttempt})
		}
		last = s.transport(s.addr, msg.From, msg.To, data)
		if last == nil {
			return nil
		}
		s.logger.Warn("send attempt failed", "attempt", attempt, "err", last)
		if attempt < attempts {
			sleep(s.policy.Delay)
		}
	}

	return &DeliveryError{Attempts: attempts, Last: last}
}
