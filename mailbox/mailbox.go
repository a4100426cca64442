package mailbox

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"

	"github.com/swvincent/acronis-summary/model"
	"github.com/swvincent/acronis-summary/stats"
)

// Session is one authenticated mailbox connection. Deletes are staged
// server-side and only become durable when the session is closed
// normally with Quit; Rset discards everything staged so far.
type Session interface {
	List() ([]int, error)
	Retr(id int) (*message.Entity, error)
	Dele(id int) error
	Rset() error
	Quit() error
}

// Options configures the POP3 connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Dial opens and authenticates a POP3 session over TLS.
func Dial(opts Options) (Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("mailbox host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("mailbox port must be positive")
	}

	client := pop3.New(pop3.Opt{
		Host:        opts.Host,
		Port:        opts.Port,
		TLSEnabled:  true,
		DialTimeout: 30 * time.Second,
	})

	conn, err := client.NewConn()
	if err != nil {
		return nil, fmt.Errorf("dial pop3 %s:%d: %w", opts.Host, opts.Port, err)
	}

	if err := conn.Auth(opts.Username, opts.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("pop3 auth failed for %s: %w", opts.Username, err)
	}

	return &popSession{conn: conn}, nil
}

type popSession struct {
	conn *pop3.Conn
}

func (s *popSession) List() ([]int, error) {
	msgs, err := s.conn.List(0)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *popSession) Retr(id int) (*message.Entity, error) { return s.conn.Retr(id) }
func (s *popSession) Dele(id int) error                    { return s.conn.Dele(id) }
func (s *popSession) Rset() error                          { return s.conn.Rset() }
func (s *popSession) Quit() error                          { return s.conn.Quit() }

// Reader drains a mailbox into raw messages and manages the staged
// deletions for the run.
type Reader struct {
	session   Session
	collector *stats.Collector
	logger    *slog.Logger
	staged    int
}

func NewReader(session Session, collector *stats.Collector, logger *slog.Logger) (*Reader, error) {
	if session == nil {
		return nil, fmt.Errorf("session must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{session: session, collector: collector, logger: logger}, nil
}

// FetchAndStageDeletes enumerates every message in server order,
// decodes the text/plain part of each into a RawMessage, and stages a
// delete for every enumerated message. Nothing becomes durable until
// CommitDeletes; messages with no usable text body are still staged
// for deletion but produce no RawMessage.
func (r *Reader) FetchAndStageDeletes() ([]model.RawMessage, error) {
	ids, err := r.session.List()
	if err != nil {
		return nil, fmt.Errorf("list mailbox: %w", err)
	}

	var raws []model.RawMessage
	for _, id := range ids {
		entity, err := r.session.Retr(id)
		if err != nil {
			return nil, fmt.Errorf("retrieve message %d: %w", id, err)
		}
		r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeFetched})

		if raw, ok := r.extractText(id, entity); ok {
			raws = append(raws, raw)
		}

		if err := r.session.Dele(id); err != nil {
			return nil, fmt.Errorf("stage delete for message %d: %w", id, err)
		}
		r.staged++
	}

	return raws, nil
}

// StagedDeletes reports how many deletions this run has staged so
// far. Messages with unusable bodies produce no RawMessage but are
// still staged, so callers must not treat a zero-length fetch result
// as an empty mailbox without checking this.
func (r *Reader) StagedDeletes() int {
	return r.staged
}

// CommitDeletes makes the staged deletions durable by closing the
// session normally. Only call after the summary was confirmed sent.
func (r *Reader) CommitDeletes() error {
	if err := r.session.Quit(); err != nil {
		return fmt.Errorf("commit deletes: %w", err)
	}
	return nil
}

// AbortDeletes rolls back every staged deletion and closes the
// session, leaving the mailbox unchanged for the next run.
func (r *Reader) AbortDeletes() error {
	if err := r.session.Rset(); err != nil {
		_ = r.session.Quit()
		return fmt.Errorf("abort deletes: %w", err)
	}
	if err := r.session.Quit(); err != nil {
		return fmt.Errorf("close session after abort: %w", err)
	}
	return nil
}

// Close ends a session that has nothing staged, e.g. when the mailbox
// was empty.
func (r *Reader) Close() error {
	return r.session.Quit()
}

// extractText decodes one message and returns its first non-empty
// text/plain part. The inbox occasionally receives mail from other
// senders, so foreign content types are logged and ignored rather
// than failing the run.
func (r *Reader) extractText(id int, entity *message.Entity) (model.RawMessage, bool) {
	mr := gomail.NewReader(entity)
	defer mr.Close()

	receivedAt, err := mr.Header.Date()
	if err != nil {
		r.logger.Warn("unparseable Date header", "id", id, "err", err)
	}

	var body string
	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("undecodable message part, stopping scan", "id", id, "err", err)
			break
		}

		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			r.logger.Info("ignoring message attachment", "id", id)
			r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeIgnoredPart})
			continue
		}

		contentType, _, _ := header.ContentType()
		if contentType != "text/plain" {
			r.logger.Info("ignoring message part", "id", id, "contentType", contentType)
			r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeIgnoredPart})
			continue
		}
		if found {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			r.logger.Warn("reading text part", "id", id, "err", err)
			continue
		}
		body = string(data)
		found = true
	}

	if !found || strings.TrimSpace(body) == "" {
		r.logger.Info("skipping message with no usable text body", "id", id)
		r.record(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeSkippedEmpty})
		return model.RawMessage{}, false
	}

	return model.RawMessage{Body: body, ReceivedAt: receivedAt}, true
}

func (r *Reader) record(evt stats.Event) {
	if r.collector != nil {
		r.collector.Record(evt)
	}
}
