package mailbox

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/emersion/go-message"

	"github.com/swvincent/acronis-summary/stats"
)

type fakeSession struct {
	ids     []int
	raws    map[int]string
	listErr error
	retrErr error

	deleted []int
	rset    bool
	quit    bool
}

func (f *fakeSession) List() ([]int, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func (f *fakeSession) Retr(id int) (*message.Entity, error) {
	if f.retrErr != nil {
		return nil, f.retrErr
	}
	return message.Read(strings.NewReader(f.raws[id]))
}

func (f *fakeSession) Dele(id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSession) Rset() error {
	f.rset = true
	return nil
}

func (f *fakeSession) Quit() error {
	f.quit = true
	return nil
}

func plainMessage(body string) string {
	return "From: acronis@example.com\r\n" +
		"To: ops@example.com\r\n" +
		"Date: Thu, 14 Mar 2024 09:05:00 +0000\r\n" +
		"Subject: Backup notification\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		body
}

func multipartMessage() string {
	return "From: acronis@example.com\r\n" +
		"Date: Thu, 14 Mar 2024 09:05:00 +0000\r\n" +
		"Subject: Backup notification\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=xyz\r\n" +
		"\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>ignored html</p>\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Backup task 'X' has succeeded.\r\n" +
		"--xyz--\r\n"
}

func newTestReader(t *testing.T, session Session, collector *stats.Collector) *Reader {
	t.Helper()
	r, err := NewReader(session, collector, slog.Default())
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	return r
}

func TestFetchAndStageDeletes_OrderAndStaging(t *testing.T) {
	session := &fakeSession{
		ids: []int{1, 2},
		raws: map[int]string{
			1: plainMessage("task 'A' has succeeded.\r\n"),
			2: plainMessage("task 'B' has failed.\r\n"),
		},
	}
	r := newTestReader(t, session, nil)

	raws, err := r.FetchAndStageDeletes()
	if err != nil {
		t.Fatalf("FetchAndStageDeletes() error = %v", err)
	}

	if len(raws) != 2 {
		t.Fatalf("expected 2 raw messages, got %d", len(raws))
	}
	if !strings.Contains(raws[0].Body, "task 'A'") || !strings.Contains(raws[1].Body, "task 'B'") {
		t.Errorf("retrieval order not preserved: %q, %q", raws[0].Body, raws[1].Body)
	}
	if raws[0].ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be parsed from the Date header")
	}
	if len(session.deleted) != 2 || session.deleted[0] != 1 || session.deleted[1] != 2 {
		t.Errorf("every enumerated message must be staged for deletion, got %v", session.deleted)
	}
	if got := r.StagedDeletes(); got != 2 {
		t.Errorf("StagedDeletes() = %d, want 2", got)
	}
	if session.quit || session.rset {
		t.Error("fetch must not commit or abort the session")
	}
}

func TestFetchAndStageDeletes_IgnoresNonTextParts(t *testing.T) {
	session := &fakeSession{
		ids:  []int{1},
		raws: map[int]string{1: multipartMessage()},
	}
	collector := stats.NewCollector()
	r := newTestReader(t, session, collector)

	raws, err := r.FetchAndStageDeletes()
	if err != nil {
		t.Fatalf("FetchAndStageDeletes() error = %v", err)
	}

	if len(raws) != 1 {
		t.Fatalf("expected 1 raw message, got %d", len(raws))
	}
	if !strings.Contains(raws[0].Body, "has succeeded") {
		t.Errorf("text part not extracted: %q", raws[0].Body)
	}
	if got := collector.Snapshot().IgnoredParts; got != 1 {
		t.Errorf("IgnoredParts = %d, want 1", got)
	}
}

func TestFetchAndStageDeletes_SkipsEmptyBody(t *testing.T) {
	session := &fakeSession{
		ids: []int{1, 2},
		raws: map[int]string{
			1: plainMessage(""),
			2: plainMessage("task 'B' has succeeded.\r\n"),
		},
	}
	collector := stats.NewCollector()
	r := newTestReader(t, session, collector)

	raws, err := r.FetchAndStageDeletes()
	if err != nil {
		t.Fatalf("FetchAndStageDeletes() error = %v", err)
	}

	if len(raws) != 1 {
		t.Fatalf("empty body should be skipped, got %d messages", len(raws))
	}
	if len(session.deleted) != 2 {
		t.Errorf("the empty message must still be staged for deletion, got %v", session.deleted)
	}
	if got := r.StagedDeletes(); got != 2 {
		t.Errorf("StagedDeletes() = %d, want 2", got)
	}
	if got := collector.Snapshot().SkippedEmpty; got != 1 {
		t.Errorf("SkippedEmpty = %d, want 1", got)
	}
}

func TestFetchAndStageDeletes_ListError(t *testing.T) {
	session := &fakeSession{listErr: errors.New("connection reset")}
	r := newTestReader(t, session, nil)

	if _, err := r.FetchAndStageDeletes(); err == nil {
		t.Fatal("expected error from failing list")
	}
	if session.quit || session.rset {
		t.Error("a read error must leave commit/abort to the caller")
	}
}

func TestCommitDeletes(t *testing.T) {
	session := &fakeSession{}
	r := newTestReader(t, session, nil)

	if err := r.CommitDeletes(); err != nil {
		t.Fatalf("CommitDeletes() error = %v", err)
	}
	if !session.quit {
		t.Error("commit must close the session normally")
	}
	if session.rset {
		t.Error("commit must not reset the session")
	}
}

func TestAbortDeletes(t *testing.T) {
	session := &fakeSession{}
	r := newTestReader(t, session, nil)

	if err := r.AbortDeletes(); err != nil {
		t.Fatalf("AbortDeletes() error = %v", err)
	}
	if !session.rset {
		t.Error("abort must reset staged deletions")
	}
	if !session.quit {
		t.Error("abort must still close the session")
	}
}
